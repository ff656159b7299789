package vision

import (
	"context"
	"io"
)

// Generator sends an image and an instruction prompt to a multimodal model and
// returns the model's free-text answer unmodified.
type Generator interface {
	Generate(ctx context.Context, r io.Reader, mimeType, prompt string) (string, error)
	// Name identifies the backend and model, e.g. "gemini:gemini-1.5-flash".
	Name() string
}
