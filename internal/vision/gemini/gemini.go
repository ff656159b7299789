package gemini

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"google.golang.org/api/generativelanguage/v1beta"
	"google.golang.org/api/option"
)

// GeminiGenerator calls the Google Generative Language API generateContent
// method with the image inlined as base64.
type GeminiGenerator struct {
	model   string
	service *generativelanguage.Service
}

// NewGeminiGenerator builds a client authenticated with apiKey. Extra options
// are appended after the key, which lets tests point the client at a fake
// endpoint.
func NewGeminiGenerator(ctx context.Context, apiKey, model string, opts ...option.ClientOption) (*GeminiGenerator, error) {
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := generativelanguage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiGenerator{model: model, service: svc}, nil
}

func (g *GeminiGenerator) Name() string {
	return "gemini:" + g.model
}

func (g *GeminiGenerator) Generate(ctx context.Context, r io.Reader, mimeType, prompt string) (string, error) {
	imageData, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}

	req := &generativelanguage.GenerateContentRequest{
		Contents: []*generativelanguage.Content{{
			Role: "user",
			Parts: []*generativelanguage.Part{
				{Text: prompt},
				{InlineData: &generativelanguage.Blob{
					MimeType: mimeType,
					Data:     base64.StdEncoding.EncodeToString(imageData),
				}},
			},
		}},
	}

	resp, err := g.service.Models.GenerateContent(modelResource(g.model), req).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to call gemini: %w", err)
	}

	return responseText(resp)
}

// responseText joins the text parts of the first candidate.
func responseText(resp *generativelanguage.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("gemini blocked the prompt: %s", resp.PromptFeedback.BlockReason)
		}
		return "", fmt.Errorf("gemini returned no candidates")
	}

	cand := resp.Candidates[0]
	var sb strings.Builder
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("gemini returned no text (finish reason %q)", cand.FinishReason)
	}
	return sb.String(), nil
}

func modelResource(model string) string {
	if strings.HasPrefix(model, "models/") {
		return model
	}
	return "models/" + model
}
