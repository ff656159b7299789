package claude

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/liushuangls/go-anthropic/v2"
)

// maxTokens bounds the free-text diagnosis; a full TCM write-up with a formula
// runs to a few hundred tokens.
const maxTokens = 1024

type ClaudeGenerator struct {
	model  string
	client *anthropic.Client
}

func NewClaudeGenerator(apiKey, model string, opts ...anthropic.ClientOption) *ClaudeGenerator {
	return &ClaudeGenerator{
		model:  model,
		client: anthropic.NewClient(apiKey, opts...),
	}
}

func (a *ClaudeGenerator) Name() string {
	return "claude:" + a.model
}

func (a *ClaudeGenerator) Generate(ctx context.Context, r io.Reader, mimeType, prompt string) (string, error) {
	imageData, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}

	resp, err := a.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(a.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.Message{{
			Role: anthropic.RoleUser,
			Content: []anthropic.MessageContent{
				anthropic.NewImageMessageContent(anthropic.NewMessageContentSource(
					anthropic.MessagesContentSourceTypeBase64,
					normaliseMIME(mimeType),
					base64.StdEncoding.EncodeToString(imageData),
				)),
				anthropic.NewTextMessageContent(prompt),
			},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to call claude: %w", err)
	}

	for _, blk := range resp.Content {
		if blk.Type == anthropic.MessagesContentTypeText && blk.Text != nil {
			return *blk.Text, nil
		}
	}
	return "", fmt.Errorf("claude returned no text content")
}

// normaliseMIME maps browser MIME types to the values the Anthropic API accepts.
// Only jpeg and png reach this layer; anything else is sent as jpeg.
func normaliseMIME(mimeType string) string {
	if mimeType == "image/png" {
		return mimeType
	}
	return "image/jpeg"
}
