package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

type generateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images"`
	Stream bool     `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

type OllamaGenerator struct {
	host   string
	model  string
	client *http.Client
}

func NewOllamaGenerator(host, model string) *OllamaGenerator {
	return &OllamaGenerator{
		host:   host,
		model:  model,
		client: &http.Client{},
	}
}

func (a *OllamaGenerator) Name() string {
	return "ollama:" + a.model
}

func (a *OllamaGenerator) Generate(ctx context.Context, r io.Reader, _, prompt string) (string, error) {
	imageData, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}

	payload, err := json.Marshal(generateRequest{
		Model:  a.model,
		Prompt: prompt,
		Images: []string{base64.StdEncoding.EncodeToString(imageData)},
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.host+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call ollama: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Error("failed to close ollama response body", "error", err)
		}
	}()

	var respBody generateResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&respBody)

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && respBody.Error != "" {
			return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, respBody.Error)
		}
		return "", fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("failed to decode response: %w", decodeErr)
	}

	return respBody.Response, nil
}
