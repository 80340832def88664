package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// OllamaService implements ExtractorService using a local Ollama instance
type OllamaService struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaService creates a new Ollama extraction service
func NewOllamaService(baseURL, model string) *OllamaService {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3"
	}
	return &OllamaService{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{},
	}
}

// ExtractTasks implements ExtractorService
func (o *OllamaService) ExtractTasks(ctx context.Context, req ExtractionRequest) ([]TaskCandidate, error) {
	text, err := o.generate(ctx, buildExtractionPrompt(req), 1024)
	if err != nil {
		return nil, err
	}
	return decodeCandidates(text)
}

// ResolveRelationship implements ExtractorService
func (o *OllamaService) ResolveRelationship(ctx context.Context, req ExtractionRequest) (*Relationship, error) {
	text, err := o.generate(ctx, buildRelationshipPrompt(req), 200)
	if err != nil {
		return nil, err
	}
	return decodeRelationship(text)
}

func (o *OllamaService) generate(ctx context.Context, prompt string, numPredict int) (string, error) {
	url := o.baseURL + "/api/generate"

	payload := map[string]interface{}{
		"model":  o.model,
		"prompt": prompt,
		"stream": false,
		"options": map[string]interface{}{
			"temperature": 0.2,
			"num_predict": numPredict,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Ollama API error (%d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", err
	}
	if result.Response == "" {
		return "", fmt.Errorf("no completion returned")
	}
	return result.Response, nil
}
