package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const anthropicVersion = "2023-06-01"

type anthropicCompleter struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func (c *anthropicCompleter) Complete(ctx context.Context, prompt Prompt) (string, error) {
	payload := map[string]any{
		"model":      c.model,
		"max_tokens": 1024,
		"system":     prompt.System,
		"messages": []map[string]string{
			{"role": "user", "content": prompt.User},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal messages payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build messages request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read messages response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", &httpStatusError{status: resp.StatusCode, body: string(rawBody)}
	}

	var parsed struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return "", &Error{Kind: KindMalformedResponse, Err: fmt.Errorf("decode messages response: %w", err)}
	}
	if len(parsed.Content) == 0 {
		return "", &Error{Kind: KindMalformedResponse, Err: fmt.Errorf("empty messages content")}
	}
	return parsed.Content[0].Text, nil
}
