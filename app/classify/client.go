package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"regscanner/app/feed"
)

// Client calls an OpenAI-compatible chat completions endpoint and validates
// the returned shape against the declared schema before use.
type Client struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
}

var _ Classifier = (*Client)(nil)

func NewClient(endpoint, model, apiKey string) *Client {
	return &Client{
		endpoint: endpoint,
		model:    model,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) Classify(ctx context.Context, req Request) ([]Result, error) {
	if len(req.Items) == 0 {
		return nil, nil
	}

	content, err := c.complete(ctx, buildPrompt(req), true)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Items []Result `json:"items"`
	}
	if err := json.Unmarshal([]byte(extractJSON(content)), &payload); err != nil {
		return nil, fmt.Errorf("classification response is not valid JSON: %w", err)
	}

	return validateResults(payload.Items, len(req.Items)), nil
}

func (c *Client) AnalyzeDetail(ctx context.Context, item feed.Item, result Result) (string, error) {
	content, err := c.complete(ctx, buildDetailPrompt(item, result), false)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

func (c *Client) complete(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	if c.endpoint == "" || c.model == "" {
		return "", fmt.Errorf("classification client not configured")
	}

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
	}
	if jsonMode {
		reqBody.ResponseFormat = &struct {
			Type string `json:"type"`
		}{Type: "json_object"}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("classification request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("classification error %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("classification response has no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}

// validateResults enforces the declared schema: indexes must address the
// request batch, update types must be in the enum, risk scores are clamped
// to 0-10, and a missing jurisdiction is normalized. Malformed entries are
// dropped rather than failing the batch.
func validateResults(results []Result, batchSize int) []Result {
	valid := make([]Result, 0, len(results))
	seen := make(map[int]bool)

	for _, r := range results {
		if r.Index < 0 || r.Index >= batchSize || seen[r.Index] {
			slog.Warn("Dropping classification result with invalid index", "index", r.Index)
			continue
		}
		if !validUpdateType(r.UpdateType) {
			slog.Warn("Dropping classification result with invalid update type",
				"index", r.Index, "update_type", r.UpdateType)
			continue
		}

		if r.RiskScore < 0 {
			r.RiskScore = 0
		}
		if r.RiskScore > 10 {
			r.RiskScore = 10
		}
		if strings.TrimSpace(r.Jurisdiction) == "" {
			r.Jurisdiction = "Unknown"
		}

		seen[r.Index] = true
		valid = append(valid, r)
	}

	return valid
}

func validUpdateType(t string) bool {
	for _, v := range ValidUpdateTypes {
		if t == v {
			return true
		}
	}
	return false
}

// extractJSON tolerates models that wrap the JSON object in markdown fences
// or prose.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		if idx := strings.LastIndex(content, "```"); idx >= 0 {
			content = content[:idx]
		}
		return strings.TrimSpace(content)
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return content
}
