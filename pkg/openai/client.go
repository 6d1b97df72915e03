// Package openai is a chat-completions client for the three enrichment
// operations: categorization, summarization, and unsubscribe detection.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/RoxasZohbi/inboxPilot/pkg/config"
)

// Candidate is a category offered to the model during categorization.
type Candidate struct {
	ID          string
	Name        string
	Description string
}

// UnsubscribeResult is the outcome of unsubscribe detection.
type UnsubscribeResult struct {
	Available bool
	URL       string
}

// Client talks to an OpenAI-compatible chat-completions endpoint.
type Client struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
	log     *zap.Logger
}

// NewClient creates a chat-completions client.
func NewClient(cfg config.OpenAIConfig, log *zap.Logger) *Client {
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		http:    &http.Client{Timeout: 60 * time.Second},
		log:     log,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *Client) complete(ctx context.Context, system, user string, temperature float64, maxTokens int) (string, error) {
	payload := chatRequest{
		Model:       c.model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat API error (%d): %s", resp.StatusCode, string(respBody))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parse chat response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("chat API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat API returned no choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// Categorize asks the model to pick one category for the email. The model
// answers with a list index; anything that does not resolve to a candidate
// returns an empty ID with no error, meaning "no category fits".
func (c *Client) Categorize(ctx context.Context, subject, content string, candidates []Candidate) (string, error) {
	if len(candidates) == 0 {
		return "", nil
	}

	var list strings.Builder
	for i, cand := range candidates {
		fmt.Fprintf(&list, "%d. %s", i+1, cand.Name)
		if cand.Description != "" {
			fmt.Fprintf(&list, " - %s", cand.Description)
		}
		list.WriteString("\n")
	}

	system := "You classify emails into exactly one of the user's categories. " +
		"Reply with only the number of the best matching category, or 0 if none fit."
	user := fmt.Sprintf("Categories:\n%s\nEmail subject: %s\n\nEmail content:\n%s\n\nCategory number:",
		list.String(), subject, content)

	answer, err := c.complete(ctx, system, user, 0, 10)
	if err != nil {
		return "", err
	}

	idx := extractDigits(answer)
	if idx <= 0 || idx > len(candidates) {
		return "", nil
	}
	return candidates[idx-1].ID, nil
}

// Summarize produces a one-to-two sentence summary of the email.
func (c *Client) Summarize(ctx context.Context, subject, content string) (string, error) {
	system := "You summarize emails. Reply with a concise one or two sentence summary " +
		"of the email, with no preamble."
	user := fmt.Sprintf("Subject: %s\n\n%s", subject, content)

	summary, err := c.complete(ctx, system, user, 0.3, 80)
	if err != nil {
		return "", err
	}
	if summary == "" {
		return "", fmt.Errorf("chat API returned empty summary")
	}
	return summary, nil
}

// DetectUnsubscribe asks whether the email offers an unsubscribe mechanism.
// The model must answer with JSON; a URL that does not parse as http(s) is
// discarded while the availability flag is kept.
func (c *Client) DetectUnsubscribe(ctx context.Context, subject, content string) (*UnsubscribeResult, error) {
	system := `You detect unsubscribe options in emails. Reply with only JSON of the form ` +
		`{"has_unsubscribe": true/false, "url": "..."} where url is the unsubscribe link ` +
		`or an empty string.`
	user := fmt.Sprintf("Subject: %s\n\n%s", subject, content)

	answer, err := c.complete(ctx, system, user, 0, 100)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		HasUnsubscribe bool   `json:"has_unsubscribe"`
		URL            string `json:"url"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(answer)), &parsed); err != nil {
		return nil, fmt.Errorf("parse unsubscribe response %q: %w", answer, err)
	}

	result := &UnsubscribeResult{Available: parsed.HasUnsubscribe}
	if parsed.URL != "" && isHTTPURL(parsed.URL) {
		result.URL = parsed.URL
	}
	return result, nil
}

var digitsRe = regexp.MustCompile(`\d+`)

// extractDigits pulls the first run of digits out of the model's answer, so
// "Category 2." still resolves.
func extractDigits(s string) int {
	match := digitsRe.FindString(s)
	if match == "" {
		return -1
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return -1
	}
	return n
}

// extractJSONObject strips markdown fences and surrounding prose from a model
// answer that should contain a JSON object.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start != -1 && end > start {
		return s[start : end+1]
	}
	return s
}

func isHTTPURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}
