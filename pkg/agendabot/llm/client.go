// Package llm is the fallback interpreter: when no rule matches, the message
// and the conversation's current lists are sent to an OpenAI-compatible chat
// completions endpoint which answers with an intent in JSON.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/jholhewres/agendabot/pkg/agendabot/intent"
	"github.com/jholhewres/agendabot/pkg/agendabot/store"
)

// DefaultModel is used when the configuration leaves the model empty.
const DefaultModel = "gpt-4o-mini"

// ErrNoAPIKey is returned when no API key is configured.
var ErrNoAPIKey = errors.New("llm api key not configured")

// Config configures the client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Request is the context sent with a message.
type Request struct {
	// Text is the user message.
	Text string

	// Now is the current instant.
	Now time.Time

	// Conversation is the requester's record (timezone, tasks, events).
	Conversation store.Conversation
}

// Client calls the chat completions API.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Client.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   model,
		timeout: timeout,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:          10,
				MaxIdleConnsPerHost:   5,
				IdleConnTimeout:       120 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 90 * time.Second,
			},
		},
		logger: logger.With("component", "llm", "model", model),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// apiError is a non-200 response.
type apiError struct {
	statusCode int
	body       string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.statusCode, truncate(e.body, 300))
}

// Interpret asks the model to classify req.Text. Replies that contain no
// JSON object are returned as a text intent.
func (c *Client) Interpret(ctx context.Context, req Request) (intent.Intent, error) {
	content, err := c.complete(ctx, []chatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt(req)},
	})
	if err != nil {
		return intent.Intent{}, err
	}
	return ParseReply(content)
}

// reJSONObject finds the outermost {...} block, across lines.
var reJSONObject = regexp.MustCompile(`(?s)\{.*\}`)

// ParseReply converts a model reply into an intent.
func ParseReply(content string) (intent.Intent, error) {
	content = strings.TrimSpace(content)
	block := reJSONObject.FindString(content)
	if block == "" {
		return intent.Text(content), nil
	}
	in, err := intent.Decode([]byte(block))
	if err != nil {
		return intent.Intent{}, fmt.Errorf("parsing model reply: %w", err)
	}
	if in.Type == intent.TypeText && in.Content == "" {
		in.Content = content
	}
	return in, nil
}

func (c *Client) complete(ctx context.Context, messages []chatMessage) (string, error) {
	if c.apiKey == "" {
		return "", ErrNoAPIKey
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{Model: c.model, Messages: messages, Temperature: 0})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("API error", "status", resp.StatusCode, "body", truncate(string(respBody), 500))
		return "", &apiError{statusCode: resp.StatusCode, body: string(respBody)}
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}
	if chatResp.Error != nil {
		return "", fmt.Errorf("API error: %s", chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no response from model")
	}

	content := chatResp.Choices[0].Message.Content
	c.logger.Debug("chat completion", "duration", time.Since(start).String(), "chars", len(content))
	return content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
