package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/powerfulqa/aszune-ai-bot-sub000/config"
	apperrors "github.com/powerfulqa/aszune-ai-bot-sub000/errors"
	"go.uber.org/zap"
)

// Message is one turn of a chat-completion conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Client talks to the rate-limited Q&A backend. Every call here is the
// expensive path the cache exists to avoid.
type Client struct {
	cfg        *config.Config
	httpClient *http.Client
	logger     *zap.Logger
}

func New(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.LLMRequestTimeout},
		logger:     logger,
	}
}

// Chat performs a non-streaming chat completion call against the backend.
// Retries with backoff while the backend reports itself unavailable.
func (c *Client) Chat(ctx context.Context, messages []Message) (string, error) {
	reqBody := chatRequest{
		Model:    c.cfg.BackendModel,
		Messages: messages,
		Stream:   false,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/chat/completions", strings.TrimRight(c.cfg.BackendLLMHost, "/"))

	var resp *http.Response
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
		if err != nil {
			return "", fmt.Errorf("create chat request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err = c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			// Do not retry on context cancellation/deadline
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusTooManyRequests {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			resp = nil
			c.backoffSleep(attempt)
			continue
		}
		break
	}
	if resp == nil {
		return "", apperrors.Wrapf(apperrors.ErrLLMCommunication, "no response from backend: %v", lastErr)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperrors.Wrapf(apperrors.ErrLLMCommunication, "read backend response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("Backend returned non-OK status",
			zap.String("status", resp.Status),
			zap.Int("body_length", len(bodyBytes)))
		return "", apperrors.Wrapf(apperrors.ErrLLMCommunication, "backend status %s: %s",
			resp.Status, strings.TrimSpace(string(bodyBytes)))
	}

	var cr chatResponse
	if err := json.Unmarshal(bodyBytes, &cr); err != nil {
		return "", apperrors.Wrapf(apperrors.ErrLLMCommunication, "decode backend response: %v", err)
	}
	if len(cr.Choices) == 0 {
		return "", apperrors.Wrap(apperrors.ErrLLMCommunication, "backend returned no choices")
	}
	return strings.TrimSpace(cr.Choices[0].Message.Content), nil
}

// backoffSleep waits between retries with linear backoff.
func (c *Client) backoffSleep(attempt int) {
	delay := c.cfg.RetryDelaySeconds * time.Duration(attempt+1)
	if delay <= 0 {
		delay = time.Second
	}
	time.Sleep(delay)
}
