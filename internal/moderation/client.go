package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// Config for the OpenAI compatible classifier
type Config struct {
	APIKey  string        // if empty, falls back to env OPENAI_API_KEY
	BaseURL string        // default https://api.openai.com/v1
	Model   string        // e.g., "gpt-4o-mini"
	Timeout time.Duration // http client timeout
}

// Client asks a chat completion model to classify topics
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a classifier client with defaults filled in
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini-2024-07-18"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// Check classifies text. Transport and decode failures are returned as errors.
func (c *Client) Check(ctx context.Context, text string) (Verdict, error) {
	start := time.Now()

	body := map[string]any{
		"model":       c.cfg.Model,
		"max_tokens":  10,
		"temperature": 1.0,
		"top_p":       0.9,
		"messages": []map[string]any{
			{"role": "user", "content": buildPrompt(text)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		c.logger.Error("Moderation request failed",
			slog.Any("error", err),
			slog.Int64("elapsed_ms", time.Since(start).Milliseconds()),
		)
		return "", err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", fmt.Errorf("decode moderation response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return "", fmt.Errorf("no choices in moderation response")
	}

	verdict, err := parseVerdict(cc.Choices[0].Message.Content)
	if err != nil {
		return "", err
	}

	c.logger.Info("Topic classified",
		slog.String("verdict", string(verdict)),
		slog.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)
	return verdict, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("moderation http error: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read moderation response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("moderation status %d: %s", resp.StatusCode, string(raw))
	}
	return raw, nil
}

// parseVerdict takes the first tag digit the model answered with
func parseVerdict(content string) (Verdict, error) {
	for _, r := range content {
		switch Verdict(r) {
		case VerdictAllowed, VerdictPointless, VerdictSensitive:
			return Verdict(r), nil
		}
	}
	return "", fmt.Errorf("unrecognized moderation answer %q", content)
}

func buildPrompt(text string) string {
	return "Please determine if the following topic complies with regulations:\n" +
		"1. The topic must be meaningful and specific. Vague or irrelevant content (e.g., random numbers, single words without context) is not acceptable. tag '1'\n" +
		"2. It must not contain sensitive information, including but not limited to pornography or adult content, drugs, gambling, violence, etc. tag '2'\n" +
		"Return '0' if it complies, return tag if it does not comply\n" +
		"===\n" +
		"[" + text + "]"
}
