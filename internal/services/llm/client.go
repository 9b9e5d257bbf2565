package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 60 * time.Second
	defaultTemperature = 0.2
	defaultAttempts    = 4
	defaultBaseDelay   = time.Second
	defaultMaxDelay    = 8 * time.Second
	snippetLimit       = 160
)

// DefaultBaseURL is used when Config.BaseURL is empty.
const DefaultBaseURL = "https://api.openai.com/v1/chat/completions"

// ErrEmptyCompletion reports a 2xx response that carried no text.
var ErrEmptyCompletion = errors.New("empty completion")

// Config describes one chat completion endpoint.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// StatusError is a non-2xx answer from the endpoint.
type StatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chat completion: http %d: %s", e.StatusCode, snippet(e.Body))
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

// Client talks to an OpenAI-compatible /chat/completions endpoint.
type Client struct {
	cfg         Config
	http        *http.Client
	temperature float64
	backoff     backoff
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithRetryMaxAttempts caps the number of requests per call. Values below one
// mean a single attempt.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) { c.backoff.attempts = max(attempts, 1) }
}

// WithRetryBackoff sets the first retry delay and the ceiling for later ones.
func WithRetryBackoff(base, ceiling time.Duration) Option {
	return func(c *Client) {
		c.backoff.base = max(base, 0)
		c.backoff.ceiling = max(ceiling, 0)
	}
}

// WithTemperature overrides the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *Client) {
		if t >= 0 {
			c.temperature = t
		}
	}
}

// WithSleeper replaces the wait between attempts. Tests use it to skip delays.
func WithSleeper(sleep func(time.Duration)) Option {
	return func(c *Client) { c.backoff.sleep = sleep }
}

// NewClient constructs a client for cfg.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Model = strings.TrimSpace(cfg.Model)
	cfg.Referer = strings.TrimSpace(cfg.Referer)
	cfg.Title = strings.TrimSpace(cfg.Title)
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	c := &Client{
		cfg:         cfg,
		http:        &http.Client{Timeout: timeout},
		temperature: defaultTemperature,
		backoff: backoff{
			attempts: defaultAttempts,
			base:     defaultBaseDelay,
			ceiling:  defaultMaxDelay,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete sends one system+user exchange and returns the trimmed reply.
// An empty system prompt sends only the user message.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("chat completion: prompt is empty")
	}
	req := chatRequest{Model: c.cfg.Model, Temperature: c.temperature}
	if system = strings.TrimSpace(system); system != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: system})
	}
	req.Messages = append(req.Messages, chatMessage{Role: "user", Content: prompt})

	attempt := 0
	for {
		attempt++
		text, err := c.send(ctx, req)
		if err == nil {
			return text, nil
		}
		delay, ok := c.backoff.next(ctx, err, attempt)
		if !ok {
			if attempt > 1 {
				return "", fmt.Errorf("chat completion failed after %d attempts: %w", attempt, err)
			}
			return "", err
		}
		if err := c.backoff.wait(ctx, delay); err != nil {
			return "", err
		}
	}
}

// HealthCheck sends a tiny prompt and expects any non-empty reply.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.Complete(ctx, "Reply with the single word OK.", "ping")
	return err
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		// Completion-style gateways answer with text instead of message.
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// text returns the first non-empty choice and a reason when there is none.
func (r chatResponse) text() (string, string) {
	reason := "no choices"
	for _, choice := range r.Choices {
		for _, candidate := range []string{choice.Message.Content, choice.Text} {
			if trimmed := strings.TrimSpace(candidate); trimmed != "" {
				return trimmed, ""
			}
		}
		switch {
		case choice.Message.Refusal != "":
			reason = "refusal: " + choice.Message.Refusal
		case choice.FinishReason != "":
			reason = "finish_reason=" + choice.FinishReason
		}
	}
	return "", reason
}

func (c *Client) send(ctx context.Context, payload chatRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("chat completion: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("chat completion: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("chat completion: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return "", &StatusError{StatusCode: resp.StatusCode, Body: string(raw), RetryAfter: retryAfter}
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("chat completion: decode response %s: %w", snippet(string(raw)), err)
	}
	if decoded.Error != nil {
		return "", fmt.Errorf("chat completion: api error: %s", strings.TrimSpace(decoded.Error.Message))
	}
	text, reason := decoded.text()
	if text == "" {
		return "", fmt.Errorf("%w (%s): %s", ErrEmptyCompletion, reason, snippet(string(raw)))
	}
	return text, nil
}

// backoff doubles the delay per attempt up to ceiling. Retry-After wins when
// the server sends it.
type backoff struct {
	attempts int
	base     time.Duration
	ceiling  time.Duration
	sleep    func(time.Duration)
}

func (b backoff) next(ctx context.Context, err error, attempt int) (time.Duration, bool) {
	if attempt >= b.attempts || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var statusErr *StatusError
	switch {
	case errors.Is(err, ErrEmptyCompletion):
	case errors.As(err, &statusErr):
		if !statusErr.Retryable() {
			return 0, false
		}
		if statusErr.RetryAfter > 0 {
			return b.clamp(statusErr.RetryAfter), true
		}
	default:
		var netErr net.Error
		if !errors.As(err, &netErr) || !netErr.Timeout() {
			return 0, false
		}
	}

	delay := b.base
	for i := 1; i < attempt && delay < b.ceiling; i++ {
		delay *= 2
	}
	return b.clamp(delay), true
}

func (b backoff) clamp(d time.Duration) time.Duration {
	if b.ceiling > 0 && d > b.ceiling {
		return b.ceiling
	}
	return d
}

func (b backoff) wait(ctx context.Context, d time.Duration) error {
	if b.sleep != nil {
		b.sleep(d)
		return ctx.Err()
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		if d := time.Until(when); d > 0 {
			return d, true
		}
	}
	return 0, false
}

func snippet(s string) string {
	clean := strings.Join(strings.Fields(s), " ")
	if clean == "" {
		return "<empty>"
	}
	if runes := []rune(clean); len(runes) > snippetLimit {
		return string(runes[:snippetLimit]) + "..."
	}
	return clean
}
