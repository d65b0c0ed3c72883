package gemini

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/invoiceflow/invoice-extractor/internal/llm"
)

var _ llm.Generator = (*Client)(nil)

// Config holds the provider settings. The HTTP client is injectable for
// tests and for callers that need custom transport settings.
type Config struct {
	APIKey      string
	Model       string
	Temperature float32
	Timeout     time.Duration

	HTTPClient *http.Client
}

// Client generates structured invoice JSON through the Gemini API. A fresh
// SDK client is created per call; the SDK client is cheap and carrying no
// long-lived connection state keeps retries independent.
type Client struct {
	cfg    Config
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, logger: logger}
}

func (c *Client) newClient(ctx context.Context) (*genai.Client, error) {
	config := &genai.ClientConfig{
		APIKey:  c.cfg.APIKey,
		Backend: genai.BackendGeminiAPI,

		HTTPClient: c.cfg.HTTPClient,
	}

	return genai.NewClient(ctx, config)
}

// Generate sends one prompt and returns the concatenated text parts of the
// first candidate. Upstream quota errors are reported as llm.ErrThrottled so
// the orchestrator can distinguish them from hard failures.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	requestID := uuid.NewString()

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	client, err := c.newClient(ctx)
	if err != nil {
		return "", err
	}

	parts := []*genai.Part{
		genai.NewPartFromText(prompt),
	}

	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(c.cfg.Temperature),
		ResponseMIMEType: "application/json",
	}

	c.logger.Info("llm.generate.start",
		"request_id", requestID, "model", c.cfg.Model, "prompt_chars", len(prompt))
	started := time.Now()

	resp, err := client.Models.GenerateContent(ctx, c.cfg.Model, contents, config)
	if err != nil {
		if isThrottle(err) {
			c.logger.Warn("llm.generate.throttled",
				"request_id", requestID, "error", err)
			return "", llm.ErrThrottled
		}
		c.logger.Error("llm.generate.failed",
			"request_id", requestID, "error", err)
		return "", err
	}

	var out strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			out.WriteString(part.Text)
		}
	}

	c.logger.Info("llm.generate.done",
		"request_id", requestID, "duration", time.Since(started), "response_chars", out.Len())
	return out.String(), nil
}

// isThrottle classifies quota errors by message, which is how the API
// surfaces them regardless of transport path.
func isThrottle(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(msg, "Resource has been exhausted") ||
		strings.Contains(strings.ToLower(msg), "rate limit")
}
