// Package chatextractor implements DateExtractor against an
// OpenAI-compatible chat completions endpoint. The oracle is untrusted:
// only a response that is exactly the no-date sentinel or contains an
// unambiguous YYYY-MM-DD token is accepted.
package chatextractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"datewatch/internal/tracker"
)

// NoDateSentinel is the literal token the oracle must emit when the
// text contains no date. Matched case-insensitively.
const NoDateSentinel = "NO DATE FOUND"

var isoDatePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// Config controls the oracle endpoint and request shape.
type Config struct {
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float32
}

// Extractor calls the chat completions oracle and validates its output.
type Extractor struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New builds an Extractor.
func New(cfg Config, logger *zap.Logger) *Extractor {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 32
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float32       `json:"temperature"`
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
}

// Extract asks the oracle for the date in text and validates the
// answer. Returns tracker.ErrNoDate when the oracle reports none.
func (e *Extractor) Extract(ctx context.Context, text string, mode tracker.LocaleMode, credential string) (string, error) {
	if credential == "" {
		return "", fmt.Errorf("oracle credential is not configured")
	}

	req := chatRequest{
		Model: e.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "You extract calendar dates from text. Answer with nothing but the requested format."},
			{Role: "user", Content: buildPrompt(text, mode)},
		},
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
	}
	content, err := e.send(ctx, req, credential)
	if err != nil {
		return "", err
	}
	return parseOracleReply(content)
}

func (e *Extractor) send(ctx context.Context, req chatRequest, credential string) (string, error) {
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal oracle request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		strings.TrimSuffix(e.cfg.BaseURL, "/")+"/v1/chat/completions",
		bytes.NewReader(reqJSON),
	)
	if err != nil {
		return "", fmt.Errorf("create oracle request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+credential)

	start := time.Now()
	resp, err := e.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("oracle request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		e.logger.Warn("oracle returned non-OK status",
			zap.Int("status", resp.StatusCode),
			zap.Duration("duration", time.Since(start)),
		)
		return "", fmt.Errorf("oracle returned status %d: %s", resp.StatusCode, string(body))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decode oracle response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("oracle response has no choices")
	}
	return chatResp.Choices[0].Message.Content, nil
}

func buildPrompt(text string, mode tracker.LocaleMode) string {
	var b strings.Builder
	b.WriteString("Find the calendar date mentioned in the text below.\n")
	switch mode {
	case tracker.LocaleDayFirst:
		b.WriteString("In ambiguous numeric dates like A/B/C the first number is the DAY.\n")
		b.WriteString("Examples: \"11/3/2008\" means 2008-03-11. \"1/2/1999\" means 1999-02-01.\n")
	default:
		b.WriteString("In ambiguous numeric dates like A/B/C the first number is the MONTH.\n")
		b.WriteString("Examples: \"11/3/2008\" means 2008-11-03. \"1/2/1999\" means 1999-01-02.\n")
	}
	b.WriteString("Spelled-out month names are unambiguous and must be kept as written: \"March 6, 2008\" means 2008-03-06.\n")
	b.WriteString("Reply with only the date as YYYY-MM-DD.\n")
	b.WriteString("If the text contains no date, reply with exactly: " + NoDateSentinel + "\n\n")
	b.WriteString("Text:\n")
	b.WriteString(text)
	return b.String()
}

// parseOracleReply applies the narrow acceptance filter. Anything that
// is neither the sentinel nor contains an ISO date token is unusable.
func parseOracleReply(content string) (string, error) {
	trimmed := stripCodeFence(strings.TrimSpace(content))
	if strings.EqualFold(trimmed, NoDateSentinel) {
		return "", tracker.ErrNoDate
	}
	if match := isoDatePattern.FindString(trimmed); match != "" {
		return match, nil
	}
	if strings.Contains(strings.ToLower(trimmed), strings.ToLower(NoDateSentinel)) {
		return "", tracker.ErrNoDate
	}
	return "", fmt.Errorf("unparseable oracle reply %q", truncate(trimmed, 120))
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 && !strings.ContainsAny(s[:idx], " \t") {
		// drop a language tag on the opening fence
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
