// Package collysource implements SnippetSource using gocolly.
package collysource

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// TextField is the JSON field holding the snippet. Defaults to "text".
	TextField string
}

// Source fetches entity snippets over HTTP using the Colly collector.
// The locator must answer with a JSON object carrying the snippet text;
// any other shape is a fetch failure.
type Source struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Source.
func New(cfg Config) *Source {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.TextField == "" {
		cfg.TextField = "text"
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())
	return &Source{cfg: cfg, baseCollector: c}
}

// Fetch executes a single HTTP GET and decodes the snippet text.
func (s *Source) Fetch(ctx context.Context, locator string) (string, error) {
	var (
		statusCode int
		body       []byte
		fetchErr   error
	)

	collector := s.baseCollector.Clone()
	if s.cfg.UserAgent != "" {
		collector.UserAgent = s.cfg.UserAgent
	}
	collector.SetRequestTimeout(s.cfg.Timeout)
	collector.OnResponse(func(r *colly.Response) {
		statusCode = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			statusCode = r.StatusCode
		}
		fetchErr = err
	})

	if err := s.runCollector(ctx, collector, locator, &fetchErr); err != nil {
		return "", err
	}
	if statusCode < 200 || statusCode >= 300 {
		return "", fmt.Errorf("source returned status %d", statusCode)
	}
	return s.decodeSnippet(body)
}

func (s *Source) runCollector(ctx context.Context, collector *colly.Collector, locator string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(locator)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("source fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("source visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("source response failed: %w", *fetchErr)
		}
		return nil
	}
}

func (s *Source) decodeSnippet(body []byte) (string, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode source body: %w", err)
	}
	raw, ok := payload[s.cfg.TextField]
	if !ok {
		return "", fmt.Errorf("source body missing %q field", s.cfg.TextField)
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return "", fmt.Errorf("source %q field is not a string: %w", s.cfg.TextField, err)
	}
	return text, nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
