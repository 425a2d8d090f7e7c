// Package ollama streams completions from an Ollama server.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"babyrag/internal/domain"
)

const (
	// DefaultTimeout bounds a whole generation, including the streamed body.
	DefaultTimeout     = 120 * time.Second
	DefaultTemperature = 0.2
)

var _ domain.Generator = (*Client)(nil)

// Config configures the Ollama client.
type Config struct {
	URL         string
	Model       string
	Temperature *float64 // nil means DefaultTemperature
	Timeout     time.Duration
}

// Client calls POST {url}/api/generate and reads the streamed reply.
type Client struct {
	url         string
	model       string
	temperature float64
	client      *http.Client
}

// NewClient creates an Ollama client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	temp := DefaultTemperature
	if cfg.Temperature != nil {
		temp = *cfg.Temperature
	}
	return &Client{
		url:         strings.TrimRight(cfg.URL, "/"),
		model:       cfg.Model,
		temperature: temp,
		client:      &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options"`
}

type generateLine struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

// Stream starts a generation. The caller must Close the returned stream.
func (c *Client) Stream(ctx context.Context, prompt string) (*Stream, error) {
	data, err := json.Marshal(generateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Stream:  true,
		Options: map[string]any{"temperature": c.temperature},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal generate request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/api/generate", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domain.TransportError("ollama", "generate", 0, err)
	}
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, domain.TransportError("ollama", "generate", resp.StatusCode, errors.New(strings.TrimSpace(string(body))))
	}
	return &Stream{body: resp.Body, r: bufio.NewReader(resp.Body)}, nil
}

// Generate folds the whole stream into one answer.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	s, err := c.Stream(ctx, prompt)
	if err != nil {
		return "", err
	}
	defer s.Close()

	var b strings.Builder
	for {
		frag, done, err := s.Next()
		if err != nil {
			return "", err
		}
		b.WriteString(frag)
		if done {
			break
		}
	}
	if s.skipped > 0 {
		slog.Debug("ollama stream had unparseable lines", "skipped", s.skipped)
	}
	return strings.TrimSpace(b.String()), nil
}

// Ping checks that the Ollama server answers.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return domain.TransportError("ollama", "ping", 0, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return domain.TransportError("ollama", "ping", resp.StatusCode, errors.New(resp.Status))
	}
	return nil
}

// Stream yields response fragments in arrival order. It is read once and
// cannot be restarted.
type Stream struct {
	body    io.ReadCloser
	r       *bufio.Reader
	done    bool
	skipped int
}

// Next returns the next fragment. done is true once the backend reports
// completion or the body ends; fragment may be non-empty on that call.
func (s *Stream) Next() (fragment string, done bool, err error) {
	for !s.done {
		line, readErr := s.r.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			s.done = true
			return "", true, domain.TransportError("ollama", "generate", 0, readErr)
		}
		if errors.Is(readErr, io.EOF) {
			s.done = true
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var msg generateLine
		if err := json.Unmarshal(line, &msg); err != nil {
			s.skipped++
			continue
		}
		if msg.Error != "" {
			s.done = true
			return "", true, domain.ProtocolError("ollama", "generate", errors.New(msg.Error))
		}
		if msg.Done {
			s.done = true
		}
		return msg.Response, s.done, nil
	}
	return "", true, nil
}


// Close releases the backend connection.
func (s *Stream) Close() error { return s.body.Close() }
