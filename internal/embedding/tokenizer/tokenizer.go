// Package tokenizer is a client for the remote tokenizer service.
package tokenizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"babyrag/internal/domain"
)

// DefaultTimeout bounds a single tokenize call.
const DefaultTimeout = 10 * time.Second

var _ domain.Tokenizer = (*Client)(nil)

// Config configures the tokenizer client.
type Config struct {
	URL     string
	Timeout time.Duration
}

// Client calls POST {url}/tokenize.
type Client struct {
	url    string
	client *http.Client
}

type tokenizeRequest struct {
	Text string `json:"text"`
}

type tokenizeResponse struct {
	IDs           []int64 `json:"ids"`
	AttentionMask []int64 `json:"attention_mask"`
}

// NewClient creates a tokenizer client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		url:    strings.TrimRight(cfg.URL, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

// Tokenize encodes text. Token type ids are all zero, one per id.
func (c *Client) Tokenize(ctx context.Context, text string) (domain.Encoding, error) {
	data, err := json.Marshal(tokenizeRequest{Text: text})
	if err != nil {
		return domain.Encoding{}, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/tokenize", bytes.NewReader(data))
	if err != nil {
		return domain.Encoding{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.Encoding{}, domain.TransportError("tokenizer", "tokenize", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.Encoding{}, domain.TransportError("tokenizer", "tokenize", resp.StatusCode, errors.New(string(body)))
	}

	var out tokenizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.Encoding{}, domain.ProtocolError("tokenizer", "tokenize", fmt.Errorf("decode response: %w", err))
	}
	if len(out.AttentionMask) != len(out.IDs) {
		return domain.Encoding{}, domain.ProtocolError("tokenizer", "tokenize",
			fmt.Errorf("attention_mask has %d entries for %d ids", len(out.AttentionMask), len(out.IDs)))
	}
	return domain.Encoding{
		IDs:           out.IDs,
		AttentionMask: out.AttentionMask,
		TokenTypeIDs:  make([]int64, len(out.IDs)),
	}, nil
}

// Ping checks that the tokenizer answers a trivial request.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Tokenize(ctx, "ping")
	return err
}
