// Package inference is a client for a remote embedding model server that
// returns per-token hidden states.
package inference

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

// DefaultTimeout bounds a single inference call.
const DefaultTimeout = 30 * time.Second

var _ domain.InferenceBackend = (*Client)(nil)

// Config configures the inference client.
type Config struct {
	URL     string
	Timeout time.Duration
}

// Client calls POST {url}/infer.
type Client struct {
	url    string
	client *http.Client
}

type inferRequest struct {
	InputIDs      [][]int64 `json:"input_ids"`
	AttentionMask [][]int64 `json:"attention_mask"`
	TokenTypeIDs  [][]int64 `json:"token_type_ids"`
}

type inferResponse struct {
	LastHiddenState []float32 `json:"last_hidden_state"`
}

// NewClient creates an inference client.
func NewClient(cfg Config) *Client {
	t := cfg.Timeout
	if t == 0 {
		t = DefaultTimeout
	}
	return &Client{
		url:    strings.TrimRight(cfg.URL, "/"),
		client: &http.Client{Timeout: t},
	}
}

// Infer runs the model and returns the flattened hidden states.
func (c *Client) Infer(ctx context.Context, in domain.Tensors) ([]float32, error) {
	data, err := json.Marshal(inferRequest{
		InputIDs:      in.InputIDs,
		AttentionMask: in.AttentionMask,
		TokenTypeIDs:  in.TokenTypeIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/infer", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domain.TransportError("inference", "infer", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, domain.TransportError("inference", "infer", resp.StatusCode, errors.New(string(body)))
	}

	var out inferResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, domain.ProtocolError("inference", "infer", fmt.Errorf("decode response: %w", err))
	}
	if len(out.LastHiddenState) == 0 {
		return nil, domain.ProtocolError("inference", "infer", errors.New("no last_hidden_state returned"))
	}
	return out.LastHiddenState, nil
}

// pingTensors is a two-token [CLS] [SEP] sequence.
var pingTensors = domain.Tensors{
	InputIDs:      [][]int64{{101, 102}},
	AttentionMask: [][]int64{{1, 1}},
	TokenTypeIDs:  [][]int64{{0, 0}},
}

// Ping runs the model on a minimal sequence. The server exposes no health
// route, so a successful /infer is the readiness signal.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Infer(ctx, pingTensors)
	return err
}
