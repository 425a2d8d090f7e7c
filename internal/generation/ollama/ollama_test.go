package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"babyrag/internal/domain"
)

func newServer(t *testing.T, body string, captured *map[string]any) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if captured != nil {
			_ = json.NewDecoder(r.Body).Decode(captured)
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewClient(Config{URL: srv.URL, Model: "llama3"})
}

func TestGenerate_FoldsFragments(t *testing.T) {
	var req map[string]any
	c := newServer(t, "{\"response\":\" Hel\"}\n{\"response\":\"lo\"}\n{\"response\":\" world \",\"done\":true}\n", &req)

	got, err := c.Generate(context.Background(), "say hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello world", got)

	assert.Equal(t, "llama3", req["model"])
	assert.Equal(t, "say hi", req["prompt"])
	assert.Equal(t, true, req["stream"])
	assert.InDelta(t, 0.2, req["options"].(map[string]any)["temperature"], 1e-9)
}

func TestGenerate_SkipsMalformedLines(t *testing.T) {
	c := newServer(t, "{\"response\":\"a\"}\nnot json\n\n{\"response\":\"b\"}\n{\"done\":true}", nil)

	got, err := c.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "ab", got)
}

func TestGenerate_EndsAtEOFWithoutDone(t *testing.T) {
	c := newServer(t, "{\"response\":\"x\"}\n{\"response\":\"y\"}", nil)

	got, err := c.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "xy", got)
}

func TestGenerate_ErrorLine(t *testing.T) {
	c := newServer(t, "{\"response\":\"a\"}\n{\"error\":\"model not found\"}\n", nil)

	_, err := c.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBackendProtocol)
	assert.Contains(t, err.Error(), "model not found")
}

func TestStream_NextAfterDone(t *testing.T) {
	c := newServer(t, "{\"response\":\"a\",\"done\":true}\n{\"response\":\"ignored\"}\n", nil)

	s, err := c.Stream(context.Background(), "p")
	require.NoError(t, err)
	defer s.Close()

	frag, done, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", frag)
	assert.True(t, done)

	frag, done, err = s.Next()
	require.NoError(t, err)
	assert.Empty(t, frag)
	assert.True(t, done)
}

func TestStream_HTTPErrorIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(Config{URL: srv.URL}).Generate(context.Background(), "p")
	assert.ErrorIs(t, err, domain.ErrTransport)
}

func TestNewClient_Temperature(t *testing.T) {
	zero := 0.0
	assert.Equal(t, DefaultTemperature, NewClient(Config{}).temperature)
	assert.Equal(t, 0.0, NewClient(Config{Temperature: &zero}).temperature)
}
