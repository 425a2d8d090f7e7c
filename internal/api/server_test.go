package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"babyrag/internal/domain"
	"babyrag/internal/service"
)

func newFakeServer(t *testing.T) (*httptest.Server, *service.Service) {
	t.Helper()
	svc := service.New(service.Backends{}, service.Backends{}, service.WithFakeMode(true))
	srv := httptest.NewServer(New(Config{}, svc, nil, nil).Handler())
	t.Cleanup(srv.Close)
	return srv, svc
}

func upload(t *testing.T, url string, files map[string]string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(url+"/api/ingest", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestIngest_EmptyUploadIs400(t *testing.T) {
	srv, _ := newFakeServer(t)

	resp := upload(t, srv.URL, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]string
	decode(t, resp, &body)
	assert.Contains(t, body["error"], "no files uploaded")
}

func TestIngest_DuplicateFileNamesAre400(t *testing.T) {
	srv, _ := newFakeServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, content := range []string{"first readme", "second readme"} {
		fw, err := mw.CreateFormFile("files", "README.md")
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/api/ingest", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var got map[string]string
	decode(t, resp, &got)
	assert.Contains(t, got["error"], "duplicate document name")
}

func TestFakeIngestAskRoundTrip(t *testing.T) {
	srv, _ := newFakeServer(t)

	resp := upload(t, srv.URL, map[string]string{"test.md": "# Notes\nBabies sleep a lot."})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ing ingestResponse
	decode(t, resp, &ing)
	assert.Equal(t, 1, ing.Added)
	assert.True(t, ing.Fake)

	resp, err := http.Post(srv.URL+"/api/ask", "application/json", strings.NewReader(`{"question":"how much do babies sleep?"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ans askResponse
	decode(t, resp, &ans)
	assert.True(t, ans.Fake)
	assert.True(t, strings.HasPrefix(ans.Answer, "[fake] "))
	require.Len(t, ans.Sources, 1)
	assert.Equal(t, "test.md", ans.Sources[0]["source"])
}

func TestAsk_EmptyStoreReturnsEmptySources(t *testing.T) {
	srv, _ := newFakeServer(t)

	resp, err := http.Post(srv.URL+"/api/ask", "application/json", strings.NewReader(`{"question":"q","top_k":3}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var raw map[string]json.RawMessage
	decode(t, resp, &raw)
	assert.Equal(t, "[]", string(raw["sources"]))
}

func TestAsk_BadRequests(t *testing.T) {
	srv, _ := newFakeServer(t)

	for _, body := range []string{`not json`, `{"question":""}`} {
		resp, err := http.Post(srv.URL+"/api/ask", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
}

func TestResetAndMode(t *testing.T) {
	srv, svc := newFakeServer(t)

	resp, err := http.Post(srv.URL+"/api/reset", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/mode", strings.NewReader(`{"fake":false}`))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.False(t, svc.Fake())

	resp, err = http.Post(srv.URL+"/api/reset", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	srv, _ := newFakeServer(t)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.Validationf("x"), http.StatusBadRequest},
		{fmt.Errorf("upsert: %w", domain.ErrDimensionMismatch), http.StatusBadRequest},
		{domain.TransportError("chroma", "query", 500, errors.New("x")), http.StatusBadGateway},
		{&domain.CollectionResolutionError{Name: "c"}, http.StatusBadGateway},
		{domain.ProtocolError("ollama", "generate", errors.New("x")), http.StatusBadGateway},
		{domain.EmbeddingBackendError("pooled", "infer", errors.New("x")), http.StatusBadGateway},
		{fmt.Errorf("generate: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, StatusFor(tc.err), tc.err.Error())
	}
}
