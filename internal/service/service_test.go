package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"babyrag/internal/chunker"
	"babyrag/internal/domain"
	"babyrag/internal/embedding/stats"
	"babyrag/internal/generation/echo"
	"babyrag/internal/summarizer"
	"babyrag/internal/vectorstore/memory"
)

// recordingStore counts upserts and can fail on a chosen call.
type recordingStore struct {
	mu      sync.Mutex
	upserts [][]string
	failAt  int
	ensured int
	docs    []domain.RetrievedDocument
}

func (r *recordingStore) EnsureCollection(context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensured++
	return "c-1", nil
}

func (r *recordingStore) Upsert(_ context.Context, ids, _ []string, _ []map[string]any, _ []domain.Embedding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAt > 0 && len(r.upserts)+1 == r.failAt {
		return domain.TransportError("test", "upsert", 500, errors.New("boom"))
	}
	r.upserts = append(r.upserts, ids)
	return nil
}

func (r *recordingStore) Query(context.Context, domain.Embedding, int) ([]domain.RetrievedDocument, error) {
	return r.docs, nil
}

type promptRecorder struct{ prompt string }

func (p *promptRecorder) Generate(_ context.Context, prompt string) (string, error) {
	p.prompt = prompt
	return "  forty-two ", nil
}

func words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = "w"
	}
	return strings.Join(w, " ")
}

func TestFakeRoundTrip(t *testing.T) {
	svc := New(Backends{}, Backends{}, WithFakeMode(true))
	ctx := context.Background()

	res, err := svc.Ingest(ctx, []domain.Document{{Name: "test.md", Content: "# Title\nSome **bold** notes about vectors."}})
	require.NoError(t, err)
	assert.True(t, res.Fake)
	assert.Equal(t, 1, res.Added)

	ans, err := svc.Ask(ctx, "what are the notes about?", 5)
	require.NoError(t, err)
	assert.True(t, ans.Fake)
	assert.True(t, strings.HasPrefix(ans.Answer, "[fake] "))
	require.Len(t, ans.Sources, 1)
	assert.Equal(t, "test.md", ans.Sources[0]["source"])
	assert.Equal(t, 0, ans.Sources[0]["chunk"])
}

func TestIngest_StripsMarkupForMarkdownOnly(t *testing.T) {
	store := memory.NewStore()
	gen := &promptRecorder{}
	svc := New(Backends{Embedder: stats.New(), Store: store, Generator: gen}, Backends{})

	_, err := svc.Ingest(context.Background(), []domain.Document{
		{Name: "a.md", Content: "# Heading *x*"},
		{Name: "b.txt", Content: "#tag *y*"},
	})
	require.NoError(t, err)

	_, err = svc.Ask(context.Background(), "q", 5)
	require.NoError(t, err)
	assert.Contains(t, gen.prompt, "Heading x\n---\n#tag *y*")
}

func TestIngest_EmptyDocuments(t *testing.T) {
	svc := New(Backends{}, Backends{}, WithFakeMode(true))

	_, err := svc.Ingest(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestIngest_SkipsEmptyContent(t *testing.T) {
	svc := New(Backends{}, Backends{}, WithFakeMode(true))

	res, err := svc.Ingest(context.Background(), []domain.Document{{Name: "empty.txt"}, {Name: "a.txt", Content: "hello"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
}

func TestIngest_Batches(t *testing.T) {
	store := &recordingStore{}
	svc := New(Backends{Embedder: stats.New(), Store: store, Generator: echo.New()}, Backends{},
		WithChunker(chunker.NewWordChunker(chunker.WithChunkSize(1), chunker.WithOverlap(0))))

	res, err := svc.Ingest(context.Background(), []domain.Document{{Name: "a.txt", Content: words(70)}})
	require.NoError(t, err)
	assert.Equal(t, 70, res.Added)
	require.Len(t, store.upserts, 3)
	assert.Len(t, store.upserts[0], 32)
	assert.Len(t, store.upserts[1], 32)
	assert.Len(t, store.upserts[2], 6)
	assert.Equal(t, "a.txt:32", store.upserts[1][0])
}

func TestIngest_BatchFailureAborts(t *testing.T) {
	store := &recordingStore{failAt: 2}
	svc := New(Backends{Embedder: stats.New(), Store: store, Generator: echo.New()}, Backends{},
		WithChunker(chunker.NewWordChunker(chunker.WithChunkSize(1), chunker.WithOverlap(0))),
		WithBatchSize(10))

	res, err := svc.Ingest(context.Background(), []domain.Document{{Name: "a.txt", Content: words(35)}})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.Contains(t, err.Error(), "ingest batch 1")
	assert.Equal(t, 10, res.Added)
	assert.Len(t, store.upserts, 1, "first batch stays committed")
}

func TestIngest_Summary(t *testing.T) {
	svc := New(Backends{}, Backends{}, WithFakeMode(true),
		WithSummarizer(summarizer.NewFrequencySummarizer(), 1))

	res, err := svc.Ingest(context.Background(), []domain.Document{{Name: "a.txt", Content: "Only one sentence here."}})
	require.NoError(t, err)
	assert.Equal(t, "Only one sentence here.", res.Summary)
}

func TestAsk_EmptyQuestion(t *testing.T) {
	svc := New(Backends{}, Backends{}, WithFakeMode(true))

	_, err := svc.Ask(context.Background(), "   ", 5)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAsk_TopKLargerThanStored(t *testing.T) {
	svc := New(Backends{}, Backends{}, WithFakeMode(true))
	_, err := svc.Ingest(context.Background(), []domain.Document{{Name: "a.txt", Content: "one two three"}})
	require.NoError(t, err)

	ans, err := svc.Ask(context.Background(), "q", 50)
	require.NoError(t, err)
	assert.Len(t, ans.Sources, 1)
}

func TestAsk_RealPipeline(t *testing.T) {
	store := &recordingStore{docs: []domain.RetrievedDocument{
		{Text: "first", Metadata: map[string]any{"source": "a.txt", "chunk": 1}},
		{Text: "second", Metadata: nil},
	}}
	gen := &promptRecorder{}
	svc := New(Backends{Embedder: stats.New(), Store: store, Generator: gen}, Backends{})

	ans, err := svc.Ask(context.Background(), " why? ", 0)
	require.NoError(t, err)
	assert.False(t, ans.Fake)
	assert.Equal(t, "  forty-two ", ans.Answer)
	assert.Equal(t, 1, store.ensured)
	require.Len(t, ans.Sources, 2)
	assert.Equal(t, "a.txt", ans.Sources[0]["source"])
	assert.NotNil(t, ans.Sources[1])
	assert.True(t, strings.HasSuffix(gen.prompt, "first\n---\nsecond\n\nQuestion: why?\nAnswer:"))
}

func TestAsk_MissingRealBackends(t *testing.T) {
	svc := New(Backends{}, Backends{})

	_, err := svc.Ask(context.Background(), "q", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedder")
}

func TestSetFakeAndReset(t *testing.T) {
	svc := New(Backends{}, Backends{})
	assert.False(t, svc.Fake())
	assert.ErrorIs(t, svc.Reset(), ErrResetUnavailable)

	svc.SetFake(true)
	_, err := svc.Ingest(context.Background(), []domain.Document{{Name: "a.txt", Content: "x"}})
	require.NoError(t, err)
	require.NoError(t, svc.Reset())

	ans, err := svc.Ask(context.Background(), "q", 5)
	require.NoError(t, err)
	assert.Empty(t, ans.Sources)
}

func TestBuildPrompt(t *testing.T) {
	got := BuildPrompt("Who?", []domain.RetrievedDocument{{Text: "a"}, {Text: "b"}})
	assert.True(t, strings.HasPrefix(got, promptPreamble))
	assert.True(t, strings.HasSuffix(got, "a\n---\nb\n\nQuestion: Who?\nAnswer:"))
	assert.Contains(t, got, "I don't know")
}

func TestLoadDocuments(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("alpha"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.MD"), []byte("# beta"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.pdf"), []byte("%PDF"), 0o600))

	docs, err := LoadDocuments([]string{filepath.Join(dir, "*")})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, filepath.Join(dir, "a.txt"), docs[0].Name)
	assert.Equal(t, filepath.Join(dir, "b.MD"), docs[1].Name)

	_, err = LoadDocuments([]string{filepath.Join(dir, "*.pdf")})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestLoadDocuments_SameBaseNameInDifferentDirs(t *testing.T) {
	root := t.TempDir()
	for _, sub := range []string{"a", "b"} {
		require.NoError(t, os.Mkdir(filepath.Join(root, sub), 0o700))
		require.NoError(t, os.WriteFile(filepath.Join(root, sub, "README.md"), []byte("readme "+sub), 0o600))
	}

	pattern := filepath.Join(root, "*", "README.md")
	docs, err := LoadDocuments([]string{pattern, pattern})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.NotEqual(t, docs[0].Name, docs[1].Name)

	store := &recordingStore{}
	svc := New(Backends{Embedder: stats.New(), Store: store, Generator: echo.New()}, Backends{})
	res, err := svc.Ingest(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Added)
	require.Len(t, store.upserts, 1)
	assert.Equal(t, []string{docs[0].Name + ":0", docs[1].Name + ":0"}, store.upserts[0])
}

func TestIngest_RejectsDuplicateNames(t *testing.T) {
	store := &recordingStore{}
	svc := New(Backends{Embedder: stats.New(), Store: store, Generator: echo.New()}, Backends{})

	_, err := svc.Ingest(context.Background(), []domain.Document{
		{Name: "README.md", Content: "first"},
		{Name: "README.md", Content: "second"},
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, store.upserts)
}
