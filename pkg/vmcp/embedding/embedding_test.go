package embedding

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentHash_ChangesWithAnyField(t *testing.T) {
	t.Parallel()
	base := ContentHash("echo", "echoes input", []byte(`{"type":"object"}`), "model-a")

	assert.NotEqual(t, base, ContentHash("echo2", "echoes input", []byte(`{"type":"object"}`), "model-a"))
	assert.NotEqual(t, base, ContentHash("echo", "different", []byte(`{"type":"object"}`), "model-a"))
	assert.NotEqual(t, base, ContentHash("echo", "echoes input", []byte(`{"type":"string"}`), "model-a"))
	assert.NotEqual(t, base, ContentHash("echo", "echoes input", []byte(`{"type":"object"}`), "model-b"))
	assert.Equal(t, base, ContentHash("echo", "echoes input", []byte(`{"type":"object"}`), "model-a"))
}

func TestContentHash_NoFieldBoundaryCollision(t *testing.T) {
	t.Parallel()
	a := ContentHash("ab", "c", nil, "")
	b := ContentHash("a", "bc", nil, "")
	assert.NotEqual(t, a, b)
}

func TestCosineSimilarity(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0}, []float32{1, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 2}, []float32{1}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}

func TestRecord_Valid(t *testing.T) {
	t.Parallel()
	hash := ContentHash("t", "d", []byte(`{}`), "m")
	r := Record{ToolKey: "t", ContentHash: hash}
	assert.True(t, r.Valid(hash))
	assert.False(t, r.Valid(hash+1))
}

type fakeEmbedder struct {
	calls int
	dims  int
	model string
	vec   func(text string) []float32
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	return f.vec(text), nil
}
func (f *fakeEmbedder) ModelID() string { return f.model }
func (f *fakeEmbedder) Dims() int       { return f.dims }

func TestManager_ReconcileOnlyReembedsChanged(t *testing.T) {
	t.Parallel()
	store, err := OpenSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	embedder := &fakeEmbedder{dims: 2, model: "m1", vec: func(string) []float32 { return []float32{1, 0} }}
	now := time.Unix(1000, 0)
	mgr, err := NewManager(store, embedder, func() time.Time { return now })
	require.NoError(t, err)

	tools := []ToolSource{
		{Key: "echo", Name: "echo", Description: "echoes", InputSchema: []byte(`{}`)},
		{Key: "ping", Name: "ping", Description: "pings", InputSchema: []byte(`{}`)},
	}

	n, err := mgr.Reconcile(context.Background(), tools)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, embedder.calls)

	// Second reconcile with identical tools should re-embed nothing.
	n, err = mgr.Reconcile(context.Background(), tools)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 2, embedder.calls)

	// Changing one tool's description should re-embed only that tool.
	tools[0].Description = "echoes input back"
	n, err = mgr.Reconcile(context.Background(), tools)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 3, embedder.calls)

	// Removing a tool drops it from the mirror.
	n, err = mgr.Reconcile(context.Background(), tools[:1])
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	_, ok := mgr.Lookup("ping")
	assert.False(t, ok)
}

func TestSQLiteStore_PutGetDeleteRoundTrip(t *testing.T) {
	t.Parallel()
	store, err := OpenSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	rec := Record{
		ToolKey:     "fs__read_file",
		ContentHash: 42,
		Vector:      []float32{0.1, 0.2, 0.3},
		ModelID:     "m1",
		Dims:        3,
		GeneratedAt: time.Unix(500, 0).UTC(),
	}
	require.NoError(t, store.Put(rec))

	got, ok, err := store.Get(rec.ToolKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec.ToolKey, got.ToolKey)
	assert.Equal(t, rec.ContentHash, got.ContentHash)
	assert.Equal(t, rec.Vector, got.Vector)
	assert.Equal(t, rec.GeneratedAt, got.GeneratedAt)

	all, err := store.All()
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, store.Delete(rec.ToolKey))
	_, ok, err = store.Get(rec.ToolKey)
	require.NoError(t, err)
	assert.False(t, ok)
}
