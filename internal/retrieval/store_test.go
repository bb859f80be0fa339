package retrieval

import (
	"context"
	"fmt"
	"testing"

	"github.com/mkravets/vetriq/internal/llm"
	"github.com/mkravets/vetriq/internal/storage"
)

func openVectorStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening storage: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewSQLiteStore(st.DB())
}

func TestInsertAndSearch(t *testing.T) {
	vs := openVectorStore(t)

	records := []Record{
		{ID: "a", ResumeID: "r1", TextChunk: "built Go microservices", Embedding: []float32{1, 0, 0}},
		{ID: "b", ResumeID: "r1", TextChunk: "managed PostgreSQL clusters", Embedding: []float32{0, 1, 0}},
		{ID: "c", ResumeID: "r1", TextChunk: "led frontend team", Embedding: []float32{0, 0, 1}},
	}
	if err := vs.Insert(records); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	results, err := vs.Search("r1", []float32{1, 0.1, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ID != "a" {
		t.Errorf("top result = %s, want a", results[0].ID)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("results not sorted by score: %v <= %v", results[0].Score, results[1].Score)
	}
}

func TestSearch_ScopedByResume(t *testing.T) {
	vs := openVectorStore(t)

	if err := vs.Insert([]Record{
		{ID: "a", ResumeID: "r1", TextChunk: "alpha", Embedding: []float32{1, 0}},
		{ID: "b", ResumeID: "r2", TextChunk: "beta", Embedding: []float32{1, 0}},
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	results, err := vs.Search("r1", []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "a" {
		t.Errorf("search leaked across resumes: %+v", results)
	}
}

func TestSearch_ZeroVector(t *testing.T) {
	vs := openVectorStore(t)
	if err := vs.Insert([]Record{
		{ID: "a", ResumeID: "r1", TextChunk: "alpha", Embedding: []float32{1, 0}},
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	results, err := vs.Search("r1", []float32{0, 0}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results != nil {
		t.Errorf("got %v, want nil for zero query vector", results)
	}
}

func TestDeleteByResume(t *testing.T) {
	vs := openVectorStore(t)
	if err := vs.Insert([]Record{
		{ID: "a", ResumeID: "r1", TextChunk: "alpha", Embedding: []float32{1, 0}},
		{ID: "b", ResumeID: "r1", TextChunk: "beta", Embedding: []float32{0, 1}},
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := vs.DeleteByResume("r1"); err != nil {
		t.Fatalf("DeleteByResume: %v", err)
	}
	n, err := vs.Count("r1")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 0 {
		t.Errorf("Count = %d after delete, want 0", n)
	}
}

func TestEncodeDecodeFloat32s(t *testing.T) {
	in := []float32{0.5, -1.25, 3.75, 0}
	out, err := decodeFloat32s(encodeFloat32s(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("got %d values, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}

	if _, err := decodeFloat32s([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}

// --- Indexer / Embedder ---

// stubEngine returns a deterministic embedding per text.
type stubEngine struct {
	embedFn func(text string) ([]float32, error)
}

func (s *stubEngine) Chat(ctx context.Context, model string, msgs []llm.Message, schema *llm.Schema) (string, error) {
	return "", fmt.Errorf("not implemented")
}
func (s *stubEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	return s.embedFn(text)
}
func (s *stubEngine) IsRunning(ctx context.Context) bool { return true }

func TestIndexerEndToEnd(t *testing.T) {
	vs := openVectorStore(t)
	eng := &stubEngine{embedFn: func(text string) ([]float32, error) {
		// Orthogonal-ish vectors keyed on the first byte.
		vec := make([]float32, 4)
		vec[int(text[0])%4] = 1
		return vec, nil
	}}
	embedder := NewEmbedder(eng, "test-embed")

	ix := NewIndexer(embedder, vs)
	chunks := []string{"alpha experience", "beta skills", "gamma education"}
	if err := ix.Index(context.Background(), "r1", chunks); err != nil {
		t.Fatalf("Index: %v", err)
	}

	n, err := vs.Count("r1")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 3 {
		t.Errorf("Count = %d, want 3", n)
	}

	r := NewRetriever(embedder, vs)
	results, err := r.Retrieve(context.Background(), "r1", "alpha experience", 1)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 1 || results[0].Text != "alpha experience" {
		t.Errorf("Retrieve = %+v, want the alpha chunk", results)
	}
}

func TestEmbedBatch_Empty(t *testing.T) {
	embedder := NewEmbedder(&stubEngine{}, "m")
	vecs, err := embedder.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if vecs != nil {
		t.Errorf("got %v, want nil", vecs)
	}
}
