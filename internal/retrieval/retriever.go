package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mkravets/vetriq/internal/llm"
)

// Chunk is a retrieved résumé fragment with its similarity score.
type Chunk struct {
	ID    string
	Text  string
	Score float32
}

// Embedder wraps an Engine to generate text embeddings.
type Embedder struct {
	engine llm.Engine
	model  string
}

// NewEmbedder creates an Embedder using the given Engine and model name.
func NewEmbedder(e llm.Engine, model string) *Embedder {
	return &Embedder{engine: e, model: model}
}

// Embed returns the embedding vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.engine.Embed(ctx, e.model, text)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	return vec, nil
}

// EmbedBatch returns embedding vectors for multiple texts concurrently.
// Returns nil (not error) for empty/nil input.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4) // Bound concurrency to avoid overwhelming the engine.

	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.engine.Embed(gCtx, e.model, text)
			if err != nil {
				return fmt.Errorf("embedding text %d: %w", i, err)
			}
			results[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Retriever combines embedding and vector search to find relevant résumé chunks.
type Retriever struct {
	embedder *Embedder
	store    VectorStore
}

// NewRetriever creates a Retriever backed by the given Embedder and VectorStore.
func NewRetriever(embedder *Embedder, store VectorStore) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

// Retrieve embeds the query and returns the top-K most similar chunks from
// the given résumé's index.
func (r *Retriever) Retrieve(ctx context.Context, resumeID, query string, topK int) ([]Chunk, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	scored, err := r.store.Search(resumeID, vec, topK)
	if err != nil {
		return nil, err
	}

	chunks := make([]Chunk, len(scored))
	for i, s := range scored {
		chunks[i] = Chunk{ID: s.ID, Text: s.TextChunk, Score: s.Score}
	}
	return chunks, nil
}

// Indexer populates the vector store with a résumé's chunks.
type Indexer struct {
	embedder *Embedder
	store    VectorStore
}

// NewIndexer creates an Indexer using the given Embedder and VectorStore.
func NewIndexer(embedder *Embedder, store VectorStore) *Indexer {
	return &Indexer{embedder: embedder, store: store}
}

// Index embeds all chunks and inserts them under the résumé's ID. Called once
// per résumé at upload time.
func (ix *Indexer) Index(ctx context.Context, resumeID string, chunks []string) error {
	if len(chunks) == 0 {
		return nil
	}

	vectors, err := ix.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}

	now := time.Now().UTC()
	records := make([]Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = Record{
			ID:        uuid.New().String(),
			ResumeID:  resumeID,
			TextChunk: chunk,
			Embedding: vectors[i],
			CreatedAt: now,
		}
	}

	if err := ix.store.Insert(records); err != nil {
		return fmt.Errorf("inserting %d records: %w", len(records), err)
	}
	return nil
}
