package retrieval

import "time"

// VectorStore is the interface for vector storage and similarity search
// backends. The default implementation uses SQLite with brute-force cosine
// similarity, which is comfortably fast at résumé scale (tens of chunks per
// document). An ANN-backed implementation can replace it if the corpus grows.
type VectorStore interface {
	// Insert adds records to the store.
	Insert(records []Record) error

	// Search returns the top-K records most similar to vector, restricted to
	// the given résumé.
	Search(resumeID string, vector []float32, topK int) ([]ScoredRecord, error)

	// DeleteByResume removes all records indexed for a résumé.
	DeleteByResume(resumeID string) error

	// Count returns the number of records indexed for a résumé.
	Count(resumeID string) (int, error)
}

// Record represents a row in the vector store.
type Record struct {
	ID        string
	ResumeID  string
	TextChunk string
	Embedding []float32
	CreatedAt time.Time
}

// ScoredRecord is a Record with a similarity score attached.
type ScoredRecord struct {
	Record
	Score float32
}
