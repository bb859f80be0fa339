// Package fusion implements retrieval-augmented context lookup over a résumé:
// the incoming query is decomposed into independent sub-questions, each
// sub-question is searched in parallel, and the ranked result lists are merged
// with reciprocal rank fusion.
package fusion

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mkravets/vetriq/internal/llm"
	"github.com/mkravets/vetriq/internal/retrieval"
)

const (
	// rrfK dampens the rank contribution so small rank differences near the
	// top don't dominate the fused ordering.
	rrfK = 60

	// maxSubQueries caps the decomposition fan-out.
	maxSubQueries = 5

	decomposeTimeout       = 5 * time.Second
	defaultSubQueryTimeout = 10 * time.Second
)

// RankedDocument is a résumé chunk with its fused relevance score. Identity is
// the chunk text; duplicates across sub-query result lists are merged.
type RankedDocument struct {
	Text  string
	Score float64
}

// Searcher is the similarity-search capability the engine fans out over.
type Searcher interface {
	Retrieve(ctx context.Context, resumeID, query string, topK int) ([]retrieval.Chunk, error)
}

// Engine decomposes queries, retrieves sub-query results in parallel, and
// fuses them into a single ranking. Stateless and safe for concurrent use.
type Engine struct {
	llm             llm.Engine
	model           string
	searcher        Searcher
	topK            int
	subQueryTimeout time.Duration
}

// New creates a fusion Engine. topK is the per-sub-query search depth
// (default 3); subQueryTimeout bounds each sub-query's search (default 10s).
func New(engine llm.Engine, model string, searcher Searcher, topK int, subQueryTimeout time.Duration) *Engine {
	if topK <= 0 {
		topK = 3
	}
	if subQueryTimeout <= 0 {
		subQueryTimeout = defaultSubQueryTimeout
	}
	return &Engine{
		llm:             engine,
		model:           model,
		searcher:        searcher,
		topK:            topK,
		subQueryTimeout: subQueryTimeout,
	}
}

// Retrieve runs the full pipeline: decompose, parallel search, RRF merge.
// Sub-query failures degrade to empty result lists; Retrieve only fails when
// the résumé index itself is unreachable for every sub-query.
func (e *Engine) Retrieve(ctx context.Context, resumeID, query string) ([]RankedDocument, error) {
	subQueries := e.Decompose(ctx, query)

	lists := make([][]retrieval.Chunk, len(subQueries))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxSubQueries)

	for i, sq := range subQueries {
		g.Go(func() error {
			subCtx, cancel := context.WithTimeout(gCtx, e.subQueryTimeout)
			defer cancel()

			chunks, err := e.searcher.Retrieve(subCtx, resumeID, sq, e.topK)
			if err != nil {
				// A failed sub-query contributes an empty list; the others
				// still count.
				slog.Warn("sub-query retrieval failed", "query", sq, "error", err)
				return nil
			}
			lists[i] = chunks
			return nil
		})
	}
	g.Wait()

	return Merge(lists), nil
}

// Decompose asks the model to split query into independent pipe-delimited
// sub-questions. On any failure, or if nothing usable comes back, the original
// query is returned as the single sub-question.
func (e *Engine) Decompose(ctx context.Context, query string) []string {
	ctx, cancel := context.WithTimeout(ctx, decomposeTimeout)
	defer cancel()

	prompt := fmt.Sprintf(
		"Decompose the following question into simpler, independent sub-questions separated by '|'. "+
			"Output only the sub-questions, nothing else.\n%q", query)

	raw, err := e.llm.Chat(ctx, e.model, []llm.Message{
		{Role: "user", Content: prompt},
	}, nil)
	if err != nil {
		slog.Warn("query decomposition failed, using original query", "error", err)
		return []string{query}
	}

	var subQueries []string
	for _, part := range strings.Split(raw, "|") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		subQueries = append(subQueries, part)
		if len(subQueries) == maxSubQueries {
			break
		}
	}

	if len(subQueries) == 0 {
		return []string{query}
	}
	return subQueries
}

// Merge fuses ranked result lists with reciprocal rank fusion: each document
// accumulates 1/(rrfK + rank) per list it appears in, where rank is its
// 0-based position. Identity is the chunk text. The result is sorted by fused
// score descending; ties break by first-seen order across the concatenated
// input lists, so the merge is deterministic and invariant to list order only
// up to genuinely tied scores.
func Merge(lists [][]retrieval.Chunk) []RankedDocument {
	scores := make(map[string]float64)
	firstSeen := make(map[string]int)
	var order []string

	for _, list := range lists {
		for rank, chunk := range list {
			key := chunk.Text
			if _, ok := scores[key]; !ok {
				firstSeen[key] = len(order)
				order = append(order, key)
			}
			scores[key] += 1.0 / float64(rrfK+rank)
		}
	}

	docs := make([]RankedDocument, len(order))
	for i, key := range order {
		docs[i] = RankedDocument{Text: key, Score: scores[key]}
	}

	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].Score != docs[j].Score {
			return docs[i].Score > docs[j].Score
		}
		return firstSeen[docs[i].Text] < firstSeen[docs[j].Text]
	})

	return docs
}

// Answer retrieves fused context for query and asks the model for a grounded
// response. Used by the loop's retrieve-context capability when it needs prose
// rather than raw chunks.
func (e *Engine) Answer(ctx context.Context, resumeID, query string) (string, error) {
	docs, err := e.Retrieve(ctx, resumeID, query)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, d := range docs {
		sb.WriteString(d.Text)
		sb.WriteString("\n")
	}

	prompt := fmt.Sprintf("user: %s\ncontext:\n%s", query, sb.String())
	out, err := e.llm.Chat(ctx, e.model, []llm.Message{
		{Role: "user", Content: prompt},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("generating grounded response: %w", err)
	}
	return out, nil
}

// Context returns the concatenated text of the top fused documents, capped at
// limit documents. Convenience for prompt assembly.
func Context(docs []RankedDocument, limit int) string {
	if limit <= 0 || limit > len(docs) {
		limit = len(docs)
	}
	parts := make([]string, limit)
	for i := 0; i < limit; i++ {
		parts[i] = docs[i].Text
	}
	return strings.Join(parts, "\n")
}
