// Package retrieval fuses vector-similarity and knowledge-graph search into
// a single ranked candidate list for answer synthesis.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/abarelabs/proplens/knowledge"
	"github.com/abarelabs/proplens/vecindex"
)

// Mode selects the retrieval strategy.
type Mode string

const (
	ModeVector Mode = "vector"
	ModeGraph  Mode = "graph"
	ModeHybrid Mode = "hybrid"
)

// Retriever composes the vector index and knowledge graph.
type Retriever struct {
	index *vecindex.Index
	graph *knowledge.Graph
	chat  ChatFunc
}

// ChatFunc is the completion collaborator used for query entity extraction.
type ChatFunc func(ctx context.Context, system, user string) (string, error)

// New creates a retriever. chat powers entity extraction for graph search;
// pass nil to disable the graph leg (graph and hybrid modes then degrade to
// vector-only results).
func New(index *vecindex.Index, graph *knowledge.Graph, chat ChatFunc) *Retriever {
	return &Retriever{index: index, graph: graph, chat: chat}
}

// Retrieve returns up to k candidate chunk texts for the question.
// Hybrid mode runs both legs concurrently, lists vector results first, then
// graph results, deduplicates preserving first-seen order, and truncates
// to k.
func (r *Retriever) Retrieve(ctx context.Context, question string, questionEmbedding []float32, k int, mode Mode) ([]string, error) {
	if k <= 0 {
		k = 10
	}
	switch mode {
	case ModeVector, ModeGraph, ModeHybrid:
	default:
		return nil, fmt.Errorf("unknown retrieval mode %q", mode)
	}

	start := time.Now()
	var vecTexts, graphTexts []string

	g, gctx := errgroup.WithContext(ctx)
	if mode == ModeVector || mode == ModeHybrid {
		g.Go(func() error {
			vecTexts = r.vectorSearch(questionEmbedding, k)
			return nil
		})
	}
	if mode == ModeGraph || mode == ModeHybrid {
		g.Go(func() error {
			entities := r.extractEntities(gctx, question)
			graphTexts = r.graph.SearchByEntities(entities, k)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := dedupe(append(vecTexts, graphTexts...), k)
	slog.Debug("retrieval: complete",
		"mode", mode, "vector", len(vecTexts), "graph", len(graphTexts),
		"merged", len(merged), "elapsed", time.Since(start).Round(time.Millisecond))
	return merged, nil
}

func (r *Retriever) vectorSearch(embedding []float32, k int) []string {
	ids := r.index.Search(embedding, k)
	texts := make([]string, 0, len(ids))
	for _, id := range ids {
		if text, ok := r.index.Text(id); ok {
			texts = append(texts, text)
		}
	}
	return texts
}

// dedupe removes duplicate texts preserving first-seen order and truncates
// to k.
func dedupe(texts []string, k int) []string {
	seen := make(map[string]bool, len(texts))
	out := make([]string, 0, len(texts))
	for _, t := range texts {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
		if len(out) >= k {
			break
		}
	}
	return out
}
