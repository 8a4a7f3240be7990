// Package vecindex provides an in-memory vector similarity index over
// document chunks using brute-force cosine similarity.
package vecindex

import (
	"math"
	"sort"
	"sync"
)

type entry struct {
	id   string
	vec  []float32
	text string
	meta map[string]any
}

// Index stores chunk embeddings and answers top-k cosine similarity queries.
// Entries are kept in insertion order; ties in similarity are broken by
// insertion order. Safe for concurrent use.
type Index struct {
	mu      sync.RWMutex
	entries []entry
	byID    map[string]int
}

// New returns an empty index.
func New() *Index {
	return &Index{byID: make(map[string]int)}
}

// Insert adds a vector under id. The vector and metadata are copied so the
// index never shares mutable state with the caller. Re-inserting an existing
// id replaces its vector and text in place, keeping the original insertion
// position.
func (ix *Index) Insert(id string, vec []float32, text string, meta map[string]any) {
	v := make([]float32, len(vec))
	copy(v, vec)
	var m map[string]any
	if meta != nil {
		m = make(map[string]any, len(meta))
		for k, val := range meta {
			m[k] = val
		}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if pos, ok := ix.byID[id]; ok {
		ix.entries[pos] = entry{id: id, vec: v, text: text, meta: m}
		return
	}
	ix.byID[id] = len(ix.entries)
	ix.entries = append(ix.entries, entry{id: id, vec: v, text: text, meta: m})
}

// Search returns up to k entry ids ranked by cosine similarity to query,
// descending. Equal scores preserve insertion order.
func (ix *Index) Search(query []float32, k int) []string {
	if k <= 0 {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	type scored struct {
		id    string
		score float64
	}
	results := make([]scored, len(ix.entries))
	for i, e := range ix.entries {
		results[i] = scored{id: e.id, score: Cosine(query, e.vec)}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})

	if k > len(results) {
		k = len(results)
	}
	ids := make([]string, k)
	for i := 0; i < k; i++ {
		ids[i] = results[i].id
	}
	return ids
}

// Text returns the stored text for id.
func (ix *Index) Text(id string) (string, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	pos, ok := ix.byID[id]
	if !ok {
		return "", false
	}
	return ix.entries[pos].text, true
}

// Len reports the number of stored entries.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Cosine computes the cosine similarity of a and b. Vectors of differing
// length are compared over their common prefix. A zero-norm vector has
// similarity 0 with everything.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	for _, v := range a {
		normA += float64(v) * float64(v)
	}
	for _, v := range b {
		normB += float64(v) * float64(v)
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
