// Package knowledge maintains a per-corpus knowledge graph over document
// chunks and extracted entities. Nodes are connected by symmetric
// relationship edges recomputed by RelateAll over all node pairs.
package knowledge

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/abarelabs/proplens/segment"
	"github.com/abarelabs/proplens/vecindex"
)

// Node kinds.
const (
	KindEntity = "entity"
	KindChunk  = "chunk"
)

// Relation kinds.
const (
	RelMentionedIn = "mentioned_in"
	RelRelatedTo   = "related_to"
)

// RelatedThreshold is the cosine similarity above which two chunks are
// considered related.
const RelatedThreshold = 0.5

// Relation is one directed half of a symmetric edge.
type Relation struct {
	TargetID string `json:"target_id"`
	Kind     string `json:"kind"`
}

// Node is either an extracted entity (Key/Value set) or a document chunk
// (Text/Embedding set).
type Node struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Key       string         `json:"key,omitempty"`
	Value     string         `json:"value,omitempty"`
	Text      string         `json:"text,omitempty"`
	Embedding []float32      `json:"-"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Relations []Relation     `json:"relations,omitempty"`
}

// Graph is a symmetric knowledge graph over entity and chunk nodes.
// The node set grows monotonically; there is no deletion path.
// Safe for concurrent use.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	order []string
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[string]*Node)}
}

// AddChunks inserts one chunk node per chunk. Each node holds its own copy
// of the chunk text, metadata, and embedding.
func (g *Graph) AddChunks(chunks []segment.Chunk) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range chunks {
		emb := make([]float32, len(c.Embedding))
		copy(emb, c.Embedding)
		meta := make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			meta[k] = v
		}
		g.put(&Node{
			ID:        "chunk:" + c.ID,
			Kind:      KindChunk,
			Text:      c.Text,
			Embedding: emb,
			Metadata:  meta,
		})
	}
}

// AddEntities inserts one entity node per extracted field. Values are
// stringified with %v. Re-adding a key overwrites its value (last write
// wins) but keeps the node's position.
func (g *Graph) AddEntities(fields map[string]any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for key, value := range fields {
		g.put(&Node{
			ID:    "entity:" + key,
			Kind:  KindEntity,
			Key:   key,
			Value: fmt.Sprintf("%v", value),
		})
	}
}

// put assumes g.mu is held.
func (g *Graph) put(n *Node) {
	if existing, ok := g.nodes[n.ID]; ok {
		n.Relations = existing.Relations
		g.nodes[n.ID] = n
		return
	}
	g.nodes[n.ID] = n
	g.order = append(g.order, n.ID)
}

// RelateAll recomputes relationship edges over all node pairs. An
// entity-chunk pair is related when the entity value occurs as a
// case-insensitive substring of the chunk text; a chunk-chunk pair when the
// cosine similarity of their embeddings exceeds RelatedThreshold. Edges are
// always added symmetrically. Cost is O(n²) in total node count, acceptable
// for per-document graphs.
func (g *Graph) RelateAll() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, id := range g.order {
		g.nodes[id].Relations = nil
	}

	edges := 0
	for i := 0; i < len(g.order); i++ {
		for j := i + 1; j < len(g.order); j++ {
			a, b := g.nodes[g.order[i]], g.nodes[g.order[j]]
			kind, ok := relate(a, b)
			if !ok {
				continue
			}
			a.Relations = append(a.Relations, Relation{TargetID: b.ID, Kind: kind})
			b.Relations = append(b.Relations, Relation{TargetID: a.ID, Kind: kind})
			edges++
		}
	}
	slog.Debug("knowledge: relationships recomputed", "nodes", len(g.order), "edges", edges)
}

func relate(a, b *Node) (string, bool) {
	if a.Kind == KindChunk && b.Kind == KindChunk {
		if vecindex.Cosine(a.Embedding, b.Embedding) > RelatedThreshold {
			return RelRelatedTo, true
		}
		return "", false
	}
	if a.Kind == b.Kind {
		return "", false
	}
	entity, chunk := a, b
	if entity.Kind != KindEntity {
		entity, chunk = b, a
	}
	if entity.Value == "" {
		return "", false
	}
	if strings.Contains(strings.ToLower(chunk.Text), strings.ToLower(entity.Value)) {
		return RelMentionedIn, true
	}
	return "", false
}

// SearchByEntities finds entity nodes whose value contains any of the given
// strings case-insensitively, collects their directly related chunk nodes,
// and returns up to k deduplicated chunk texts.
func (g *Graph) SearchByEntities(entities []string, k int) []string {
	if len(entities) == 0 || k <= 0 {
		return nil
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := make(map[string]bool)
	var texts []string
	for _, id := range g.order {
		node := g.nodes[id]
		if node.Kind != KindEntity || !matchesAny(node.Value, entities) {
			continue
		}
		for _, rel := range node.Relations {
			target := g.nodes[rel.TargetID]
			if target == nil || target.Kind != KindChunk || seen[target.ID] {
				continue
			}
			seen[target.ID] = true
			texts = append(texts, target.Text)
			if len(texts) >= k {
				return texts
			}
		}
	}
	return texts
}

func matchesAny(value string, terms []string) bool {
	lower := strings.ToLower(value)
	for _, t := range terms {
		if t == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

// NodeCount reports the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.order)
}

// EdgeCount reports the number of symmetric edges.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	halves := 0
	for _, id := range g.order {
		halves += len(g.nodes[id].Relations)
	}
	return halves / 2
}

// Node returns a copy of the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	out := *n
	out.Relations = append([]Relation(nil), n.Relations...)
	return out, true
}
