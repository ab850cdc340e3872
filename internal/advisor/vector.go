package advisor

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/coder/hnsw"
)

// hnswMaxNeighbors (M) is the maximum number of neighbors per graph node.
const hnswMaxNeighbors = 16

// ErrEmptyKnowledge is returned when a vector index is built over no passages.
var ErrEmptyKnowledge = errors.New("knowledge base is empty")

// VectorIndex ranks the passages of a knowledge base by cosine distance between
// their embeddings and the query embedding.
type VectorIndex struct {
	kb       *KnowledgeBase
	embedder Embedder
	graph    *hnsw.Graph[int]
	dims     int
}

// NewVectorIndex embeds every passage of kb and builds the search graph.
func NewVectorIndex(ctx context.Context, embedder Embedder, kb *KnowledgeBase) (*VectorIndex, error) {
	if kb.Len() == 0 {
		return nil, ErrEmptyKnowledge
	}

	vectors, err := embedder.Embed(ctx, kb.docs)
	if err != nil {
		return nil, fmt.Errorf("embed knowledge: %w", err)
	}
	if len(vectors) != kb.Len() {
		return nil, fmt.Errorf("embed knowledge: got %d vectors for %d passages", len(vectors), kb.Len())
	}

	g := hnsw.NewGraph[int]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors)
	g.Distance = hnsw.CosineDistance

	dims := len(vectors[0])
	for i, v := range vectors {
		if len(v) == 0 || len(v) != dims {
			return nil, fmt.Errorf("embed knowledge: passage %d has %d dimensions, want %d", i, len(v), dims)
		}
		g.Add(hnsw.MakeNode(i, v))
	}

	return &VectorIndex{kb: kb, embedder: embedder, graph: g, dims: dims}, nil
}

// Knowledge returns the indexed knowledge base.
func (v *VectorIndex) Knowledge() *KnowledgeBase {
	return v.kb
}

// Retrieve returns up to k passages nearest to query, best first.
// Equal distances keep the passage order of the knowledge base.
func (v *VectorIndex) Retrieve(ctx context.Context, query string, k int) ([]string, error) {
	if k <= 0 {
		return nil, nil
	}

	vectors, err := v.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 || len(vectors[0]) != v.dims {
		return nil, errors.New("embed query: unexpected embedding shape")
	}
	q := vectors[0]

	nodes := v.graph.Search(q, min(k, v.kb.Len()))
	slices.SortStableFunc(nodes, func(a, b hnsw.Node[int]) int {
		if c := cmp.Compare(hnsw.CosineDistance(q, a.Value), hnsw.CosineDistance(q, b.Value)); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})

	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = v.kb.docs[n.Key]
	}
	return out, nil
}
