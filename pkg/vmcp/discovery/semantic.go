package discovery

import (
	"context"

	"github.com/magictunnel/magictunnel/pkg/vmcp"
	"github.com/magictunnel/magictunnel/pkg/vmcp/embedding"
)

// SemanticScorer ranks a tool by cosine similarity between the query's
// embedding and the tool's persisted embedding record (spec.md §4.6
// "Semantic ranking").
type SemanticScorer struct {
	manager  *embedding.Manager
	embedder embedding.Embedder
}

// NewSemanticScorer builds a scorer over manager's persisted tool
// embeddings, embedding each query with embedder.
func NewSemanticScorer(manager *embedding.Manager, embedder embedding.Embedder) *SemanticScorer {
	return &SemanticScorer{manager: manager, embedder: embedder}
}

func (s *SemanticScorer) Score(ctx context.Context, query string, tool vmcp.Tool) (float64, error) {
	record, ok := s.manager.Lookup(tool.Name)
	if !ok {
		return 0, nil
	}
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return 0, err
	}
	return embedding.CosineSimilarity(queryVec, record.Vector), nil
}
