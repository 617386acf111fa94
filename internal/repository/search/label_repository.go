package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"haruup-service/internal/client"
)

// Searcher is the part of the Elasticsearch client the classifier needs.
type Searcher interface {
	Search(ctx context.Context, index string, query map[string]interface{}, size int) ([]client.SearchHit, error)
}

// labelDocument is one entry of the label index. Keywords carries the example phrases a label is
// matched against; Label is what gets written to mission_rankings.
type labelDocument struct {
	Label    string `json:"label"`
	Keywords string `json:"keywords"`
}

// LabelRepository classifies mission content by matching it against the label index.
type LabelRepository struct {
	searcher Searcher
	index    string
}

func NewLabelRepository(searcher Searcher, index string) *LabelRepository {
	return &LabelRepository{searcher: searcher, index: index}
}

// Label returns the label of the best scoring document, or "" when nothing matches.
func (r *LabelRepository) Label(ctx context.Context, content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", nil
	}

	hits, err := r.searcher.Search(ctx, r.index, labelQuery(content), 1)
	if err != nil {
		return "", fmt.Errorf("failed to search label index: %w", err)
	}
	if len(hits) == 0 {
		return "", nil
	}

	var doc labelDocument
	if err := json.Unmarshal(hits[0].Source, &doc); err != nil {
		return "", fmt.Errorf("failed to decode label document %s: %w", hits[0].ID, err)
	}
	return strings.TrimSpace(doc.Label), nil
}

func labelQuery(content string) map[string]interface{} {
	return map[string]interface{}{
		"query": map[string]interface{}{
			"match": map[string]interface{}{
				"keywords": map[string]interface{}{
					"query":    content,
					"operator": "or",
				},
			},
		},
	}
}
