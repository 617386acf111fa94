package search

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"haruup-service/internal/client"
)

type stubSearcher struct {
	hits  []client.SearchHit
	err   error
	index string
	query map[string]interface{}
	size  int
}

func (s *stubSearcher) Search(_ context.Context, index string, query map[string]interface{}, size int) ([]client.SearchHit, error) {
	s.index, s.query, s.size = index, query, size
	return s.hits, s.err
}

func TestLabel_TopHit(t *testing.T) {
	src, _ := json.Marshal(labelDocument{Label: " 운동 ", Keywords: "걷기 달리기 스트레칭"})
	s := &stubSearcher{hits: []client.SearchHit{{ID: "1", Score: 3.2, Source: src}}}
	repo := NewLabelRepository(s, "mission-labels")

	label, err := repo.Label(context.Background(), "아침에 30분 걷기")
	require.NoError(t, err)
	require.Equal(t, "운동", label)
	require.Equal(t, "mission-labels", s.index)
	require.Equal(t, 1, s.size)

	match := s.query["query"].(map[string]interface{})["match"].(map[string]interface{})
	require.Equal(t, "아침에 30분 걷기", match["keywords"].(map[string]interface{})["query"])
}

func TestLabel_NoHitOrBlank(t *testing.T) {
	s := &stubSearcher{}
	repo := NewLabelRepository(s, "mission-labels")

	label, err := repo.Label(context.Background(), "물 마시기")
	require.NoError(t, err)
	require.Empty(t, label)

	s.err = errors.New("should not be called")
	label, err = repo.Label(context.Background(), "   ")
	require.NoError(t, err)
	require.Empty(t, label)
}

func TestLabel_Errors(t *testing.T) {
	repo := NewLabelRepository(&stubSearcher{err: errors.New("connection refused")}, "idx")
	_, err := repo.Label(context.Background(), "독서")
	require.ErrorContains(t, err, "connection refused")

	repo = NewLabelRepository(&stubSearcher{hits: []client.SearchHit{{ID: "x", Source: json.RawMessage(`[1]`)}}}, "idx")
	_, err = repo.Label(context.Background(), "독서")
	require.Error(t, err)
}
