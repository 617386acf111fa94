package clickhouse

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"haruup-service/internal/models"
)

type recordingConn struct {
	execs   []string
	query   string
	rows    [][]interface{}
	calls   int
	batchFn func() error
}

func (c *recordingConn) Exec(_ context.Context, query string, _ ...interface{}) error {
	c.execs = append(c.execs, query)
	return nil
}

func (c *recordingConn) BatchInsert(_ context.Context, query string, data [][]interface{}) error {
	c.calls++
	c.query = query
	c.rows = data
	if c.batchFn != nil {
		return c.batchFn()
	}
	return nil
}

func TestEnsureSchema(t *testing.T) {
	conn := &recordingConn{}
	require.NoError(t, NewRankingSink(conn).EnsureSchema(context.Background()))
	require.Len(t, conn.execs, 1)
	require.Contains(t, conn.execs[0], "mission_ranking_events")
}

func TestExportRankingEntries(t *testing.T) {
	conn := &recordingConn{}
	sink := NewRankingSink(conn)

	require.NoError(t, sink.ExportRankingEntries(context.Background(), nil))
	require.Zero(t, conn.calls)

	birth := time.Date(1994, 5, 1, 0, 0, 0, 0, time.UTC)
	job := int64(3)
	selected := time.Date(2025, 1, 10, 9, 0, 0, 0, time.FixedZone("KST", 9*3600))
	entries := []models.RankingEntry{
		{
			ID: 1, MemberMissionID: uuid.New(), MemberID: uuid.New(), MissionID: 7,
			Gender: "FEMALE", BirthDate: &birth, JobID: &job,
			Interest: models.InterestPath{Main: "건강", Middle: "운동"}, Label: "운동",
			SelectedAt: selected, CreatedAt: selected,
		},
		{ID: 2, MemberMissionID: uuid.New(), MemberID: uuid.New(), MissionID: 8, Label: "기타", SelectedAt: selected},
	}

	require.NoError(t, sink.ExportRankingEntries(context.Background(), entries))
	require.Equal(t, 1, conn.calls)
	require.Equal(t, insertRankingEvents, conn.query)
	require.Len(t, conn.rows, 2)

	first := conn.rows[0]
	require.Len(t, first, 14)
	require.Equal(t, uint16(1994), first[9])
	require.Equal(t, int64(3), first[10])
	require.Equal(t, int64(0), first[11])
	require.Equal(t, selected.UTC(), first[12])

	second := conn.rows[1]
	require.Equal(t, uint16(0), second[9])
	require.False(t, second[13].(time.Time).IsZero())
}

func TestExportRankingEntries_Error(t *testing.T) {
	conn := &recordingConn{batchFn: func() error { return errors.New("timeout") }}
	err := NewRankingSink(conn).ExportRankingEntries(context.Background(), []models.RankingEntry{{ID: 1}})
	require.ErrorContains(t, err, "timeout")
}
