package timeline

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingQuerier struct {
	sql  []string
	args [][]any
}

func (q *recordingQuerier) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	q.sql = append(q.sql, sql)
	q.args = append(q.args, args)
	return nil, errors.New("connection refused")
}

func TestRepositoryFiltersOnIndexedLeadColumn(t *testing.T) {
	q := &recordingQuerier{}
	repo := &pgRepository{db: q}

	_, err := repo.LeadNotes(context.Background(), testLeadID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lead notes")
	_, err = repo.LeadActivities(context.Background(), testLeadID)
	require.Error(t, err)

	require.Len(t, q.sql, 2)
	for i, sql := range q.sql {
		assert.Contains(t, sql, "WHERE lead_id = $1::uuid")
		assert.NotContains(t, sql, "lead_id::text =")
		assert.Equal(t, []any{testLeadID}, q.args[i])
	}
}
