package timeline

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type pgRepository struct {
	db querier
}

// NewRepository returns the Postgres-backed timeline repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{db: pool}
}

const leadNotesSQL = `
	SELECT id::text, lead_id::text, body, author, created_at
	FROM lead_notes
	WHERE lead_id = $1::uuid
	ORDER BY created_at DESC`

const leadActivitiesSQL = `
	SELECT id::text, lead_id::text, activity_type, description, actor, created_at
	FROM lead_activities
	WHERE lead_id = $1::uuid
	ORDER BY created_at DESC`

func (r *pgRepository) LeadNotes(ctx context.Context, leadID string) ([]Note, error) {
	rows, err := r.db.Query(ctx, leadNotesSQL, leadID)
	if err != nil {
		return nil, fmt.Errorf("query lead notes: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Note, error) {
		var n Note
		var author pgtype.Text
		if err := row.Scan(&n.ID, &n.LeadID, &n.Body, &author, &n.CreatedAt); err != nil {
			return Note{}, err
		}
		if author.Valid {
			n.Author = author.String
		}
		return n, nil
	})
}

func (r *pgRepository) LeadActivities(ctx context.Context, leadID string) ([]Activity, error) {
	rows, err := r.db.Query(ctx, leadActivitiesSQL, leadID)
	if err != nil {
		return nil, fmt.Errorf("query lead activities: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Activity, error) {
		var a Activity
		var description, actor pgtype.Text
		if err := row.Scan(&a.ID, &a.LeadID, &a.Type, &description, &actor, &a.CreatedAt); err != nil {
			return Activity{}, err
		}
		if description.Valid {
			a.Description = description.String
		}
		if actor.Valid {
			a.Actor = actor.String
		}
		return a, nil
	})
}
