package search

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadforge/backoffice/internal/platform/db"
)

const pgUndefinedTable = "42P01"

type batcher interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Repository runs queries against Postgres. The count and the page are sent as one
// batch so both come back in a single round trip.
type Repository struct {
	db    batcher
	begin db.TxBeginner
}

// NewRepository wires the repository to a pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool, begin: pool}
}

// Snapshot runs fn with a Source bound to one read-only repeatable-read transaction,
// so consecutive pages come from the same snapshot.
func (r *Repository) Snapshot(ctx context.Context, fn func(Source) error) error {
	if r == nil || r.begin == nil {
		return fn(r)
	}
	return db.WithReadOnlyTx(ctx, r.begin, func(tx pgx.Tx) error {
		return fn(&Repository{db: tx})
	})
}

// Query implements Source.
func (r *Repository) Query(ctx context.Context, q Query) (Page, error) {
	if r == nil || r.db == nil {
		return Page{}, errors.New("search: repository not configured")
	}
	countSQL, pageSQL, args, pageArgs := buildSQL(q)

	batch := &pgx.Batch{}
	if !q.SkipCount {
		batch.Queue(countSQL, args...)
	}
	batch.Queue(pageSQL, pageArgs...)

	results := r.db.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()

	var page Page
	if !q.SkipCount {
		if err := results.QueryRow().Scan(&page.TotalCount); err != nil {
			return Page{}, wrapQueryError(q.Table, "count", err)
		}
	}
	rows, err := results.Query()
	if err != nil {
		return Page{}, wrapQueryError(q.Table, "select", err)
	}
	fields := rows.FieldDescriptions()
	page.Columns = make([]string, 0, len(fields))
	for _, fd := range fields {
		page.Columns = append(page.Columns, fd.Name)
	}
	records, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return Page{}, wrapQueryError(q.Table, "scan", err)
	}
	page.Rows = make([]Row, 0, len(records))
	for _, rec := range records {
		page.Rows = append(page.Rows, Row(rec))
	}
	if q.SkipCount {
		page.TotalCount = len(page.Rows)
	}
	return page, nil
}

func wrapQueryError(table Table, stage string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable {
		return fmt.Errorf("search: %s %s: table missing: %w", table, stage, err)
	}
	return fmt.Errorf("search: %s %s: %w", table, stage, err)
}

// buildSQL renders the count and page statements. Identifiers come from the table
// registry and are quoted; every value is a bind parameter.
func buildSQL(q Query) (countSQL, pageSQL string, args, pageArgs []any) {
	var conditions []string
	argPos := 1
	next := func(v any) string {
		args = append(args, v)
		p := "$" + strconv.Itoa(argPos)
		argPos++
		return p
	}

	if q.Search != "" && len(q.SearchColumns) > 0 {
		placeholder := next("%" + escapeLike(q.Search) + "%")
		ors := make([]string, 0, len(q.SearchColumns))
		for _, col := range q.SearchColumns {
			ors = append(ors, ident(col)+"::text ILIKE "+placeholder)
		}
		conditions = append(conditions, "("+strings.Join(ors, " OR ")+")")
	}
	for _, col := range sortedKeys(q.In) {
		conditions = append(conditions, ident(col)+" = ANY("+next(q.In[col])+")")
	}
	if q.DateColumn != "" && q.DateFrom != nil {
		conditions = append(conditions, ident(q.DateColumn)+" >= "+next(*q.DateFrom))
	}
	if q.DateColumn != "" && q.DateBefore != nil {
		conditions = append(conditions, ident(q.DateColumn)+" < "+next(*q.DateBefore))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}
	table := ident(string(q.Table))
	countSQL = "SELECT count(*) FROM " + table + where

	direction := "DESC"
	if q.SortOrder == SortAsc {
		direction = "ASC"
	}
	order := ""
	if q.SortColumn != "" {
		order = " ORDER BY " + ident(q.SortColumn) + " " + direction + " NULLS LAST"
		if q.SortColumn != "id" {
			order += ", " + ident("id") + " " + direction
		}
	}

	pageArgs = append(pageArgs, args...)
	pageArgs = append(pageArgs, q.Limit, q.Offset)
	pageSQL = fmt.Sprintf("SELECT * FROM %s%s%s LIMIT $%d OFFSET $%d", table, where, order, argPos, argPos+1)
	return countSQL, pageSQL, args, pageArgs
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func sortedKeys(m map[string][]string) []string {
	return slices.Sorted(maps.Keys(m))
}
