package search

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
)

const sharedQueryTimeout = 30 * time.Second

// Service answers one-shot list queries for views that keep their state client-side.
// Identical concurrent queries share a single backend round trip.
type Service struct {
	source Source
	group  singleflight.Group
}

// NewService wraps source.
func NewService(source Source) *Service {
	return &Service{source: source}
}

// Source exposes the backend the service queries.
func (s *Service) Source() Source {
	return s.source
}

// List returns one page of table filtered by filters.
func (s *Service) List(ctx context.Context, table string, filters FilterState, page, pageSize int) (ResultPage, error) {
	spec, err := LookupTable(table)
	if err != nil {
		return ResultPage{}, err
	}
	if err := filters.Validate(); err != nil {
		return ResultPage{}, err
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if page < 1 {
		page = 1
	}
	q, err := BuildQuery(spec, filters, page, pageSize)
	if err != nil {
		return ResultPage{}, err
	}
	key, err := json.Marshal(q)
	if err != nil {
		return ResultPage{}, fmt.Errorf("search: encode query key: %w", err)
	}
	ch := s.group.DoChan(string(key), func() (interface{}, error) {
		// Shared by every caller with the same key, so it must outlive any single one.
		qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedQueryTimeout)
		defer cancel()
		return s.source.Query(qctx, q)
	})
	select {
	case <-ctx.Done():
		return ResultPage{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return ResultPage{}, res.Err
		}
		p := res.Val.(Page)
		rows := p.Rows
		if rows == nil {
			rows = []Row{}
		}
		return ResultPage{
			Columns:    p.Columns,
			Rows:       rows,
			TotalCount: p.TotalCount,
			Page:       page,
			PageSize:   pageSize,
		}, nil
	}
}
