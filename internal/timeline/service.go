package timeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Repository loads the raw timeline sources for a lead.
type Repository interface {
	LeadNotes(ctx context.Context, leadID string) ([]Note, error)
	LeadActivities(ctx context.Context, leadID string) ([]Activity, error)
}

// ErrLeadRequired is returned when no lead id is supplied.
var ErrLeadRequired = errors.New("timeline: lead id required")

// ErrInvalidLeadID is returned when the lead id is not a UUID.
var ErrInvalidLeadID = errors.New("timeline: lead id must be a uuid")

// Service merges notes and activities into one feed.
type Service struct {
	repo Repository
}

// NewService builds a timeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// LeadTimeline returns the notes and activities of a lead newest first. When two
// entries share a timestamp the note comes first. limit <= 0 returns everything.
func (s *Service) LeadTimeline(ctx context.Context, leadID string, limit int) ([]Entry, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("timeline: repository not configured")
	}
	leadID = strings.TrimSpace(leadID)
	if leadID == "" {
		return nil, ErrLeadRequired
	}
	id, err := uuid.Parse(leadID)
	if err != nil {
		return nil, ErrInvalidLeadID
	}
	leadID = id.String()

	var (
		notes      []Note
		activities []Activity
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		notes, err = s.repo.LeadNotes(gctx, leadID)
		if err != nil {
			return fmt.Errorf("timeline: notes: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		activities, err = s.repo.LeadActivities(gctx, leadID)
		if err != nil {
			return fmt.Errorf("timeline: activities: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	entries := Merge(notes, activities)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Merge interleaves notes and activities newest first.
func Merge(notes []Note, activities []Activity) []Entry {
	entries := make([]Entry, 0, len(notes)+len(activities))
	for _, n := range notes {
		entries = append(entries, Entry{Kind: KindNote, ID: n.ID, At: n.CreatedAt, Actor: n.Author, Text: n.Body})
	}
	for _, a := range activities {
		entries = append(entries, Entry{Kind: KindActivity, ID: a.ID, At: a.CreatedAt, Actor: a.Actor, Type: a.Type, Text: a.Description})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].At.Equal(entries[j].At) {
			return entries[i].At.After(entries[j].At)
		}
		return entries[i].Kind == KindNote && entries[j].Kind != KindNote
	})
	return entries
}
