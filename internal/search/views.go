package search

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ViewConfig holds defaults applied to every view opened through a registry.
type ViewConfig struct {
	PageSize int
	Debounce time.Duration
	Persist  bool
	Store    FilterStore
	IdleTTL  time.Duration
	Logger   *slog.Logger
}

// ViewRegistry tracks the list views mounted by admin clients. Each view owns a
// Controller; views that go unused for IdleTTL are unmounted by Run.
type ViewRegistry struct {
	ctx    context.Context
	source Source
	cfg    ViewConfig
	now    func() time.Time

	mu    sync.Mutex
	views map[string]*view
}

type view struct {
	ctrl     *Controller
	lastSeen time.Time
}

// NewViewRegistry creates a registry whose controllers live as long as ctx.
func NewViewRegistry(ctx context.Context, source Source, cfg ViewConfig) *ViewRegistry {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	return &ViewRegistry{
		ctx:    ctx,
		source: source,
		cfg:    cfg,
		now:    time.Now,
		views:  make(map[string]*view),
	}
}

// Open mounts a new view over table. persist overrides the registry default when set.
func (r *ViewRegistry) Open(table string, persist *bool) (string, *Controller, error) {
	spec, err := LookupTable(table)
	if err != nil {
		return "", nil, err
	}
	opts := Options{
		PageSize: r.cfg.PageSize,
		Debounce: r.cfg.Debounce,
		Persist:  r.cfg.Persist,
		Store:    r.cfg.Store,
		Logger:   r.cfg.Logger,
	}
	if persist != nil {
		opts.Persist = *persist
	}
	id := uuid.NewString()
	ctrl := NewController(r.ctx, spec, r.source, opts)

	r.mu.Lock()
	r.views[id] = &view{ctrl: ctrl, lastSeen: r.now()}
	r.mu.Unlock()
	r.cfg.Logger.Debug("view opened", slog.String("view", id), slog.String("table", table))
	return id, ctrl, nil
}

// Get returns the controller for id and marks the view as used.
func (r *ViewRegistry) Get(id string) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.views[id]
	if !ok {
		return nil, false
	}
	v.lastSeen = r.now()
	return v.ctrl, true
}

// Close unmounts a single view.
func (r *ViewRegistry) Close(id string) bool {
	r.mu.Lock()
	v, ok := r.views[id]
	delete(r.views, id)
	r.mu.Unlock()
	if ok {
		v.ctrl.Close()
	}
	return ok
}

// Len reports the number of mounted views.
func (r *ViewRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

// Sweep unmounts views idle for longer than IdleTTL and returns how many were closed.
func (r *ViewRegistry) Sweep() int {
	cutoff := r.now().Add(-r.cfg.IdleTTL)
	var stale []*Controller
	r.mu.Lock()
	for id, v := range r.views {
		if v.lastSeen.Before(cutoff) {
			stale = append(stale, v.ctrl)
			delete(r.views, id)
		}
	}
	r.mu.Unlock()
	for _, ctrl := range stale {
		ctrl.Close()
	}
	return len(stale)
}

// Run sweeps idle views periodically until ctx is done, then unmounts everything.
func (r *ViewRegistry) Run(ctx context.Context) error {
	interval := r.cfg.IdleTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.closeAll()
			return nil
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.cfg.Logger.Info("idle views closed", slog.Int("count", n))
			}
		}
	}
}

func (r *ViewRegistry) closeAll() {
	r.mu.Lock()
	views := r.views
	r.views = make(map[string]*view)
	r.mu.Unlock()
	for _, v := range views {
		v.ctrl.Close()
	}
}
