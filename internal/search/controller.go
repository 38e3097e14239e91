package search

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultDebounce is the quiet period applied to free-text query changes.
	DefaultDebounce = 300 * time.Millisecond
	// DefaultPageSize is used when Options.PageSize is unset.
	DefaultPageSize = 25

	storeTimeout = 2 * time.Second
)

// Options configures a Controller.
type Options struct {
	PageSize int
	Debounce time.Duration
	// Persist enables saving filter state to Store between mounts.
	Persist bool
	Store   FilterStore
	Logger  *slog.Logger
	// OnChange is called after the latest fetch has been applied.
	OnChange func(State)
}

// State is a snapshot of a controller for rendering.
type State struct {
	Table            Table       `json:"table"`
	Filters          FilterState `json:"filters"`
	Result           ResultPage  `json:"result"`
	TotalPages       int         `json:"totalPages"`
	HasActiveFilters bool        `json:"hasActiveFilters"`
	Loading          bool        `json:"loading"`
	Error            string      `json:"error,omitempty"`
}

// Controller owns the filter state of one list view and keeps its result page in sync
// with the backend. Only the response to the most recently issued fetch is applied.
type Controller struct {
	spec     TableSpec
	source   Source
	store    FilterStore
	persist  bool
	logger   *slog.Logger
	debounce time.Duration
	pageSize int
	onChange func(State)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	filters  FilterState
	page     int
	result   ResultPage
	loading  bool
	errMsg   string
	seq      uint64
	inflight int
	timer    *time.Timer
	timerGen uint64
	waiters  []chan struct{}
	closed   bool
	storeSeq uint64

	// storeMu orders writes to store; it is never held together with mu.
	storeMu   sync.Mutex
	storedSeq uint64
}

// NewController mounts a list view over spec: it restores persisted filters, when
// enabled, and issues the first fetch. The controller lives until Close or until ctx ends.
func NewController(ctx context.Context, spec TableSpec, source Source, opts Options) *Controller {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Store == nil {
		opts.Store = NopStore{}
	}
	cctx, cancel := context.WithCancel(ctx)
	c := &Controller{
		spec:     spec,
		source:   source,
		store:    opts.Store,
		persist:  opts.Persist,
		logger:   opts.Logger.With(slog.String("table", string(spec.Name))),
		debounce: opts.Debounce,
		pageSize: opts.PageSize,
		onChange: opts.OnChange,
		ctx:      cctx,
		cancel:   cancel,
		page:     1,
	}
	c.filters = c.restore()
	c.result = ResultPage{Rows: []Row{}, Page: 1, PageSize: c.pageSize}

	c.mu.Lock()
	c.fetchLocked()
	c.mu.Unlock()
	return c
}

// Spec returns the table this controller queries.
func (c *Controller) Spec() TableSpec {
	return c.spec
}

// SetFilters merges patch into the filter state, resets to page 1 and re-fetches.
// A change to the query text is debounced; every other change fetches immediately.
func (c *Controller) SetFilters(patch FilterPatch) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	next := patch.Apply(c.filters)
	if err := next.Validate(); err != nil {
		c.mu.Unlock()
		return err
	}
	queryChanged := patch.Query != nil && *patch.Query != c.filters.Query
	c.filters = next
	c.page = 1
	write := c.storeWriteLocked(false)
	if queryChanged {
		c.scheduleLocked()
	} else {
		c.fetchLocked()
	}
	c.mu.Unlock()

	c.applyStoreWrite(write)
	return nil
}

// SetFilter updates a single field by its JSON name.
func (c *Controller) SetFilter(key string, value any) error {
	patch, err := PatchFor(key, value)
	if err != nil {
		return err
	}
	return c.SetFilters(patch)
}

// ResetFilters restores defaults, clears the persisted copy and fetches immediately.
func (c *Controller) ResetFilters() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.filters = DefaultFilters()
	c.page = 1
	write := c.storeWriteLocked(true)
	c.fetchLocked()
	c.mu.Unlock()

	c.applyStoreWrite(write)
	return nil
}

// SetPage fetches page n with the current filters. Pages past the end come back empty.
func (c *Controller) SetPage(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if n < 1 {
		n = 1
	}
	c.page = n
	c.fetchLocked()
	return nil
}

// Refresh re-runs the current query. It is the manual retry path after a failure.
func (c *Controller) Refresh() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.fetchLocked()
	return nil
}

// State returns a snapshot of the current filters and result.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Settle blocks until no debounce is pending and no fetch is in flight, then returns
// the resulting state.
func (c *Controller) Settle(ctx context.Context) (State, error) {
	c.mu.Lock()
	if c.idleLocked() {
		st := c.stateLocked()
		c.mu.Unlock()
		return st, nil
	}
	ch := make(chan struct{})
	c.waiters = append(c.waiters, ch)
	c.mu.Unlock()

	select {
	case <-ch:
		return c.State(), nil
	case <-ctx.Done():
		return c.State(), ctx.Err()
	}
}

// Close unmounts the view: pending work is cancelled and in-flight fetches are awaited.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopTimerLocked()
	c.releaseWaitersLocked()
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

func (c *Controller) stateLocked() State {
	result := c.result
	result.Rows = append([]Row(nil), c.result.Rows...)
	if result.Rows == nil {
		result.Rows = []Row{}
	}
	filters := c.filters
	filters.Status = append([]string(nil), c.filters.Status...)
	filters.Source = append([]string(nil), c.filters.Source...)
	return State{
		Table:            c.spec.Name,
		Filters:          filters,
		Result:           result,
		TotalPages:       result.TotalPages(),
		HasActiveFilters: c.filters.HasActiveFilters(),
		Loading:          c.loading,
		Error:            c.errMsg,
	}
}

func (c *Controller) idleLocked() bool {
	return c.closed || (c.inflight == 0 && c.timer == nil)
}

func (c *Controller) releaseWaitersLocked() {
	for _, ch := range c.waiters {
		close(ch)
	}
	c.waiters = nil
}

func (c *Controller) scheduleLocked() {
	c.stopTimerLocked()
	gen := c.timerGen
	c.timer = time.AfterFunc(c.debounce, func() { c.fire(gen) })
}

func (c *Controller) stopTimerLocked() {
	if c.timer == nil {
		return
	}
	c.timer.Stop()
	c.timer = nil
	c.timerGen++
}

func (c *Controller) fire(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.timerGen || c.timer == nil {
		return
	}
	c.timer = nil
	c.timerGen++
	c.fetchLocked()
}

// fetchLocked issues a fetch tagged with a new sequence number. Any pending debounce is
// superseded since the fetch already carries the latest filters.
func (c *Controller) fetchLocked() {
	c.stopTimerLocked()
	c.seq++
	seq := c.seq
	page := c.page
	q, err := BuildQuery(c.spec, c.filters, page, c.pageSize)
	if err != nil {
		c.applyFailureLocked(page, err)
		c.releaseIfIdleLocked()
		return
	}
	c.loading = true
	c.inflight++
	c.wg.Add(1)
	go c.run(seq, page, q)
}

func (c *Controller) run(seq uint64, page int, q Query) {
	defer c.wg.Done()
	res, err := c.source.Query(c.ctx, q)

	c.mu.Lock()
	c.inflight--
	latest := seq == c.seq && !c.closed
	if latest {
		if err != nil {
			c.applyFailureLocked(page, err)
		} else {
			rows := res.Rows
			if rows == nil {
				rows = []Row{}
			}
			c.result = ResultPage{
				Columns:    res.Columns,
				Rows:       rows,
				TotalCount: res.TotalCount,
				Page:       page,
				PageSize:   c.pageSize,
			}
			c.errMsg = ""
			c.loading = false
		}
	} else if !c.closed {
		c.logger.Debug("discard stale response", slog.Uint64("seq", seq), slog.Uint64("latest", c.seq))
	}
	var st State
	if latest {
		st = c.stateLocked()
	}
	c.releaseIfIdleLocked()
	c.mu.Unlock()

	if latest && c.onChange != nil {
		c.onChange(st)
	}
}

func (c *Controller) applyFailureLocked(page int, err error) {
	c.logger.Warn("search query failed", slog.Any("error", err))
	c.errMsg = err.Error()
	c.result = ResultPage{Rows: []Row{}, Page: page, PageSize: c.pageSize}
	c.loading = false
}

func (c *Controller) releaseIfIdleLocked() {
	if c.idleLocked() {
		c.releaseWaitersLocked()
	}
}

// storeWrite is a pending persistence update captured under c.mu and applied after
// it is released.
type storeWrite struct {
	seq    uint64
	value  string
	remove bool
}

func (c *Controller) storeWriteLocked(remove bool) *storeWrite {
	if !c.persist {
		return nil
	}
	w := &storeWrite{remove: remove}
	if !remove {
		raw, err := json.Marshal(c.filters)
		if err != nil {
			c.logger.Warn("encode filters", slog.Any("error", err))
			return nil
		}
		w.value = string(raw)
	}
	c.storeSeq++
	w.seq = c.storeSeq
	return w
}

// applyStoreWrite performs w against the store. Writes are serialized and a write
// older than the last applied one is dropped.
func (c *Controller) applyStoreWrite(w *storeWrite) {
	if w == nil {
		return
	}
	c.storeMu.Lock()
	defer c.storeMu.Unlock()
	if w.seq <= c.storedSeq {
		return
	}
	c.storedSeq = w.seq

	ctx, cancel := context.WithTimeout(c.ctx, storeTimeout)
	defer cancel()
	if w.remove {
		if err := c.store.Remove(ctx, c.spec.StorageKey()); err != nil {
			c.logger.Warn("clear persisted filters", slog.Any("error", err))
		}
		return
	}
	if err := c.store.Set(ctx, c.spec.StorageKey(), w.value); err != nil {
		c.logger.Warn("persist filters", slog.Any("error", err))
	}
}

func (c *Controller) restore() FilterState {
	if !c.persist {
		return DefaultFilters()
	}
	ctx, cancel := context.WithTimeout(c.ctx, storeTimeout)
	defer cancel()
	raw, ok, err := c.store.Get(ctx, c.spec.StorageKey())
	if err != nil {
		c.logger.Warn("load persisted filters", slog.Any("error", err))
		return DefaultFilters()
	}
	if !ok || raw == "" {
		return DefaultFilters()
	}
	var f FilterState
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		c.logger.Warn("decode persisted filters", slog.Any("error", err))
		return DefaultFilters()
	}
	if err := f.Validate(); err != nil {
		c.logger.Warn("persisted filters invalid", slog.Any("error", err))
		return DefaultFilters()
	}
	if f.SortOrder == "" {
		f.SortOrder = SortDesc
	}
	return f
}
