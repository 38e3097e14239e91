// Package export pulls every row matching a filter set out of the backend in fixed
// batches and turns them into a downloadable CSV or JSON file.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leadforge/backoffice/internal/search"
)

const (
	// BatchSize is the number of rows fetched per round trip.
	BatchSize = 1000
	// MaxBatches caps an export at MaxBatches*BatchSize rows.
	MaxBatches = 100

	defaultResetDelay = time.Second
)

// Request describes one export.
type Request struct {
	Table    string             `json:"table"`
	Filters  search.FilterState `json:"filters"`
	Format   Format             `json:"format"`
	Filename string             `json:"filename,omitempty"`
}

// Result reports the outcome of an export.
type Result struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Error   string `json:"error,omitempty"`
	File    string `json:"file,omitempty"`
}

// File is a finished export ready for delivery.
type File struct {
	Name        string
	ContentType string
	Body        []byte
}

// Sink delivers a finished file to the user.
type Sink interface {
	Deliver(ctx context.Context, f File) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, f File) error

// Deliver implements Sink.
func (fn SinkFunc) Deliver(ctx context.Context, f File) error {
	return fn(ctx, f)
}

// Config wires an Exporter.
type Config struct {
	Source  search.Source
	Cleaner Cleaner
	Logger  *slog.Logger
	Metrics *Metrics
	// OnProgress receives every progress update (0-100).
	OnProgress func(int)
	// ResetDelay is how long progress stays at its final value before returning to 0.
	ResetDelay time.Duration
	Now        func() time.Time
}

// Exporter runs exports. One instance tracks a single in-flight export: callers are
// expected not to start another while Exporting reports true.
type Exporter struct {
	source     search.Source
	cleaner    Cleaner
	logger     *slog.Logger
	metrics    *Metrics
	onProgress func(int)
	resetDelay time.Duration
	now        func() time.Time

	batchSize  int
	maxBatches int

	exporting atomic.Bool
	progress  atomic.Int32

	resetMu    sync.Mutex
	resetTimer *time.Timer
}

// New creates an Exporter.
func New(cfg Config) *Exporter {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ResetDelay <= 0 {
		cfg.ResetDelay = defaultResetDelay
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Cleaner.layout == "" {
		cfg.Cleaner = NewCleaner("en-US", time.UTC)
	}
	return &Exporter{
		source:     cfg.Source,
		cleaner:    cfg.Cleaner,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		onProgress: cfg.OnProgress,
		resetDelay: cfg.ResetDelay,
		now:        cfg.Now,
		batchSize:  BatchSize,
		maxBatches: MaxBatches,
	}
}

// Exporting reports whether an export is running.
func (e *Exporter) Exporting() bool {
	return e.exporting.Load()
}

// Progress returns the coarse progress of the current export in percent.
func (e *Exporter) Progress() int {
	return int(e.progress.Load())
}

// Export fetches every row of req.Table matching req.Filters, serializes them and hands
// the file to sink. Failures are reported in the Result; no file is delivered then.
func (e *Exporter) Export(ctx context.Context, req Request, sink Sink) Result {
	if e.exporting.Swap(true) {
		e.logger.Warn("export started while another is running", slog.String("table", req.Table))
	}
	defer e.exporting.Store(false)
	defer e.scheduleReset()
	e.setProgress(0)

	format := req.Format
	if format == "" {
		format = FormatCSV
	}
	logger := e.logger.With(slog.String("table", req.Table), slog.String("format", string(format)))

	var (
		rows    []search.Row
		columns []string
		batches int
		capped  bool
		err     error
	)
	if snap, ok := e.source.(search.Snapshotter); ok {
		err = snap.Snapshot(ctx, func(src search.Source) error {
			var ferr error
			rows, columns, batches, capped, ferr = e.fetchAll(ctx, src, req)
			return ferr
		})
	} else {
		rows, columns, batches, capped, err = e.fetchAll(ctx, e.source, req)
	}
	if err == nil {
		var file File
		file, err = e.build(req, format, columns, rows)
		if err == nil {
			if sink == nil {
				err = errors.New("export: no sink configured")
			} else if derr := sink.Deliver(ctx, file); derr != nil {
				err = fmt.Errorf("export: deliver %s: %w", file.Name, derr)
			} else {
				e.setProgress(100)
				res := Result{Success: true, Count: len(rows), File: file.Name}
				logger.Info("export finished", slog.Int("rows", len(rows)), slog.Int("batches", batches), slog.String("file", file.Name))
				e.metrics.observe(req.Table, format, res, batches, capped)
				return res
			}
		}
	}
	logger.Error("export failed", slog.Any("error", err))
	res := Result{Success: false, Error: err.Error()}
	e.metrics.observe(req.Table, format, res, batches, capped)
	return res
}

// fetchAll pages through the table newest first until a short batch or the cap.
func (e *Exporter) fetchAll(ctx context.Context, source search.Source, req Request) (rows []search.Row, columns []string, batches int, capped bool, err error) {
	if source == nil {
		return nil, nil, 0, false, errors.New("export: source not configured")
	}
	spec, err := search.LookupTable(req.Table)
	if err != nil {
		return nil, nil, 0, false, err
	}
	q, err := search.BuildQuery(spec, req.Filters, 1, e.batchSize)
	if err != nil {
		return nil, nil, 0, false, err
	}
	q.SortColumn = spec.DateColumn
	q.SortOrder = search.SortDesc
	q.SkipCount = true

	for {
		if batches >= e.maxBatches {
			e.logger.Warn("export hit batch cap",
				slog.String("table", req.Table),
				slog.Int("batches", batches),
				slog.Int("rows", len(rows)))
			return rows, columns, batches, true, nil
		}
		q.Offset = batches * e.batchSize
		page, qerr := source.Query(ctx, q)
		if qerr != nil {
			return nil, nil, batches, false, fmt.Errorf("export: batch %d: %w", batches+1, qerr)
		}
		batches++
		if columns == nil {
			columns = page.Columns
		}
		rows = append(rows, page.Rows...)
		e.setProgress(min(90, batches*10))
		if len(page.Rows) < e.batchSize {
			return rows, columns, batches, false, nil
		}
	}
}

func (e *Exporter) build(req Request, format Format, columns []string, rows []search.Row) (File, error) {
	headers, records := e.cleaner.Clean(columns, rows)
	body, err := Encode(format, headers, records)
	if err != nil {
		return File{}, err
	}
	return File{
		Name:        Filename(req.Filename, req.Table, format, e.now()),
		ContentType: format.ContentType(),
		Body:        body,
	}, nil
}

// Filename renders <base>_<YYYY-MM-DD>.<ext>, with base defaulting to the table name.
func Filename(base, table string, format Format, at time.Time) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = table
	}
	base = strings.NewReplacer("/", "_", `\`, "_", `"`, "").Replace(base)
	return fmt.Sprintf("%s_%s.%s", base, at.Format("2006-01-02"), format.Ext())
}

func (e *Exporter) setProgress(p int) {
	e.progress.Store(int32(p))
	if e.onProgress != nil {
		e.onProgress(p)
	}
}

func (e *Exporter) scheduleReset() {
	e.resetMu.Lock()
	defer e.resetMu.Unlock()
	if e.resetTimer != nil {
		e.resetTimer.Stop()
	}
	e.resetTimer = time.AfterFunc(e.resetDelay, func() {
		if !e.exporting.Load() {
			e.setProgress(0)
		}
	})
}
