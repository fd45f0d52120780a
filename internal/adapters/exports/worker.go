// Package exports snapshots the city into the blob store in the background.
package exports

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"citybuilder/internal/blob"
	"citybuilder/internal/render"
	"citybuilder/pkg/domain"
)

// Status describes the lifecycle stage of an export request.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Format selects an artifact encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatPNG  Format = "png"
)

// KeyPrefix is prepended to every artifact key.
const KeyPrefix = "exports/"

var (
	ErrUnsupportedFormat = errors.New("exports: unsupported format")
	ErrQueueFull         = errors.New("exports: queue full")
	ErrStopped           = errors.New("exports: worker stopped")
)

// Artifact describes one stored export file.
type Artifact struct {
	Key         string    `json:"key"`
	Format      Format    `json:"format"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	ETag        string    `json:"etag,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Record tracks an export request and its artifacts.
type Record struct {
	ID          string     `json:"id"`
	Formats     []Format   `json:"formats"`
	Houses      int        `json:"houses"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	Artifacts   []Artifact `json:"artifacts,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (r *Record) copy() Record {
	cp := *r
	cp.Formats = append([]Format(nil), r.Formats...)
	cp.Artifacts = append([]Artifact(nil), r.Artifacts...)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cp.CompletedAt = &t
	}
	return cp
}

// Snapshotter supplies the collection to export. *core.Store satisfies it.
type Snapshotter interface {
	Snapshot() []domain.House
}

// Worker renders and stores exports on a single background goroutine.
type Worker struct {
	source Snapshotter
	store  blob.Store
	logger *zap.Logger
	render render.Options

	queue chan task
	mu    sync.RWMutex
	jobs  map[string]*Record

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type task struct {
	id     string
	houses []domain.House
}

// Option configures a Worker.
type Option func(*Worker)

func WithLogger(l *zap.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithQueueSize bounds how many exports may wait before Enqueue fails.
func WithQueueSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.queue = make(chan task, n)
		}
	}
}

func WithRenderOptions(o render.Options) Option {
	return func(w *Worker) { w.render = o }
}

// NewWorker constructs an export worker. Call Start to begin processing.
func NewWorker(source Snapshotter, store blob.Store, opts ...Option) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		source: source,
		store:  store,
		logger: zap.NewNop(),
		render: render.DefaultOptions(),
		queue:  make(chan task, 32),
		jobs:   make(map[string]*Record),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins processing export requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for the in-flight export.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case t := <-w.queue:
			w.process(t)
		}
	}
}

// Enqueue captures the current collection and schedules it for export in
// the requested formats (JSON and PNG when none are given).
func (w *Worker) Enqueue(ctx context.Context, formats []Format) (Record, error) {
	if err := w.ctx.Err(); err != nil {
		return Record{}, ErrStopped
	}
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	uniq, err := normalizeFormats(formats)
	if err != nil {
		return Record{}, err
	}

	houses := w.source.Snapshot()
	now := time.Now().UTC()
	record := Record{
		ID:        uuid.NewString(),
		Formats:   uniq,
		Houses:    len(houses),
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	w.mu.Lock()
	w.jobs[record.ID] = &record
	queued := record.copy()
	w.mu.Unlock()

	select {
	case w.queue <- task{id: record.ID, houses: houses}:
	default:
		w.mu.Lock()
		delete(w.jobs, record.ID)
		w.mu.Unlock()
		return Record{}, ErrQueueFull
	}
	w.logger.Info("export queued", zap.String("export_id", record.ID), zap.Int("houses", record.Houses))
	return queued, nil
}

// Get returns a snapshot of the export record.
func (w *Worker) Get(id string) (Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return Record{}, false
	}
	return record.copy(), true
}

// List returns every known export, oldest first.
func (w *Worker) List() []Record {
	w.mu.RLock()
	out := make([]Record, 0, len(w.jobs))
	for _, r := range w.jobs {
		out = append(out, r.copy())
	}
	w.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func normalizeFormats(formats []Format) ([]Format, error) {
	if len(formats) == 0 {
		return []Format{FormatJSON, FormatPNG}, nil
	}
	out := make([]Format, 0, len(formats))
	seen := make(map[Format]struct{}, len(formats))
	for _, f := range formats {
		if f != FormatJSON && f != FormatPNG {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out, nil
}

func (w *Worker) process(t task) {
	record, ok := w.Get(t.id)
	if !ok {
		return
	}
	w.setStatus(t.id, StatusRunning, "")

	artifacts := make([]Artifact, 0, len(record.Formats))
	for _, format := range record.Formats {
		payload, contentType, err := w.materialize(format, t.houses, record.CreatedAt)
		if err != nil {
			w.fail(t.id, err)
			return
		}
		key := KeyPrefix + t.id + "." + string(format)
		info, err := w.store.Put(w.ctx, key, bytes.NewReader(payload), blob.PutOptions{
			ContentType: contentType,
			Metadata:    map[string]string{"export_id": t.id, "houses": fmt.Sprint(len(t.houses))},
		})
		if err != nil {
			w.fail(t.id, fmt.Errorf("store %s: %w", key, err))
			return
		}
		artifacts = append(artifacts, Artifact{
			Key:         key,
			Format:      format,
			ContentType: contentType,
			SizeBytes:   info.Size,
			ETag:        info.ETag,
			CreatedAt:   time.Now().UTC(),
		})
	}
	w.complete(t.id, artifacts)
}

type jsonExport struct {
	ExportedAt time.Time      `json:"exported_at"`
	Houses     []domain.House `json:"houses"`
}

func (w *Worker) materialize(format Format, houses []domain.House, at time.Time) ([]byte, string, error) {
	switch format {
	case FormatJSON:
		if houses == nil {
			houses = []domain.House{}
		}
		payload, err := json.Marshal(jsonExport{ExportedAt: at, Houses: houses})
		if err != nil {
			return nil, "", fmt.Errorf("marshal json: %w", err)
		}
		return payload, "application/json", nil
	case FormatPNG:
		var buf bytes.Buffer
		if err := render.EncodePNG(&buf, houses, w.render); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "image/png", nil
	default:
		return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func (w *Worker) setStatus(id string, status Status, message string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if record, ok := w.jobs[id]; ok {
		record.Status = status
		record.Error = message
		record.UpdatedAt = time.Now().UTC()
	}
}

func (w *Worker) complete(id string, artifacts []Artifact) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = StatusSucceeded
		record.Error = ""
		record.Artifacts = artifacts
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.logger.Info("export succeeded", zap.String("export_id", id), zap.Int("artifacts", len(artifacts)))
}

func (w *Worker) fail(id string, err error) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = StatusFailed
		record.Error = err.Error()
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.logger.Error("export failed", zap.String("export_id", id), zap.Error(err))
}
