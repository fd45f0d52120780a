// Package persistence mirrors the house collection into a blob store: it
// hydrates a Store at startup and rewrites the stored sequence after every
// applied mutation.
package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"citybuilder/internal/blob"
	"citybuilder/internal/core"
	"citybuilder/pkg/domain"
)

// DefaultKey is the blob key holding the serialized collection.
const DefaultKey = "houses"

// Bridge reads and writes the collection as one JSON array under a key.
type Bridge struct {
	store   blob.Store
	key     string
	timeout time.Duration
	logger  *zap.Logger

	writeErrors atomic.Int64
	mu          sync.Mutex
	lastErr     error
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithKey overrides the blob key.
func WithKey(key string) BridgeOption {
	return func(b *Bridge) {
		if key != "" {
			b.key = key
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) BridgeOption {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithTimeout bounds each write issued from a change notification.
func WithTimeout(d time.Duration) BridgeOption {
	return func(b *Bridge) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// NewBridge returns a Bridge over store.
func NewBridge(store blob.Store, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		store:   store,
		key:     DefaultKey,
		timeout: 5 * time.Second,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Key returns the blob key in use.
func (b *Bridge) Key() string { return b.key }

// Load reads the stored collection. A missing key or a payload that is not a
// JSON array of houses yields an empty collection; backend failures are
// returned so a transient outage is not mistaken for an empty city.
func (b *Bridge) Load(ctx context.Context) ([]domain.House, error) {
	_, rc, err := b.store.Get(ctx, b.key)
	if errors.Is(err, blob.ErrNotFound) {
		return []domain.House{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", b.key, err)
	}
	defer func() { _ = rc.Close() }()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", b.key, err)
	}
	var houses []domain.House
	if err := json.Unmarshal(raw, &houses); err != nil {
		b.logger.Warn("discarding unreadable collection", zap.String("key", b.key), zap.Error(err))
		return []domain.House{}, nil
	}
	if houses == nil {
		houses = []domain.House{}
	}
	return houses, nil
}

// Hydrate loads the stored collection into store without notifying listeners.
func (b *Bridge) Hydrate(ctx context.Context, store *core.Store) error {
	houses, err := b.Load(ctx)
	if err != nil {
		return err
	}
	store.Replace(houses)
	b.logger.Info("collection hydrated", zap.String("key", b.key), zap.Int("houses", store.Len()))
	return nil
}

// Save writes houses under the key, replacing the previous content.
func (b *Bridge) Save(ctx context.Context, houses []domain.House) error {
	if houses == nil {
		houses = []domain.House{}
	}
	payload, err := json.Marshal(houses)
	if err != nil {
		return fmt.Errorf("encode collection: %w", err)
	}
	if _, err := b.store.Put(ctx, b.key, bytes.NewReader(payload), blob.PutOptions{ContentType: "application/json"}); err != nil {
		return fmt.Errorf("save %s: %w", b.key, err)
	}
	return nil
}

// Attach persists every change published by store until the returned
// function is called. Writes happen before the mutating call returns; a
// failed write is logged and counted but leaves the in-memory state alone.
func (b *Bridge) Attach(store *core.Store) func() {
	return store.Subscribe(func(c core.Change) {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()
		if err := b.Save(ctx, c.Houses); err != nil {
			b.writeErrors.Add(1)
			b.mu.Lock()
			b.lastErr = err
			b.mu.Unlock()
			b.logger.Error("persist collection failed", zap.String("op", string(c.Op)), zap.String("house_id", c.HouseID), zap.Error(err))
			return
		}
		b.logger.Debug("collection persisted", zap.String("op", string(c.Op)), zap.Int("houses", len(c.Houses)))
	})
}

// WriteErrors returns how many change-driven writes failed.
func (b *Bridge) WriteErrors() int64 { return b.writeErrors.Load() }

// LastError returns the most recent change-driven write failure, if any.
func (b *Bridge) LastError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}
