package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"citybuilder/internal/blob"
	"citybuilder/internal/config"
	"citybuilder/internal/core"
	"citybuilder/internal/persistence"
	"citybuilder/pkg/domain"
)

// runtime is a hydrated Store persisting into the configured blob backend.
type runtime struct {
	blobs  blob.Store
	closer io.Closer
	store  *core.Store
	bridge *persistence.Bridge
	detach func()
	logger *zap.Logger

	resumed bool
}

func openRuntime(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...core.StoreOption) (*runtime, error) {
	blobs, closer, err := blob.Open(ctx, cfg.BlobOpenConfig())
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	storeOpts := append([]core.StoreOption{
		core.WithLogger(logger.Named("store")),
		core.WithTimings(cfg.StoreTimings()),
	}, opts...)
	store := core.NewStore(storeOpts...)
	bridge := persistence.NewBridge(blobs,
		persistence.WithKey(cfg.StateKey),
		persistence.WithLogger(logger.Named("persistence")),
	)
	if err := bridge.Hydrate(ctx, store); err != nil {
		store.Close()
		_ = closer.Close()
		return nil, err
	}
	rt := &runtime{blobs: blobs, closer: closer, store: store, bridge: bridge, logger: logger}
	rt.detach = bridge.Attach(store)
	if cfg.Timings.ResumeTransitions {
		rt.resume()
	}
	logger.Debug("runtime ready",
		zap.String("driver", cfg.Blob.Driver),
		zap.String("key", bridge.Key()),
		zap.Int("houses", store.Len()),
	)
	return rt, nil
}

// resume restarts pending settle and purge timers for hydrated houses.
func (rt *runtime) resume() {
	if rt.resumed {
		return
	}
	rt.store.ResumeTransitions()
	rt.resumed = true
}

// settle blocks until no house is mid-transition, so a short-lived command
// persists the final state, or until timeout.
func (rt *runtime) settle(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if !inTransition(rt.store.Snapshot()) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for transitions: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func inTransition(houses []domain.House) bool {
	for _, h := range houses {
		if h.Status == domain.StatusAdded || h.Status == domain.StatusRemoved {
			return true
		}
	}
	return false
}

func (rt *runtime) Close() error {
	rt.detach()
	rt.store.Close()
	if err := rt.bridge.LastError(); err != nil {
		rt.logger.Warn("collection writes failed", zap.Int64("failures", rt.bridge.WriteErrors()), zap.Error(err))
	}
	return rt.closer.Close()
}
