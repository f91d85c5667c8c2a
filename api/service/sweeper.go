package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"transcriber/api/repository"
	"transcriber/api/storage"
)

// Sweeper collects uploaded objects that no job references. A finalize
// failure after a successful transfer leaves such an orphan behind; the
// sweep closes that gap instead of letting objects accumulate forever.
type Sweeper struct {
	repo   repository.Registry
	store  storage.ObjectStore
	prefix string
	grace  time.Duration
	logger *zap.Logger
}

func NewSweeper(repo repository.Registry, store storage.ObjectStore, prefix string, grace time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		repo:   repo,
		store:  store,
		prefix: prefix,
		grace:  grace,
		logger: logger,
	}
}

// SweepOnce deletes unreferenced objects older than the grace period.
// The grace period keeps in-flight uploads (object present, job row not
// yet finalized) out of the blast radius.
func (s *Sweeper) SweepOnce(ctx context.Context) (removed int, err error) {
	referenced, err := s.repo.ListStoragePaths(ctx)
	if err != nil {
		return 0, err
	}

	known := make(map[string]bool, len(referenced))
	for _, p := range referenced {
		known[p] = true
	}

	objects, err := s.store.List(ctx, s.prefix)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-s.grace)
	for _, obj := range objects {
		if known[obj.Key] {
			continue
		}
		if obj.LastModified.After(cutoff) {
			continue
		}

		if err := s.store.Delete(ctx, obj.Key); err != nil {
			s.logger.Warn("orphan delete failed",
				zap.String("key", obj.Key),
				zap.Error(err),
			)
			continue
		}
		removed++
		s.logger.Info("removed orphaned upload",
			zap.String("key", obj.Key),
			zap.Time("last_modified", obj.LastModified),
		)
	}

	return removed, nil
}

// Run executes the sweep on a fixed interval until the context ends.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("orphan sweep failed", zap.Error(err))
			}
		}
	}
}
