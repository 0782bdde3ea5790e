package scheduler

import (
	"context"
	"time"

	"github.com/promptd/promptd/internal/logger"
	"github.com/promptd/promptd/internal/prompts"
)

const (
	// DefaultSweepInterval is how often the default mappings are reconciled
	DefaultSweepInterval = time.Hour
)

// DefaultSweeper periodically reconciles per-namespace default mappings
// against stored prompt flags. SetDefault is not atomic across keys, so a
// crash mid-promotion can leave a stale mapping or two prompts flagged as
// default; the sweep repairs both.
type DefaultSweeper struct {
	resolver *prompts.Resolver
	logger   logger.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewDefaultSweeper creates a new default sweeper
func NewDefaultSweeper(
	resolver *prompts.Resolver,
	log logger.Logger,
	interval time.Duration,
) *DefaultSweeper {
	if interval == 0 {
		interval = DefaultSweepInterval
	}

	return &DefaultSweeper{
		resolver: resolver,
		logger:   log,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic sweep process
func (ds *DefaultSweeper) Start(ctx context.Context) error {
	// Run immediately on start
	if err := ds.Sweep(ctx); err != nil {
		ds.logger.Warn("initial default sweep failed",
			logger.Error(err))
	}

	// Start periodic sweep
	ticker := time.NewTicker(ds.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := ds.Sweep(ctx); err != nil {
					ds.logger.Error("default sweep failed",
						logger.Error(err))
				}
			case <-ds.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the sweeper
func (ds *DefaultSweeper) Stop() {
	close(ds.stopCh)
}

// Sweep reconciles every namespace and logs what changed
func (ds *DefaultSweeper) Sweep(ctx context.Context) error {
	ds.logger.Debug("running default mapping sweep")

	results, err := ds.resolver.SyncAll(ctx)
	if err != nil {
		return err
	}

	repaired := 0
	for _, res := range results {
		if len(res.Demoted) == 0 {
			continue
		}
		repaired++
		ds.logger.Info("repaired namespace defaults",
			logger.String("namespace", res.Namespace),
			logger.String("default_id", res.ID),
			logger.Int("demoted", len(res.Demoted)))
	}

	if repaired == 0 {
		ds.logger.Debug("default mappings consistent",
			logger.Int("namespaces", len(results)))
	}

	return nil
}
