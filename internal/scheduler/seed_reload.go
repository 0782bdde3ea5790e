package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/promptd/promptd/internal/domain"
	"github.com/promptd/promptd/internal/logger"
	"github.com/promptd/promptd/internal/prompts"
	"github.com/promptd/promptd/internal/sources/seedfile"
)

// SeedReloader handles periodic reloading of the prompt seed file
type SeedReloader struct {
	loader        *seedfile.Loader
	repo          *prompts.Repository
	logger        logger.Logger
	interval      time.Duration
	stopCh        chan struct{}
	manualTrigger chan struct{}
}

// NewSeedReloader creates a new seed reloader
func NewSeedReloader(
	seedFile string,
	repo *prompts.Repository,
	log logger.Logger,
	interval time.Duration,
	manualTrigger chan struct{},
) *SeedReloader {
	return &SeedReloader{
		loader:        seedfile.NewLoader(seedFile),
		repo:          repo,
		logger:        log,
		interval:      interval,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// Start begins the periodic reload process
func (sr *SeedReloader) Start(ctx context.Context) error {
	// Load immediately on start
	if err := sr.Reload(ctx); err != nil {
		return fmt.Errorf("initial seed load failed: %w", err)
	}

	// Start periodic reload
	ticker := time.NewTicker(sr.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := sr.Reload(ctx); err != nil {
					sr.logger.Error("failed to reload seed prompts",
						logger.Error(err))
				}
			case <-sr.manualTrigger:
				sr.logger.Info("manual seed reload triggered")
				if err := sr.Reload(ctx); err != nil {
					sr.logger.Error("failed to reload seed prompts",
						logger.Error(err))
				}
			case <-sr.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the reloader
func (sr *SeedReloader) Stop() {
	close(sr.stopCh)
}

// Reload reads the seed file and creates any prompt not yet present.
// Existing versions are never overwritten: a seed entry whose natural key
// already exists is skipped, so operator edits survive restarts.
func (sr *SeedReloader) Reload(ctx context.Context) error {
	sr.logger.Info("loading prompts from seed file")

	inputs, err := sr.loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load seed prompts: %w", err)
	}

	created := 0
	skipped := 0
	for _, in := range inputs {
		if _, err := sr.repo.Create(ctx, in); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				skipped++
				continue
			}
			sr.logger.Warn("failed to seed prompt",
				logger.String("namespace", in.Namespace),
				logger.String("name", in.Name),
				logger.Int("version", in.Version),
				logger.Error(err))
			continue
		}
		created++
	}

	sr.logger.Info("seed reload completed",
		logger.Int("created", created),
		logger.Int("already_present", skipped),
		logger.Int("total", len(inputs)))

	return nil
}
