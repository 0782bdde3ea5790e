package deps

import (
	"context"
	"time"

	"github.com/promptd/promptd/internal/logger"
	"github.com/promptd/promptd/internal/prompts"
)

// Deps carries the shared dependencies passed to route registrars.
type Deps struct {
	Logger    logger.Logger
	StartTime time.Time
	Version   string
	Commit    string
	BuildDate string
	GoVersion string

	Repo     *prompts.Repository
	Resolver *prompts.Resolver

	// Tokens maps bearer tokens to a permission ("read" or "write").
	// Write implies read.
	Tokens map[string]string

	// CORSOrigins lists the origins the CORS middleware allows.
	// "*" allows any origin; empty disables cross-origin access.
	CORSOrigins []string

	// TrustProxy enables client-IP resolution from proxy headers.
	TrustProxy bool

	// StorePing reports whether the backing store answers. Used by /readyz.
	StorePing func(ctx context.Context) error

	// SeedReloadTrigger requests an immediate seed-file reload.
	// Nil when no seed file is configured.
	SeedReloadTrigger chan struct{}
}
