package cache

import (
	"context"
	"io"
	"log/slog"

	"certexport/internal/export/models"
	"certexport/pkg/platform/circuit"
)

// Backend is a document cache implementation that can fail.
type Backend interface {
	Get(ctx context.Context, key string) (*models.Document, bool, error)
	Set(ctx context.Context, key string, doc *models.Document) error
}

// Guarded wraps a backend with a circuit breaker. While the circuit is open,
// lookups are misses and writes are dropped, so an unavailable cache only
// costs a render.
type Guarded struct {
	backend Backend
	breaker *circuit.Breaker
	logger  *slog.Logger
}

// NewGuarded creates a Guarded cache. A nil logger discards output.
func NewGuarded(backend Backend, breaker *circuit.Breaker, logger *slog.Logger) *Guarded {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Guarded{backend: backend, breaker: breaker, logger: logger}
}

func (g *Guarded) Get(ctx context.Context, key string) (*models.Document, bool, error) {
	if !g.breaker.Allow() {
		return nil, false, nil
	}
	doc, ok, err := g.backend.Get(ctx, key)
	g.record(ctx, err)
	return doc, ok, err
}

func (g *Guarded) Set(ctx context.Context, key string, doc *models.Document) error {
	if !g.breaker.Allow() {
		return nil
	}
	err := g.backend.Set(ctx, key, doc)
	g.record(ctx, err)
	return err
}

func (g *Guarded) record(ctx context.Context, err error) {
	if err == nil {
		if _, change := g.breaker.RecordSuccess(); change.Closed {
			g.logger.InfoContext(ctx, "document cache circuit closed", "breaker", g.breaker.Name())
		}
		return
	}
	if _, change := g.breaker.RecordFailure(); change.Opened {
		g.logger.WarnContext(ctx, "document cache circuit opened",
			"breaker", g.breaker.Name(),
			"error", err,
		)
	}
}
