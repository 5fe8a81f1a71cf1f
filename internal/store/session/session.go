// Package session provides the request-scoped unit-of-work wrapper around
// a store.Backend: one Backend per request, committed on success and
// rolled back on error, regardless of which of the two backends is
// configured. Grounded on original_source/src/db/session.py's
// SessionManager (request_context() -> Manager.Run), translated from a
// Python contextmanager to an explicit Go closure since Go has no
// with-statement equivalent.
package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mideind/explo/internal/store"
)

// Opener begins a fresh per-request store.Backend, e.g.
// sqlstore.NewSession or docstore.NewSession.
type Opener func(ctx context.Context) (store.Backend, error)

// Manager owns the backend opener shared across requests and wraps each
// request's database work in a commit-on-success/rollback-on-error scope.
type Manager struct {
	open Opener
}

// New returns a Manager that begins a new per-request Backend via open.
func New(open Opener) *Manager {
	return &Manager{open: open}
}

// Run begins a request-scoped Backend, invokes fn with it, and commits or
// rolls back depending on whether fn returns an error. The Backend is
// always closed before Run returns (spec §4.1 "per-request lifecycle").
func (m *Manager) Run(ctx context.Context, fn func(ctx context.Context, b store.Backend) error) (err error) {
	b, err := m.open(ctx)
	if err != nil {
		return fmt.Errorf("session: opening backend: %w", err)
	}
	defer func() {
		if closeErr := b.Close(); closeErr != nil {
			slog.Warn("session: error closing backend", "err", closeErr)
		}
	}()

	if err = fn(ctx, b); err != nil {
		if rbErr := b.Rollback(ctx); rbErr != nil {
			slog.Warn("session: error during rollback", "err", rbErr)
		}
		return err
	}

	if err = b.Commit(ctx); err != nil {
		slog.Error("session: error during commit", "err", err)
		if rbErr := b.Rollback(ctx); rbErr != nil {
			slog.Warn("session: error during post-commit rollback", "err", rbErr)
		}
		return fmt.Errorf("session: committing: %w", err)
	}
	return nil
}
