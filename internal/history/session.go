// Package history persists completed analysis sessions and maintains the
// in-memory history list the UI reads. Two backends implement the same
// store contract: a durable per-user MongoDB store and a local single-file
// store. The Service layers the reconciliation protocol on top: dedup on
// save, optimistic delete with rollback, newest-first ordering.
package history

import (
	"context"

	"tickerlab/internal/engine"
)

// Session is one persisted analysis run. ID is assigned on first save and
// preserved across re-saves; UpdatedAt is epoch milliseconds.
type Session struct {
	ID           string
	SubjectLabel string
	UpdatedAt    int64
	Engines      map[string]*engine.Run
	TotalTokens  int
	Verdict      string
	Summary      string
}

// SynthesizedReport returns the final report text, or "" when the session
// has no successful synthesis.
func (s *Session) SynthesizedReport() string {
	if r, ok := s.Engines[engine.IDSynthesizer]; ok && r.Status == engine.StatusSuccess {
		return r.ResultText
	}
	return ""
}

// Store is the persistence boundary. Implementations must be safe for use
// from a single Service; they do not implement the reconciliation protocol.
type Store interface {
	// Save upserts the session by id.
	Save(ctx context.Context, sess *Session) error
	// List returns all sessions, newest first by UpdatedAt.
	List(ctx context.Context) ([]*Session, error)
	// Delete removes the session by id; deleting an unknown id is an error.
	Delete(ctx context.Context, id string) error
	// SetPreference upserts one key in the owner's preference map.
	SetPreference(ctx context.Context, key, value string) error
	// Preferences returns the owner's preference map (empty when unset).
	Preferences(ctx context.Context) (map[string]string, error)
	// Close releases backend resources.
	Close(ctx context.Context) error
}
