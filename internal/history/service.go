package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"tickerlab/internal/engine"
	"tickerlab/internal/logging"
	"tickerlab/internal/report"
)

// Service owns the in-memory history list and reconciles it with a Store.
// Persistence is fire-and-continue: callers keep their in-memory state on
// store failure (Save returns nil, Delete rolls the optimistic removal
// back) and the list is only rewritten from a successful store read.
type Service struct {
	store   Store
	durable bool

	mu       sync.RWMutex
	sessions []*Session
}

// NewService creates a history service over the given backend. durable
// marks a per-user remote scope (required by the update workflow).
func NewService(store Store, durable bool) *Service {
	return &Service{store: store, durable: durable}
}

// Durable reports whether sessions persist under a durable user identity.
func (s *Service) Durable() bool { return s.durable }

// Refresh replaces the in-memory list from the store. On I/O failure the
// list degrades to empty rather than surfacing an error.
func (s *Service) Refresh(ctx context.Context) []*Session {
	sessions, err := s.store.List(ctx)
	if err != nil {
		logging.SessionDebug("[History] refresh failed, degrading to empty list: %v", err)
		sessions = nil
	}
	sortNewestFirst(sessions)

	s.mu.Lock()
	s.sessions = sessions
	s.mu.Unlock()
	return s.Sessions()
}

// Sessions returns a snapshot of the in-memory list, newest first.
func (s *Service) Sessions() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Session, len(s.sessions))
	copy(out, s.sessions)
	return out
}

// ByID finds a session in the in-memory list.
func (s *Service) ByID(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		if sess.ID == id {
			return sess, true
		}
	}
	return nil, false
}

// Save builds the session record (identity, totals, derived metadata),
// writes it through the store, and on success reconciles the in-memory
// list. Returns nil on persistence failure, never an error.
func (s *Service) Save(ctx context.Context, subjectLabel string, runs map[string]*engine.Run, existingID string) *Session {
	id := existingID
	if id == "" {
		id = uuid.NewString()
	}

	sess := &Session{
		ID:           id,
		SubjectLabel: subjectLabel,
		UpdatedAt:    time.Now().UnixMilli(),
		Engines:      engine.CloneRunSet(runs),
		TotalTokens:  engine.TotalTokens(runs),
	}
	md := report.Extract(sess.SynthesizedReport())
	sess.Verdict = md.Verdict
	sess.Summary = md.Summary

	if err := s.store.Save(ctx, sess); err != nil {
		logging.Get(logging.CategorySession).Error("[History] save failed id=%s subject=%q: %v", sess.ID, subjectLabel, err)
		return nil
	}

	s.reconcile(sess)
	logging.Session("[History] saved id=%s subject=%q verdict=%s tokens=%d", sess.ID, subjectLabel, sess.Verdict, sess.TotalTokens)
	return sess
}

// reconcile merges a freshly saved session into the in-memory list:
// any entry matching the new id or subject label is dropped, then the new
// entry is prepended.
func (s *Service) reconcile(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := make([]*Session, 0, len(s.sessions)+1)
	merged = append(merged, sess)
	for _, existing := range s.sessions {
		if existing.ID == sess.ID || existing.SubjectLabel == sess.SubjectLabel {
			continue
		}
		merged = append(merged, existing)
	}
	s.sessions = merged
}

// Delete removes the session optimistically from the in-memory list, then
// issues the backend delete. On failure the entry is reinserted at its
// original position and false is returned.
func (s *Service) Delete(ctx context.Context, id string) bool {
	s.mu.Lock()
	idx := -1
	var removed *Session
	for i, sess := range s.sessions {
		if sess.ID == id {
			idx, removed = i, sess
			break
		}
	}
	if idx >= 0 {
		s.sessions = append(s.sessions[:idx], s.sessions[idx+1:]...)
	}
	s.mu.Unlock()

	if err := s.store.Delete(ctx, id); err != nil {
		logging.Get(logging.CategorySession).Error("[History] delete failed id=%s, rolling back: %v", id, err)
		if removed != nil {
			s.mu.Lock()
			if idx > len(s.sessions) {
				idx = len(s.sessions)
			}
			s.sessions = append(s.sessions, nil)
			copy(s.sessions[idx+1:], s.sessions[idx:])
			s.sessions[idx] = removed
			s.mu.Unlock()
		}
		return false
	}

	logging.Session("[History] deleted id=%s", id)
	return true
}

// SetPreference stores one user preference through the backend.
func (s *Service) SetPreference(ctx context.Context, key, value string) error {
	return s.store.SetPreference(ctx, key, value)
}

// Preferences returns the stored preference map, empty on failure.
func (s *Service) Preferences(ctx context.Context) map[string]string {
	prefs, err := s.store.Preferences(ctx)
	if err != nil {
		logging.SessionDebug("[History] preferences read failed: %v", err)
		return map[string]string{}
	}
	return prefs
}

// Close releases the backend.
func (s *Service) Close(ctx context.Context) error {
	return s.store.Close(ctx)
}
