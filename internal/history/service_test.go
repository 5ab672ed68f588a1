package history

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"tickerlab/internal/engine"
)

// --- stubStore ---

type stubStore struct {
	SaveFunc   func(ctx context.Context, sess *Session) error
	ListFunc   func(ctx context.Context) ([]*Session, error)
	DeleteFunc func(ctx context.Context, id string) error

	Saved []*Session
}

func (s *stubStore) Save(ctx context.Context, sess *Session) error {
	if s.SaveFunc != nil {
		return s.SaveFunc(ctx, sess)
	}
	s.Saved = append(s.Saved, sess)
	return nil
}

func (s *stubStore) List(ctx context.Context) ([]*Session, error) {
	if s.ListFunc != nil {
		return s.ListFunc(ctx)
	}
	return nil, nil
}

func (s *stubStore) Delete(ctx context.Context, id string) error {
	if s.DeleteFunc != nil {
		return s.DeleteFunc(ctx, id)
	}
	return nil
}

func (s *stubStore) SetPreference(ctx context.Context, key, value string) error { return nil }

func (s *stubStore) Preferences(ctx context.Context) (map[string]string, error) {
	return map[string]string{}, nil
}

func (s *stubStore) Close(ctx context.Context) error { return nil }

func successfulRuns() map[string]*engine.Run {
	runs := engine.NewRunSet()
	runs[engine.IDFundamentals].Begin()
	runs[engine.IDFundamentals].Succeed("Revenue grew 12% year over year.", engine.TokenUsage{PromptTokens: 100, CompletionTokens: 200, TotalTokens: 300}, nil)
	runs[engine.IDTechnicals].Begin()
	runs[engine.IDTechnicals].Succeed("Price sits above the 200-day moving average.", engine.TokenUsage{PromptTokens: 50, CompletionTokens: 150, TotalTokens: 200}, nil)
	runs[engine.IDSynthesizer].Begin()
	runs[engine.IDSynthesizer].Succeed(
		"# Investment Report\n\nFINAL VERDICT: BUY\n\nTHESIS: Durable cash flows and a cheap multiple support a long position.\n\nBody text.",
		engine.TokenUsage{PromptTokens: 400, CompletionTokens: 100, TotalTokens: 500},
		nil,
	)
	return runs
}

func seededService(t *testing.T, store *stubStore, seed []*Session) *Service {
	t.Helper()
	store.ListFunc = func(ctx context.Context) ([]*Session, error) {
		return seed, nil
	}
	svc := NewService(store, false)
	svc.Refresh(context.Background())
	store.ListFunc = nil
	return svc
}

func sessionIDs(sessions []*Session) []string {
	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}
	return ids
}

func TestServiceSaveComputesMetadata(t *testing.T) {
	store := &stubStore{}
	svc := NewService(store, false)

	sess := svc.Save(context.Background(), "RELIANCE", successfulRuns(), "")
	if sess == nil {
		t.Fatal("expected save to succeed")
	}
	if sess.ID == "" {
		t.Error("expected a generated session id")
	}
	if sess.UpdatedAt <= 0 {
		t.Errorf("expected a positive epoch-millis timestamp, got %d", sess.UpdatedAt)
	}
	if sess.TotalTokens != 1000 {
		t.Errorf("expected total tokens 1000, got %d", sess.TotalTokens)
	}
	if sess.Verdict != "BUY" {
		t.Errorf("expected verdict BUY, got %q", sess.Verdict)
	}
	if sess.Summary != "Durable cash flows and a cheap multiple support a long position." {
		t.Errorf("unexpected summary %q", sess.Summary)
	}
	if len(store.Saved) != 1 {
		t.Fatalf("expected one store save, got %d", len(store.Saved))
	}
	if store.Saved[0].ID != sess.ID {
		t.Error("store received a different session id")
	}
}

func TestServiceSaveWithoutSynthesisUsesDefaults(t *testing.T) {
	store := &stubStore{}
	svc := NewService(store, false)

	runs := engine.NewRunSet()
	runs[engine.IDComprehensive].Begin()
	runs[engine.IDComprehensive].Succeed("Standalone analysis text.", engine.TokenUsage{TotalTokens: 10}, nil)

	sess := svc.Save(context.Background(), "TCS", runs, "")
	if sess == nil {
		t.Fatal("expected save to succeed")
	}
	if sess.Verdict != "ANALYZED" {
		t.Errorf("expected default verdict, got %q", sess.Verdict)
	}
	if sess.Summary != "" {
		t.Errorf("expected empty summary, got %q", sess.Summary)
	}
}

func TestServiceSavePreservesExistingID(t *testing.T) {
	store := &stubStore{}
	svc := NewService(store, false)

	sess := svc.Save(context.Background(), "INFY", successfulRuns(), "session-42")
	if sess == nil {
		t.Fatal("expected save to succeed")
	}
	if sess.ID != "session-42" {
		t.Errorf("expected existing id to be preserved, got %q", sess.ID)
	}
}

func TestServiceSaveGeneratesUniqueIDs(t *testing.T) {
	store := &stubStore{}
	svc := NewService(store, false)

	first := svc.Save(context.Background(), "HDFCBANK", successfulRuns(), "")
	second := svc.Save(context.Background(), "ICICIBANK", successfulRuns(), "")
	if first == nil || second == nil {
		t.Fatal("expected both saves to succeed")
	}
	if first.ID == second.ID {
		t.Error("expected distinct generated ids")
	}
}

func TestServiceSaveClonesRuns(t *testing.T) {
	store := &stubStore{}
	svc := NewService(store, false)

	runs := successfulRuns()
	sess := svc.Save(context.Background(), "WIPRO", runs, "")
	if sess == nil {
		t.Fatal("expected save to succeed")
	}

	runs[engine.IDSynthesizer].Fail("mutated after save")
	if sess.Engines[engine.IDSynthesizer].Status != engine.StatusSuccess {
		t.Error("saved session shares run state with caller")
	}
}

func TestServiceSaveDeduplicatesBySubject(t *testing.T) {
	store := &stubStore{}
	seed := []*Session{
		{ID: "old-1", SubjectLabel: "RELIANCE", UpdatedAt: 300, Engines: engine.NewRunSet()},
		{ID: "old-2", SubjectLabel: "TCS", UpdatedAt: 200, Engines: engine.NewRunSet()},
	}
	svc := seededService(t, store, seed)

	sess := svc.Save(context.Background(), "RELIANCE", successfulRuns(), "")
	if sess == nil {
		t.Fatal("expected save to succeed")
	}

	sessions := svc.Sessions()
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions after dedup, got %d", len(sessions))
	}
	if sessions[0].ID != sess.ID {
		t.Errorf("expected new session first, got %q", sessions[0].ID)
	}
	for _, s := range sessions {
		if s.ID == "old-1" {
			t.Error("stale session with the same subject survived")
		}
	}
}

func TestServiceSaveDeduplicatesByID(t *testing.T) {
	store := &stubStore{}
	seed := []*Session{
		{ID: "keep", SubjectLabel: "SBIN", UpdatedAt: 300, Engines: engine.NewRunSet()},
		{ID: "target", SubjectLabel: "OLD LABEL", UpdatedAt: 200, Engines: engine.NewRunSet()},
	}
	svc := seededService(t, store, seed)

	sess := svc.Save(context.Background(), "NEW LABEL", successfulRuns(), "target")
	if sess == nil {
		t.Fatal("expected save to succeed")
	}

	sessions := svc.Sessions()
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != "target" || sessions[0].SubjectLabel != "NEW LABEL" {
		t.Errorf("expected refreshed session first, got id=%q label=%q", sessions[0].ID, sessions[0].SubjectLabel)
	}
}

func TestServiceSaveStoreFailureLeavesMemoryUntouched(t *testing.T) {
	store := &stubStore{
		SaveFunc: func(ctx context.Context, sess *Session) error {
			return errors.New("backend down")
		},
	}
	seed := []*Session{
		{ID: "a", SubjectLabel: "AAA", UpdatedAt: 300, Engines: engine.NewRunSet()},
	}
	svc := seededService(t, store, seed)

	sess := svc.Save(context.Background(), "BBB", successfulRuns(), "")
	if sess != nil {
		t.Fatal("expected nil session on store failure")
	}

	sessions := svc.Sessions()
	if len(sessions) != 1 || sessions[0].ID != "a" {
		t.Errorf("in-memory history changed on failed save: %v", sessionIDs(sessions))
	}
}

func TestServiceDeleteRemovesSession(t *testing.T) {
	store := &stubStore{}
	seed := []*Session{
		{ID: "a", SubjectLabel: "AAA", UpdatedAt: 300, Engines: engine.NewRunSet()},
		{ID: "b", SubjectLabel: "BBB", UpdatedAt: 200, Engines: engine.NewRunSet()},
	}
	svc := seededService(t, store, seed)

	if !svc.Delete(context.Background(), "a") {
		t.Fatal("expected delete to succeed")
	}
	sessions := svc.Sessions()
	if diff := cmp.Diff([]string{"b"}, sessionIDs(sessions)); diff != "" {
		t.Errorf("unexpected sessions after delete (-want +got):\n%s", diff)
	}
}

func TestServiceDeleteFailureRestoresOrder(t *testing.T) {
	for _, target := range []string{"a", "b", "c"} {
		t.Run(target, func(t *testing.T) {
			store := &stubStore{
				DeleteFunc: func(ctx context.Context, id string) error {
					return errors.New("backend down")
				},
			}
			seed := []*Session{
				{ID: "a", SubjectLabel: "AAA", UpdatedAt: 300, Engines: engine.NewRunSet()},
				{ID: "b", SubjectLabel: "BBB", UpdatedAt: 200, Engines: engine.NewRunSet()},
				{ID: "c", SubjectLabel: "CCC", UpdatedAt: 100, Engines: engine.NewRunSet()},
			}
			svc := seededService(t, store, seed)

			if svc.Delete(context.Background(), target) {
				t.Fatal("expected delete to fail")
			}
			got := sessionIDs(svc.Sessions())
			if diff := cmp.Diff([]string{"a", "b", "c"}, got); diff != "" {
				t.Errorf("order not restored after failed delete (-want +got):\n%s", diff)
			}
		})
	}
}

func TestServiceDeleteUnknownID(t *testing.T) {
	store := &stubStore{
		DeleteFunc: func(ctx context.Context, id string) error {
			return errors.New("session " + id + " not found")
		},
	}
	svc := seededService(t, store, []*Session{
		{ID: "a", SubjectLabel: "AAA", UpdatedAt: 300, Engines: engine.NewRunSet()},
	})

	if svc.Delete(context.Background(), "missing") {
		t.Error("expected delete of unknown id to report failure")
	}
	if len(svc.Sessions()) != 1 {
		t.Error("unknown-id delete modified history")
	}
}

func TestServiceRefreshSortsNewestFirst(t *testing.T) {
	store := &stubStore{
		ListFunc: func(ctx context.Context) ([]*Session, error) {
			return []*Session{
				{ID: "mid", UpdatedAt: 200, Engines: engine.NewRunSet()},
				{ID: "new", UpdatedAt: 300, Engines: engine.NewRunSet()},
				{ID: "old", UpdatedAt: 100, Engines: engine.NewRunSet()},
			}, nil
		},
	}
	svc := NewService(store, false)

	sessions := svc.Refresh(context.Background())
	if diff := cmp.Diff([]string{"new", "mid", "old"}, sessionIDs(sessions)); diff != "" {
		t.Errorf("unexpected order (-want +got):\n%s", diff)
	}
}

func TestServiceRefreshFailureYieldsEmptyHistory(t *testing.T) {
	store := &stubStore{
		ListFunc: func(ctx context.Context) ([]*Session, error) {
			return nil, errors.New("backend down")
		},
	}
	svc := NewService(store, true)

	sessions := svc.Refresh(context.Background())
	if len(sessions) != 0 {
		t.Errorf("expected empty history on list failure, got %d", len(sessions))
	}
	if len(svc.Sessions()) != 0 {
		t.Error("expected cached history to be empty on list failure")
	}
}

func TestServiceByID(t *testing.T) {
	store := &stubStore{}
	svc := seededService(t, store, []*Session{
		{ID: "a", SubjectLabel: "AAA", UpdatedAt: 300, Engines: engine.NewRunSet()},
	})

	if got, ok := svc.ByID("a"); !ok || got.SubjectLabel != "AAA" {
		t.Error("expected lookup by id to return the session")
	}
	if _, ok := svc.ByID("zzz"); ok {
		t.Error("expected lookup miss for unknown id")
	}
}
