package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"tickerlab/internal/engine"
)

func localSession(id, label string, updatedAt int64) *Session {
	runs := engine.NewRunSet()
	runs[engine.IDFundamentals].Begin()
	runs[engine.IDFundamentals].Succeed(
		"Margins are expanding.",
		engine.TokenUsage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
		[]engine.Source{{URI: "https://example.com/filing", Title: "Annual filing"}},
	)
	return &Session{
		ID:           id,
		SubjectLabel: label,
		UpdatedAt:    updatedAt,
		Engines:      runs,
		TotalTokens:  30,
		Verdict:      "BUY",
		Summary:      "Margins are expanding.",
	}
}

func TestLocalStoreSaveAndList(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), 20)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	ctx := context.Background()

	if err := store.Save(ctx, localSession("one", "RELIANCE", 100)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save(ctx, localSession("two", "TCS", 200)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	sessions, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if diff := cmp.Diff([]string{"two", "one"}, sessionIDs(sessions)); diff != "" {
		t.Errorf("unexpected order (-want +got):\n%s", diff)
	}

	got := sessions[1]
	if got.SubjectLabel != "RELIANCE" || got.Verdict != "BUY" || got.TotalTokens != 30 {
		t.Errorf("session fields lost in round trip: %+v", got)
	}
	run := got.Engines[engine.IDFundamentals]
	if run == nil || run.Status != engine.StatusSuccess {
		t.Fatalf("expected fundamentals run to survive, got %+v", run)
	}
	if run.ResultText != "Margins are expanding." || run.TokenUsage.TotalTokens != 30 {
		t.Errorf("run payload lost in round trip: %+v", run)
	}
	if len(run.Sources) != 1 || run.Sources[0].URI != "https://example.com/filing" {
		t.Errorf("sources lost in round trip: %+v", run.Sources)
	}
}

func TestLocalStoreUpsertByID(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), 20)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	ctx := context.Background()

	if err := store.Save(ctx, localSession("one", "OLD", 100)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save(ctx, localSession("one", "NEW", 300)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	sessions, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected upsert to keep one entry, got %d", len(sessions))
	}
	if sessions[0].SubjectLabel != "NEW" || sessions[0].UpdatedAt != 300 {
		t.Errorf("upsert did not replace the entry: %+v", sessions[0])
	}
}

func TestLocalStoreCapEvictsOldest(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), 3)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		sess := localSession(fmt.Sprintf("s%d", i), fmt.Sprintf("SUBJECT%d", i), int64(i*100))
		if err := store.Save(ctx, sess); err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
	}

	sessions, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if diff := cmp.Diff([]string{"s5", "s4", "s3"}, sessionIDs(sessions)); diff != "" {
		t.Errorf("expected the three newest to survive (-want +got):\n%s", diff)
	}
}

func TestLocalStoreListMissingFile(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), 20)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	sessions, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("expected missing file to read as empty, got %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("expected empty list, got %d entries", len(sessions))
	}
}

func TestLocalStoreCorruptFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir, 20)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	ctx := context.Background()

	if err := os.WriteFile(filepath.Join(dir, "history.json"), []byte("{not json"), 0644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	if _, err := store.List(ctx); err == nil {
		t.Error("expected List to surface the corrupt file")
	}

	// Save resets the blob instead of wedging on the corrupt content.
	if err := store.Save(ctx, localSession("fresh", "RELIANCE", 100)); err != nil {
		t.Fatalf("Save after corruption: %v", err)
	}
	sessions, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List after reset: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "fresh" {
		t.Errorf("expected a fresh store with one entry, got %v", sessionIDs(sessions))
	}
}

func TestLocalStoreDelete(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), 20)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	ctx := context.Background()

	if err := store.Save(ctx, localSession("one", "RELIANCE", 100)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Delete(ctx, "one"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	sessions, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("expected empty store after delete, got %d", len(sessions))
	}

	err = store.Delete(ctx, "one")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not-found error for missing id, got %v", err)
	}
}

func TestLocalStorePreferences(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), 20)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	ctx := context.Background()

	prefs, err := store.Preferences(ctx)
	if err != nil {
		t.Fatalf("Preferences: %v", err)
	}
	if len(prefs) != 0 {
		t.Errorf("expected empty preferences, got %v", prefs)
	}

	if err := store.SetPreference(ctx, "risk_tolerance", "aggressive"); err != nil {
		t.Fatalf("SetPreference: %v", err)
	}
	if err := store.SetPreference(ctx, "benchmark", "NIFTY50"); err != nil {
		t.Fatalf("SetPreference: %v", err)
	}

	prefs, err = store.Preferences(ctx)
	if err != nil {
		t.Fatalf("Preferences: %v", err)
	}
	want := map[string]string{"risk_tolerance": "aggressive", "benchmark": "NIFTY50"}
	if diff := cmp.Diff(want, prefs); diff != "" {
		t.Errorf("unexpected preferences (-want +got):\n%s", diff)
	}

	// Preferences survive session saves sharing the same file.
	if err := store.Save(ctx, localSession("one", "RELIANCE", 100)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	prefs, err = store.Preferences(ctx)
	if err != nil {
		t.Fatalf("Preferences: %v", err)
	}
	if diff := cmp.Diff(want, prefs); diff != "" {
		t.Errorf("preferences lost on save (-want +got):\n%s", diff)
	}
}
