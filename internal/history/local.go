package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"tickerlab/internal/logging"
)

// LocalStore keeps the anonymous single-device history in one JSON file:
// an ordered session list plus the preference map. The list is capped; the
// oldest entries beyond the cap are evicted on save.
type LocalStore struct {
	mu       sync.Mutex
	filePath string
	cap      int
}

type localFile struct {
	Sessions    []sessionDoc      `json:"sessions"`
	Preferences map[string]string `json:"preferences"`
}

// NewLocalStore creates a local store writing to dir/history.json.
// cap <= 0 selects the default of 20 entries.
func NewLocalStore(dir string, cap int) (*LocalStore, error) {
	if cap <= 0 {
		cap = 20
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	return &LocalStore{
		filePath: filepath.Join(dir, "history.json"),
		cap:      cap,
	}, nil
}

// load reads the blob. A missing file is an empty store; a corrupt file is
// reset rather than wedging every future save.
func (ls *LocalStore) load() localFile {
	var lf localFile
	data, err := os.ReadFile(ls.filePath)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.StoreError("[Local] read %s failed: %v", ls.filePath, err)
		}
		return lf
	}
	if err := json.Unmarshal(data, &lf); err != nil {
		logging.StoreError("[Local] corrupt history file %s, starting fresh: %v", ls.filePath, err)
		return localFile{}
	}
	return lf
}

func (ls *LocalStore) write(lf localFile) error {
	data, err := json.MarshalIndent(lf, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	if err := os.WriteFile(ls.filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	return nil
}

// Save upserts by id, keeps the list newest-first, and evicts beyond the cap.
func (ls *LocalStore) Save(_ context.Context, sess *Session) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	logging.StoreDebug("[Local] save id=%s subject=%q", sess.ID, sess.SubjectLabel)
	lf := ls.load()

	doc := docFromSession(sess)
	replaced := false
	for i, existing := range lf.Sessions {
		if existing.SessionID == doc.SessionID {
			lf.Sessions[i] = doc
			replaced = true
			break
		}
	}
	if !replaced {
		lf.Sessions = append([]sessionDoc{doc}, lf.Sessions...)
	}

	sortDocsNewestFirst(lf.Sessions)
	if len(lf.Sessions) > ls.cap {
		evicted := len(lf.Sessions) - ls.cap
		lf.Sessions = lf.Sessions[:ls.cap]
		logging.StoreDebug("[Local] evicted %d oldest entries (cap %d)", evicted, ls.cap)
	}

	if err := ls.write(lf); err != nil {
		logging.StoreError("[Local] save failed: %v", err)
		return err
	}
	return nil
}

// List returns all stored sessions newest-first.
func (ls *LocalStore) List(_ context.Context) ([]*Session, error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	data, err := os.ReadFile(ls.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	var lf localFile
	if err := json.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("corrupt history file: %w", err)
	}

	sortDocsNewestFirst(lf.Sessions)
	sessions := make([]*Session, 0, len(lf.Sessions))
	for _, doc := range lf.Sessions {
		sessions = append(sessions, doc.toSession())
	}
	return sessions, nil
}

// Delete removes one session by id.
func (ls *LocalStore) Delete(_ context.Context, id string) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	lf := ls.load()
	for i, doc := range lf.Sessions {
		if doc.SessionID == id {
			lf.Sessions = append(lf.Sessions[:i], lf.Sessions[i+1:]...)
			if err := ls.write(lf); err != nil {
				logging.StoreError("[Local] delete write failed: %v", err)
				return err
			}
			logging.StoreDebug("[Local] deleted id=%s", id)
			return nil
		}
	}
	return fmt.Errorf("session %s not found", id)
}

// SetPreference upserts one preference key.
func (ls *LocalStore) SetPreference(_ context.Context, key, value string) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	lf := ls.load()
	if lf.Preferences == nil {
		lf.Preferences = make(map[string]string)
	}
	lf.Preferences[key] = value
	return ls.write(lf)
}

// Preferences returns the stored preference map.
func (ls *LocalStore) Preferences(_ context.Context) (map[string]string, error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	lf := ls.load()
	if lf.Preferences == nil {
		return map[string]string{}, nil
	}
	return lf.Preferences, nil
}

// Close is a no-op for the file-backed store.
func (ls *LocalStore) Close(context.Context) error { return nil }

func sortDocsNewestFirst(docs []sessionDoc) {
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].UpdatedAt > docs[j].UpdatedAt
	})
}
