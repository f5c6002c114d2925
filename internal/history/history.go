package history

import (
	"context"
	"errors"
	"sync"
	"time"

	"holders-backend/internal/models"
	"holders-backend/internal/utils"
)

// MaxEntries is the number of recent searches kept
const MaxEntries = 10

// ErrCorrupt reports a persisted list that cannot be decoded
var ErrCorrupt = errors.New("corrupt history")

// Entry is one recently tracked token
type Entry struct {
	models.TokenMetadata
	SearchedAt time.Time `json:"searchedAt"`
}

// Store persists the history list, most recent first
type Store interface {
	Load(ctx context.Context) ([]Entry, error)
	Save(ctx context.Context, entries []Entry) error
	Clear(ctx context.Context) error
	Close() error
}

// History is the in-memory view of the search history backed by a Store
type History struct {
	store Store
	now   func() time.Time

	// held across a change and its Save so the store never lags the list
	writeMu sync.Mutex

	mu      sync.RWMutex
	entries []Entry
}

// New creates a history backed by store. Call Load before use.
func New(store Store) *History {
	return &History{
		store: store,
		now:   time.Now,
	}
}

// Load reads the persisted list. A corrupt list is discarded and removed
// from the store; the history then starts empty.
func (h *History) Load(ctx context.Context) error {
	entries, err := h.store.Load(ctx)
	if errors.Is(err, ErrCorrupt) {
		utils.HistoryLogger.Warn("Discarding unreadable search history: %v", err)
		if clearErr := h.store.Clear(ctx); clearErr != nil {
			return clearErr
		}
		entries, err = nil, nil
	}
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.entries = normalize(entries)
	h.mu.Unlock()

	utils.HistoryLogger.Debug("Loaded %d history entries", len(entries))
	return nil
}

// Add moves md to the front of the history, dropping any older entry with the
// same id and anything beyond MaxEntries, then persists the result.
func (h *History) Add(ctx context.Context, md models.TokenMetadata) ([]Entry, error) {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	h.mu.Lock()
	next := make([]Entry, 0, MaxEntries)
	next = append(next, Entry{TokenMetadata: md, SearchedAt: h.now().UTC()})
	for _, e := range h.entries {
		if e.ID != md.ID {
			next = append(next, e)
		}
	}
	if len(next) > MaxEntries {
		next = next[:MaxEntries]
	}
	h.entries = next
	out := copyEntries(next)
	h.mu.Unlock()

	if err := h.store.Save(ctx, out); err != nil {
		return out, utils.WrapError(err, utils.ErrorTypeInternal, "HISTORY_SAVE", "failed to save history", "HISTORY")
	}
	return out, nil
}

// List returns the entries, most recent first
func (h *History) List() []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return copyEntries(h.entries)
}

// Clear empties the history and the store
func (h *History) Clear(ctx context.Context) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	h.mu.Lock()
	h.entries = nil
	h.mu.Unlock()
	return h.store.Clear(ctx)
}

// Close closes the backing store
func (h *History) Close() error {
	return h.store.Close()
}

// normalize enforces the de-duplication and cap rules on a loaded list
func normalize(entries []Entry) []Entry {
	seen := make(map[string]struct{}, len(entries))
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			continue
		}
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		out = append(out, e)
		if len(out) == MaxEntries {
			break
		}
	}
	return out
}

func copyEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}
