package history

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrEmptyUserID is returned when a store operation gets an empty identity.
var ErrEmptyUserID = errors.New("history: empty user id")

// Store persists one history record per user identity.
//
// Load is permissive: a missing record and an unreadable record both come
// back as an empty history. Implementations log the two cases differently
// and count them in Stats so data loss stays visible.
type Store interface {
	// Load returns the persisted turns for userID, or nil.
	Load(ctx context.Context, userID string) []Turn

	// Save overwrites the record for userID with turns.
	Save(ctx context.Context, userID string, turns []Turn) error

	// Delete removes the record for userID. Deleting a missing record is not an error.
	Delete(ctx context.Context, userID string) error

	// List returns the identities that have a record. FileStore reports
	// the filesystem-safe form of each identity (separators and ".."
	// replaced by "_"), so a listed name may differ from the identity it
	// was saved under; SQLiteStore reports identities verbatim. Snowflake
	// ids are the same in both forms.
	List(ctx context.Context) ([]string, error)

	// Stats returns load/save counters since the store was opened.
	Stats() Stats

	// Close releases the store's resources.
	Close() error
}

// Stats counts store outcomes.
type Stats struct {
	Loaded     int64 // records read successfully
	Missing    int64 // loads with no record
	Unreadable int64 // loads of corrupt or unreadable records
	Saved      int64
	SaveErrors int64
}

type counters struct {
	loaded     atomic.Int64
	missing    atomic.Int64
	unreadable atomic.Int64
	saved      atomic.Int64
	saveErrors atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Loaded:     c.loaded.Load(),
		Missing:    c.missing.Load(),
		Unreadable: c.unreadable.Load(),
		Saved:      c.saved.Load(),
		SaveErrors: c.saveErrors.Load(),
	}
}

// sanitizeUserID returns a filesystem-safe name (replaces separators and dots).
func sanitizeUserID(userID string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "..", "_")
	return r.Replace(userID)
}

// keyedMutex hands out one mutex per key. Entries are refcounted and
// dropped once the last holder releases them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

// lock acquires the mutex for key. The returned func releases it.
func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedEntry)
	}
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// size returns the number of keys currently held or waited on.
func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
