// Package session keeps one live conversation per user identity.
//
// An Entry pairs a user's bounded History with the llm.Chat bound to it.
// Entries are hydrated from the history store on first use, at most once
// per identity, and are dropped by an LRU bound and an idle TTL. A dropped
// entry is rebuilt from the store on its next use.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/groupcache/lru"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/jholhewres/chatrelay/pkg/chatrelay/history"
	"github.com/jholhewres/chatrelay/pkg/chatrelay/llm"
)

// Defaults applied by NewCache when Config leaves a field zero.
const (
	DefaultMaxHistory = 10
	DefaultTTL        = 24 * time.Hour
)

// Config bounds the cache.
type Config struct {
	// MaxHistory is the number of user/assistant pairs kept per user.
	MaxHistory int

	// MaxSessions caps live entries; 0 means unbounded.
	MaxSessions int

	// TTL drops entries idle for longer; negative disables expiry.
	TTL time.Duration
}

// ChatFactory binds a new llm.Chat to a hydrated history.
type ChatFactory func(h *history.History) *llm.Chat

// Entry is a live conversation.
type Entry struct {
	UserID    string
	History   *history.History
	Chat      *llm.Chat
	CreatedAt time.Time

	lastActive atomic.Int64
}

// LastActiveAt returns when the entry was last resolved.
func (e *Entry) LastActiveAt() time.Time {
	return time.Unix(0, e.lastActive.Load())
}

func (e *Entry) touch(t time.Time) { e.lastActive.Store(t.UnixNano()) }

// Cache maps user identities to entries.
type Cache struct {
	store   history.Store
	newChat ChatFactory
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	entries *lru.Cache
	index   map[string]*Entry // mirrors entries, which cannot be iterated

	hydrate singleflight.Group

	locksMu sync.Mutex
	locks   map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// NewCache creates a cache that hydrates from store.
func NewCache(store history.Store, newChat ChatFactory, cfg Config, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = DefaultMaxHistory
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}

	c := &Cache{
		store:   store,
		newChat: newChat,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		entries: lru.New(cfg.MaxSessions),
		index:   make(map[string]*Entry),
		locks:   make(map[string]*userLock),
	}
	c.entries.OnEvicted = func(key lru.Key, _ interface{}) {
		delete(c.index, key.(string))
	}
	return c
}

// Resolve returns the entry for userID, hydrating it from the store on
// first use. Concurrent first uses of the same identity share one load.
func (c *Cache) Resolve(ctx context.Context, userID string) *Entry {
	if e := c.lookup(userID); e != nil {
		return e
	}

	v, _, _ := c.hydrate.Do(userID, func() (interface{}, error) {
		if e := c.lookup(userID); e != nil {
			return e, nil
		}

		turns := c.store.Load(ctx, userID)
		h := history.New(turns, c.cfg.MaxHistory)
		now := c.now()
		e := &Entry{
			UserID:    userID,
			History:   h,
			Chat:      c.newChat(h),
			CreatedAt: now,
		}
		e.touch(now)

		c.mu.Lock()
		c.entries.Add(userID, e)
		c.index[userID] = e
		size := c.entries.Len()
		c.mu.Unlock()

		c.logger.Debug("session hydrated",
			"user_id", userID,
			"turns", h.Len(),
			"live", size,
		)
		return e, nil
	})
	return v.(*Entry)
}

func (c *Cache) lookup(userID string) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries.Get(userID)
	if !ok {
		return nil
	}
	e := v.(*Entry)
	e.touch(c.now())
	return e
}

// Peek returns the live entry for userID without hydrating or touching it.
func (c *Cache) Peek(userID string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.index[userID]
	return e, ok
}

// Lock serializes work for one identity. The returned func releases it.
func (c *Cache) Lock(userID string) (unlock func()) {
	c.locksMu.Lock()
	l, ok := c.locks[userID]
	if !ok {
		l = &userLock{}
		c.locks[userID] = l
	}
	l.refs++
	c.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		c.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.locks, userID)
		}
		c.locksMu.Unlock()
	}
}

// Evict drops the live entry for userID. The persisted record is kept.
func (c *Cache) Evict(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.index[userID]; !ok {
		return false
	}
	c.entries.Remove(userID)
	return true
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Prune drops entries idle for longer than the TTL.
func (c *Cache) Prune() int {
	if c.cfg.TTL < 0 {
		return 0
	}

	c.mu.Lock()
	cutoff := c.now().Add(-c.cfg.TTL)
	pruned := 0
	for key, e := range c.index {
		if e.LastActiveAt().Before(cutoff) {
			c.entries.Remove(key)
			pruned++
		}
	}
	remaining := c.entries.Len()
	c.mu.Unlock()

	if pruned > 0 {
		c.logger.Info("idle sessions pruned",
			"pruned", pruned,
			"remaining", remaining,
		)
	}
	return pruned
}

// StartPruner runs Prune every TTL/2 until ctx is cancelled.
func (c *Cache) StartPruner(ctx context.Context) error {
	if c.cfg.TTL < 0 {
		return nil
	}

	interval := c.cfg.TTL / 2
	if interval < time.Second {
		interval = time.Second
	}

	sched := cron.New()
	if _, err := sched.AddFunc(fmt.Sprintf("@every %s", interval), func() { c.Prune() }); err != nil {
		return fmt.Errorf("scheduling session pruner: %w", err)
	}
	sched.Start()

	go func() {
		<-ctx.Done()
		<-sched.Stop().Done()
	}()

	c.logger.Debug("session pruner started", "interval", interval)
	return nil
}
