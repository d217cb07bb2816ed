package presence

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

const shardCount = 16

// Signal is one user's typing indicator in a conversation.
type Signal struct {
	ConversationID uint      `json:"conversation_id"`
	UserID         uint      `json:"user_id"`
	DisplayName    string    `json:"display_name"`
	ExpiresAt      time.Time `json:"expires_at"`
}

type shard struct {
	mu    sync.Mutex
	convs map[uint]map[uint]Signal
}

// Tracker holds ephemeral typing signals in memory. It starts empty and
// never touches durable storage.
type Tracker struct {
	log    *slog.Logger
	ttl    time.Duration
	now    func() time.Time
	shards [shardCount]*shard
}

type Option func(*Tracker)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func NewTracker(log *slog.Logger, ttl time.Duration, opts ...Option) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	t := &Tracker{log: log, ttl: ttl, now: time.Now}
	for i := range t.shards {
		t.shards[i] = &shard{convs: make(map[uint]map[uint]Signal)}
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) shardFor(convID uint) *shard {
	return t.shards[convID%shardCount]
}

// SetTyping records or refreshes a signal and returns it.
func (t *Tracker) SetTyping(convID, userID uint, displayName string) Signal {
	sig := Signal{
		ConversationID: convID,
		UserID:         userID,
		DisplayName:    displayName,
		ExpiresAt:      t.now().Add(t.ttl),
	}

	s := t.shardFor(convID)
	s.mu.Lock()
	users, ok := s.convs[convID]
	if !ok {
		users = make(map[uint]Signal)
		s.convs[convID] = users
	}
	users[userID] = sig
	s.mu.Unlock()
	return sig
}

// Clear drops a user's signal, e.g. once their message has been sent.
func (t *Tracker) Clear(convID, userID uint) {
	s := t.shardFor(convID)
	s.mu.Lock()
	if users, ok := s.convs[convID]; ok {
		delete(users, userID)
		if len(users) == 0 {
			delete(s.convs, convID)
		}
	}
	s.mu.Unlock()
}

// Typing returns live signals in a conversation except the requester's,
// ordered by user id. Expired entries are skipped even if not yet swept.
func (t *Tracker) Typing(convID, requesterID uint) []Signal {
	now := t.now()
	s := t.shardFor(convID)

	s.mu.Lock()
	out := make([]Signal, 0, len(s.convs[convID]))
	for userID, sig := range s.convs[convID] {
		if userID == requesterID || !sig.ExpiresAt.After(now) {
			continue
		}
		out = append(out, sig)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Sweep purges expired signals and reports how many were removed.
func (t *Tracker) Sweep() int {
	now := t.now()
	removed := 0
	for _, s := range t.shards {
		s.mu.Lock()
		for convID, users := range s.convs {
			for userID, sig := range users {
				if !sig.ExpiresAt.After(now) {
					delete(users, userID)
					removed++
				}
			}
			if len(users) == 0 {
				delete(s.convs, convID)
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len counts stored signals, expired or not.
func (t *Tracker) Len() int {
	n := 0
	for _, s := range t.shards {
		s.mu.Lock()
		for _, users := range s.convs {
			n += len(users)
		}
		s.mu.Unlock()
	}
	return n
}

// Run sweeps every interval until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) error {
	t.log.Info("Starting typing presence sweeper", "interval", interval, "ttl", t.ttl)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := t.Sweep(); n > 0 {
				t.log.Debug("Swept expired typing signals", "removed", n)
			}
		}
	}
}
