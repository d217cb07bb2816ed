package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Willy-Angole/abilispace-sub002/internal/apperr"
	"github.com/Willy-Angole/abilispace-sub002/internal/models"
	"github.com/Willy-Angole/abilispace-sub002/internal/presence"
	"github.com/Willy-Angole/abilispace-sub002/internal/testutil"
	"github.com/stretchr/testify/require"
)

// stepClock returns a strictly increasing time on every call.
type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC), step: time.Millisecond}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

// manualClock only moves when told to.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	store         *testutil.MockStore
	unread        *testutil.MockUnreadCache
	tracker       *presence.Tracker
	presenceClock *manualClock

	conversations *ConversationService
	messages      *MessageService
	reads         *ReadService
	typing        *TypingService
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithConfig(t, Config{})
}

func newTestEnvWithConfig(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	if cfg.Now == nil {
		cfg.Now = newStepClock().Now
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = time.Millisecond
	}

	store := testutil.NewMockStore()
	unread := testutil.NewMockUnreadCache()
	pclock := &manualClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	tracker := presence.NewTracker(log, 3*time.Second, presence.WithClock(pclock.Now))

	return &testEnv{
		store:         store,
		unread:        unread,
		tracker:       tracker,
		presenceClock: pclock,
		conversations: NewConversationService(store, unread, log, cfg),
		messages:      NewMessageService(store, unread, tracker, log, cfg),
		reads:         NewReadService(store, unread, log, cfg),
		typing:        NewTypingService(store, tracker, log, cfg),
	}
}

func (e *testEnv) group(t *testing.T, adminID uint, members ...uint) *models.Conversation {
	t.Helper()
	conv, err := e.conversations.CreateConversation(context.Background(), adminID, CreateConversationInput{
		ParticipantIDs: members,
		Name:           "Team",
		IsGroup:        true,
	})
	require.NoError(t, err)
	return conv
}

func (e *testEnv) direct(t *testing.T, a, b uint) *models.Conversation {
	t.Helper()
	conv, err := e.conversations.CreateConversation(context.Background(), a, CreateConversationInput{
		ParticipantIDs: []uint{b},
	})
	require.NoError(t, err)
	return conv
}

func (e *testEnv) send(t *testing.T, convID, senderID uint, content string) *models.Message {
	t.Helper()
	msg, err := e.messages.SendMessage(context.Background(), senderID, SendMessageInput{
		ConversationID: convID,
		Content:        content,
	})
	require.NoError(t, err)
	return msg
}

func requireCode(t *testing.T, err error, code apperr.Code) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, apperr.CodeOf(err), "error: %v", err)
}

func participantRole(t *testing.T, e *testEnv, convID, userID uint) models.Role {
	t.Helper()
	p, err := e.store.Participants().FindActive(context.Background(), convID, userID)
	require.NoError(t, err)
	return p.Role
}
