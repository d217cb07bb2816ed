package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Willy-Angole/abilispace-sub002/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrierRetriesInternalOnce(t *testing.T) {
	r := retrier{backoff: time.Millisecond, log: slog.New(slog.NewTextHandler(io.Discard, nil))}

	tests := []struct {
		name      string
		failures  int
		err       error
		wantCalls int
		wantCode  apperr.Code
	}{
		{"success", 0, nil, 1, ""},
		{"transient failure recovers", 1, apperr.Internal("store failure", errors.New("reset")), 2, ""},
		{"persistent failure", 5, apperr.Internal("store failure", errors.New("reset")), 2, apperr.CodeInternal},
		{"plain error counts as internal", 5, errors.New("boom"), 2, apperr.CodeInternal},
		{"forbidden is not retried", 5, apperr.Forbidden("no"), 1, apperr.CodeForbidden},
		{"validation is not retried", 5, apperr.Validation("bad"), 1, apperr.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := r.do(context.Background(), "test", func() error {
				calls++
				if calls <= tt.failures {
					return tt.err
				}
				return nil
			})
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantCode == "" {
				assert.NoError(t, err)
			} else {
				assert.Equal(t, tt.wantCode, apperr.CodeOf(err))
			}
		})
	}
}

func TestRetrierStopsOnCancelledContext(t *testing.T) {
	r := retrier{backoff: time.Hour, log: slog.New(slog.NewTextHandler(io.Discard, nil))}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := r.do(ctx, "test", func() error {
		calls++
		return apperr.Internal("store failure", errors.New("reset"))
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, apperr.CodeInternal, apperr.CodeOf(err))
}

func TestSendMessageRetriesTransientStoreFailure(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	conv := e.direct(t, 1, 2)

	before := e.store.TransactionCount()
	e.store.FailNextTransactions(1)
	msg, err := e.messages.SendMessage(ctx, 1, SendMessageInput{ConversationID: conv.ID, Content: "eventually"})
	require.NoError(t, err)
	assert.Equal(t, "eventually", msg.Content)
	assert.Equal(t, before+2, e.store.TransactionCount())

	e.store.FailNextTransactions(2)
	_, err = e.messages.SendMessage(ctx, 1, SendMessageInput{ConversationID: conv.ID, Content: "never"})
	requireCode(t, err, apperr.CodeInternal)
}

func TestLogicErrorsAreNotRetried(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	group := e.group(t, 1, 2)

	before := e.store.TransactionCount()
	err := e.conversations.RemoveMember(ctx, group.ID, 2, 1)
	requireCode(t, err, apperr.CodeForbidden)
	assert.Equal(t, before+1, e.store.TransactionCount())
}

func TestFailedTransactionLeavesNoPartialGroup(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	e.store.FailNextTransactions(2)
	_, err := e.conversations.CreateConversation(ctx, 1, CreateConversationInput{Name: "Doomed", IsGroup: true, ParticipantIDs: []uint{2}})
	requireCode(t, err, apperr.CodeInternal)

	page, err := e.conversations.ListConversations(ctx, 1, "", 10)
	require.NoError(t, err)
	assert.Empty(t, page.Conversations)
}
