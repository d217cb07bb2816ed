package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/Willy-Angole/abilispace-sub002/internal/apperr"
	"github.com/Willy-Angole/abilispace-sub002/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessageRoundTrip(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	conv := e.direct(t, 1, 2)

	parent := e.send(t, conv.ID, 2, "first")
	reply, err := e.messages.SendMessage(ctx, 1, SendMessageInput{
		ConversationID: conv.ID,
		Content:        "  reply  ",
		ReplyToID:      &parent.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "reply", reply.Content)

	page, err := e.messages.GetMessages(ctx, conv.ID, 2, GetMessagesInput{})
	require.NoError(t, err)

	count := 0
	for _, m := range page.Messages {
		if m.ID == reply.ID {
			count++
			assert.Equal(t, "reply", m.Content)
			require.NotNil(t, m.ReplyToID)
			assert.Equal(t, parent.ID, *m.ReplyToID)
		}
	}
	assert.Equal(t, 1, count)

	stored, err := e.store.Conversations().FindByID(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastMessageID)
	assert.Equal(t, reply.ID, *stored.LastMessageID)
}

func TestSendMessageValidation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	conv := e.direct(t, 1, 2)
	other := e.direct(t, 1, 3)
	foreign := e.send(t, other.ID, 3, "elsewhere")
	deleted := e.send(t, conv.ID, 1, "soon gone")
	_, err := e.messages.DeleteMessage(ctx, deleted.ID, 1)
	require.NoError(t, err)
	missing := uint(999)

	tests := []struct {
		name      string
		sender    uint
		in        SendMessageInput
		code      apperr.Code
		shouldErr bool
	}{
		{"empty content", 1, SendMessageInput{ConversationID: conv.ID, Content: ""}, apperr.CodeValidation, true},
		{"whitespace content", 1, SendMessageInput{ConversationID: conv.ID, Content: " \n "}, apperr.CodeValidation, true},
		{"oversized content", 1, SendMessageInput{ConversationID: conv.ID, Content: strings.Repeat("x", 10001)}, apperr.CodeValidation, true},
		{"max content", 1, SendMessageInput{ConversationID: conv.ID, Content: strings.Repeat("x", 10000)}, "", false},
		{"reply to missing message", 1, SendMessageInput{ConversationID: conv.ID, Content: "hi", ReplyToID: &missing}, apperr.CodeValidation, true},
		{"reply across conversations", 1, SendMessageInput{ConversationID: conv.ID, Content: "hi", ReplyToID: &foreign.ID}, apperr.CodeValidation, true},
		{"reply to deleted message", 1, SendMessageInput{ConversationID: conv.ID, Content: "hi", ReplyToID: &deleted.ID}, apperr.CodeValidation, true},
		{"non participant", 3, SendMessageInput{ConversationID: conv.ID, Content: "hi"}, apperr.CodeNotFound, true},
		{"missing conversation", 1, SendMessageInput{ConversationID: 999, Content: "hi"}, apperr.CodeNotFound, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.messages.SendMessage(ctx, tt.sender, tt.in)
			if (err != nil) != tt.shouldErr {
				t.Fatalf("SendMessage() error = %v, wantErr %v", err, tt.shouldErr)
			}
			if tt.shouldErr {
				requireCode(t, err, tt.code)
			}
		})
	}
}

func TestSendMessageClientIDIsIdempotent(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	conv := e.direct(t, 1, 2)
	clientID := "5b1f7d2e-8a4c-4f0e-9d3b-2c6a1e7f9b10"

	first, err := e.messages.SendMessage(ctx, 1, SendMessageInput{ConversationID: conv.ID, Content: "once", ClientID: &clientID})
	require.NoError(t, err)
	second, err := e.messages.SendMessage(ctx, 1, SendMessageInput{ConversationID: conv.ID, Content: "once", ClientID: &clientID})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	page, err := e.messages.GetMessages(ctx, conv.ID, 1, GetMessagesInput{})
	require.NoError(t, err)
	assert.Len(t, page.Messages, 1)

	other := e.direct(t, 1, 3)
	_, err = e.messages.SendMessage(ctx, 1, SendMessageInput{ConversationID: other.ID, Content: "once", ClientID: &clientID})
	requireCode(t, err, apperr.CodeConflict)

	bad := "nope"
	_, err = e.messages.SendMessage(ctx, 1, SendMessageInput{ConversationID: conv.ID, Content: "x", ClientID: &bad})
	requireCode(t, err, apperr.CodeValidation)
}

func TestClientIDReplayRechecksSender(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	group := e.group(t, 1, 2, 3)
	muted := "0d4e2a6b-1c3f-4a8e-b5d7-9f2c6e1a3b4d"
	removed := "7c2a9e4f-3b1d-4e6a-8f0c-5d9b2e7a1c3f"

	_, err := e.messages.SendMessage(ctx, 2, SendMessageInput{ConversationID: group.ID, Content: "hi", ClientID: &muted})
	require.NoError(t, err)
	_, err = e.messages.SendMessage(ctx, 3, SendMessageInput{ConversationID: group.ID, Content: "hey", ClientID: &removed})
	require.NoError(t, err)

	_, err = e.conversations.SetAdminOnlyMessaging(ctx, group.ID, 1, true)
	require.NoError(t, err)
	require.NoError(t, e.conversations.RemoveMember(ctx, group.ID, 1, 3))

	_, err = e.messages.SendMessage(ctx, 2, SendMessageInput{ConversationID: group.ID, Content: "hi", ClientID: &muted})
	requireCode(t, err, apperr.CodeForbidden)
	_, err = e.messages.SendMessage(ctx, 3, SendMessageInput{ConversationID: group.ID, Content: "hey", ClientID: &removed})
	requireCode(t, err, apperr.CodeNotFound)
}

func TestDeletedMessageStaysInPlaceAsTombstone(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	conv := e.direct(t, 1, 2)

	e.send(t, conv.ID, 1, "one")
	victim := e.send(t, conv.ID, 1, "two")
	e.send(t, conv.ID, 2, "three")

	deleted, err := e.messages.DeleteMessage(ctx, victim.ID, 1)
	require.NoError(t, err)
	assert.NotNil(t, deleted.DeletedAt)
	assert.Empty(t, deleted.Content)

	page, err := e.messages.GetMessages(ctx, conv.ID, 2, GetMessagesInput{})
	require.NoError(t, err)
	require.Len(t, page.Messages, 3)

	stub := page.Messages[1]
	assert.Equal(t, victim.ID, stub.ID)
	assert.True(t, stub.IsDeleted())
	assert.Empty(t, stub.Content)
	assert.True(t, stub.CreatedAt.Equal(victim.CreatedAt))

	resp := stub.ToResponse()
	assert.True(t, resp.Deleted)
	assert.Empty(t, resp.Content)
}

func TestDeleteMessagePermissions(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	conv := e.direct(t, 1, 2)
	msg := e.send(t, conv.ID, 1, "mine")

	_, err := e.messages.DeleteMessage(ctx, msg.ID, 2)
	requireCode(t, err, apperr.CodeForbidden)

	_, err = e.messages.DeleteMessage(ctx, msg.ID, 3)
	requireCode(t, err, apperr.CodeNotFound)

	_, err = e.messages.DeleteMessage(ctx, 999, 1)
	requireCode(t, err, apperr.CodeNotFound)

	_, err = e.messages.DeleteMessage(ctx, msg.ID, 1)
	require.NoError(t, err)
	_, err = e.messages.DeleteMessage(ctx, msg.ID, 1)
	requireCode(t, err, apperr.CodeNotFound)
}

func TestEditMessage(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	group := e.group(t, 1, 2)
	msg := e.send(t, group.ID, 2, "draft")

	_, err := e.messages.EditMessage(ctx, msg.ID, 1, "hijack")
	requireCode(t, err, apperr.CodeForbidden)

	_, err = e.messages.EditMessage(ctx, msg.ID, 2, "")
	requireCode(t, err, apperr.CodeValidation)

	edited, err := e.messages.EditMessage(ctx, msg.ID, 2, "final")
	require.NoError(t, err)
	assert.Equal(t, "final", edited.Content)
	assert.NotNil(t, edited.EditedAt)
	assert.True(t, edited.CreatedAt.Equal(msg.CreatedAt))

	fetched, err := e.messages.GetMessage(ctx, msg.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "final", fetched.Content)

	page, err := e.messages.GetMessages(ctx, group.ID, 1, GetMessagesInput{})
	require.NoError(t, err)
	system := page.Messages[0]
	require.Equal(t, models.SystemMessage, system.Kind)
	_, err = e.messages.EditMessage(ctx, system.ID, 1, "rewrite history")
	requireCode(t, err, apperr.CodeInvalidOperation)

	_, err = e.messages.DeleteMessage(ctx, msg.ID, 2)
	require.NoError(t, err)
	_, err = e.messages.EditMessage(ctx, msg.ID, 2, "revive")
	requireCode(t, err, apperr.CodeNotFound)
}

func TestGetMessageRequiresParticipation(t *testing.T) {
	e := newTestEnv(t)
	conv := e.direct(t, 1, 2)
	msg := e.send(t, conv.ID, 1, "private")

	_, err := e.messages.GetMessage(context.Background(), msg.ID, 3)
	requireCode(t, err, apperr.CodeNotFound)
}

func TestGetMessagesOlderPagesAreContinuous(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	conv := e.direct(t, 1, 2)

	for i := 0; i < 25; i++ {
		e.send(t, conv.ID, uint(1+i%2), fmt.Sprintf("m%02d", i))
	}
	full, err := e.messages.GetMessages(ctx, conv.ID, 1, GetMessagesInput{Limit: 100})
	require.NoError(t, err)
	require.Len(t, full.Messages, 25)
	assert.False(t, full.HasMore)

	var collected []models.Message
	cursor := ""
	for round := 0; ; round++ {
		page, err := e.messages.GetMessages(ctx, conv.ID, 1, GetMessagesInput{Limit: 7, Cursor: cursor, Direction: DirectionOlder})
		require.NoError(t, err)
		for i := 1; i < len(page.Messages); i++ {
			require.True(t, page.Messages[i-1].Before(&page.Messages[i]), "page not ascending")
		}
		collected = append(append([]models.Message{}, page.Messages...), collected...)

		// New traffic between fetches must not disturb older pages.
		e.send(t, conv.ID, 2, fmt.Sprintf("late%d", round))

		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}

	require.Len(t, collected, len(full.Messages))
	for i := range full.Messages {
		assert.Equal(t, full.Messages[i].ID, collected[i].ID)
	}
}

func TestGetMessagesNewerWalksForward(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	conv := e.direct(t, 1, 2)

	var sent []uint
	for i := 0; i < 12; i++ {
		sent = append(sent, e.send(t, conv.ID, 1, fmt.Sprintf("n%d", i)).ID)
	}

	var got []uint
	cursor := ""
	for {
		page, err := e.messages.GetMessages(ctx, conv.ID, 2, GetMessagesInput{Limit: 5, Cursor: cursor, Direction: DirectionNewer})
		require.NoError(t, err)
		for _, m := range page.Messages {
			got = append(got, m.ID)
		}
		if !page.HasMore {
			cursor = page.NextCursor
			break
		}
		cursor = page.NextCursor
	}
	assert.Equal(t, sent, got)

	// Polling from the last cursor only yields what arrived afterwards.
	latest := e.send(t, conv.ID, 1, "fresh")
	page, err := e.messages.GetMessages(ctx, conv.ID, 2, GetMessagesInput{Cursor: cursor, Direction: DirectionNewer})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, latest.ID, page.Messages[0].ID)
}

func TestGetMessagesInputValidation(t *testing.T) {
	e := newTestEnvWithConfig(t, Config{MaxPageSize: 3, DefaultPageSize: 2})
	ctx := context.Background()
	conv := e.direct(t, 1, 2)
	for i := 0; i < 5; i++ {
		e.send(t, conv.ID, 1, "x")
	}

	_, err := e.messages.GetMessages(ctx, conv.ID, 1, GetMessagesInput{Direction: "sideways"})
	requireCode(t, err, apperr.CodeValidation)

	_, err = e.messages.GetMessages(ctx, conv.ID, 1, GetMessagesInput{Cursor: "%%%"})
	requireCode(t, err, apperr.CodeValidation)

	_, err = e.messages.GetMessages(ctx, conv.ID, 3, GetMessagesInput{})
	requireCode(t, err, apperr.CodeNotFound)

	page, err := e.messages.GetMessages(ctx, conv.ID, 1, GetMessagesInput{})
	require.NoError(t, err)
	assert.Len(t, page.Messages, 2)

	page, err = e.messages.GetMessages(ctx, conv.ID, 1, GetMessagesInput{Limit: 1000})
	require.NoError(t, err)
	assert.Len(t, page.Messages, 3)
	assert.True(t, page.HasMore)
}

func TestSearchMessages(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	conv := e.direct(t, 1, 2)
	e.send(t, conv.ID, 1, "Lunch at noon?")
	gone := e.send(t, conv.ID, 2, "lunch is cancelled")
	e.send(t, conv.ID, 2, "dinner then")
	_, err := e.messages.DeleteMessage(ctx, gone.ID, 2)
	require.NoError(t, err)

	found, err := e.messages.SearchMessages(ctx, conv.ID, 1, "LUNCH", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Lunch at noon?", found[0].Content)

	_, err = e.messages.SearchMessages(ctx, conv.ID, 3, "lunch", 10)
	requireCode(t, err, apperr.CodeNotFound)
}

func TestSendMessageClearsTyping(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	conv := e.direct(t, 1, 2)

	_, err := e.typing.SetTyping(ctx, conv.ID, 1, "Alice")
	require.NoError(t, err)
	e.send(t, conv.ID, 1, "done typing")

	signals, err := e.typing.GetTyping(ctx, conv.ID, 2)
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestSendMessageInvalidatesRecipientsUnread(t *testing.T) {
	e := newTestEnv(t)
	conv := e.direct(t, 1, 2)
	e.send(t, conv.ID, 1, "ping")

	assert.Equal(t, 1, e.unread.Invalidations(2))
	assert.Equal(t, 0, e.unread.Invalidations(1))
}
