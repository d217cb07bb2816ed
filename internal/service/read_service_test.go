package service

import (
	"context"
	"testing"

	"github.com/Willy-Angole/abilispace-sub002/internal/apperr"
	"github.com/Willy-Angole/abilispace-sub002/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnreadCountsExcludeOwnAndDeleted(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	conv := e.direct(t, 1, 2)
	group := e.group(t, 3, 2)

	e.send(t, conv.ID, 1, "a")
	gone := e.send(t, conv.ID, 1, "b")
	e.send(t, conv.ID, 1, "c")
	e.send(t, conv.ID, 2, "own")
	_, err := e.messages.DeleteMessage(ctx, gone.ID, 1)
	require.NoError(t, err)

	summary, err := e.reads.GetUnreadCounts(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.Conversations[conv.ID])
	// The group's creation notice counts until read.
	assert.Equal(t, int64(1), summary.Conversations[group.ID])
	assert.Equal(t, int64(3), summary.Total)

	own, err := e.reads.GetUnreadCounts(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), own.Conversations[conv.ID])
	assert.Equal(t, int64(1), own.Total)
}

func TestMarkMessagesAsReadIsMonotonic(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	conv := e.direct(t, 1, 2)

	first := e.send(t, conv.ID, 1, "one")
	e.send(t, conv.ID, 1, "two")
	last := e.send(t, conv.ID, 1, "three")

	marker, err := e.reads.MarkMessagesAsRead(ctx, conv.ID, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, last.ID, marker.LastReadMessageID)

	summary, err := e.reads.GetUnreadCounts(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(0), summary.Total)

	// An earlier boundary leaves the marker where it was.
	marker, err = e.reads.MarkMessagesAsRead(ctx, conv.ID, 2, []uint{first.ID})
	require.NoError(t, err)
	assert.Equal(t, last.ID, marker.LastReadMessageID)

	summary, err = e.reads.GetUnreadCounts(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(0), summary.Total)

	newer := e.send(t, conv.ID, 1, "four")
	summary, err = e.reads.GetUnreadCounts(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Conversations[conv.ID])

	marker, err = e.reads.MarkMessagesAsRead(ctx, conv.ID, 2, []uint{first.ID, newer.ID})
	require.NoError(t, err)
	assert.Equal(t, newer.ID, marker.LastReadMessageID)
	assert.True(t, marker.LastReadMessageAt.Equal(newer.CreatedAt))
}

func TestMarkMessagesAsReadWithExplicitIDs(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	conv := e.direct(t, 1, 2)
	other := e.direct(t, 1, 3)

	m1 := e.send(t, conv.ID, 1, "one")
	e.send(t, conv.ID, 1, "two")
	foreign := e.send(t, other.ID, 1, "elsewhere")

	marker, err := e.reads.MarkMessagesAsRead(ctx, conv.ID, 2, []uint{m1.ID})
	require.NoError(t, err)
	assert.Equal(t, m1.ID, marker.LastReadMessageID)

	summary, err := e.reads.GetUnreadCounts(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Conversations[conv.ID])

	_, err = e.reads.MarkMessagesAsRead(ctx, conv.ID, 2, []uint{foreign.ID})
	requireCode(t, err, apperr.CodeValidation)

	_, err = e.reads.MarkMessagesAsRead(ctx, conv.ID, 3, nil)
	requireCode(t, err, apperr.CodeNotFound)
}

func TestMarkReadOnEmptyConversation(t *testing.T) {
	e := newTestEnv(t)
	conv := e.direct(t, 1, 2)

	marker, err := e.reads.MarkMessagesAsRead(context.Background(), conv.ID, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, uint(0), marker.LastReadMessageID)
	assert.Equal(t, conv.ID, marker.ConversationID)
}

func TestUnreadCountsUseCache(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	conv := e.direct(t, 1, 2)
	e.send(t, conv.ID, 1, "hello")

	summary, err := e.reads.GetUnreadCounts(ctx, 2)
	require.NoError(t, err)
	cached, gen, ok := e.unread.Get(ctx, 2)
	require.True(t, ok)
	assert.Equal(t, summary, cached)

	// A cached value is served until something invalidates it.
	require.NoError(t, e.unread.Set(ctx, 2, gen, models.NewUnreadSummary(map[uint]int64{conv.ID: 42})))
	summary, err = e.reads.GetUnreadCounts(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(42), summary.Total)

	e.send(t, conv.ID, 1, "again")
	summary, err = e.reads.GetUnreadCounts(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.Total)

	_, err = e.reads.MarkMessagesAsRead(ctx, conv.ID, 2, nil)
	require.NoError(t, err)
	summary, err = e.reads.GetUnreadCounts(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(0), summary.Total)
}

func TestUnreadCountsSkipLeftConversations(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	group := e.group(t, 1, 2)
	e.send(t, group.ID, 1, "hi")

	_, err := e.conversations.LeaveConversation(ctx, group.ID, 2)
	require.NoError(t, err)

	summary, err := e.reads.GetUnreadCounts(ctx, 2)
	require.NoError(t, err)
	_, present := summary.Conversations[group.ID]
	assert.False(t, present)
	assert.Equal(t, int64(0), summary.Total)
}

func TestGetReadMarkers(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	group := e.group(t, 1, 2, 3)
	e.send(t, group.ID, 1, "hi")

	_, err := e.reads.MarkMessagesAsRead(ctx, group.ID, 2, nil)
	require.NoError(t, err)
	_, err = e.reads.MarkMessagesAsRead(ctx, group.ID, 3, nil)
	require.NoError(t, err)

	markers, err := e.reads.GetReadMarkers(ctx, group.ID, 1)
	require.NoError(t, err)
	require.Len(t, markers, 2)
	assert.Equal(t, uint(2), markers[0].UserID)
	assert.Equal(t, uint(3), markers[1].UserID)

	_, err = e.reads.GetReadMarkers(ctx, group.ID, 9)
	requireCode(t, err, apperr.CodeNotFound)
}

func TestUnreadFillRacingASendIsNotServed(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	conv := e.direct(t, 1, 2)

	// The message lands after the count is taken but before the cache fill.
	e.store.AfterCountUnread(func() { e.send(t, conv.ID, 2, "late") })

	first, err := e.reads.GetUnreadCounts(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), first.Total)

	second, err := e.reads.GetUnreadCounts(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), second.Total)
	assert.Equal(t, int64(1), second.Conversations[conv.ID])
}
