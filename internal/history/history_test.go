package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	"glimmer/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T, capacity int) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewStore(rdb, capacity), mr
}

func chatMsg(id string, sentAt time.Time) models.ChatMessage {
	return models.ChatMessage{
		MsgID:       id,
		ChannelName: "streamer_live",
		SenderID:    7,
		SenderName:  "viewer",
		Body:        "hello " + id,
		SentAt:      sentAt,
	}
}

func TestStore_AppendBounded_KeepsNewestWithinCap(t *testing.T) {
	store, _ := setupStore(t, 5)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	for i := 0; i < 12; i++ {
		msg := chatMsg(fmt.Sprintf("m%02d", i), base.Add(time.Duration(i)*time.Second))
		require.NoError(t, store.AppendBounded(ctx, "streamer_live", msg))
	}

	window, err := store.Snapshot(ctx, "streamer_live")
	require.NoError(t, err)
	require.Len(t, window, 5)

	// Oldest first, and only the newest five survive.
	assert.Equal(t, "m07", window[0].MsgID)
	assert.Equal(t, "m11", window[4].MsgID)
	for i := 1; i < len(window); i++ {
		assert.True(t, window[i].SentAt.After(window[i-1].SentAt))
	}
}

func TestStore_Snapshot_EmptyChannel(t *testing.T) {
	store, _ := setupStore(t, 5)

	window, err := store.Snapshot(context.Background(), "nobody_here")
	require.NoError(t, err)
	assert.Empty(t, window)
}

func TestStore_ReadRange(t *testing.T) {
	store, _ := setupStore(t, 10)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	for i := 0; i < 6; i++ {
		msg := chatMsg(fmt.Sprintf("m%d", i), base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, store.AppendBounded(ctx, "streamer_live", msg))
	}

	got, err := store.ReadRange(ctx, "streamer_live", base.Add(1*time.Minute), base.Add(3*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "m1", got[0].MsgID)
	assert.Equal(t, "m3", got[2].MsgID)
}

func TestStore_DeleteByMsgID(t *testing.T) {
	store, _ := setupStore(t, 10)
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.AppendBounded(ctx, "streamer_live", chatMsg(fmt.Sprintf("m%d", i), base.Add(time.Duration(i)*time.Second))))
	}

	found, err := store.DeleteByMsgID(ctx, "streamer_live", "m1")
	require.NoError(t, err)
	assert.True(t, found)

	window, err := store.Snapshot(ctx, "streamer_live")
	require.NoError(t, err)
	require.Len(t, window, 2)
	for _, msg := range window {
		assert.NotEqual(t, "m1", msg.MsgID)
	}

	// Deleting an unknown or aged-out message reports not found.
	found, err = store.DeleteByMsgID(ctx, "streamer_live", "gone")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_Rename(t *testing.T) {
	store, _ := setupStore(t, 10)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.AppendBounded(ctx, "old_name", chatMsg(fmt.Sprintf("m%d", i), base.Add(time.Duration(i)*time.Second))))
	}

	require.NoError(t, store.Rename(ctx, "old_name", "new_name"))

	moved, err := store.Snapshot(ctx, "new_name")
	require.NoError(t, err)
	require.Len(t, moved, 3)
	assert.Equal(t, "m0", moved[0].MsgID)

	old, err := store.Snapshot(ctx, "old_name")
	require.NoError(t, err)
	assert.Empty(t, old)

	// A channel with no history renames as a no-op.
	require.NoError(t, store.Rename(ctx, "never_existed", "whatever"))
}

func TestStore_NilClient(t *testing.T) {
	store := NewStore(nil, 5)

	err := store.AppendBounded(context.Background(), "c", chatMsg("m", time.Now()))
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = store.Snapshot(context.Background(), "c")
	assert.ErrorIs(t, err, ErrUnavailable)
}
