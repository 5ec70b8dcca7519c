package server

import (
	"encoding/json"
	"testing"
	"time"

	"glimmer/internal/chathub"
	"glimmer/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *serverFixture) connect(t *testing.T, user models.User) *chathub.Client {
	t.Helper()
	client := chathub.NewClient(f.srv.hub, nil, "conn-"+user.Username, chathub.Identity{
		UserID:   user.ID,
		Username: user.Username,
	}, f.channel.Name)
	require.NoError(t, f.srv.hub.Register(client))
	t.Cleanup(func() { f.srv.hub.UnregisterClient(client) })
	return client
}

// nextFrame pulls one queued outbound frame without blocking the test forever.
func nextFrame(t *testing.T, client *chathub.Client) map[string]interface{} {
	t.Helper()
	select {
	case raw := <-client.Send:
		var frame map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &frame))
		return frame
	case <-time.After(time.Second):
		t.Fatal("expected an outbound frame, got none")
		return nil
	}
}

func assertNoFrame(t *testing.T, client *chathub.Client) {
	t.Helper()
	select {
	case raw := <-client.Send:
		t.Fatalf("expected no outbound frame, got %s", raw)
	default:
	}
}

func TestRouteFrame_MessageFansOut(t *testing.T) {
	f := setupServerTest(t)
	ctx := t.Context()

	sender := f.connect(t, f.viewer)
	listener := f.connect(t, f.owner)

	f.srv.routeFrame(ctx, sender, &f.channel, []byte(`{"type":"message","message":"hello chat"}`))

	for _, client := range []*chathub.Client{sender, listener} {
		frame := nextFrame(t, client)
		assert.Equal(t, "message", frame["type"])
		assert.Equal(t, "hello chat", frame["message"])

		user, ok := frame["user"].(map[string]interface{})
		require.True(t, ok, "chat frames carry a user object")
		assert.Equal(t, float64(f.viewer.ID), user["id"])
		assert.Equal(t, f.viewer.Username, user["username"])
	}

	// The message landed in the replay window too.
	window, err := f.srv.history.Snapshot(ctx, f.channel.Name)
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "hello chat", window[0].Body)
}

func TestRouteFrame_LegacyShim(t *testing.T) {
	f := setupServerTest(t)
	ctx := t.Context()
	sender := f.connect(t, f.viewer)

	// Untyped object with a message field.
	f.srv.routeFrame(ctx, sender, &f.channel, []byte(`{"message":"old client"}`))
	frame := nextFrame(t, sender)
	assert.Equal(t, "old client", frame["message"])

	// Bare JSON string.
	f.srv.routeFrame(ctx, sender, &f.channel, []byte(`"even older client"`))
	frame = nextFrame(t, sender)
	assert.Equal(t, "even older client", frame["message"])

	// With the shim disabled both forms are dropped.
	f.srv.config.LegacyFrames = false
	f.srv.routeFrame(ctx, sender, &f.channel, []byte(`{"message":"dropped"}`))
	f.srv.routeFrame(ctx, sender, &f.channel, []byte(`"dropped"`))
	assertNoFrame(t, sender)
}

func TestRouteFrame_UnknownTypeDropped(t *testing.T) {
	f := setupServerTest(t)
	sender := f.connect(t, f.viewer)

	f.srv.routeFrame(t.Context(), sender, &f.channel, []byte(`{"type":"teleport"}`))
	f.srv.routeFrame(t.Context(), sender, &f.channel, []byte(`not json at all`))
	assertNoFrame(t, sender)
}

func TestRouteFrame_PingRefreshesPresence(t *testing.T) {
	f := setupServerTest(t)
	ctx := t.Context()
	sender := f.connect(t, f.viewer)
	require.NoError(t, f.srv.presence.Track(ctx, f.channel.Name, sender.ID))

	f.srv.routeFrame(ctx, sender, &f.channel, []byte(`{"type":"ping"}`))
	frame := nextFrame(t, sender)
	assert.Equal(t, "pong", frame["type"])
}

func TestRouteFrame_EmojiLookupAndSearch(t *testing.T) {
	f := setupServerTest(t)
	ctx := t.Context()
	sender := f.connect(t, f.viewer)

	require.NoError(t, f.db.Create(&models.Emoji{Name: "glimmerWave", URL: "https://cdn/wave.webp"}).Error)
	_, err := f.srv.emojis.Reload(ctx, f.srv.emojiSource)
	require.NoError(t, err)

	f.srv.routeFrame(ctx, sender, &f.channel, []byte(`{"type":"emojiMsg","emojis":["glimmerWave","nope"]}`))
	frame := nextFrame(t, sender)
	assert.Equal(t, "emojiMsgResponse", frame["type"])
	emojis := frame["emojis"].(map[string]interface{})
	assert.Equal(t, "https://cdn/wave.webp", emojis["glimmerWave"])
	assert.NotContains(t, emojis, "nope")

	f.srv.routeFrame(ctx, sender, &f.channel, []byte(`{"type":"emojiSearch","searchTerm":"wave"}`))
	frame = nextFrame(t, sender)
	assert.Equal(t, "emojiSearchResponse", frame["type"])
	assert.Equal(t, []interface{}{"glimmerWave"}, frame["results"], "the search term must reach the directory")
}

func TestHandleChatMessage_RestrictedSenderDenied(t *testing.T) {
	f := setupServerTest(t)
	ctx := t.Context()
	sender := f.connect(t, f.troll)
	listener := f.connect(t, f.owner)

	err := f.srv.moderation.ApplyDirect(ctx, models.ActionBanChat, &f.channel, f.troll.ID, f.owner.ID, "spam", "")
	require.NoError(t, err)

	f.srv.handleChatMessage(ctx, sender, &f.channel, "am I banned?")

	frame := nextFrame(t, sender)
	assert.Equal(t, "status", frame["type"])
	assert.Equal(t, "restricted", frame["status"])

	assertNoFrame(t, listener)

	window, err := f.srv.history.Snapshot(ctx, f.channel.Name)
	require.NoError(t, err)
	assert.Empty(t, window, "denied messages never reach history")
}

func TestHandleChatMessage_RateLimited(t *testing.T) {
	f := setupServerTest(t)
	f.srv.config.ChatRateLimit = 2
	ctx := t.Context()
	sender := f.connect(t, f.viewer)

	f.srv.handleChatMessage(ctx, sender, &f.channel, "one")
	f.srv.handleChatMessage(ctx, sender, &f.channel, "two")
	drainFrames(sender)

	f.srv.handleChatMessage(ctx, sender, &f.channel, "three")
	frame := nextFrame(t, sender)
	assert.Equal(t, "status", frame["type"])
	assert.Equal(t, "rate_limited", frame["status"])
}

func TestHandleChatMessage_EmptyBodyIgnored(t *testing.T) {
	f := setupServerTest(t)
	sender := f.connect(t, f.viewer)

	f.srv.handleChatMessage(t.Context(), sender, &f.channel, "   ")
	assertNoFrame(t, sender)
}

func drainFrames(client *chathub.Client) {
	for {
		select {
		case <-client.Send:
		default:
			return
		}
	}
}
