package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meeting-digest/backend/internal/apperror"
	"github.com/meeting-digest/backend/internal/storage/models"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func startHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(discard)
	go hub.Run(ctx)
	return hub
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data, ok := <-c.Send():
		require.True(t, ok, "client channel closed")
		var raw struct {
			Type    MessageType     `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(data, &raw))
		return Message{Type: raw.Type, Payload: raw.Payload}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func TestHub_RegisterBroadcastUnregister(t *testing.T) {
	hub := startHub(t)
	a, b := NewClient(hub), NewClient(hub)
	hub.Register(a)
	hub.Register(b)
	assert.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	hub.Broadcast([]byte(`{"type":"x"}`))
	assert.Equal(t, MessageType("x"), receive(t, a).Type)
	assert.Equal(t, MessageType("x"), receive(t, b).Type)

	hub.Unregister(a)
	_, ok := <-a.Send()
	assert.False(t, ok)
	assert.Equal(t, 1, hub.ClientCount())
}

func TestHub_StopClosesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(discard)
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	c := NewClient(hub)
	hub.Register(c)
	cancel()
	<-done

	_, ok := <-c.Send()
	assert.False(t, ok)
	assert.Zero(t, hub.ClientCount())
}

func TestHub_RegisterAfterStopDoesNotBlock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(discard)
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	c := NewClient(hub)
	hub.Register(c)
	hub.Unregister(c)

	_, ok := <-c.Send()
	assert.False(t, ok)
}

func TestEventBroadcaster(t *testing.T) {
	hub := startHub(t)
	c := NewClient(hub)
	hub.Register(c)
	b := NewEventBroadcaster(hub, discard)

	b.SyncCompleted(models.SyncResult{UserID: "u1", Mode: models.SyncModeIncremental, Outcome: models.SyncOutcomeStoppedEarly, Processed: 4})
	msg := receive(t, c)
	assert.Equal(t, TypeSyncCompleted, msg.Type)
	var sync SyncPayload
	require.NoError(t, json.Unmarshal(msg.Payload.(json.RawMessage), &sync))
	assert.Equal(t, "u1", sync.UserID)
	assert.Equal(t, models.SyncOutcomeStoppedEarly, sync.Outcome)
	assert.Equal(t, 4, sync.Processed)

	b.SyncFailed("ghost", apperror.NotFound("user", "ghost"))
	msg = receive(t, c)
	assert.Equal(t, TypeSyncFailed, msg.Type)
	var failed SyncErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload.(json.RawMessage), &failed))
	assert.Equal(t, "user_not_found", failed.Error)

	b.SyncFailed("u1", errors.New("disk full"))
	require.NoError(t, json.Unmarshal(receive(t, c).Payload.(json.RawMessage), &failed))
	assert.Equal(t, "sync_error", failed.Error)

	b.DigestGenerated(models.Digest{ID: "d1", UserID: "u1", DigestDate: "2026-03-02"}, 3)
	msg = receive(t, c)
	assert.Equal(t, TypeDigestGenerated, msg.Type)
	var digest DigestPayload
	require.NoError(t, json.Unmarshal(msg.Payload.(json.RawMessage), &digest))
	assert.Equal(t, DigestPayload{UserID: "u1", DigestID: "d1", DigestDate: "2026-03-02", Meetings: 3}, digest)

	b.BatchCompleted(models.DigestBatchResult{Users: 3, Succeeded: 1, Empty: 1, Failed: 1})
	msg = receive(t, c)
	assert.Equal(t, TypeDigestBatchCompleted, msg.Type)
}
