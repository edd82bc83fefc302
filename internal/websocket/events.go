package websocket

import (
	"log/slog"

	"github.com/meeting-digest/backend/internal/apperror"
	"github.com/meeting-digest/backend/internal/storage/models"
)

// EventBroadcaster turns domain events into hub messages.
type EventBroadcaster struct {
	hub    *Hub
	logger *slog.Logger
}

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster(hub *Hub, logger *slog.Logger) *EventBroadcaster {
	return &EventBroadcaster{hub: hub, logger: logger}
}

// SyncCompleted sends a sync.completed event.
func (b *EventBroadcaster) SyncCompleted(result models.SyncResult) {
	b.broadcast(NewMessage(TypeSyncCompleted, SyncPayload{
		UserID:       result.UserID,
		UserEmail:    result.UserEmail,
		Mode:         result.Mode,
		Outcome:      result.Outcome,
		Processed:    result.Processed,
		Skipped:      result.Skipped,
		PagesFetched: result.PagesFetched,
		Checkpoint:   result.Checkpoint,
	}))
}

// SyncFailed sends a sync.failed event.
func (b *EventBroadcaster) SyncFailed(userID string, err error) {
	code := "sync_error"
	if apperror.IsNotFound(err) {
		code = "user_not_found"
	}
	b.broadcast(NewMessage(TypeSyncFailed, SyncErrorPayload{
		UserID:  userID,
		Error:   code,
		Message: err.Error(),
	}))
}

// DigestGenerated sends a digest.generated event.
func (b *EventBroadcaster) DigestGenerated(d models.Digest, meetings int) {
	b.broadcast(NewMessage(TypeDigestGenerated, DigestPayload{
		UserID:     d.UserID,
		DigestID:   d.ID,
		DigestDate: d.DigestDate,
		Meetings:   meetings,
	}))
}

// BatchCompleted sends a digest.batch_completed event.
func (b *EventBroadcaster) BatchCompleted(result models.DigestBatchResult) {
	b.broadcast(NewMessage(TypeDigestBatchCompleted, BatchPayload{
		Users:     result.Users,
		Succeeded: result.Succeeded,
		Empty:     result.Empty,
		Failed:    result.Failed,
	}))
}

func (b *EventBroadcaster) broadcast(msg Message) {
	data, err := msg.JSON()
	if err != nil {
		b.logger.Error("encoding websocket message", "type", msg.Type, "error", err)
		return
	}

	b.hub.Broadcast(data)
}
