package gateway

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// EventBroadcaster fans events out to all attached observers. Delivery is
// best-effort: a failed write is logged and the event is not retried.
type EventBroadcaster struct {
	clients *ClientRegistry
	logger  zerolog.Logger
	seq     uint64
}

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster(clients *ClientRegistry, logger zerolog.Logger) *EventBroadcaster {
	return &EventBroadcaster{
		clients: clients,
		logger:  logger,
	}
}

// Broadcast sends an event to every attached observer.
func (b *EventBroadcaster) Broadcast(event string, data any) {
	msg := b.envelope(event, data)

	clients := b.clients.GetAll()
	if len(clients) == 0 {
		b.logger.Debug().
			Str("event", msg.Event).
			Int64("seq", msg.Seq).
			Msg("No observers attached")
		return
	}

	successCount := 0
	failureCount := 0
	for _, client := range clients {
		if err := client.WriteJSON(msg); err != nil {
			b.logger.Warn().
				Err(err).
				Str("client_id", client.ID).
				Str("event", msg.Event).
				Int64("seq", msg.Seq).
				Msg("Failed to push event to observer")
			failureCount++
		} else {
			successCount++
		}
	}

	b.logger.Debug().
		Str("event", msg.Event).
		Int64("seq", msg.Seq).
		Int("success", successCount).
		Int("failed", failureCount).
		Msg("Event broadcast complete")
}

// SendTo pushes an event to a single observer, used for the synthesized
// status a late-joining observer receives on attach.
func (b *EventBroadcaster) SendTo(client *Client, event string, data any) error {
	return client.WriteJSON(b.envelope(event, data))
}

func (b *EventBroadcaster) envelope(event string, data any) EventMessage {
	return EventMessage{
		Type:      "event",
		Event:     event,
		Data:      data,
		Seq:       b.nextSeq(),
		Timestamp: time.Now().UnixMilli(),
	}
}

func (b *EventBroadcaster) nextSeq() int64 {
	return int64(atomic.AddUint64(&b.seq, 1))
}
