package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"
)

// Subscriber delivers payloads published on a channel.
// *redis.PubSub and *LocalBroker satisfy this interface.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

// Hub streams session events to local websocket clients.
type Hub struct {
	sub      Subscriber
	channel  string
	snapshot func() any
	opts     *websocket.AcceptOptions
}

// NewHub creates a hub forwarding events from channel. snapshot, when not
// nil, is sent as the first frame of every connection.
func NewHub(sub Subscriber, channel string, snapshot func() any, originPatterns []string) *Hub {
	return &Hub{
		sub:      sub,
		channel:  channel,
		snapshot: snapshot,
		opts:     &websocket.AcceptOptions{OriginPatterns: originPatterns},
	}
}

// snapshotFrame is the first frame written to a new client.
type snapshotFrame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ServeSession handles WebSocket connections for the session event stream.
// Every event published by the session is forwarded as one text frame.
func (h *Hub) ServeSession(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, h.opts)
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()

	// Clients only listen; CloseRead handles control frames and cancels ctx
	// when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	messages, cleanup, err := h.sub.Subscribe(ctx, h.channel)
	if err != nil {
		log.Error().Err(err).Str("channel", h.channel).Msg("websocket subscribe")
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	defer cleanup()

	if err := h.writeSnapshot(ctx, conn); err != nil {
		log.Debug().Err(err).Msg("websocket snapshot")
		return
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "connection closed")
			return
		case msg, msgOK := <-messages:
			if !msgOK {
				_ = conn.Close(websocket.StatusNormalClosure, "channel closed")
				return
			}
			if writeErr := conn.Write(ctx, websocket.MessageText, msg); writeErr != nil {
				log.Debug().Err(writeErr).Msg("websocket write")
				return
			}
		}
	}
}

func (h *Hub) writeSnapshot(ctx context.Context, conn *websocket.Conn) error {
	if h.snapshot == nil {
		return nil
	}
	data, err := json.Marshal(snapshotFrame{Type: "snapshot", Data: h.snapshot()})
	if err != nil {
		return fmt.Errorf("ws.Hub.writeSnapshot: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("ws.Hub.writeSnapshot: %w", err)
	}
	return nil
}
