package wshandler

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"collab-realtime/internal/domain"
	"collab-realtime/internal/hub"
	"collab-realtime/internal/middleware"
	"collab-realtime/pkg/xerrors"
)

type WSHandler struct {
	hub *hub.Hub
}

func NewWSHandler(h *hub.Hub) *WSHandler {
	return &WSHandler{hub: h}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: tighten with allowed origins if needed
		return true
	},
}

// HandleRealtime upgrades HTTP -> WebSocket and runs the channel protocol:
// subscribe/unsubscribe on feed and presence topics, track/untrack of the
// connection's own presence payload.
func (h *WSHandler) HandleRealtime(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}

	log.Printf("[WS] connected userID=%s", userID)

	c := h.hub.Add(userID, conn)

	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		h.hub.Touch(c)
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		var frame domain.ClientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			break
		}
		h.hub.Touch(c)
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		switch frame.Action {
		case "subscribe":
			h.hub.Subscribe(c, frame.Topic, frame.Filter)
		case "unsubscribe":
			h.hub.Unsubscribe(c, frame.Topic)
		case "track":
			if !domain.IsPresenceTopic(frame.Topic) {
				log.Printf("[WS] track from %s on %q: %v", userID, frame.Topic, xerrors.ErrUnknownTopic)
				continue
			}
			h.hub.Track(c, frame.Topic, frame.Payload)
		case "untrack":
			h.hub.Untrack(c, frame.Topic)
		default:
			log.Printf("[WS] unknown action %q from %s", frame.Action, userID)
		}
	}

	// Cleanup when connection closes
	h.hub.Remove(c)
}
