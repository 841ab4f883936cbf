package hub

import (
	"context"
	"encoding/json"
	"log"

	"collab-realtime/internal/domain"
)

// changesChannel is the redis pub/sub channel carrying change frames
// between hub instances.
const changesChannel = "realtime:changes"

func (h *Hub) publishRedis(ctx context.Context, frame *domain.ServerFrame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	if err := h.rdb.Publish(ctx, changesChannel, payload).Err(); err != nil {
		log.Printf("[HUB] failed to publish change for %s: %v", frame.Topic, err)
		return err
	}
	return nil
}

// runBridge relays change frames from redis to the local connections. Every
// instance, the publisher included, receives its own frames here.
func (h *Hub) runBridge(ctx context.Context) {
	sub := h.rdb.Subscribe(ctx, changesChannel)
	defer sub.Close()
	ch := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var frame domain.ServerFrame
			if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
				log.Println("[HUB] error parsing change frame:", err)
				continue
			}
			h.broadcastFrame(&frame)
		}
	}
}
