package ws

import (
	"context"
	"time"

	"receipt-overseer/internal/observability"
)

const lifecycleRoutingKey = "ws_events.sessions"

func (h *Handler) publishLifecycle(ctx context.Context, info ConnInfo, event, reason string) {
	observability.IncWSEvent(event)
	if h.broker == nil {
		return
	}

	durationMS := int64(0)
	if event != "ws_connect" {
		durationMS = time.Since(info.ConnectedAt).Milliseconds()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mirrorTimeout)
	defer cancel()

	_ = h.broker.Publish(ctx, lifecycleRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"event":       event,
				"conn_id":     info.ConnID,
				"duration_ms": durationMS,
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":    info.UserID,
				"user_agent": info.UserAgent,
				"ip":         info.IP,
			},
		},
	})
}
