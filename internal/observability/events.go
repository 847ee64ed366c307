package observability

import "context"

// EventEnvelope wraps domain events mirrored to the broker.
type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

// HeadersFromContext builds broker headers from the request id and trace on ctx.
func HeadersFromContext(ctx context.Context) map[string]string {
	return BuildHeaders(RequestIDFromContext(ctx), TraceIDFromContext(ctx))
}
