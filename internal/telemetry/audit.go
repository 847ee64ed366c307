package telemetry

import (
	"context"
	"log/slog"
	"time"

	"receipt-overseer/internal/observability"
)

// Publisher is the broker side of the audit trail.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

const (
	LevelInfo = "info"
	LevelWarn = "warn"
)

type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *int         `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
	}
}

// Emit publishes an audit record. A zero userID is omitted. Failures are
// logged and otherwise ignored.
func (e *AuditEmitter) Emit(ctx context.Context, level, text string, userID int) {
	if e == nil || e.publisher == nil {
		return
	}

	requestID := observability.RequestIDFromContext(ctx)
	slog.Info("audit emit", "level", level, "request_id", requestID, "user_id", userID, "text", text)
	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		Payload: AuditPayload{
			Level: level,
			Text:  text,
		},
	}
	if userID != 0 {
		envelope.UserID = &userID
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		slog.Warn("audit publish failed", "error", err)
	}
}
