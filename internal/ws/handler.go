package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"receipt-overseer/internal/auth"
	"receipt-overseer/internal/config"
	"receipt-overseer/internal/observability"
	"receipt-overseer/internal/service"
)

var tracer = otel.Tracer("receipt-overseer/ws")

// Handler runs the websocket sync protocol: it authenticates a connection,
// registers it, and applies inbound actions through the services.
type Handler struct {
	registry  *Registry
	validator auth.TokenValidator
	ledger    *service.LedgerService
	chat      *service.ChatService
	broker    BrokerPublisher
	cfg       config.WSConfig
	upgrader  websocket.Upgrader
}

func NewHandler(registry *Registry, validator auth.TokenValidator, ledger *service.LedgerService, chat *service.ChatService, broker BrokerPublisher, cfg config.WSConfig) *Handler {
	return &Handler{
		registry:  registry,
		validator: validator,
		ledger:    ledger,
		chat:      chat,
		broker:    broker,
		cfg:       cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handle upgrades the request and serves the connection until it closes.
// A token may come from the Authorization header, the token query parameter,
// or a first {"action":"auth"} frame sent within the auth timeout.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "ws.handshake")

	token := bearerToken(c.GetHeader("Authorization"))
	if token == "" {
		token = c.Query("token")
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upgrade failed")
		span.End()
		return
	}

	requestID := observability.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = observability.RequestIDFromRequest(c.Request)
	}
	info := ConnInfo{
		ConnID:      newConnID(),
		UserAgent:   c.Request.UserAgent(),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	ctx = observability.WithRequestID(ctx, requestID)

	client := newClient(conn, info, h.cfg.SendBuffer, h.cfg.WriteTimeout, h.cfg.PongTimeout)
	go client.writePump()
	observability.IncWSActive()
	defer observability.DecWSActive()

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(info.ConnectedAt.Add(h.cfg.AuthTimeout))
	conn.SetPongHandler(func(string) error {
		if client.State() == StateActive {
			return conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
		}
		return nil
	})

	if token != "" {
		h.authenticate(ctx, client, token, "")
	}
	span.SetAttributes(attribute.String("ws.conn_id", info.ConnID), attribute.Bool("ws.authenticated", client.State() == StateActive))
	span.End()

	h.serve(ctx, client)
}

func (h *Handler) serve(ctx context.Context, client *Client) {
	var closeReason string
	defer func() {
		h.registry.Unregister(client)
		client.Close(closeReason)
		if client.UserID() != 0 {
			h.publishLifecycle(ctx, client.Info(), "ws_disconnect", closeReason)
		}
		slog.Debug("websocket closed", "conn_id", client.ID(), "user_id", client.UserID(), "reason", closeReason)
	}()

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			switch {
			case client.State() == StateConnecting && isTimeout(err):
				closeReason = "authentication timed out"
				client.enqueue(encodeError(codeUnauthorized, closeReason, "", ""))
			case client.State() == StateActive && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				h.publishLifecycle(ctx, client.Info(), "ws_error", closeReason)
			}
			return
		}
		if client.State() == StateActive {
			_ = client.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
		}
		h.handleFrame(ctx, client, data)
	}
}

func (h *Handler) authenticate(ctx context.Context, client *Client, token, ref string) bool {
	userID, err := h.validator.ValidateToken(ctx, token)
	if err != nil {
		slog.Debug("websocket auth rejected", "conn_id", client.ID(), "error", err)
		client.enqueue(encodeError(codeUnauthorized, "invalid token", actionAuth, ref))
		return false
	}

	client.info.UserID = userID
	client.setState(StateAuthenticated)
	// A registered session is always Active. The ack is queued after
	// registration so no event published after it can be missed.
	client.setState(StateActive)
	h.registry.Register(client)
	client.enqueue(encodeAuthenticated(userID, client.ID()))
	_ = client.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))

	slog.Info("websocket session active", "conn_id", client.ID(), "user_id", userID)
	h.publishLifecycle(ctx, client.Info(), "ws_connect", "")
	return true
}

func (h *Handler) handleFrame(ctx context.Context, client *Client, data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		client.enqueue(encodeError(service.CodeValidation, "malformed frame", "", ""))
		return
	}

	if client.State() != StateActive {
		if frame.Action != actionAuth {
			client.enqueue(encodeError(codeUnauthorized, "authenticate first", frame.Action, frame.Ref))
			return
		}
		h.authenticate(ctx, client, bearerToken(frame.Token), frame.Ref)
		return
	}

	if frame.Action == actionPing {
		client.enqueue(encodePong(frame.Ref))
		return
	}

	actx, span := tracer.Start(ctx, "ws."+frame.Action)
	defer span.End()
	span.SetAttributes(attribute.Int("user.id", client.UserID()))

	if err := h.apply(actx, service.Actor{UserID: client.UserID()}, frame); err != nil {
		code := service.Code(err)
		message := err.Error()
		if code == service.CodeInternal {
			span.RecordError(err)
			span.SetStatus(codes.Error, "action failed")
			slog.Error("websocket action failed", "action", frame.Action, "user_id", client.UserID(), "error", err)
			message = "internal error"
		}
		client.enqueue(encodeError(code, message, frame.Action, frame.Ref))
	}
}

func (h *Handler) apply(ctx context.Context, actor service.Actor, frame inboundFrame) error {
	switch frame.Action {
	case actionChat:
		_, err := h.chat.Post(ctx, actor, frame.Content)
		return err
	case actionCreateExpense:
		_, err := h.ledger.CreateExpense(ctx, actor, expenseInput(frame))
		return err
	case actionUpdateExpense:
		_, err := h.ledger.UpdateExpense(ctx, actor, frame.ID, expenseInput(frame))
		return err
	case actionDeleteExpense:
		return h.ledger.DeleteExpense(ctx, actor, frame.ID)
	case actionEditMessage:
		_, err := h.chat.Edit(ctx, actor, frame.ID, frame.Content)
		return err
	case actionDeleteMessage:
		return h.chat.Delete(ctx, actor, frame.ID)
	case actionAuth:
		return fmt.Errorf("%w: already authenticated", service.ErrValidation)
	default:
		return fmt.Errorf("%w: unknown action %q", service.ErrValidation, frame.Action)
	}
}

func expenseInput(frame inboundFrame) service.ExpenseInput {
	return service.ExpenseInput{
		Amount:       frame.Amount,
		Description:  frame.Description,
		Participants: frame.Participants,
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
