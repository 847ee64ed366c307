package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

// ErrUnauthorized means the server rejected the token; reconnecting will not help.
var ErrUnauthorized = errors.New("client: realtime authentication rejected")

const writeWait = 5 * time.Second

// Frame is one server-to-client event.
type Frame struct {
	Event string          `json:"event"`
	Raw   json.RawMessage `json:"-"`
}

type SubscriberConfig struct {
	// URL of the websocket endpoint, e.g. ws://localhost:8080/ws.
	URL             string
	MaxAttempts     uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	AuthWait        time.Duration
	// ReadTimeout bounds the silence between frames or server pings.
	ReadTimeout     time.Duration
}

// Subscriber keeps one realtime session open, reconnecting with exponential
// backoff. Resync runs after every successful (re)connect so the caller can
// refetch state it may have missed while disconnected.
type Subscriber struct {
	cfg     SubscriberConfig
	token   func() string
	dialer  *websocket.Dialer
	onEvent func(Frame)
	resync  func(context.Context) error
}

func NewSubscriber(cfg SubscriberConfig, token func() string, onEvent func(Frame), resync func(context.Context) error) *Subscriber {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 30 * time.Second
	}
	if cfg.AuthWait <= 0 {
		cfg.AuthWait = 10 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 75 * time.Second
	}
	if onEvent == nil {
		onEvent = func(Frame) {}
	}
	if resync == nil {
		resync = func(context.Context) error { return nil }
	}
	return &Subscriber{
		cfg:     cfg,
		token:   token,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		onEvent: onEvent,
		resync:  resync,
	}
}

// Run blocks until ctx is done, the token is rejected, or a reconnect
// exhausts its attempts.
func (s *Subscriber) Run(ctx context.Context) error {
	for {
		conn, err := backoff.RetryNotifyWithData(func() (*websocket.Conn, error) {
			return s.open(ctx)
		}, s.newBackOff(ctx), func(err error, wait time.Duration) {
			slog.Warn("realtime connect failed", "error", err, "retry_in", wait)
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		err = s.listen(ctx, conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("realtime connection lost", "error", err)
	}
}

func (s *Subscriber) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.InitialInterval
	b.MaxInterval = s.cfg.MaxInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, s.cfg.MaxAttempts), ctx)
}

// open dials, waits for the authenticated frame and runs resync.
func (s *Subscriber) open(ctx context.Context) (*websocket.Conn, error) {
	token := s.token()
	if token == "" {
		return nil, backoff.Permanent(ErrNotLoggedIn)
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := s.dialer.DialContext(ctx, s.cfg.URL, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, backoff.Permanent(ErrUnauthorized)
		}
		return nil, err
	}

	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.AuthWait))
	if err := awaitAuthenticated(conn); err != nil {
		conn.Close()
		return nil, err
	}

	if err := s.resync(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("client: resync: %w", err)
	}
	slog.Info("realtime session active", "url", s.cfg.URL)
	return conn, nil
}

// awaitAuthenticated reads until the server acknowledges the token. Events
// broadcast before the ack are skipped; the resync that follows covers them.
func awaitAuthenticated(conn *websocket.Conn) error {
	for {
		frame, err := readFrame(conn)
		if err != nil {
			return err
		}
		switch frame.Event {
		case "authenticated":
			return nil
		case "error":
			return backoff.Permanent(ErrUnauthorized)
		default:
			slog.Debug("skipping frame before authentication", "event", frame.Event)
		}
	}
}

// listen delivers frames until the connection fails. Every frame and every
// server ping pushes the read deadline forward, so a silent peer is detected
// within ReadTimeout.
func (s *Subscriber) listen(ctx context.Context, conn *websocket.Conn) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	extend := func() { _ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)) }
	conn.SetPingHandler(func(data string) error {
		extend()
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if err == nil || errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil
		}
		return err
	})
	extend()

	for {
		frame, err := readFrame(conn)
		if err != nil {
			return err
		}
		extend()
		s.onEvent(frame)
	}
}

func readFrame(conn *websocket.Conn) (Frame, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return Frame{}, fmt.Errorf("client: decode frame: %w", err)
	}
	frame.Raw = data
	return frame, nil
}
