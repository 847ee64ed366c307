package ws

import "time"

type ConnInfo struct {
	ConnID      string
	UserID      int
	UserAgent   string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
