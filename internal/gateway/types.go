package gateway

import (
	"context"
	"strings"
	"time"

	"github.com/Tyrowin/pollchat/internal/state"
)

// Control actions a client may send.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// ControlMessage is the JSON frame clients send to change their subscriptions.
type ControlMessage struct {
	Action string `json:"action"`
	Group  string `json:"group"`
}

// ChangeEvent is pushed to a client when one of its groups is notified.
type ChangeEvent struct {
	Change bool   `json:"change"`
	Group  string `json:"group"`
	Status string `json:"status"`
	Active bool   `json:"active"`
}

// Waiter blocks until any of the named groups is notified.
type Waiter interface {
	WaitOnAnyOf(ctx context.Context, names []string, timeout time.Duration) (bool, string)
}

// StatusReader exposes the instance's liveness and role.
type StatusReader interface {
	Snapshot() state.Status
}

// RateLimitConfig bounds how many control messages a client may send.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Options configure the hub and the clients it serves.
type Options struct {
	AllowedOrigins []string
	MaxMessageSize int64
	RateLimit      RateLimitConfig
	// PollTimeout bounds a single broker wait. Clients re-arm after it expires.
	PollTimeout time.Duration
}

// delivery is a payload queued for one client.
type delivery struct {
	client  *Client
	payload []byte
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
