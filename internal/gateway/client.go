package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/exp/slices"
)

// Client is one WebSocket connection and the groups it watches.
type Client struct {
	id             string
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	addr           string
	closed         bool
	maxMessageSize int64
	limiter        *controlBucket
	rateLimit      RateLimitConfig

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	groups []string
	// rearm interrupts the current broker wait after a subscription change.
	rearm chan struct{}
}

// NewClient creates a client on conn watching groups. The send queue is
// buffered so a slow reader does not stall the hub.
func NewClient(conn *websocket.Conn, hub *Hub, addr string, groups []string) *Client {
	if conn != nil {
		conn.SetReadLimit(hub.opts.MaxMessageSize)
	}
	ctx, cancel := context.WithCancel(hub.ctx)

	c := &Client{
		id:             uuid.NewString(),
		conn:           conn,
		send:           make(chan []byte, 256),
		hub:            hub,
		addr:           addr,
		maxMessageSize: hub.opts.MaxMessageSize,
		limiter:        newControlBucket(hub.opts.RateLimit, nil),
		rateLimit:      hub.opts.RateLimit,
		ctx:            ctx,
		cancel:         cancel,
		rearm:          make(chan struct{}, 1),
	}
	for _, g := range groups {
		c.addGroup(g)
	}
	return c
}

// Groups returns the current subscriptions, sorted.
func (c *Client) Groups() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.groups)
}

func (c *Client) hasGroup(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, found := slices.BinarySearch(c.groups, name)
	return found
}

func (c *Client) addGroup(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	i, found := slices.BinarySearch(c.groups, name)
	if found {
		return false
	}
	c.groups = slices.Insert(c.groups, i, name)
	return true
}

func (c *Client) removeGroup(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, found := slices.BinarySearch(c.groups, strings.TrimSpace(name))
	if !found {
		return false
	}
	c.groups = slices.Delete(c.groups, i, i+1)
	return true
}

func (c *Client) signalRearm() {
	select {
	case c.rearm <- struct{}{}:
	default:
	}
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		log.Printf("Error setting initial read deadline for %s: %v", c.addr, err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
			log.Printf("Error setting read deadline in pong handler for %s: %v", c.addr, err)
		}
		return nil
	})
}

// handleReadError logs the error by kind. Every read error ends the read loop.
func (c *Client) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		log.Printf("Message from %s exceeded maximum size of %d bytes", c.addr, c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		log.Printf("Client %s disconnected: %v", c.addr, err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		log.Printf("Client %s connection closed: %v", c.addr, err)
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		log.Printf("Unexpected WebSocket error from %s: %v", c.addr, err)
	default:
		log.Printf("WebSocket read error from %s: %v", c.addr, err)
	}
}

// checkRateLimit reports whether the next control message may be processed.
func (c *Client) checkRateLimit() bool {
	if c.limiter == nil {
		return true
	}
	ok, dropped := c.limiter.take()
	if !ok {
		log.Printf("Rate limit exceeded for %s (%d messages per %s); discarded %d so far", c.addr, c.rateLimit.Burst, c.rateLimit.RefillInterval, dropped)
	}
	return ok
}

// processMessage applies one control message and reports whether it changed
// the subscription set.
func (c *Client) processMessage(rawMessage []byte) bool {
	var msg ControlMessage
	if err := json.Unmarshal(rawMessage, &msg); err != nil {
		log.Printf("Invalid control message from %s: %v", c.addr, err)
		return false
	}

	var changed bool
	switch msg.Action {
	case ActionSubscribe:
		changed = c.addGroup(msg.Group)
	case ActionUnsubscribe:
		changed = c.removeGroup(msg.Group)
	default:
		log.Printf("Unknown action %q from %s", msg.Action, c.addr)
		return false
	}

	if changed {
		log.Printf("Client %s %sd group %q, now watching %v", c.id, msg.Action, msg.Group, c.Groups())
		c.signalRearm()
	}
	return changed
}

func (c *Client) readPump() {
	defer func() {
		c.cancel()
		c.hub.leave(c)
		if err := c.conn.Close(); err != nil {
			if !isExpectedCloseError(err) {
				log.Printf("Error closing connection in readPump: %v", err)
			}
		}
	}()

	c.setupReadConnection()

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		if !c.checkRateLimit() {
			continue
		}

		c.processMessage(rawMessage)
	}
}

// watchPump waits on the broker for any subscribed group and queues a change
// event for each wake-up. A subscription change restarts the wait.
func (c *Client) watchPump() {
	for c.ctx.Err() == nil {
		notified, group := c.waitOnce()
		if !notified || !c.hasGroup(group) {
			continue
		}

		st := c.hub.status.Snapshot()
		payload, err := json.Marshal(ChangeEvent{
			Change: true,
			Group:  group,
			Status: statusWord(st.Alive),
			Active: st.Active,
		})
		if err != nil {
			log.Printf("Error encoding change event for %s: %v", c.addr, err)
			continue
		}
		c.hub.send(c, payload)
	}
}

func (c *Client) waitOnce() (bool, string) {
	ctx, cancel := context.WithCancel(c.ctx)
	defer cancel()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-c.rearm:
			cancel()
		case <-stop:
		}
	}()

	return c.hub.waiter.WaitOnAnyOf(ctx, c.Groups(), c.hub.opts.PollTimeout)
}

func statusWord(alive bool) string {
	if alive {
		return "alive"
	}
	return "down"
}

func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	case <-c.ctx.Done():
		return false
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error closing connection in writePump: %v", err)
		}
	}
}

// handleMessage processes outgoing messages and returns false if the connection should be closed
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		log.Printf("Error setting write deadline for %s: %v", c.addr, err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	return c.writeTextMessage(message)
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing close message to %s: %v", c.addr, err)
		}
	}
	return false
}

// writeTextMessage writes one change event per frame.
func (c *Client) writeTextMessage(message []byte) bool {
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing message to %s: %v", c.addr, err)
		}
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		log.Printf("Error setting write deadline for ping to %s: %v", c.addr, err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		log.Printf("Error writing ping message to %s: %v", c.addr, err)
		return false
	}
	return true
}
