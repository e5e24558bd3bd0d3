// Package testhelpers starts in-process pollchat instances and talks to them
// the way external clients do.
//
// Instances bind 127.0.0.1:0, so tests can run in parallel without port
// coordination. Every helper registers its own cleanup with t.Cleanup.
package testhelpers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"github.com/Tyrowin/pollchat/internal/auth"
	"github.com/Tyrowin/pollchat/internal/broker"
	"github.com/Tyrowin/pollchat/internal/config"
	"github.com/Tyrowin/pollchat/internal/failover"
	"github.com/Tyrowin/pollchat/internal/gateway"
	"github.com/Tyrowin/pollchat/internal/server"
	"github.com/Tyrowin/pollchat/internal/state"
	"github.com/Tyrowin/pollchat/internal/store"
)

// TestOrigin is the origin allowed by instances started with StartGateway.
const TestOrigin = "http://localhost:8080"

// Instance is one running chat endpoint and its collaborators.
type Instance struct {
	Config config.Config
	Server *server.Server
	State  *state.SystemState
	Broker *broker.Broker
	Store  *store.MemoryStore
	// URL is the base URL of the chat endpoint, e.g. "http://127.0.0.1:40123".
	URL string

	served chan error
}

// TestConfig returns a config with short timeouts suited to tests.
func TestConfig() config.Config {
	return config.Config{
		Port:             "127.0.0.1:0",
		IsActive:         true,
		ReadTimeout:      2 * time.Second,
		PollTimeout:      2 * time.Second,
		FailoverInterval: 50 * time.Millisecond,
		PeerTimeout:      200 * time.Millisecond,
		AllowedOrigins:   []string{TestOrigin},
	}
}

// StartInstance listens on a free port and serves until the test ends.
func StartInstance(t *testing.T, cfg config.Config) *Instance {
	t.Helper()

	b := broker.New()
	st := state.New(state.Options{Active: cfg.IsActive, PeerURL: cfg.PeerURL, IsPrimary: cfg.IsPrimary}, b)
	repo := store.NewMemoryStore()
	srv := server.New(cfg, server.Deps{
		State:  st,
		Broker: b,
		Store:  repo,
		Hasher: auth.NewBcryptHasher(bcrypt.MinCost),
	})
	if err := srv.Listen(); err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	inst := &Instance{
		Config: cfg,
		Server: srv,
		State:  st,
		Broker: b,
		Store:  repo,
		URL:    "http://" + srv.Addr().String(),
		served: make(chan error, 1),
	}
	go func() { inst.served <- srv.Serve() }()
	t.Cleanup(func() { inst.Stop(t) })
	return inst
}

// Stop shuts the instance down. It is safe to call more than once.
func (i *Instance) Stop(t *testing.T) {
	t.Helper()
	if i.served == nil {
		return
	}
	if err := i.Server.Shutdown(2 * time.Second); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
	if err := <-i.served; err != nil {
		t.Errorf("Serve returned error: %v", err)
	}
	i.served = nil
}

// StartFailover runs a failover coordinator for inst against peerURL.
func StartFailover(t *testing.T, inst *Instance, peerURL string) *failover.Coordinator {
	t.Helper()
	c := failover.NewCoordinator(inst.State, peerURL, inst.Config.FailoverInterval, inst.Config.PeerTimeout)
	c.Start(context.Background())
	t.Cleanup(c.Stop)
	return c
}

// CreateTestServer creates a test HTTP server with the given handler.
// It returns a running httptest.Server that is closed by the caller.
func CreateTestServer(handler http.Handler) *httptest.Server {
	return httptest.NewServer(handler)
}

// Gateway is a running WebSocket gateway.
type Gateway struct {
	Hub *gateway.Hub
	// URL is the WebSocket endpoint, e.g. "ws://127.0.0.1:40124/ws".
	URL  string
	HTTP *http.Server
}

// StartGateway serves a WebSocket gateway attached to inst's broker and state.
func StartGateway(t *testing.T, inst *Instance, opts gateway.Options) *Gateway {
	t.Helper()

	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{TestOrigin}
	}
	hub := gateway.NewHub(inst.Broker, inst.State, opts)
	gateway.StartHub(hub)

	ts := CreateTestServer(gateway.SetupRoutes(hub))
	t.Cleanup(func() {
		ts.Close()
		_ = hub.Shutdown(2 * time.Second)
	})

	return &Gateway{
		Hub:  hub,
		URL:  "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
		HTTP: ts.Config,
	}
}

// Response is a decoded chat endpoint response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       map[string]any
	Raw        []byte
}

// MakeRequest sends a request with an optional JSON body and decodes the
// JSON reply. It fails the test on transport errors.
func MakeRequest(t *testing.T, method, url string, body any) *Response {
	t.Helper()
	return MakeRequestTimeout(t, method, url, body, 5*time.Second)
}

// MakeRequestTimeout is MakeRequest with an explicit client timeout.
func MakeRequestTimeout(t *testing.T, method, url string, body any, timeout time.Duration) *Response {
	t.Helper()
	resp, err := Do(method, url, body, timeout)
	if err != nil {
		t.Fatalf("Request %s %s failed: %v", method, url, err)
	}
	return resp
}

// Do sends a request and decodes the reply without touching testing.T, so it
// can run in a background goroutine.
func Do(method, url string, body any, timeout time.Duration) (*Response, error) {
	client := &http.Client{Timeout: timeout}

	var reader io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	out := &Response{StatusCode: resp.StatusCode, Header: resp.Header, Raw: raw}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out.Body); err != nil {
			return nil, fmt.Errorf("response is not JSON: %w: %s", err, raw)
		}
	}
	return out, nil
}

// PollResult is the outcome of a background long-poll.
type PollResult struct {
	Resp *Response
	Err  error
}

// StartPoll issues a GET in the background and delivers its outcome on the
// returned channel.
func StartPoll(url string, timeout time.Duration) <-chan PollResult {
	out := make(chan PollResult, 1)
	go func() {
		resp, err := Do(http.MethodGet, url, nil, timeout)
		out <- PollResult{Resp: resp, Err: err}
	}()
	return out
}

// Register creates a user and returns its id.
func Register(t *testing.T, baseURL, username, password string) int64 {
	t.Helper()
	resp := MakeRequest(t, http.MethodPost, baseURL+"/register", map[string]string{
		"username": username,
		"password": password,
	})
	AssertStatusCode(t, resp, http.StatusOK)
	return int64(resp.Body["user_id"].(float64))
}

// CreateChat creates a group and returns its id.
func CreateChat(t *testing.T, baseURL, name string, creatorID int64, members ...string) int64 {
	t.Helper()
	resp := MakeRequest(t, http.MethodPost, baseURL+"/create-chat", map[string]any{
		"groupName": name,
		"creatorId": creatorID,
		"members":   members,
	})
	AssertStatusCode(t, resp, http.StatusOK)
	return int64(resp.Body["group_id"].(float64))
}

// WaitForWaiters blocks until n contexts wait on group or fails after two seconds.
func WaitForWaiters(t *testing.T, b *broker.Broker, group string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for b.Waiters(group) < n {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %d waiters on %q, have %d", n, group, b.Waiters(group))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Eventually polls cond until it holds or timeout passes.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Condition not met within %v: %s", timeout, msg)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// AssertStatusCode checks the response status.
func AssertStatusCode(t *testing.T, resp *Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d: %s", expected, resp.StatusCode, resp.Raw)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
func AssertContentType(t *testing.T, resp *Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if contentType != expected {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}

// ConnectWebSocket opens a WebSocket to url with the test origin.
func ConnectWebSocket(url string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	headers.Set("Origin", TestOrigin)

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// ReceiveChange reads one change event, waiting at most timeout.
func ReceiveChange(conn *websocket.Conn, timeout time.Duration) (gateway.ChangeEvent, error) {
	var ev gateway.ChangeEvent
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return ev, err
	}
	err := conn.ReadJSON(&ev)
	return ev, err
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
