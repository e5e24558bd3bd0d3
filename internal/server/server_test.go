package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/pollchat/internal/auth"
	"github.com/Tyrowin/pollchat/internal/broker"
	"github.com/Tyrowin/pollchat/internal/config"
	"github.com/Tyrowin/pollchat/internal/httpwire"
	"github.com/Tyrowin/pollchat/internal/state"
	"github.com/Tyrowin/pollchat/internal/store"
)

type fixture struct {
	srv    *Server
	state  *state.SystemState
	broker *broker.Broker
	store  *store.MemoryStore
}

func testConfig() config.Config {
	return config.Config{
		Port:        "127.0.0.1:0",
		IsActive:    true,
		ReadTimeout: 2 * time.Second,
		PollTimeout: 2 * time.Second,
	}
}

func newFixture(t *testing.T, cfg config.Config) *fixture {
	t.Helper()

	b := broker.New()
	st := state.New(state.Options{Active: cfg.IsActive}, b)
	ms := store.NewMemoryStore()
	srv := New(cfg, Deps{
		State:  st,
		Broker: b,
		Store:  ms,
		Hasher: auth.NewBcryptHasher(4),
	})
	t.Cleanup(func() { srv.cancel() })

	return &fixture{srv: srv, state: st, broker: b, store: ms}
}

// call parses a request as the transport would and runs it through Handle.
func (f *fixture) call(t *testing.T, method, target string, body any) *httpwire.Response {
	t.Helper()
	return f.callCtx(t, context.Background(), method, target, body)
}

func (f *fixture) callCtx(t *testing.T, ctx context.Context, method, target string, body any) *httpwire.Response {
	t.Helper()

	var raw bytes.Buffer
	fmt.Fprintf(&raw, "%s %s HTTP/1.1\r\nHost: test\r\n", method, target)
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		fmt.Fprintf(&raw, "Content-Type: application/json\r\nContent-Length: %d\r\n\r\n", len(payload))
		raw.Write(payload)
	} else {
		raw.WriteString("\r\n")
	}

	req, err := httpwire.Parse(raw.Bytes())
	require.NoError(t, err)
	return f.srv.Handle(ctx, req)
}

// decode renders the response body through JSON, as a client would see it.
func decode(t *testing.T, resp *httpwire.Response) map[string]any {
	t.Helper()
	require.NotNil(t, resp.Body, "response has no body")
	data, err := json.Marshal(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func (f *fixture) register(t *testing.T, username string) int64 {
	t.Helper()
	resp := f.call(t, "POST", "/register", map[string]string{"username": username, "password": "secret"})
	require.Equal(t, 200, resp.Status)
	return int64(decode(t, resp)["user_id"].(float64))
}

func (f *fixture) createChat(t *testing.T, name string, creator int64, members ...string) int64 {
	t.Helper()
	resp := f.call(t, "POST", "/create-chat", map[string]any{
		"groupName": name,
		"creatorId": creator,
		"members":   members,
	})
	require.Equal(t, 200, resp.Status)
	return int64(decode(t, resp)["group_id"].(float64))
}

func (f *fixture) waitForWaiters(t *testing.T, group string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.broker.Waiters(group) >= n
	}, time.Second, 5*time.Millisecond)
}
