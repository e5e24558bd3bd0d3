package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/pollchat/internal/gateway"
	"github.com/Tyrowin/pollchat/test/testhelpers"
)

func defaultGatewayOptions() gateway.Options {
	return gateway.Options{
		MaxMessageSize: 512,
		RateLimit:      gateway.RateLimitConfig{Burst: 5, RefillInterval: time.Second},
		PollTimeout:    time.Second,
	}
}

// TestWebSocketReceivesPostedMessage checks that a message posted to the chat
// endpoint is pushed to a WebSocket client watching the group.
func TestWebSocketReceivesPostedMessage(t *testing.T) {
	inst := testhelpers.StartInstance(t, testhelpers.TestConfig())
	gw := testhelpers.StartGateway(t, inst, defaultGatewayOptions())

	alice := testhelpers.Register(t, inst.URL, "alice", "pw")
	group := testhelpers.CreateChat(t, inst.URL, "team", alice)

	conn, err := testhelpers.ConnectWebSocket(gw.URL + "?group=team")
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()
	testhelpers.WaitForWaiters(t, inst.Broker, "team", 1)

	resp := testhelpers.MakeRequest(t, http.MethodPost, inst.URL+"/messages", map[string]any{
		"userId":  alice,
		"groupId": group,
		"content": "over the wire",
	})
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)

	ev, err := testhelpers.ReceiveChange(conn, 2*time.Second)
	if err != nil {
		t.Fatalf("No change event: %v", err)
	}
	if !ev.Change || ev.Group != "team" || ev.Status != "alive" || !ev.Active {
		t.Errorf("Unexpected event: %+v", ev)
	}
}

func TestWebSocketAndLongPollShareNotifications(t *testing.T) {
	inst := testhelpers.StartInstance(t, testhelpers.TestConfig())
	gw := testhelpers.StartGateway(t, inst, defaultGatewayOptions())

	conn, err := testhelpers.ConnectWebSocket(gw.URL + "?group=lobby")
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()
	poll := testhelpers.StartPoll(inst.URL+"/subscribe/status?group=lobby", 5*time.Second)
	testhelpers.WaitForWaiters(t, inst.Broker, "lobby", 2)

	testhelpers.MakeRequest(t, http.MethodPost, inst.URL+"/notify/lobby", nil)

	if _, err := testhelpers.ReceiveChange(conn, 2*time.Second); err != nil {
		t.Errorf("WebSocket client missed the notification: %v", err)
	}
	r := <-poll
	if r.Err != nil {
		t.Fatalf("Poll failed: %v", r.Err)
	}
	testhelpers.AssertStatusCode(t, r.Resp, http.StatusOK)
}

func TestWebSocketSubscriptionChanges(t *testing.T) {
	inst := testhelpers.StartInstance(t, testhelpers.TestConfig())
	gw := testhelpers.StartGateway(t, inst, defaultGatewayOptions())

	conn, err := testhelpers.ConnectWebSocket(gw.URL + "?group=old")
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()
	testhelpers.WaitForWaiters(t, inst.Broker, "old", 1)

	if err := conn.WriteJSON(gateway.ControlMessage{Action: gateway.ActionSubscribe, Group: "new"}); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	if err := conn.WriteJSON(gateway.ControlMessage{Action: gateway.ActionUnsubscribe, Group: "old"}); err != nil {
		t.Fatalf("Failed to unsubscribe: %v", err)
	}
	testhelpers.WaitForWaiters(t, inst.Broker, "new", 1)
	testhelpers.Eventually(t, 2*time.Second, func() bool { return inst.Broker.Waiters("old") == 0 }, "old group released")

	testhelpers.MakeRequest(t, http.MethodPost, inst.URL+"/notify/new", nil)

	ev, err := testhelpers.ReceiveChange(conn, 2*time.Second)
	if err != nil {
		t.Fatalf("No change event: %v", err)
	}
	if ev.Group != "new" {
		t.Errorf("Expected group new, got %q", ev.Group)
	}
}

func TestWebSocketRefusedOnPassiveInstance(t *testing.T) {
	cfg := testhelpers.TestConfig()
	cfg.IsActive = false
	inst := testhelpers.StartInstance(t, cfg)
	gw := testhelpers.StartGateway(t, inst, defaultGatewayOptions())

	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	_, resp, err := dialer.Dial(gw.URL+"?group=lobby", http.Header{"Origin": []string{testhelpers.TestOrigin}})
	if err == nil {
		t.Fatal("Expected upgrade to be refused")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %v", resp)
	}
}
