package integration

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/Tyrowin/pollchat/test/testhelpers"
)

// TestHealthEndpointIntegration checks the health route and the headers every
// response carries.
func TestHealthEndpointIntegration(t *testing.T) {
	inst := testhelpers.StartInstance(t, testhelpers.TestConfig())

	resp := testhelpers.MakeRequest(t, http.MethodGet, inst.URL+"/health", nil)

	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	testhelpers.AssertContentType(t, resp, "application/json")
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("Expected CORS origin header, got %q", resp.Header.Get("Access-Control-Allow-Origin"))
	}
	if resp.Body["status"] != "alive" || resp.Body["active"] != true {
		t.Errorf("Unexpected health body: %s", resp.Raw)
	}
}

func TestOptionsPreflight(t *testing.T) {
	inst := testhelpers.StartInstance(t, testhelpers.TestConfig())
	inst.State.SetAlive(false)

	resp := testhelpers.MakeRequest(t, http.MethodOptions, inst.URL+"/messages", nil)

	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	if len(resp.Raw) != 0 {
		t.Errorf("Expected empty preflight body, got %q", resp.Raw)
	}
}

// TestFallAndRevive walks the liveness cycle and the middleware's refusal of
// existing routes while down.
func TestFallAndRevive(t *testing.T) {
	inst := testhelpers.StartInstance(t, testhelpers.TestConfig())

	testhelpers.AssertStatusCode(t, testhelpers.MakeRequest(t, http.MethodPost, inst.URL+"/fall", nil), http.StatusOK)

	resp := testhelpers.MakeRequest(t, http.MethodGet, inst.URL+"/health", nil)
	testhelpers.AssertStatusCode(t, resp, http.StatusServiceUnavailable)
	if resp.Body["status"] != "down" || resp.Body["active"] != false {
		t.Errorf("Unexpected health body while down: %s", resp.Raw)
	}

	resp = testhelpers.MakeRequest(t, http.MethodGet, inst.URL+"/chats?userId=1", nil)
	testhelpers.AssertStatusCode(t, resp, http.StatusServiceUnavailable)
	if resp.Body["error"] != "not alive" {
		t.Errorf("Expected not alive, got %s", resp.Raw)
	}

	testhelpers.AssertStatusCode(t, testhelpers.MakeRequest(t, http.MethodPost, inst.URL+"/revive", nil), http.StatusOK)

	resp = testhelpers.MakeRequest(t, http.MethodGet, inst.URL+"/health", nil)
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	if resp.Body["status"] != "alive" || resp.Body["active"] != true {
		t.Errorf("Unexpected health body after revive: %s", resp.Raw)
	}
}

func TestLoginDoesNotCreateAccounts(t *testing.T) {
	inst := testhelpers.StartInstance(t, testhelpers.TestConfig())

	resp := testhelpers.MakeRequest(t, http.MethodPost, inst.URL+"/login", map[string]string{"username": "a", "password": "p"})
	testhelpers.AssertStatusCode(t, resp, http.StatusUnauthorized)

	id := testhelpers.Register(t, inst.URL, "a", "p")

	resp = testhelpers.MakeRequest(t, http.MethodPost, inst.URL+"/login", map[string]string{"username": "a", "password": "p"})
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	if int64(resp.Body["user_id"].(float64)) != id {
		t.Errorf("Expected user_id %d, got %s", id, resp.Raw)
	}
}

// TestPostedMessageWakesSubscribers covers the full chat flow: a message
// posted over HTTP wakes both a group poller and a user poller.
func TestPostedMessageWakesSubscribers(t *testing.T) {
	inst := testhelpers.StartInstance(t, testhelpers.TestConfig())

	alice := testhelpers.Register(t, inst.URL, "alice", "pw")
	bob := testhelpers.Register(t, inst.URL, "bob", "pw")
	group := testhelpers.CreateChat(t, inst.URL, "team", alice, "bob")

	groupPoll := testhelpers.StartPoll(inst.URL+"/subscribe/status?group=team", 5*time.Second)
	userPoll := testhelpers.StartPoll(fmt.Sprintf("%s/subscribe/user?user_id=%d", inst.URL, bob), 5*time.Second)
	testhelpers.WaitForWaiters(t, inst.Broker, "team", 2)

	resp := testhelpers.MakeRequest(t, http.MethodPost, inst.URL+"/messages", map[string]any{
		"userId":  alice,
		"groupId": group,
		"content": "hello team",
	})
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)

	r := <-groupPoll
	if r.Err != nil {
		t.Fatalf("Group poll failed: %v", r.Err)
	}
	testhelpers.AssertStatusCode(t, r.Resp, http.StatusOK)
	if r.Resp.Body["group"] != "team" || r.Resp.Body["change"] != true {
		t.Errorf("Unexpected group poll body: %s", r.Resp.Raw)
	}

	r = <-userPoll
	if r.Err != nil {
		t.Fatalf("User poll failed: %v", r.Err)
	}
	testhelpers.AssertStatusCode(t, r.Resp, http.StatusOK)
	if r.Resp.Body["notified_group"] != "team" {
		t.Errorf("Expected notified_group team, got %s", r.Resp.Raw)
	}
	recent, _ := r.Resp.Body["recent_messages"].([]any)
	if len(recent) != 1 || recent[0].(map[string]any)["content"] != "hello team" {
		t.Errorf("Unexpected recent_messages: %s", r.Resp.Raw)
	}
}

// TestLongPollTimesOut checks that an idle poll answers 204 at the end of the
// window and not before.
func TestLongPollTimesOut(t *testing.T) {
	cfg := testhelpers.TestConfig()
	cfg.PollTimeout = 300 * time.Millisecond
	inst := testhelpers.StartInstance(t, cfg)

	start := time.Now()
	resp := testhelpers.MakeRequest(t, http.MethodGet, inst.URL+"/subscribe/status?group=quiet", nil)
	elapsed := time.Since(start)

	testhelpers.AssertStatusCode(t, resp, http.StatusNoContent)
	if elapsed < cfg.PollTimeout {
		t.Errorf("Poll returned after %v, before the %v window", elapsed, cfg.PollTimeout)
	}
}

func TestNotifyAllIntegration(t *testing.T) {
	inst := testhelpers.StartInstance(t, testhelpers.TestConfig())

	groups := []string{"red", "green", "blue"}
	polls := make([]<-chan testhelpers.PollResult, len(groups))
	for i, g := range groups {
		polls[i] = testhelpers.StartPoll(inst.URL+"/subscribe/status?group="+g, 5*time.Second)
	}
	for _, g := range groups {
		testhelpers.WaitForWaiters(t, inst.Broker, g, 1)
	}

	testhelpers.AssertStatusCode(t, testhelpers.MakeRequest(t, http.MethodPost, inst.URL+"/notify/all", nil), http.StatusOK)

	for i, g := range groups {
		r := <-polls[i]
		if r.Err != nil {
			t.Fatalf("Poll on %s failed: %v", g, r.Err)
		}
		testhelpers.AssertStatusCode(t, r.Resp, http.StatusOK)
		if r.Resp.Body["group"] != g {
			t.Errorf("Expected group %s, got %s", g, r.Resp.Raw)
		}
	}
}

// TestReviveWhileAliveDoesNotWake checks that a no-op state transition does
// not broadcast.
func TestReviveWhileAliveDoesNotWake(t *testing.T) {
	cfg := testhelpers.TestConfig()
	cfg.PollTimeout = 400 * time.Millisecond
	inst := testhelpers.StartInstance(t, cfg)

	poll := testhelpers.StartPoll(inst.URL+"/subscribe/status?group=lobby", 5*time.Second)
	testhelpers.WaitForWaiters(t, inst.Broker, "lobby", 1)

	testhelpers.MakeRequest(t, http.MethodPost, inst.URL+"/revive", nil)

	r := <-poll
	if r.Err != nil {
		t.Fatalf("Poll failed: %v", r.Err)
	}
	testhelpers.AssertStatusCode(t, r.Resp, http.StatusNoContent)
}
