package failover

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// PeerStatus is the body of a peer's GET /health.
type PeerStatus struct {
	Status string `json:"status"`
	Active bool   `json:"active"`
}

// PeerClient queries the health endpoint of the other instance.
type PeerClient struct {
	httpClient *http.Client
}

// NewPeerClient returns a client whose requests are bounded by timeout.
func NewPeerClient(timeout time.Duration) *PeerClient {
	return &PeerClient{httpClient: &http.Client{Timeout: timeout}}
}

// healthURL accepts both full URLs and host:port forms.
func healthURL(addr string) string {
	url := addr
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		url = "http://" + addr
	}
	if !strings.HasSuffix(url, "/health") {
		url = strings.TrimRight(url, "/") + "/health"
	}
	return url
}

// Health fetches the peer's status. Network errors, timeouts, and non-2xx
// responses are all errors.
func (p *PeerClient) Health(ctx context.Context, addr string) (PeerStatus, error) {
	url := healthURL(addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return PeerStatus{}, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return PeerStatus{}, fmt.Errorf("peer health request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return PeerStatus{}, fmt.Errorf("peer health returned status %d", resp.StatusCode)
	}

	var status PeerStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return PeerStatus{}, fmt.Errorf("decode peer health: %w", err)
	}
	return status, nil
}
