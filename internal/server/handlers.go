package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Tyrowin/pollchat/internal/httpwire"
)

// handleHealth reports liveness and role. A down instance answers 503.
func (s *Server) handleHealth(_ context.Context, _ *httpwire.Request) (*httpwire.Response, error) {
	st := s.state.Snapshot()
	if !st.Alive {
		return httpwire.JSON(http.StatusServiceUnavailable, statusResponse{Status: "down", Active: false}), nil
	}
	return httpwire.JSON(http.StatusOK, statusResponse{Status: "alive", Active: st.Active}), nil
}

// handleHealthHead answers like GET /health without a payload.
func (s *Server) handleHealthHead(ctx context.Context, req *httpwire.Request) (*httpwire.Response, error) {
	resp, err := s.handleHealth(ctx, req)
	if err != nil {
		return nil, err
	}
	resp.OmitBody = true
	return resp, nil
}

// handleFall simulates an outage: the instance stops serving everything but
// the whitelisted paths.
func (s *Server) handleFall(_ context.Context, _ *httpwire.Request) (*httpwire.Response, error) {
	s.state.SetAlive(false)
	return httpwire.JSON(http.StatusOK, statusResponse{Status: "system down", Active: s.state.Active()}), nil
}

func (s *Server) handleRevive(_ context.Context, _ *httpwire.Request) (*httpwire.Response, error) {
	s.state.SetAlive(true)
	return httpwire.JSON(http.StatusOK, statusResponse{Status: "system revived", Active: s.state.Active()}), nil
}

// handleNotify serves POST /notify/{group} and POST /notify/all.
func (s *Server) handleNotify(_ context.Context, req *httpwire.Request) (*httpwire.Response, error) {
	target := strings.TrimPrefix(req.Path, "/notify/")
	if target == "" || strings.Contains(target, "/") {
		return nil, badRequest("Malformed notify path, expected /notify/{group} or /notify/all")
	}
	group, err := url.PathUnescape(target)
	if err != nil || group == "" {
		return nil, badRequest("Malformed notify path, expected /notify/{group} or /notify/all")
	}

	if group == "all" {
		s.broker.NotifyAll()
		return httpwire.JSON(http.StatusOK, map[string]string{"message": "Notified all groups"}), nil
	}
	s.broker.NotifyGroup(group)
	return httpwire.JSON(http.StatusOK, map[string]string{"message": fmt.Sprintf("Notified group %s", group)}), nil
}
