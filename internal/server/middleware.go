package server

import (
	"context"
	"net/http"

	"github.com/Tyrowin/pollchat/internal/httpwire"
)

// alwaysAllowed are the health-check and state-transition paths. They are
// served whatever the system state.
var alwaysAllowed = map[string]bool{
	"/health": true,
	"/fall":   true,
	"/revive": true,
}

func isAlwaysAllowed(req *httpwire.Request) bool {
	return alwaysAllowed[req.Path] || (req.Method == http.MethodHead && req.Path == "/")
}

// admit gates req against the system state before any handler runs. It
// returns nil when the request may proceed.
func (s *Server) admit(req *httpwire.Request) error {
	if isAlwaysAllowed(req) {
		return nil
	}
	st := s.state.Snapshot()
	if !st.Alive {
		return unavailable("not alive")
	}
	if !st.Active {
		return unavailable("not active")
	}
	return nil
}

// Handle runs req through the middleware and the router.
//
// OPTIONS always succeeds with headers only. Other requests are admitted or
// refused with 503 first, so an existing route is never reported as 404 while
// the instance cannot serve it.
func (s *Server) Handle(ctx context.Context, req *httpwire.Request) *httpwire.Response {
	if req.Method == http.MethodOptions {
		return &httpwire.Response{Status: http.StatusOK, ContentType: httpwire.ContentTypeJSON}
	}

	if err := s.admit(req); err != nil {
		return errorResponse(err)
	}

	handler, ok := s.routes.Match(req.Method, req.Path)
	if !ok {
		return httpwire.Error(http.StatusNotFound, "Not Found")
	}

	resp, err := handler(ctx, req)
	if err != nil {
		return errorResponse(err)
	}
	return resp
}
