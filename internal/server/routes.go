package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/Tyrowin/pollchat/internal/httpwire"
)

// HandlerFunc serves one parsed request.
type HandlerFunc func(ctx context.Context, req *httpwire.Request) (*httpwire.Response, error)

type prefixRoute struct {
	method  string
	prefix  string
	handler HandlerFunc
}

// Router dispatches on method and path. Exact routes win over prefix routes.
type Router struct {
	exact    map[string]HandlerFunc
	prefixes []prefixRoute
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{exact: make(map[string]HandlerFunc)}
}

func routeKey(method, path string) string {
	return method + " " + path
}

// Handle registers handler for an exact method and path.
func (r *Router) Handle(method, path string, handler HandlerFunc) {
	r.exact[routeKey(method, path)] = handler
}

// HandlePrefix registers handler for every path under prefix.
func (r *Router) HandlePrefix(method, prefix string, handler HandlerFunc) {
	r.prefixes = append(r.prefixes, prefixRoute{method: method, prefix: prefix, handler: handler})
}

// Match finds the handler for method and path.
func (r *Router) Match(method, path string) (HandlerFunc, bool) {
	if h, ok := r.exact[routeKey(method, path)]; ok {
		return h, true
	}
	for _, route := range r.prefixes {
		if route.method == method && strings.HasPrefix(path, route.prefix) {
			return route.handler, true
		}
	}
	return nil, false
}

// SetupRoutes registers every chat endpoint route on a new Router.
func SetupRoutes(s *Server) *Router {
	r := NewRouter()

	r.Handle(http.MethodGet, "/health", s.handleHealth)
	r.Handle(http.MethodHead, "/health", s.handleHealthHead)
	r.Handle(http.MethodHead, "/", s.handleHealthHead)
	r.Handle(http.MethodPost, "/fall", s.handleFall)
	r.Handle(http.MethodPost, "/revive", s.handleRevive)
	r.HandlePrefix(http.MethodPost, "/notify/", s.handleNotify)

	r.Handle(http.MethodPost, "/login", s.handleLogin)
	r.Handle(http.MethodPost, "/register", s.handleRegister)
	r.Handle(http.MethodGet, "/users", s.handleUsers)
	r.Handle(http.MethodGet, "/chats", s.handleChats)
	r.Handle(http.MethodPost, "/create-chat", s.handleCreateChat)
	r.Handle(http.MethodGet, "/group-users", s.handleGroupUsers)
	r.Handle(http.MethodGet, "/messages", s.handleGetMessages)
	r.Handle(http.MethodPost, "/messages", s.handlePostMessage)
	r.Handle(http.MethodDelete, "/messages", s.handleDeleteMessage)

	r.Handle(http.MethodGet, "/subscribe/status", s.handleSubscribeStatus)
	r.Handle(http.MethodGet, "/subscribe/user", s.handleSubscribeUser)

	return r
}
