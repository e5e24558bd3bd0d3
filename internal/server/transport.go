package server

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Tyrowin/pollchat/internal/broker"
	"github.com/Tyrowin/pollchat/internal/config"
	"github.com/Tyrowin/pollchat/internal/httpwire"
	"github.com/Tyrowin/pollchat/internal/state"
	"github.com/Tyrowin/pollchat/internal/store"
)

var errRequestTooLarge = errors.New("request exceeds maximum size")

// Repository is the persistence collaborator the handlers depend on.
type Repository interface {
	CreateUser(username, passwordHash string) (store.User, error)
	UserByID(id int64) (store.User, error)
	UserByName(username string) (store.User, error)
	SearchUsers(filter string) []store.User
	GroupsForUser(userID int64) ([]store.Group, error)
	GroupByID(id int64) (store.Group, error)
	GroupMembers(groupID int64) ([]store.User, error)
	CreateGroup(name string, memberIDs []int64) (store.Group, error)
	AddMessage(senderID, groupID int64, content string) (store.Message, error)
	Messages(groupID int64) ([]store.Message, error)
	DeleteMessage(id int64) (store.Message, error)
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// Deps are the collaborators a Server routes requests to.
type Deps struct {
	State  *state.SystemState
	Broker *broker.Broker
	Store  Repository
	Hasher PasswordHasher
}

// Server accepts TCP connections and serves one request on each.
// Every connection runs in its own goroutine. When MaxConnections is set,
// connections beyond the cap are answered with 503 and closed.
type Server struct {
	cfg    config.Config
	state  *state.SystemState
	broker *broker.Broker
	store  Repository
	hasher PasswordHasher
	routes *Router

	mu       sync.Mutex
	listener net.Listener
	slots    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a server. Call Listen and Serve, or ListenAndServe, to run it.
func New(cfg config.Config, deps Deps) *Server {
	cfg = config.Sanitize(cfg)
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:    cfg,
		state:  deps.State,
		broker: deps.Broker,
		store:  deps.Store,
		hasher: deps.Hasher,
		ctx:    ctx,
		cancel: cancel,
	}
	if cfg.MaxConnections > 0 {
		s.slots = make(chan struct{}, cfg.MaxConnections)
	}
	s.routes = SetupRoutes(s)
	return s
}

// Listen binds the configured address.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Port)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ListenAndServe binds and serves until Shutdown.
func (s *Server) ListenAndServe() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Serve runs the accept loop. It returns nil after Shutdown.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("server: Serve called before Listen")
	}

	log.Printf("Chat endpoint listening on %s", ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Printf("Accept error: %v", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}

		s.wg.Add(1)
		if !s.acquireSlot() {
			go func() {
				defer s.wg.Done()
				s.reject(conn)
			}()
			continue
		}
		go func() {
			defer s.wg.Done()
			defer s.releaseSlot()
			s.handleConn(conn)
		}()
	}
}

// Shutdown stops accepting, cancels in-flight long-polls, and waits up to
// timeout for connections to finish.
func (s *Server) Shutdown(timeout time.Duration) error {
	log.Println("Shutting down chat endpoint...")

	s.cancel()
	s.mu.Lock()
	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Printf("Error closing listener: %v", err)
		}
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Chat endpoint shutdown completed")
		return nil
	case <-time.After(timeout):
		log.Println("Chat endpoint shutdown timeout reached, some connections may still be open")
		return context.DeadlineExceeded
	}
}

func (s *Server) acquireSlot() bool {
	if s.slots == nil {
		return true
	}
	select {
	case s.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Server) releaseSlot() {
	if s.slots != nil {
		<-s.slots
	}
}

func (s *Server) reject(conn net.Conn) {
	defer conn.Close()
	log.Printf("Rejecting connection from %s: connection limit %d reached", conn.RemoteAddr(), s.cfg.MaxConnections)
	s.write(conn, errorResponse(unavailable("too many connections")))
}

func (s *Server) handleConn(conn net.Conn) {
	id := uuid.NewString()
	log.Printf("[%s] Connection accepted from %s", id, conn.RemoteAddr())
	defer func() {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Printf("[%s] Error closing connection: %v", id, err)
		}
		log.Printf("[%s] Connection closed", id)
	}()

	raw, err := s.readRequest(conn)
	if err != nil {
		if errors.Is(err, errRequestTooLarge) {
			s.write(conn, httpwire.Error(http.StatusBadRequest, "Request too large"))
			return
		}
		log.Printf("[%s] Abandoning connection: %v", id, err)
		return
	}

	s.write(conn, s.respond(id, raw))
}

// readRequest reads until the header terminator plus any Content-Length body,
// all within ReadTimeout. A timeout before the headers complete abandons the
// connection.
func (s *Server) readRequest(conn net.Conn) ([]byte, error) {
	if err := conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
		return nil, err
	}
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	headerEnd := -1

	for {
		if headerEnd >= 0 {
			need := headerEnd + httpwire.ContentLength(buf[:headerEnd])
			if need > s.cfg.MaxRequestSize {
				return nil, errRequestTooLarge
			}
			if len(buf) >= need {
				return buf[:need], nil
			}
		}

		n, err := conn.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if len(buf) > s.cfg.MaxRequestSize {
			return nil, errRequestTooLarge
		}
		if headerEnd < 0 {
			headerEnd = httpwire.HeaderEnd(buf)
		}

		if err != nil {
			// A peer that half-closes after sending still gets an answer.
			if errors.Is(err, io.EOF) && len(buf) > 0 {
				return buf, nil
			}
			return nil, err
		}
	}
}

// respond parses and dispatches raw. A panic in a handler becomes a 500.
func (s *Server) respond(id string, raw []byte) (resp *httpwire.Response) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[%s] Recovered from panic while handling request: %v", id, r)
			resp = httpwire.Error(http.StatusInternalServerError, "Internal Server Error")
		}
	}()

	req, err := httpwire.Parse(raw)
	if err != nil {
		log.Printf("[%s] Bad request: %v", id, err)
		return httpwire.Error(http.StatusBadRequest, "Bad Request")
	}
	log.Printf("[%s] %s %s", id, req.Method, req.Target)

	return s.Handle(s.ctx, req)
}

func (s *Server) write(conn net.Conn, resp *httpwire.Response) {
	if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
		log.Printf("Error setting write deadline for %s: %v", conn.RemoteAddr(), err)
		return
	}
	if _, err := conn.Write(resp.Bytes()); err != nil {
		log.Printf("Error writing response to %s: %v", conn.RemoteAddr(), err)
	}
}
