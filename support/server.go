package support

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

const HeaderServerInstanceId = "X-Server-Instance-Id"

// Server is an http.Server that starts without blocking and shuts down gracefully
type Server struct {
	*http.Server

	serverInstanceId string

	mu        sync.Mutex
	listener  net.Listener
	lastError error
	done      chan struct{}
}

// NewServer creates a server listening on addr, an empty addr listens on ":http"
func NewServer(addr string, handler http.Handler) *Server {
	srv := &Server{serverInstanceId: uuid.NewString()}
	srv.Server = &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	return srv
}

// InstanceId identifies this server instance, it is sent on every response
func (s *Server) InstanceId() string {
	return s.serverInstanceId
}

// Start listens and serves in the background
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Handler == nil {
		return errors.New("no server handler set")
	}
	if s.listener != nil {
		return errors.New("server already started")
	}

	addr := s.Server.Addr
	if addr == "" {
		addr = ":http"
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.listener = listener
	s.done = make(chan struct{})
	s.Handler = &serverHandler{handler: s.Handler, serverInstanceId: s.serverInstanceId}

	go func() {
		defer close(s.done)
		if err := s.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.mu.Lock()
			s.lastError = err
			s.mu.Unlock()
		}
	}()

	return nil
}

// ListenAddr returns the bound address, useful when started on port 0
func (s *Server) ListenAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// IsStarted returns true once Start succeeded
func (s *Server) IsStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener != nil
}

// Stop closes the listener and waits up to timeout for in-flight requests to finish
func (s *Server) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if s.listener == nil {
		s.mu.Unlock()
		return errors.New("server not started")
	}
	done := s.done
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil {
		return err
	}
	<-done

	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = nil
	return s.lastError
}

type serverHandler struct {
	handler          http.Handler
	serverInstanceId string
}

func (sh *serverHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Add(HeaderServerInstanceId, sh.serverInstanceId)
	sh.handler.ServeHTTP(w, r)
}
