package protocol

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/recassity/mgba-bridge/internal/chatbuffer"
	"github.com/recassity/mgba-bridge/internal/config"
	"github.com/recassity/mgba-bridge/internal/llm"
)

// DefaultAddr is the fixed loopback listen address spec.md §4.4/§6 names.
const DefaultAddr = "127.0.0.1:8888"

// Server is the TCP listener enforcing "at most one active connection;
// a new accept closes and replaces the previous session."
type Server struct {
	addr     string
	provider llm.Provider
	buf      *chatbuffer.Buffer
	cfgStore *config.Store
	prompt   *llm.PromptTemplate

	mu          sync.Mutex
	listener    net.Listener
	cancelPrior context.CancelFunc
}

// NewServer constructs a Server bound to addr (use DefaultAddr in
// production; tests use an ephemeral "127.0.0.1:0").
func NewServer(addr string, cfgStore *config.Store, provider llm.Provider, buf *chatbuffer.Buffer, prompt *llm.PromptTemplate) *Server {
	return &Server{addr: addr, cfgStore: cfgStore, provider: provider, buf: buf, prompt: prompt}
}

// Start binds the listener and runs the accept loop until ctx is
// cancelled. A bind failure is spec.md §7's Fatal kind — it aborts
// service start rather than retrying.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("protocol: listen %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				log.Warn().Err(err).Msg("protocol: accept failed")
				return err
			}
		}
		s.handleAccept(ctx, conn)
	}
}

// handleAccept replaces any in-flight session with a fresh one, per
// spec.md §4.4's "a new accept closes and replaces the previous
// session, resetting per-connection state."
func (s *Server) handleAccept(ctx context.Context, conn net.Conn) {
	s.mu.Lock()
	if s.cancelPrior != nil {
		s.cancelPrior()
	}
	sessCtx, cancel := context.WithCancel(ctx)
	s.cancelPrior = cancel
	s.mu.Unlock()

	snap, err := s.cfgStore.Snapshot()
	if err != nil {
		log.Error().Err(err).Msg("protocol: failed to read config snapshot on accept")
		conn.Close()
		return
	}

	sess := NewSession(conn, snap, s.provider, s.buf, s.prompt)
	go sess.Run(sessCtx)
}

// Addr returns the bound address, useful when addr was "host:0".
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop cancels the accept loop and any active session by closing the listener.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelPrior != nil {
		s.cancelPrior()
	}
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}
