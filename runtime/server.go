package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/moderation"
	"chat-relay/protocol"
)

// Server accepts connections and hands each one to a fresh Session bound
// to the shared registry and persistence gateway. Sessions run
// independently: no single connection's failure may reach the accept loop
// or another session.
type Server struct {
	cfg       Config
	log       *slog.Logger
	registry  *Registry
	gateway   contract.Gateway
	moderator *moderation.Moderator

	mu       sync.Mutex
	listener net.Listener
	sessions map[*Session]struct{}
	stopping bool

	wg   sync.WaitGroup
	once sync.Once
}

// NewServer wires the relay. moderator may be nil; group content then
// passes through untouched.
func NewServer(log *slog.Logger, cfg Config, registry *Registry,
	gateway contract.Gateway, moderator *moderation.Moderator) *Server {
	return &Server{
		cfg:       cfg.withDefaults(),
		log:       log,
		registry:  registry,
		gateway:   gateway,
		moderator: moderator,
		sessions:  make(map[*Session]struct{}),
	}
}

// Listen binds the configured address and accepts until Shutdown or ctx
// cancellation. A failed bind is fatal and returned to the caller; a
// single failed accept is logged and the loop continues.
func (s *Server) Listen(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.cfg.Addr, err)
	}

	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		_ = listener.Close()
		return errors.ErrServerShutdown
	}
	s.listener = listener
	s.mu.Unlock()

	s.log.Info("Relay listening", "address", listener.Addr().String())

	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.isStopping() {
				return nil
			}
			s.log.Warn("Accept failed", "error", err)
			continue
		}

		if !s.admit(conn) {
			continue
		}

		session := NewSession(conn, s.registry, s.gateway, s.moderator, s.cfg, s.log)
		session.onClose = func(sess *Session) { s.untrack(sess) }
		s.track(session)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			session.Run(ctx)
		}()
	}
}

// Addr reports the bound address, useful when listening on port 0.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// admit enforces the session cap. Refused connections get a best-effort
// error frame before the transport closes.
func (s *Server) admit(conn net.Conn) bool {
	s.mu.Lock()
	count := len(s.sessions)
	s.mu.Unlock()

	if count < s.cfg.MaxSessions {
		return true
	}
	s.log.Warn("Refusing connection, session cap reached",
		"remote", conn.RemoteAddr().String(), "cap", s.cfg.MaxSessions)
	codec := protocol.NewCodec(s.cfg.MaxFrameSize)
	_ = codec.Encode(conn, domain.NewError(errors.ErrServerFull.Error()))
	_ = conn.Close()
	return false
}

func (s *Server) track(session *Session) {
	s.mu.Lock()
	s.sessions[session] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(session *Session) {
	s.mu.Lock()
	delete(s.sessions, session)
	s.mu.Unlock()
}

// Shutdown is idempotent. It stops accepting, tells every live session to
// disconnect best-effort, closes all transports and waits for the session
// goroutines to drain.
func (s *Server) Shutdown() {
	s.once.Do(func() {
		s.mu.Lock()
		s.stopping = true
		listener := s.listener
		live := make([]*Session, 0, len(s.sessions))
		for session := range s.sessions {
			live = append(live, session)
		}
		s.mu.Unlock()

		if listener != nil {
			_ = listener.Close()
		}

		s.registry.Broadcast(domain.NewDisconnect("Server is shutting down"), "")
		for _, session := range live {
			_ = session.Close()
		}

		s.wg.Wait()
		s.log.Info("Relay stopped")
	})
}

func (s *Server) isStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}
