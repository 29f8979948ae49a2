package runtime

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"

	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/moderation"
	"chat-relay/protocol"
)

// State is the lifecycle position of a session.
type State int32

const (
	StateConnected State = iota
	StateAuthenticating
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateAuthenticating:
		return "authenticating"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// Session owns one accepted connection and drives it through the
// authentication state machine. Exactly two goroutines touch the
// transport: the read loop (Run) and the write loop. Every outbound
// record, whether a direct reply or a registry-driven broadcast, goes
// through the outbox channel so frames can never interleave on the wire.
type Session struct {
	conn      net.Conn
	reader    *bufio.Reader
	codec     protocol.Codec
	registry  *Registry
	gateway   contract.Gateway
	moderator *moderation.Moderator
	cfg       Config
	log       *slog.Logger

	state   atomic.Int32
	outbox  chan domain.Message
	done    chan struct{}
	once    sync.Once
	onClose func(*Session)

	mu         sync.Mutex
	username   string
	registered bool
}

func NewSession(conn net.Conn, registry *Registry, gateway contract.Gateway,
	moderator *moderation.Moderator, cfg Config, log *slog.Logger) *Session {
	cfg = cfg.withDefaults()
	return &Session{
		conn:      conn,
		reader:    bufio.NewReader(conn),
		codec:     protocol.NewCodec(cfg.MaxFrameSize),
		registry:  registry,
		gateway:   gateway,
		moderator: moderator,
		cfg:       cfg,
		log:       log.With("remote", conn.RemoteAddr().String()),
		outbox:    make(chan domain.Message, cfg.OutboxSize),
		done:      make(chan struct{}),
	}
}

// State reports the current lifecycle position.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Username returns the authenticated identity, empty before auth.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// Run drives the session until disconnect, transport failure or shutdown.
// It always leaves the session closed and deregistered.
func (s *Session) Run(ctx context.Context) {
	defer s.Close()
	go s.writeLoop()

	if err := s.authenticate(); err != nil {
		s.log.Info("Authentication rejected", "error", err)
		return
	}
	s.serve(ctx)
}

// authenticate handles the Connected -> Authenticating -> Active leg. The
// first inbound frame must be an auth record carrying a free username;
// anything else tears the connection down with a best-effort error record.
func (s *Session) authenticate() error {
	_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.AuthTimeout))

	m, err := s.codec.Decode(s.reader)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			s.reject(errors.ErrAuthTimeout.Error())
			return errors.ErrAuthTimeout
		}
		s.reject(errors.ErrAuthExpected.Error())
		return err
	}
	s.state.Store(int32(StateAuthenticating))

	if m.Kind != domain.KindAuth || domain.Validate(m) != nil {
		s.reject(errors.ErrAuthExpected.Error())
		return errors.ErrAuthExpected
	}

	username := m.Content
	if err := auth.ValidateUsername(username); err != nil {
		s.reject(err.Error())
		return err
	}
	if !s.registry.Insert(username, s) {
		s.reject(fmt.Sprintf("Username %s is already taken", username))
		return errors.ErrUsernameTaken
	}

	s.mu.Lock()
	s.username = username
	s.registered = true
	s.mu.Unlock()
	s.log = s.log.With("username", username)

	if err := s.gateway.RecordUserSeen(username); err != nil {
		s.log.Warn("User bookkeeping failed", "error", err)
	}

	token, err := auth.GenerateToken(username, s.cfg.TokenDuration)
	if err != nil {
		s.log.Warn("Session token not issued", "error", err)
	}
	_ = s.Enqueue(domain.NewAuthSuccess(username, token))

	// The welcome sequence must be queued before any further inbound
	// frame is read: recent history, join notification to the others,
	// then the online list to the newcomer.
	s.sendHistory()
	s.registry.Broadcast(domain.NewUserJoined(username), username)
	_ = s.Enqueue(domain.NewUsersList(s.registry.Snapshot()))

	_ = s.conn.SetReadDeadline(time.Time{})
	s.state.Store(int32(StateActive))
	return nil
}

// reject sends a best-effort error record before teardown.
func (s *Session) reject(reason string) {
	_ = s.Enqueue(domain.NewError(reason))
}

// serve is the Active read loop. Frame decoding errors are fatal to this
// connection only; validation failures produce an error record and keep
// the session active.
func (s *Session) serve(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		default:
		}

		m, err := s.codec.Decode(s.reader)
		if err != nil {
			if stderrors.Is(err, errors.ErrBadFrame) || stderrors.Is(err, errors.ErrFrameTooLarge) {
				s.log.Warn("Framing failure", "error", err)
				s.reject(err.Error())
			}
			return
		}

		if err := domain.Validate(m); err != nil {
			if stderrors.Is(err, errors.ErrUnknownKind) {
				s.log.Warn("Ignoring record of unknown kind", "kind", m.Kind)
				continue
			}
			_ = s.Enqueue(domain.NewError(err.Error()))
			continue
		}

		if !s.dispatch(m) {
			return
		}
	}
}

// dispatch applies one validated inbound record. Returns false when the
// session must transition to Closing.
func (s *Session) dispatch(m domain.Message) bool {
	username := s.Username()

	switch m.Kind {
	case domain.KindGroup:
		content := m.Content
		if s.moderator != nil {
			content = s.moderator.Censor(content)
		}
		if err := s.gateway.SaveMessage(username, nil, content, true); err != nil {
			s.log.Warn("Group message not persisted", "error", err)
		}
		out := m
		out.Sender = username
		out.Content = content
		s.registry.Broadcast(out, username)

	case domain.KindPrivate:
		if err := s.gateway.SaveMessage(username, lo.ToPtr(m.Receiver), m.Content, false); err != nil {
			s.log.Warn("Private message not persisted", "error", err)
		}
		out := m
		out.Sender = username
		if s.registry.Route(out, m.Receiver) {
			_ = s.Enqueue(domain.NewStatus(fmt.Sprintf("Message sent to %s", m.Receiver)))
		} else {
			_ = s.Enqueue(domain.NewError(fmt.Sprintf("User %s is offline", m.Receiver)))
		}

	case domain.KindGetUsers:
		_ = s.Enqueue(domain.NewUsersList(s.registry.Snapshot()))

	case domain.KindGetHistory:
		s.sendHistory()

	case domain.KindDisconnect:
		s.log.Info("Client requested disconnect")
		return false

	default:
		s.log.Warn("Ignoring unexpected record", "kind", m.Kind)
	}
	return true
}

func (s *Session) sendHistory() {
	stored, err := s.gateway.GroupHistory(s.cfg.HistoryLimit)
	if err != nil {
		s.log.Warn("History fetch failed", "error", err)
		_ = s.Enqueue(domain.NewError("chat history is unavailable"))
		return
	}
	entries := lo.Map(stored, func(m contract.StoredMessage, _ int) domain.HistoryEntry {
		return domain.HistoryEntry{
			Sender:    m.Sender,
			Content:   m.Content,
			Timestamp: m.At.Format(domain.TimeLayout),
		}
	})
	_ = s.Enqueue(domain.NewHistory(entries))
}

// Enqueue hands a record to the write loop. It is bounded: when the
// outbox stays full past the send budget the caller gets ErrSlowConsumer
// instead of blocking, so one stuck recipient cannot stall a broadcast.
func (s *Session) Enqueue(m domain.Message) error {
	timer := time.NewTimer(s.cfg.SendTimeout)
	defer timer.Stop()

	select {
	case <-s.done:
		return errors.ErrSessionClosed
	case s.outbox <- m:
		return nil
	case <-timer.C:
		return errors.ErrSlowConsumer
	}
}

// writeLoop is the only goroutine writing to the transport. On shutdown
// it drains whatever is already queued, best-effort within the send
// budget, so teardown error records still reach the peer.
func (s *Session) writeLoop() {
	defer func() { _ = s.conn.Close() }()

	for {
		select {
		case m := <-s.outbox:
			if err := s.codec.Encode(s.conn, m); err != nil {
				s.log.Debug("Write failed", "error", err)
				s.Close()
				return
			}
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.SendTimeout))
			for {
				select {
				case m := <-s.outbox:
					if err := s.codec.Encode(s.conn, m); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// Close is the Closing -> Closed transition: deregistration, last-seen
// stamp, user_left notification, transport teardown. Idempotent; only the
// first invocation has effect.
func (s *Session) Close() error {
	s.once.Do(func() {
		s.state.Store(int32(StateClosing))

		s.mu.Lock()
		username, registered := s.username, s.registered
		s.mu.Unlock()

		if registered {
			s.registry.Remove(username)
			if err := s.gateway.RecordUserSeen(username); err != nil {
				s.log.Warn("User bookkeeping failed", "error", err)
			}
			s.registry.Broadcast(domain.NewUserLeft(username), username)
		}

		close(s.done)
		if s.onClose != nil {
			s.onClose(s)
		}
		s.state.Store(int32(StateClosed))
		s.log.Info("Session closed")
	})
	return nil
}
