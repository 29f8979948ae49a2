package runtime

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/mocks"
	"chat-relay/moderation"
	"chat-relay/protocol"
)

func testConfig() Config {
	return Config{
		AuthTimeout: 2 * time.Second,
		SendTimeout: time.Second,
	}
}

// peer is the client end of a piped session.
type peer struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
	codec  protocol.Codec
}

func (p *peer) send(m domain.Message) {
	require.NoError(p.t, p.codec.Encode(p.conn, m))
}

func (p *peer) recv() domain.Message {
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	m, err := p.codec.Decode(p.reader)
	require.NoError(p.t, err)
	return m
}

func (p *peer) recvKind(kind domain.Kind) domain.Message {
	m := p.recv()
	require.Equal(p.t, kind, m.Kind)
	return m
}

func (p *peer) expectSilence() {
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, err := p.codec.Decode(p.reader)
	require.Error(p.t, err)
	netErr, ok := err.(net.Error)
	require.True(p.t, ok)
	require.True(p.t, netErr.Timeout())
}

func defaultGateway(ctrl *gomock.Controller) *mocks.MockGateway {
	gateway := mocks.NewMockGateway(ctrl)
	gateway.EXPECT().RecordUserSeen(gomock.Any()).Return(nil).AnyTimes()
	gateway.EXPECT().GroupHistory(gomock.Any()).Return(nil, nil).AnyTimes()
	return gateway
}

func startSession(t *testing.T, registry *Registry, gateway *mocks.MockGateway,
	moderator *moderation.Moderator, cfg Config) (*Session, *peer) {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	session := NewSession(serverSide, registry, gateway, moderator, cfg, log)
	go session.Run(context.Background())
	t.Cleanup(func() { _ = session.Close() })

	return session, &peer{
		t:      t,
		conn:   clientSide,
		reader: bufio.NewReader(clientSide),
		codec:  protocol.NewCodec(0),
	}
}

// connect authenticates a peer and drains the welcome sequence.
func connect(t *testing.T, registry *Registry, gateway *mocks.MockGateway, username string) (*Session, *peer) {
	t.Helper()
	session, p := startSession(t, registry, gateway, nil, testConfig())
	p.send(domain.NewAuth(username))
	p.recvKind(domain.KindAuthSuccess)
	p.recvKind(domain.KindHistory)
	p.recvKind(domain.KindUsersList)
	return session, p
}

func TestSession_AuthenticationWelcomeSequence(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := testRegistry()
	gateway := defaultGateway(ctrl)

	session, p := startSession(t, registry, gateway, nil, testConfig())
	p.send(domain.NewAuth("alice"))

	// auth_success first, then history, then the online list.
	success := p.recvKind(domain.KindAuthSuccess)
	req.Equal("Welcome alice!", success.Content)
	req.NotNil(success.Data)

	claims, err := auth.ValidateToken(success.Data.Token)
	req.NoError(err)
	req.Equal("alice", claims.Username)

	p.recvKind(domain.KindHistory)

	users := p.recvKind(domain.KindUsersList)
	req.NotNil(users.Data)
	req.Equal([]string{"alice"}, users.Data.Users)

	req.Equal("alice", session.Username())
	req.Equal(StateActive, session.State())
	req.Equal([]string{"alice"}, registry.Snapshot())
}

func TestSession_FirstFrameMustBeAuth(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := testRegistry()

	_, p := startSession(t, registry, defaultGateway(ctrl), nil, testConfig())
	p.send(domain.NewGroup("alice", "sneaky"))

	failure := p.recvKind(domain.KindError)
	req.Contains(failure.Content, "auth")
	req.Empty(registry.Snapshot())
}

func TestSession_RejectsInvalidUsername(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := testRegistry()

	_, p := startSession(t, registry, defaultGateway(ctrl), nil, testConfig())
	p.send(domain.NewAuth("1digitfirst"))

	failure := p.recvKind(domain.KindError)
	req.Contains(failure.Content, "invalid username")
	req.Empty(registry.Snapshot())
}

func TestSession_RejectsTakenUsername(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := testRegistry()
	registry.Insert("alice", mocks.NewMockSink(ctrl))

	_, p := startSession(t, registry, defaultGateway(ctrl), nil, testConfig())
	p.send(domain.NewAuth("alice"))

	failure := p.recvKind(domain.KindError)
	req.Contains(failure.Content, "already taken")
	req.Equal([]string{"alice"}, registry.Snapshot())
}

func TestSession_AuthTimeout(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := testRegistry()

	cfg := testConfig()
	cfg.AuthTimeout = 50 * time.Millisecond
	_, p := startSession(t, registry, defaultGateway(ctrl), nil, cfg)

	failure := p.recvKind(domain.KindError)
	req.Contains(failure.Content, "timed out")
	req.Empty(registry.Snapshot())
}

func TestSession_GroupBroadcastSkipsSender(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := testRegistry()
	gateway := defaultGateway(ctrl)

	_, alice := connect(t, registry, gateway, "alice")
	_, bob := connect(t, registry, gateway, "bob")
	alice.recvKind(domain.KindUserJoined)

	gateway.EXPECT().SaveMessage("alice", gomock.Nil(), "hi", true).Return(nil)
	alice.send(domain.NewGroup("alice", "hi"))

	delivered := bob.recvKind(domain.KindGroup)
	req.Equal("alice", delivered.Sender)
	req.Equal("hi", delivered.Content)

	// The sender never receives its own echo.
	alice.expectSilence()
}

func TestSession_GroupSenderCannotBeSpoofed(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := testRegistry()
	gateway := defaultGateway(ctrl)

	_, alice := connect(t, registry, gateway, "alice")
	_, bob := connect(t, registry, gateway, "bob")
	alice.recvKind(domain.KindUserJoined)

	gateway.EXPECT().SaveMessage("alice", gomock.Nil(), "hi", true).Return(nil)
	alice.send(domain.NewGroup("mallory", "hi"))

	delivered := bob.recvKind(domain.KindGroup)
	req.Equal("alice", delivered.Sender)
}

func TestSession_PrivateDelivery(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := testRegistry()
	gateway := defaultGateway(ctrl)

	_, alice := connect(t, registry, gateway, "alice")
	_, bob := connect(t, registry, gateway, "bob")
	alice.recvKind(domain.KindUserJoined)

	gateway.EXPECT().SaveMessage("alice", gomock.Not(gomock.Nil()), "psst", false).Return(nil)
	alice.send(domain.NewPrivate("alice", "bob", "psst"))

	delivered := bob.recvKind(domain.KindPrivate)
	req.Equal("alice", delivered.Sender)
	req.Equal("psst", delivered.Content)

	confirmation := alice.recvKind(domain.KindStatus)
	req.Contains(confirmation.Content, "bob")
}

func TestSession_PrivateToOfflineUserStillPersisted(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := testRegistry()
	gateway := defaultGateway(ctrl)

	_, alice := connect(t, registry, gateway, "alice")

	// Best-effort online-only delivery: the message is persisted even
	// though the receiver is gone.
	gateway.EXPECT().SaveMessage("alice", gomock.Not(gomock.Nil()), "secret", false).Return(nil)
	alice.send(domain.NewPrivate("alice", "ghost", "secret"))

	failure := alice.recvKind(domain.KindError)
	req.Contains(failure.Content, "ghost")
	req.Contains(failure.Content, "offline")
}

func TestSession_DisconnectBroadcastsUserLeft(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := testRegistry()
	gateway := defaultGateway(ctrl)

	_, alice := connect(t, registry, gateway, "alice")
	bobSession, bob := connect(t, registry, gateway, "bob")
	alice.recvKind(domain.KindUserJoined)

	bob.send(domain.NewDisconnect("bye"))

	left := alice.recvKind(domain.KindUserLeft)
	req.Equal("bob", left.Sender)

	req.Eventually(func() bool {
		return bobSession.State() == StateClosed
	}, 2*time.Second, 10*time.Millisecond)
	req.Equal([]string{"alice"}, registry.Snapshot())

	alice.send(domain.NewGetUsers("alice"))
	users := alice.recvKind(domain.KindUsersList)
	req.Equal([]string{"alice"}, users.Data.Users)
}

func TestSession_UnknownKindIsIgnored(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := testRegistry()
	gateway := defaultGateway(ctrl)

	_, alice := connect(t, registry, gateway, "alice")

	alice.send(domain.Message{Kind: "banana", Timestamp: "2026-01-02 10:00:00"})

	// No error record, the session stays active.
	alice.send(domain.NewGetUsers("alice"))
	users := alice.recvKind(domain.KindUsersList)
	req.Equal([]string{"alice"}, users.Data.Users)
}

func TestSession_ValidationFailureKeepsSessionActive(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := testRegistry()
	gateway := defaultGateway(ctrl)

	session, alice := connect(t, registry, gateway, "alice")

	alice.send(domain.Message{Kind: domain.KindGroup, Timestamp: "2026-01-02 10:00:00", Sender: "alice"})

	failure := alice.recvKind(domain.KindError)
	req.Contains(failure.Content, "content")
	req.Equal(StateActive, session.State())
}

func TestSession_ModeratorCensorsGroupContent(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := testRegistry()
	gateway := defaultGateway(ctrl)

	moderator, err := moderation.NewModerator([]string{"flooble"}, '*')
	req.NoError(err)

	_, alice := startSession(t, registry, gateway, moderator, testConfig())
	alice.send(domain.NewAuth("alice"))
	alice.recvKind(domain.KindAuthSuccess)
	alice.recvKind(domain.KindHistory)
	alice.recvKind(domain.KindUsersList)

	_, bob := connect(t, registry, gateway, "bob")
	alice.recvKind(domain.KindUserJoined)

	gateway.EXPECT().SaveMessage("alice", gomock.Nil(), "such ******* wow", true).Return(nil)
	alice.send(domain.NewGroup("alice", "such flooble wow"))

	delivered := bob.recvKind(domain.KindGroup)
	req.Equal("such ******* wow", delivered.Content)
}
