package services

import (
	"log/slog"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"chat-relay/repositories"
)

func testGateway(t *testing.T) *GatewayService {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	return NewGatewayService(repositories.NewMessageRepository(db, log), repositories.NewUserRepository(db))
}

func TestGatewayService_SaveAndQueryGroupHistory(t *testing.T) {
	req := require.New(t)
	gateway := testGateway(t)

	req.NoError(gateway.SaveMessage("alice", nil, "hello", true))
	req.NoError(gateway.SaveMessage("bob", lo.ToPtr("alice"), "private aside", false))
	req.NoError(gateway.SaveMessage("bob", nil, "hey alice", true))

	history, err := gateway.GroupHistory(50)
	req.NoError(err)
	req.Len(history, 2)
	req.Equal("alice", history[0].Sender)
	req.Equal("hello", history[0].Content)
	req.Equal("bob", history[1].Sender)
	req.False(history[0].At.After(history[1].At))
}

func TestGatewayService_RecordUserSeen(t *testing.T) {
	req := require.New(t)
	gateway := testGateway(t)

	req.NoError(gateway.RecordUserSeen("alice"))
	req.NoError(gateway.RecordUserSeen("alice"))
}
