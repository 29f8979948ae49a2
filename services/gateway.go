package services

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"chat-relay/contract"
	"chat-relay/repositories"
)

// GatewayService implements contract.Gateway on top of the Badger-backed
// repositories. It is the only component that knows how wire-level save
// and query requests map onto storage records.
type GatewayService struct {
	messages repositories.IMessageRepository
	users    repositories.IUserRepository
}

func NewGatewayService(messages repositories.IMessageRepository, users repositories.IUserRepository) *GatewayService {
	return &GatewayService{messages: messages, users: users}
}

func (g *GatewayService) SaveMessage(sender string, receiver *string, content string, isGroup bool) error {
	return g.messages.Store(repositories.DiskMessage{
		ID:       uuid.New(),
		Sender:   sender,
		Receiver: receiver,
		Content:  content,
		At:       time.Now().UTC(),
		Group:    isGroup,
	})
}

func (g *GatewayService) GroupHistory(limit int) ([]contract.StoredMessage, error) {
	messages, err := g.messages.RecentGroup(limit)
	if err != nil {
		return nil, err
	}
	return lo.Map(messages, func(m repositories.DiskMessage, _ int) contract.StoredMessage {
		return contract.StoredMessage{Sender: m.Sender, Content: m.Content, At: m.At}
	}), nil
}

func (g *GatewayService) RecordUserSeen(username string) error {
	return g.users.Touch(username)
}
