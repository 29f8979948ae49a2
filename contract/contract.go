//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"time"

	"chat-relay/domain"
)

// StoredMessage is one persisted group message as returned by the gateway.
type StoredMessage struct {
	Sender  string
	Content string
	At      time.Time
}

// Gateway is the narrow persistence boundary of the relay. Implementations
// must be safe for concurrent use by multiple sessions. All calls are
// fire-and-forget from the session's perspective: a failure is logged and
// never blocks live delivery.
type Gateway interface {
	// SaveMessage persists a chat message. receiver is nil for group messages.
	SaveMessage(sender string, receiver *string, content string, isGroup bool) error
	// GroupHistory returns the most recent group messages, oldest first.
	GroupHistory(limit int) ([]StoredMessage, error)
	// RecordUserSeen stamps first-seen/last-seen for a username. Called on
	// authentication and on disconnect.
	RecordUserSeen(username string) error
}

// Sink is the delivery end of a registered session. Enqueue must be
// bounded: it either accepts the message within the session's send budget
// or fails, so one slow consumer can never stall a broadcast.
type Sink interface {
	Enqueue(m domain.Message) error
	Close() error
}
