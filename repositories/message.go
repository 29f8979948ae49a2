package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IMessageRepository interface {
	Store(message DiskMessage) error
	RecentGroup(limit int) ([]DiskMessage, error)
}

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log}
}

// DiskMessage is the storage representation of one chat message.
// Receiver is nil for group messages.
type DiskMessage struct {
	ID       uuid.UUID `json:"id"`
	Sender   string    `json:"sender"`
	Receiver *string   `json:"receiver,omitempty"`
	Content  string    `json:"content"`
	At       time.Time `json:"at"`
	Group    bool      `json:"group"`
}

const (
	groupPrefix   = "msg:group:"
	privatePrefix = "msg:private:"
)

// Store persists a message in BadgerDB.
// The key is formatted as "msg:{scope}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector if two messages
//     arrive at the same nanosecond.
func (m MessageRepository) Store(message DiskMessage) error {
	prefix := privatePrefix
	if message.Group {
		prefix = groupPrefix
	}
	key := fmt.Sprintf("%s%019d:%s", prefix, message.At.UnixNano(), message.ID)

	bytes, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	})
}

// RecentGroup returns the latest group messages, oldest first.
// Thanks to the padded timestamp in the key, a reverse prefix scan walks
// from the newest message backwards; the collected page is flipped before
// returning so callers render history in chronological order.
func (m MessageRepository) RecentGroup(limit int) ([]DiskMessage, error) {
	var raw [][]byte
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(groupPrefix)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Seek past the newest possible key, then walk backwards.
		seekKey := append([]byte(groupPrefix), []byte("9999999999999999999:")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(raw) == limit {
				break
			}
			err := it.Item().Value(func(value []byte) error {
				raw = append(raw, append([]byte(nil), value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	messages := make([]DiskMessage, 0, len(raw))
	for _, b := range raw {
		var message DiskMessage
		if err = json.Unmarshal(b, &message); err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	m.log.Debug("Loaded group history", "count", len(messages))
	return lo.Reverse(messages), nil
}
