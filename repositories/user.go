package repositories

import (
	"encoding/json"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type IUserRepository interface {
	Touch(username string) error
	Get(username string) (User, error)
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) UserRepository {
	return UserRepository{db: db}
}

// User is the storage representation of a username's presence bookkeeping.
type User struct {
	Username  string    `json:"username"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

func userKey(username string) []byte {
	return []byte("user:" + username)
}

// Touch stamps last-seen for a username, creating the record with
// first-seen on the first call. Invoked on authentication and disconnect.
func (u UserRepository) Touch(username string) error {
	now := time.Now().UTC()
	return u.db.Update(func(txn *badger.Txn) error {
		user := User{Username: username, FirstSeen: now, LastSeen: now}

		item, err := txn.Get(userKey(username))
		switch err {
		case nil:
			err = item.Value(func(val []byte) error {
				return json.Unmarshal(val, &user)
			})
			if err != nil {
				return err
			}
			user.LastSeen = now
		case badger.ErrKeyNotFound:
			// first contact, keep the fresh record
		default:
			return err
		}

		data, err := json.Marshal(user)
		if err != nil {
			return err
		}
		return txn.Set(userKey(username), data)
	})
}

// Get retrieves the presence record of a username.
func (u UserRepository) Get(username string) (User, error) {
	var user User
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(username))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &user)
		})
	})
	return user, err
}
