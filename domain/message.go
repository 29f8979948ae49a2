// Package domain contains the message vocabulary of the relay.
// Messages are immutable value records; no network or storage logic
// belongs here.
package domain

import (
	"fmt"
	"time"

	"chat-relay/errors"
)

// Kind identifies one message type of the wire protocol.
// The set is closed: both peers must reject anything outside of it.
type Kind string

const (
	KindAuth        Kind = "auth"
	KindAuthSuccess Kind = "auth_success"
	KindAuthFailed  Kind = "auth_failed"
	KindGroup       Kind = "group"
	KindPrivate     Kind = "private"
	KindUserJoined  Kind = "user_joined"
	KindUserLeft    Kind = "user_left"
	KindGetUsers    Kind = "get_users"
	KindUsersList   Kind = "users_list"
	KindGetHistory  Kind = "get_history"
	KindHistory     Kind = "history"
	KindStatus      Kind = "status"
	KindError       Kind = "error"
	KindDisconnect  Kind = "disconnect"
)

// TimeLayout is the wire representation of timestamps.
const TimeLayout = "2006-01-02 15:04:05"

// Message is one protocol record. Field names mirror the wire format:
// every record carries "type" and "timestamp", the rest depends on the kind.
type Message struct {
	Kind      Kind     `json:"type"`
	Timestamp string   `json:"timestamp"`
	Sender    string   `json:"sender,omitempty"`
	Receiver  string   `json:"receiver,omitempty"`
	Content   string   `json:"content,omitempty"`
	Data      *Payload `json:"data,omitempty"`
}

// Payload is the open structured field used by list and history responses,
// and by auth_success to carry the session token.
type Payload struct {
	Users    []string       `json:"users,omitempty"`
	Messages []HistoryEntry `json:"messages,omitempty"`
	Token    string         `json:"token,omitempty"`
}

// HistoryEntry is one persisted group message inside a history payload.
type HistoryEntry struct {
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

func stamp() string {
	return time.Now().Format(TimeLayout)
}

func NewAuth(username string) Message {
	return Message{Kind: KindAuth, Timestamp: stamp(), Sender: username, Content: username}
}

func NewAuthSuccess(username, token string) Message {
	return Message{
		Kind:      KindAuthSuccess,
		Timestamp: stamp(),
		Content:   fmt.Sprintf("Welcome %s!", username),
		Data:      &Payload{Token: token},
	}
}

func NewGroup(sender, content string) Message {
	return Message{Kind: KindGroup, Timestamp: stamp(), Sender: sender, Content: content}
}

func NewPrivate(sender, receiver, content string) Message {
	return Message{Kind: KindPrivate, Timestamp: stamp(), Sender: sender, Receiver: receiver, Content: content}
}

func NewUserJoined(username string) Message {
	return Message{Kind: KindUserJoined, Timestamp: stamp(), Sender: username,
		Content: fmt.Sprintf("%s joined the chat", username)}
}

func NewUserLeft(username string) Message {
	return Message{Kind: KindUserLeft, Timestamp: stamp(), Sender: username,
		Content: fmt.Sprintf("%s left the chat", username)}
}

func NewGetUsers(sender string) Message {
	return Message{Kind: KindGetUsers, Timestamp: stamp(), Sender: sender}
}

func NewUsersList(users []string) Message {
	return Message{Kind: KindUsersList, Timestamp: stamp(), Data: &Payload{Users: users}}
}

func NewGetHistory(sender string) Message {
	return Message{Kind: KindGetHistory, Timestamp: stamp(), Sender: sender}
}

func NewHistory(entries []HistoryEntry) Message {
	return Message{Kind: KindHistory, Timestamp: stamp(), Data: &Payload{Messages: entries}}
}

func NewStatus(text string) Message {
	return Message{Kind: KindStatus, Timestamp: stamp(), Content: text}
}

func NewError(text string) Message {
	return Message{Kind: KindError, Timestamp: stamp(), Content: text}
}

func NewDisconnect(reason string) Message {
	return Message{Kind: KindDisconnect, Timestamp: stamp(), Content: reason}
}

var kinds = map[Kind]struct{}{
	KindAuth: {}, KindAuthSuccess: {}, KindAuthFailed: {},
	KindGroup: {}, KindPrivate: {},
	KindUserJoined: {}, KindUserLeft: {},
	KindGetUsers: {}, KindUsersList: {},
	KindGetHistory: {}, KindHistory: {},
	KindStatus: {}, KindError: {}, KindDisconnect: {},
}

// Validate checks the kind-specific required-field invariant.
// The session must call it before acting on any inbound record and answer
// a failure with an error record instead of applying the message.
func Validate(m Message) error {
	if _, ok := kinds[m.Kind]; !ok {
		return fmt.Errorf("%w: %q", errors.ErrUnknownKind, m.Kind)
	}
	if m.Timestamp == "" {
		return fmt.Errorf("%w: missing timestamp", errors.ErrInvalidMessage)
	}
	switch m.Kind {
	case KindAuth:
		if m.Content == "" {
			return fmt.Errorf("%w: auth requires a username in content", errors.ErrInvalidMessage)
		}
	case KindGroup:
		if m.Sender == "" || m.Content == "" {
			return fmt.Errorf("%w: group requires sender and content", errors.ErrInvalidMessage)
		}
	case KindPrivate:
		if m.Sender == "" || m.Content == "" {
			return fmt.Errorf("%w: private requires sender and content", errors.ErrInvalidMessage)
		}
		if m.Receiver == "" {
			return fmt.Errorf("%w: private requires a receiver", errors.ErrInvalidMessage)
		}
	}
	return nil
}
