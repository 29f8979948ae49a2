// Package client is the library side of the relay protocol: it connects,
// authenticates and exchanges framed records with a relay server.
// Rendering is the caller's concern; the only contract is Connect, Send
// and the OnMessage callback.
package client

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"chat-relay/domain"
	"chat-relay/protocol"
)

type Handler func(m domain.Message)

type Client struct {
	conn   net.Conn
	reader *bufio.Reader
	codec  protocol.Codec
	log    *slog.Logger

	mu       sync.Mutex
	handler  Handler
	username string
	token    string

	done      chan struct{}
	closeOnce sync.Once
}

// Dial opens the transport. The connection is unauthenticated until
// Connect succeeds.
func Dial(address string, maxFrameSize int, log *slog.Logger) (*Client, error) {
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return &Client{
		conn:   conn,
		reader: bufio.NewReader(conn),
		codec:  protocol.NewCodec(maxFrameSize),
		log:    log,
		done:   make(chan struct{}),
	}, nil
}

// OnMessage registers the callback invoked for every inbound record after
// authentication. Must be set before Connect to observe the welcome
// sequence (history, users list).
func (c *Client) OnMessage(h Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// Connect authenticates with a username. On success the receive loop
// starts and every further inbound record is passed to the OnMessage
// handler. On failure the reason reported by the server is returned.
func (c *Client) Connect(username string) error {
	if err := c.send(domain.NewAuth(username)); err != nil {
		return err
	}

	reply, err := c.codec.Decode(c.reader)
	if err != nil {
		return fmt.Errorf("authentication: %w", err)
	}

	switch reply.Kind {
	case domain.KindAuthSuccess:
		c.mu.Lock()
		c.username = username
		if reply.Data != nil {
			c.token = reply.Data.Token
		}
		c.mu.Unlock()
		go c.listen()
		return nil
	case domain.KindError, domain.KindAuthFailed:
		return fmt.Errorf("authentication rejected: %s", reply.Content)
	default:
		return fmt.Errorf("authentication: unexpected %s reply", reply.Kind)
	}
}

// Username returns the authenticated identity, empty before Connect.
func (c *Client) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

// Token returns the session token issued by the server on auth_success.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Send transmits a chat message: to the group when isGroup is set,
// otherwise privately to receiver.
func (c *Client) Send(text, receiver string, isGroup bool) error {
	if isGroup {
		return c.send(domain.NewGroup(c.Username(), text))
	}
	return c.send(domain.NewPrivate(c.Username(), receiver, text))
}

// RequestUsers asks for the current online list; the reply arrives on the
// OnMessage handler as a users_list record.
func (c *Client) RequestUsers() error {
	return c.send(domain.NewGetUsers(c.Username()))
}

// RequestHistory asks for recent group history; the reply arrives on the
// OnMessage handler as a history record.
func (c *Client) RequestHistory() error {
	return c.send(domain.NewGetHistory(c.Username()))
}

// Disconnect tells the server to tear the session down, then closes the
// transport.
func (c *Client) Disconnect() error {
	_ = c.send(domain.NewDisconnect("client quit"))
	return c.Close()
}

// Close releases the transport. Safe to call multiple times.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *Client) send(m domain.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codec.Encode(c.conn, m)
}

func (c *Client) listen() {
	defer c.Close()
	for {
		m, err := c.codec.Decode(c.reader)
		if err != nil {
			select {
			case <-c.done:
			default:
				c.log.Debug("Connection lost", "error", err)
			}
			return
		}

		c.mu.Lock()
		handler := c.handler
		c.mu.Unlock()
		if handler != nil {
			handler(m)
		}

		if m.Kind == domain.KindDisconnect {
			return
		}
	}
}
