package errors

import "fmt"

// Framing errors are fatal to the connection that produced them.
var (
	ErrFrameTooLarge = fmt.Errorf("frame exceeds maximum size")
	ErrBadFrame      = fmt.Errorf("malformed frame")
)

// Validation errors leave the connection active.
var (
	ErrInvalidMessage = fmt.Errorf("invalid message")
	ErrUnknownKind    = fmt.Errorf("unknown message kind")
)

// Authentication errors move the connection to Closing.
var (
	ErrInvalidUsername = fmt.Errorf("invalid username")
	ErrUsernameTaken   = fmt.Errorf("username already taken")
	ErrAuthTimeout     = fmt.Errorf("authentication timed out")
	ErrAuthExpected    = fmt.Errorf("first message must be an auth request")
	ErrTokenGeneration = fmt.Errorf("token generation failed")
)

// Routing and delivery errors are reported to the sender, never fatal.
var (
	ErrReceiverOffline = fmt.Errorf("receiver is offline")
	ErrSlowConsumer    = fmt.Errorf("recipient write queue is full")
	ErrSessionClosed   = fmt.Errorf("session is closed")
)

// Server lifecycle errors.
var (
	ErrServerFull     = fmt.Errorf("maximum number of sessions reached")
	ErrServerShutdown = fmt.Errorf("server is shutting down")
)
