package runtime

import "time"

// Config is the immutable tuning surface shared by the server and its
// sessions.
type Config struct {
	Addr          string
	MaxFrameSize  int
	AuthTimeout   time.Duration
	MaxSessions   int
	HistoryLimit  int
	SendTimeout   time.Duration
	OutboxSize    int
	TokenDuration time.Duration
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = ":5555"
	}
	if c.MaxFrameSize <= 0 {
		c.MaxFrameSize = 1 << 20
	}
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = 30 * time.Second
	}
	if c.MaxSessions <= 0 {
		c.MaxSessions = 100
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 50
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 5 * time.Second
	}
	if c.OutboxSize <= 0 {
		c.OutboxSize = 64
	}
	if c.TokenDuration <= 0 {
		c.TokenDuration = 24 * time.Hour
	}
	return c
}
