package main

import "time"

type Config struct {
	Addr              string        `env:"RELAY_ADDR,default=:5555"`
	MaxFrameSize      int           `env:"MAX_FRAME_SIZE,default=1048576"`
	AuthTimeout       time.Duration `env:"AUTH_TIMEOUT,default=30s"`
	MaxSessions       int           `env:"MAX_SESSIONS,default=100"`
	HistoryLimit      int           `env:"HISTORY_LIMIT,default=50"`
	SendTimeout       time.Duration `env:"SEND_TIMEOUT,default=5s"`
	OutboxSize        int           `env:"OUTBOX_SIZE,default=64"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	BadgerFilepath    string        `env:"BADGER_FILEPATH,required=true"`
	LogLevel          string        `env:"LOG_LEVEL,default=info"`
	CensoredWords     string        `env:"CENSORED_WORDS"`
	CensoredChar      string        `env:"CENSORED_CHARACTER,default=*"`
}
