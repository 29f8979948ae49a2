package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"chat-relay/moderation"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/services"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like database cleanup) are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Persistence gateway & registry
	messages := repositories.NewMessageRepository(db, log)
	users := repositories.NewUserRepository(db)
	gateway := services.NewGatewayService(messages, users)
	registry := runtime.NewRegistry(log)

	// 4. Optional moderation
	var moderator *moderation.Moderator
	if config.CensoredWords != "" {
		words := strings.Split(config.CensoredWords, ",")
		replacement := []rune(config.CensoredChar)
		if len(replacement) != 1 {
			return fmt.Errorf("CENSORED_CHARACTER must be a single character, got %q", config.CensoredChar)
		}
		moderator, err = moderation.NewModerator(words, replacement[0])
		if err != nil {
			return fmt.Errorf("moderation setup failed: %w", err)
		}
		log.Info("Moderation enabled", "words", len(words))
	}

	// 5. Relay server
	server := runtime.NewServer(log, runtime.Config{
		Addr:          config.Addr,
		MaxFrameSize:  config.MaxFrameSize,
		AuthTimeout:   config.AuthTimeout,
		MaxSessions:   config.MaxSessions,
		HistoryLimit:  config.HistoryLimit,
		SendTimeout:   config.SendTimeout,
		OutboxSize:    config.OutboxSize,
		TokenDuration: config.AuthTokenDuration,
	}, registry, gateway, moderator)

	// 6. Context & signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	color.Green.Println("Relay server starting on", config.Addr)
	color.Cyan.Println("Press Ctrl+C to stop")

	errChan := make(chan error, 1)
	go func() {
		if err := server.Listen(ctx); err != nil {
			errChan <- err
		}
		close(errChan)
	}()

	// 7. Wait for stop or error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		if err != nil {
			return err
		}
	}

	// 8. Final cleanup
	server.Shutdown()
	log.Info("Program stopped cleanly")
	return nil
}
