package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"

	"chat-relay/client"
	"chat-relay/domain"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerAddr   string `envconfig:"RELAY_SERVER_ADDR" default:"localhost:5555"`
	MaxFrameSize int    `envconfig:"MAX_FRAME_SIZE" default:"1048576"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	_ = godotenv.Load()
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	if len(os.Args) < 2 {
		return exitConfig, fmt.Errorf("usage: %s <username>", os.Args[0])
	}
	username := os.Args[1]

	c, err := client.Dial(config.ServerAddr, config.MaxFrameSize, log)
	if err != nil {
		return exitRuntime, err
	}
	defer func() { _ = c.Close() }()

	c.OnMessage(render)

	if err := c.Connect(username); err != nil {
		return exitRuntime, err
	}
	color.Green.Printf("Connected to %s as %s\n", config.ServerAddr, username)
	color.Cyan.Println("Commands: /msg <user> <text>, /users, /history, /quit")

	// Ctrl+C sends a clean disconnect before exiting.
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-interrupts
		_ = c.Disconnect()
		os.Exit(exitOK)
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := handle(c, line); err != nil {
			if err == errQuit {
				return exitOK, nil
			}
			color.Red.Println(err)
		}
	}
	return exitOK, scanner.Err()
}

var errQuit = fmt.Errorf("quit")

func handle(c *client.Client, line string) error {
	switch {
	case line == "/quit":
		_ = c.Disconnect()
		return errQuit
	case line == "/users":
		return c.RequestUsers()
	case line == "/history":
		return c.RequestHistory()
	case strings.HasPrefix(line, "/msg "):
		parts := strings.SplitN(line, " ", 3)
		if len(parts) < 3 {
			return fmt.Errorf("usage: /msg <user> <text>")
		}
		return c.Send(parts[2], parts[1], false)
	case strings.HasPrefix(line, "/"):
		return fmt.Errorf("unknown command %q", strings.Fields(line)[0])
	default:
		return c.Send(line, "", true)
	}
}

// render writes one inbound record to stdout. Everything about
// presentation lives here; the client library only delivers records.
func render(m domain.Message) {
	switch m.Kind {
	case domain.KindGroup:
		color.White.Printf("[%s] %s: %s\n", m.Timestamp, m.Sender, m.Content)
	case domain.KindPrivate:
		color.Magenta.Printf("[%s] %s (private): %s\n", m.Timestamp, m.Sender, m.Content)
	case domain.KindUserJoined, domain.KindUserLeft:
		color.Yellow.Printf("* %s\n", m.Content)
	case domain.KindUsersList:
		renderUsers(m)
	case domain.KindHistory:
		renderHistory(m)
	case domain.KindStatus:
		color.Cyan.Printf("~ %s\n", m.Content)
	case domain.KindError:
		color.Red.Printf("! %s\n", m.Content)
	case domain.KindDisconnect:
		color.Yellow.Println("Server closed the connection:", m.Content)
	}
}

func renderUsers(m domain.Message) {
	if m.Data == nil {
		return
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Online users"})
	for _, user := range m.Data.Users {
		table.Append([]string{user})
	}
	table.Render()
}

func renderHistory(m domain.Message) {
	if m.Data == nil || len(m.Data.Messages) == 0 {
		color.Gray.Println("-- no history --")
		return
	}
	color.Gray.Println("-- recent messages --")
	for _, entry := range m.Data.Messages {
		color.Gray.Printf("[%s] %s: %s\n", entry.Timestamp, entry.Sender, entry.Content)
	}
	color.Gray.Println("-- end of history --")
}
