// Package console implements a local terminal channel used by the chat
// command. Every line typed is delivered as a direct message from ID.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chzyer/readline"

	"github.com/jholhewres/agendabot/pkg/agendabot/channels"
)

// ID is the conversation identifier of the local user.
const ID = "console@local"

// lineReader is the subset of *readline.Instance the channel needs.
type lineReader interface {
	Readline() (string, error)
	Close() error
}

// Console implements channels.Channel on top of readline.
type Console struct {
	historyFile string
	out         io.Writer
	reader      lineReader
	logger      *slog.Logger

	messages  chan *channels.IncomingMessage
	connected atomic.Bool
	closeOnce sync.Once
	seq       atomic.Int64
	outMu     sync.Mutex
}

// New creates a console channel. historyFile may be empty.
func New(historyFile string, logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	return &Console{
		historyFile: historyFile,
		logger:      logger.With("component", "console"),
		messages:    make(chan *channels.IncomingMessage, 16),
	}
}

// Name returns "console".
func (c *Console) Name() string { return "console" }

// Connect opens the terminal and starts reading lines.
func (c *Console) Connect(ctx context.Context) error {
	if c.reader == nil {
		rl, err := readline.NewEx(&readline.Config{
			Prompt:          "\033[36mvocê>\033[0m ",
			HistoryFile:     c.historyFile,
			InterruptPrompt: "^C",
			EOFPrompt:       "sair",
		})
		if err != nil {
			return fmt.Errorf("opening terminal: %w", err)
		}
		c.reader = rl
		c.out = rl.Stdout()
	}
	c.connected.Store(true)
	go c.readLoop(ctx)
	return nil
}

// Disconnect closes the terminal and the message stream.
func (c *Console) Disconnect() error {
	c.connected.Store(false)
	var err error
	if c.reader != nil {
		err = c.reader.Close()
	}
	c.closeOnce.Do(func() { close(c.messages) })
	return err
}

// Send prints a reply. Messages for other conversations (reminders) are
// prefixed with their destination.
func (c *Console) Send(_ context.Context, to string, msg *channels.OutgoingMessage) error {
	if !c.connected.Load() {
		return channels.ErrChannelDisconnected
	}
	c.outMu.Lock()
	defer c.outMu.Unlock()

	prefix := "bot"
	if to != ID {
		prefix = "bot → " + to
	}
	_, err := fmt.Fprintf(c.out, "\033[32m%s>\033[0m %s\n", prefix, msg.Content)
	return err
}

// Receive returns the stream of typed lines.
func (c *Console) Receive() <-chan *channels.IncomingMessage { return c.messages }

// IsConnected reports whether the terminal is open.
func (c *Console) IsConnected() bool { return c.connected.Load() }

// readLoop delivers lines until EOF, an interrupt on an empty line, "sair"
// or ctx ending. The stream is closed when it returns.
func (c *Console) readLoop(ctx context.Context) {
	defer c.closeOnce.Do(func() { close(c.messages) })

	for {
		line, err := c.reader.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return
			}
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.logger.Warn("terminal read failed", "error", err)
			}
			return
		}

		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "sair", "exit", "quit":
			return
		}

		msg := &channels.IncomingMessage{
			ID:        "console-" + strconv.FormatInt(c.seq.Add(1), 10),
			Channel:   "console",
			From:      ID,
			FromName:  "console",
			ChatID:    ID,
			Content:   line,
			Timestamp: time.Now(),
		}
		select {
		case c.messages <- msg:
		case <-ctx.Done():
			return
		}
	}
}
