package console

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/chzyer/readline"

	"github.com/jholhewres/agendabot/pkg/agendabot/channels"
)

type scriptReader struct {
	lines  []string
	errs   []error
	closed bool
}

func (r *scriptReader) Readline() (string, error) {
	if len(r.lines) == 0 {
		return "", io.EOF
	}
	line, err := r.lines[0], r.errs[0]
	r.lines, r.errs = r.lines[1:], r.errs[1:]
	return line, err
}

func (r *scriptReader) Close() error {
	r.closed = true
	return nil
}

func newTestConsole(lines []string, errs []error) (*Console, *bytes.Buffer) {
	var out bytes.Buffer
	c := New("", nil)
	c.reader = &scriptReader{lines: lines, errs: errs}
	c.out = &out
	return c, &out
}

func collect(c *Console) []string {
	var got []string
	for msg := range c.Receive() {
		got = append(got, msg.Content)
	}
	return got
}

func TestReadLoop(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		lines []string
		errs  []error
		want  []string
	}{
		{
			name:  "lines until eof",
			lines: []string{"tarefas", "  ", " agenda "},
			errs:  []error{nil, nil, nil},
			want:  []string{"tarefas", "agenda"},
		},
		{
			name:  "sair stops",
			lines: []string{"tarefas", "sair", "agenda"},
			errs:  []error{nil, nil, nil},
			want:  []string{"tarefas"},
		},
		{
			name:  "interrupt with text continues",
			lines: []string{"meio", "eventos", ""},
			errs:  []error{readline.ErrInterrupt, nil, readline.ErrInterrupt},
			want:  []string{"eventos"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, _ := newTestConsole(tt.lines, tt.errs)
			if err := c.Connect(context.Background()); err != nil {
				t.Fatal(err)
			}
			got := collect(c)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("messages = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMessagesComeFromConsoleID(t *testing.T) {
	t.Parallel()

	c, _ := newTestConsole([]string{"tarefas"}, []error{nil})
	_ = c.Connect(context.Background())

	msg := <-c.Receive()
	if msg.From != ID || msg.ChatID != ID || msg.IsGroup {
		t.Errorf("msg = %+v", msg)
	}
}

func TestSend(t *testing.T) {
	t.Parallel()

	c, out := newTestConsole(nil, nil)
	if err := c.Send(context.Background(), ID, &channels.OutgoingMessage{Content: "x"}); err != channels.ErrChannelDisconnected {
		t.Errorf("Send before Connect = %v", err)
	}

	_ = c.Connect(context.Background())
	_ = c.Send(context.Background(), ID, &channels.OutgoingMessage{Content: "Nenhuma tarefa."})
	_ = c.Send(context.Background(), "120363000000000000@g.us", &channels.OutgoingMessage{Content: "lembrete"})

	s := out.String()
	if !strings.Contains(s, "bot>\033[0m Nenhuma tarefa.") {
		t.Errorf("output = %q", s)
	}
	if !strings.Contains(s, "bot → 120363000000000000@g.us") {
		t.Errorf("destination prefix missing: %q", s)
	}

	if err := c.Disconnect(); err != nil {
		t.Fatal(err)
	}
	if !c.reader.(*scriptReader).closed {
		t.Error("reader not closed")
	}
}
