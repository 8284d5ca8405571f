package reminder

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jholhewres/agendabot/pkg/agendabot/channels"
	"github.com/jholhewres/agendabot/pkg/agendabot/store"
)

type sent struct {
	to     string
	msg    channels.OutgoingMessage
	ctxErr error
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (f *fakeSender) Send(ctx context.Context, to string, msg *channels.OutgoingMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{to: to, msg: *msg, ctxErr: ctx.Err()})
	return f.err
}

// countingStorage counts conversation saves on top of a FileStorage.
type countingStorage struct {
	store.Storage
	mu    sync.Mutex
	saves int
}

func (c *countingStorage) SaveConversations(ctx context.Context, convs map[string]store.Conversation) error {
	c.mu.Lock()
	c.saves++
	c.mu.Unlock()
	return c.Storage.SaveConversations(ctx, convs)
}

func (c *countingStorage) saveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saves
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, _ := newCountingStore(t)
	return s
}

func newCountingStore(t *testing.T) (*store.Store, *countingStorage) {
	t.Helper()
	fs, err := store.NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cs := &countingStorage{Storage: fs}
	s := store.New(cs, store.DefaultSettings(), nil)
	if err := s.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	return s, cs
}

func TestClassify(t *testing.T) {
	t.Parallel()

	event := time.Date(2025, 6, 5, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		now    time.Time
		notify int
		want   State
	}{
		{"before lead time", event.Add(-11 * time.Minute), 10, Pending},
		{"at notify time", event.Add(-10 * time.Minute), 10, Due},
		{"at event time", event, 0, Due},
		{"end of window", event.Add(60 * time.Minute), 0, Due},
		{"past window", event.Add(61 * time.Minute), 0, Expired},
		{"lead time shifts window", event.Add(55 * time.Minute), 10, Expired},
		{"negative lead treated as zero", event.Add(-time.Minute), -5, Pending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Classify(tt.now, event, tt.notify); got != tt.want {
				t.Errorf("Classify = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSweepFiresDueAndPurgesExpired(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	now := time.Date(2025, 6, 5, 12, 0, 0, 0, time.UTC)
	const conv = "5511@s.whatsapp.net"

	s.Ensure(conv)
	_ = s.Update(conv, func(c *store.Conversation) error {
		c.Configs.Timezone = "-3"
		c.Configs.Expiration = 604800
		c.AddEvent("Dentista", now.Add(5*time.Minute), 10, conv) // due
		c.AddEvent("Antigo", now.Add(-2*time.Hour), 0, conv)     // expired
		c.AddEvent("Futuro", now.Add(24*time.Hour), 0, conv)     // pending
		return nil
	})

	sender := &fakeSender{}
	w := NewSweeper(s, sender, nil)
	w.SetClock(func() time.Time { return now })

	report, err := w.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if report.Fired != 1 || report.Purged != 1 || report.Failed != 0 {
		t.Errorf("report = %+v", report)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("sent = %d messages, want 1", len(sender.sent))
	}
	got := sender.sent[0]
	want := "⏰ \"Dentista\"\nEm: 05/06/2025, 09:05."
	if got.to != conv || got.msg.Content != want || got.msg.Expiration != 604800 {
		t.Errorf("sent = %+v, want content %q", got, want)
	}

	c, _ := s.Get(conv)
	if len(c.Events) != 1 || c.Events[0].Description != "Futuro" {
		t.Errorf("remaining events = %+v", c.Events)
	}

	// Idempotent: a second sweep at the same instant sends nothing.
	report, _ = w.Sweep(context.Background())
	if report.Fired != 0 || report.Purged != 0 || len(sender.sent) != 1 {
		t.Errorf("second sweep report = %+v, sent = %d", report, len(sender.sent))
	}
}

func TestSweepRespectsNotifyFlags(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 5, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		globalNotify bool
		convNotify   bool
	}{
		{"conversation off", true, false},
		{"global off", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newStore(t)
			_ = s.UpdateSettings(context.Background(), func(st *store.Settings) { st.Notify = tt.globalNotify })
			s.Ensure("c")
			_ = s.Update("c", func(c *store.Conversation) error {
				c.Configs.Notify = tt.convNotify
				c.AddEvent("due", now, 0, "c")
				c.AddEvent("expired", now.Add(-3*time.Hour), 0, "c")
				return nil
			})

			sender := &fakeSender{}
			w := NewSweeper(s, sender, nil)
			w.SetClock(func() time.Time { return now })
			report, _ := w.Sweep(context.Background())

			if len(sender.sent) != 0 {
				t.Errorf("sent %d reminders with notifications off", len(sender.sent))
			}
			if report.Purged != 1 {
				t.Errorf("Purged = %d, want 1 (purge is unconditional)", report.Purged)
			}
			c, _ := s.Get("c")
			if len(c.Events) != 1 || c.Events[0].Description != "due" {
				t.Errorf("events = %+v", c.Events)
			}
		})
	}
}

func TestSweepDropsEventWhenSendFails(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	now := time.Date(2025, 6, 5, 12, 0, 0, 0, time.UTC)
	s.Ensure("c")
	_ = s.Update("c", func(c *store.Conversation) error {
		c.AddEvent("x", now, 0, "c")
		return nil
	})

	sender := &fakeSender{err: errors.New("offline")}
	w := NewSweeper(s, sender, nil)
	w.SetClock(func() time.Time { return now })

	report, err := w.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Failed != 1 || report.Fired != 0 {
		t.Errorf("report = %+v", report)
	}
	c, _ := s.Get("c")
	if len(c.Events) != 0 {
		t.Errorf("event should be dropped after a failed send, got %+v", c.Events)
	}
}

func TestSweepScope(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	now := time.Date(2025, 6, 5, 12, 0, 0, 0, time.UTC)
	for _, id := range []string{"inside", "outside"} {
		s.Ensure(id)
		_ = s.Update(id, func(c *store.Conversation) error {
			c.AddEvent("agora", now, 0, id)
			c.AddEvent("antigo", now.Add(-3*time.Hour), 0, id)
			return nil
		})
	}

	sender := &fakeSender{}
	w := NewSweeper(s, sender, nil)
	w.SetClock(func() time.Time { return now })
	w.SetScope(func(id string) bool { return id == "inside" })

	report, err := w.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Fired != 1 || report.Purged != 1 {
		t.Errorf("report = %+v", report)
	}
	if len(sender.sent) != 1 || sender.sent[0].to != "inside" {
		t.Errorf("sent = %+v", sender.sent)
	}
	if c, _ := s.Get("outside"); len(c.Events) != 2 {
		t.Errorf("out-of-scope events = %+v, want untouched", c.Events)
	}
}

func TestSweepDeliversAfterJobDeadline(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	now := time.Date(2025, 6, 5, 12, 0, 0, 0, time.UTC)
	s.Ensure("c")
	_ = s.Update("c", func(c *store.Conversation) error {
		for _, d := range []string{"um", "dois", "três"} {
			c.AddEvent(d, now, 0, "c")
		}
		return nil
	})

	sender := &fakeSender{}
	w := NewSweeper(s, sender, nil)
	w.SetClock(func() time.Time { return now })

	// A job whose deadline passed while earlier sends were slow.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := w.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if report.Fired != 3 || report.Failed != 0 {
		t.Errorf("report = %+v, want 3 fired", report)
	}
	for _, m := range sender.sent {
		if m.ctxErr != nil {
			t.Errorf("send %q got a cancelled context: %v", m.msg.Content, m.ctxErr)
		}
	}
}

func TestSweepCommitsOncePerPass(t *testing.T) {
	t.Parallel()

	s, cs := newCountingStore(t)
	now := time.Date(2025, 6, 5, 12, 0, 0, 0, time.UTC)
	s.Ensure("c")
	_ = s.Update("c", func(c *store.Conversation) error {
		c.AddEvent("agora", now, 0, "c")
		c.AddEvent("futuro", now.Add(24*time.Hour), 0, "c")
		return nil
	})

	w := NewSweeper(s, &fakeSender{}, nil)
	w.SetClock(func() time.Time { return now })

	for i := 1; i <= 2; i++ {
		before := cs.saveCount()
		if _, err := w.Sweep(context.Background()); err != nil {
			t.Fatalf("sweep %d: %v", i, err)
		}
		if got := cs.saveCount() - before; got != 1 {
			t.Errorf("sweep %d saved %d times, want 1", i, got)
		}
	}
}

func TestJobSchedule(t *testing.T) {
	t.Parallel()

	w := NewSweeper(newStore(t), &fakeSender{}, nil)
	job := w.Job(0)
	if job.Name != JobName || !strings.HasPrefix(job.Schedule, "@every 1m") {
		t.Errorf("job = %+v", job)
	}
}
