// Package reminder scans stored events on a fixed interval, pushes a
// message for each event whose notification time has come and drops events
// whose window has passed.
//
// An event's reminder is due from notifyTime (datetime minus the lead time)
// until ToleranceWindow later. Due events are removed from the store before
// the message is sent, so a reminder fires at most once even when the
// transport fails.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jholhewres/agendabot/pkg/agendabot/channels"
	"github.com/jholhewres/agendabot/pkg/agendabot/processor"
	"github.com/jholhewres/agendabot/pkg/agendabot/scheduler"
	"github.com/jholhewres/agendabot/pkg/agendabot/store"
)

const (
	// DefaultInterval is how often the sweep runs.
	DefaultInterval = 60 * time.Second

	// ToleranceWindow is how long after notifyTime a reminder may still fire.
	ToleranceWindow = 60 * time.Minute

	// JobName is the scheduler job name.
	JobName = "reminder-sweep"
)

// State classifies an event at a given instant.
type State int

const (
	Pending State = iota
	Due
	Expired
)

func (s State) String() string {
	switch s {
	case Due:
		return "due"
	case Expired:
		return "expired"
	default:
		return "pending"
	}
}

// Classify reports the state of an event at now.
func Classify(now, datetime time.Time, notify int) State {
	notifyAt := datetime.Add(-time.Duration(max(notify, 0)) * time.Minute)
	switch {
	case now.Before(notifyAt):
		return Pending
	case now.After(notifyAt.Add(ToleranceWindow)):
		return Expired
	default:
		return Due
	}
}

// Report summarizes a sweep.
type Report struct {
	Purged int
	Fired  int
	Failed int
}

// Sweeper performs the reminder sweep.
type Sweeper struct {
	store       *store.Store
	sender      channels.Sender
	logger      *slog.Logger
	now         func() time.Time
	sendTimeout time.Duration
	scope       func(conversation string) bool
}

// NewSweeper creates a Sweeper that delivers reminders through sender.
func NewSweeper(s *store.Store, sender channels.Sender, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:       s,
		sender:      sender,
		logger:      logger.With("component", "reminder"),
		now:         time.Now,
		sendTimeout: 30 * time.Second,
	}
}

// SetClock overrides the time source.
func (w *Sweeper) SetClock(now func() time.Time) { w.now = now }

// SetScope limits sweeps to conversations for which in returns true.
// Conversations outside the scope are left untouched.
func (w *Sweeper) SetScope(in func(conversation string) bool) { w.scope = in }

type delivery struct {
	conversation string
	event        store.Event
	timezone     string
	expiration   int
}

// Sweep runs one pass over every conversation:
//
//  1. expired events are purged regardless of notification settings;
//  2. if notifications are off globally or for the conversation, the
//     remaining events are left untouched;
//  3. due events are removed and a reminder is sent for each;
//  4. the store is committed once at the end.
//
// Due events leave the store before delivery, so sends and the commit run
// on a context detached from ctx's cancellation; each send is still bounded
// by the send timeout.
func (w *Sweeper) Sweep(ctx context.Context) (Report, error) {
	now := w.now().UTC()
	var (
		report     Report
		deliveries []delivery
	)

	w.store.Each(func(id string, c *store.Conversation, settings store.Settings) {
		if w.scope != nil && !w.scope(id) {
			return
		}
		notify := settings.Notify && c.Configs.Notify
		kept := make([]store.Event, 0, len(c.Events))
		for _, e := range c.Events {
			switch Classify(now, e.Datetime, e.Notify) {
			case Expired:
				report.Purged++
				continue
			case Due:
				if notify {
					deliveries = append(deliveries, delivery{
						conversation: id,
						event:        e,
						timezone:     c.Configs.Timezone,
						expiration:   c.Configs.Expiration,
					})
					continue
				}
			}
			kept = append(kept, e)
		}
		c.Events = kept
	})

	detached := context.WithoutCancel(ctx)
	for _, d := range deliveries {
		if err := w.deliver(detached, d); err != nil {
			report.Failed++
			w.logger.Error("failed to send reminder",
				"conversation", d.conversation,
				"event", d.event.Description,
				"error", err,
			)
			continue
		}
		report.Fired++
	}

	if report.Purged > 0 || len(deliveries) > 0 {
		w.logger.Info("reminder sweep",
			"purged", report.Purged,
			"fired", report.Fired,
			"failed", report.Failed,
		)
	}
	if err := w.store.Commit(detached); err != nil {
		return report, fmt.Errorf("committing sweep: %w", err)
	}
	return report, nil
}

func (w *Sweeper) deliver(ctx context.Context, d delivery) error {
	ctx, cancel := context.WithTimeout(ctx, w.sendTimeout)
	defer cancel()

	return w.sender.Send(ctx, d.conversation, &channels.OutgoingMessage{
		Content:    processor.ReminderText(d.event, d.timezone),
		Expiration: d.expiration,
	})
}

// Job wraps the sweep as a scheduler job firing every interval.
func (w *Sweeper) Job(interval time.Duration) scheduler.Job {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return scheduler.Job{
		Name:     JobName,
		Schedule: "@every " + interval.String(),
		Timeout:  interval,
		Run: func(ctx context.Context) error {
			_, err := w.Sweep(ctx)
			return err
		},
	}
}
