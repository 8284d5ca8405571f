// Package processor applies an interpreted intent to a conversation record
// and produces the reply text. Mutating intents are committed to storage
// before Apply returns, so a reply is never sent for an unsaved change.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jholhewres/agendabot/pkg/agendabot/intent"
	"github.com/jholhewres/agendabot/pkg/agendabot/store"
)

// Result is the outcome of applying an intent.
type Result struct {
	// Text is the reply to send to the conversation.
	Text string

	// Mutated reports whether the record changed (and was committed).
	Mutated bool
}

// Processor applies intents to the Store.
type Processor struct {
	store  *store.Store
	logger *slog.Logger
}

// New creates a Processor over s.
func New(s *store.Store, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{store: s, logger: logger.With("component", "processor")}
}

// Apply executes in against the conversation. sender is the individual who
// issued the request and is recorded on created items.
//
// The returned error is non-nil only when committing a mutation failed; the
// Result is still meaningful in that case and should be delivered.
func (p *Processor) Apply(ctx context.Context, conversationID, sender string, in intent.Intent) (Result, error) {
	var res Result

	err := p.store.Update(conversationID, func(c *store.Conversation) error {
		res = p.apply(c, sender, in)
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return Result{Text: MsgUnknown}, fmt.Errorf("apply %s: %w", in.Type, err)
	}

	if res.Mutated {
		if err := p.store.Commit(ctx); err != nil {
			p.logger.Error("failed to persist mutation",
				"conversation", conversationID, "intent", in.Type, "error", err)
			return res, err
		}
	}

	p.logger.Debug("intent applied",
		"conversation", conversationID,
		"intent", in.Type,
		"mutated", res.Mutated,
	)
	return res, nil
}

// apply runs inside the store lock; index checks and mutations share the
// critical section.
func (p *Processor) apply(c *store.Conversation, sender string, in intent.Intent) Result {
	tz := c.Configs.Timezone

	switch in.Type {
	case intent.TypeTask:
		desc := strings.TrimSpace(in.Description)
		if desc == "" {
			return Result{Text: MsgUnknown}
		}
		return Result{Text: taskAdded(c.AddTask(desc, sender)), Mutated: true}

	case intent.TypeEvent:
		if in.Datetime == nil {
			return Result{Text: MsgMissingEventDate}
		}
		desc := strings.TrimSpace(in.Description)
		if desc == "" {
			desc = "Evento sem descrição"
		}
		e := c.AddEvent(desc, *in.Datetime, in.Notify, sender)
		return Result{Text: eventAdded(e, tz), Mutated: true}

	case intent.TypeUpdate:
		return p.applyUpdate(c, in)

	case intent.TypeRemove:
		return p.applyRemove(c, in)

	case intent.TypeClear:
		switch in.Target {
		case intent.TargetTasks, intent.TargetTask:
			c.ClearTasks()
			return Result{Text: listCleared("de tarefas"), Mutated: true}
		case intent.TargetEvents, intent.TargetEvent:
			c.ClearEvents()
			return Result{Text: listCleared("de eventos"), Mutated: true}
		case intent.TargetAll:
			c.ClearTasks()
			c.ClearEvents()
			return Result{Text: listCleared("completa"), Mutated: true}
		}
		return Result{Text: MsgUnknown}

	case intent.TypeQuery:
		view := c.Clone()
		switch in.QueryType {
		case intent.QueryTasks:
			return Result{Text: queryTasks(view)}
		case intent.QueryEvents:
			return Result{Text: queryEvents(view)}
		default:
			return Result{Text: queryBoth(view)}
		}

	case intent.TypeText:
		if strings.TrimSpace(in.Content) == "" {
			return Result{Text: MsgUnknown}
		}
		return Result{Text: in.Content}
	}

	return Result{Text: MsgUnknown}
}

func (p *Processor) applyUpdate(c *store.Conversation, in intent.Intent) Result {
	switch in.Target {
	case intent.TargetTask:
		t, err := c.UpdateTask(in.ItemIndex, in.Fields.Description)
		if err != nil {
			return Result{Text: MsgInvalidUpdate}
		}
		return Result{Text: taskUpdated(in.ItemIndex, t), Mutated: true}

	case intent.TargetEvent:
		e, err := c.UpdateEvent(in.ItemIndex, in.Fields.Description, in.Fields.Datetime, in.Fields.Notify)
		if err != nil {
			return Result{Text: MsgInvalidUpdate}
		}
		return Result{Text: eventUpdated(in.ItemIndex, e, c.Configs.Timezone), Mutated: true}
	}
	return Result{Text: MsgInvalidUpdate}
}

func (p *Processor) applyRemove(c *store.Conversation, in intent.Intent) Result {
	switch in.Target {
	case intent.TargetTask:
		t, err := c.RemoveTask(in.ItemIndex)
		if err != nil {
			return Result{Text: MsgInvalidRemoval}
		}
		return Result{Text: taskRemoved(t), Mutated: true}

	case intent.TargetEvent:
		e, err := c.RemoveEvent(in.ItemIndex)
		if err != nil {
			return Result{Text: MsgInvalidRemoval}
		}
		return Result{Text: eventRemoved(e), Mutated: true}
	}
	return Result{Text: MsgInvalidRemoval}
}
