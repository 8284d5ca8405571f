// Package control implements the fixed command table checked before any
// interpretation: user administration, status and the per-conversation
// switches (atender, notificar, livre, fuso).
package control

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/jholhewres/agendabot/pkg/agendabot/datetime"
	"github.com/jholhewres/agendabot/pkg/agendabot/store"
)

// UserSuffix turns a phone number into an individual conversation ID.
const UserSuffix = "@s.whatsapp.net"

// Request is a message offered to the command table.
type Request struct {
	// ConversationID is the record the command applies to.
	ConversationID string

	// Sender is the individual who sent the message.
	Sender string

	// IsAdmin reports whether Sender may administer users.
	IsAdmin bool

	// Text is the message with mentions stripped.
	Text string
}

// Reply is the outcome of a handled command.
type Reply struct {
	Text string

	// Changed reports whether the store was mutated (and committed).
	Changed bool
}

type command struct {
	name    string
	pattern *regexp.Regexp
	admin   bool
	run     func(t *Table, ctx context.Context, req Request, m []string) (Reply, error)
}

// Table dispatches commands.
type Table struct {
	store    *store.Store
	logger   *slog.Logger
	commands []command
}

// New creates the command table.
func New(s *store.Store, logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default()
	}
	return &Table{
		store:  s,
		logger: logger.With("component", "control"),
		commands: []command{
			{"add-user", regexp.MustCompile(`(?i)^adicionar(?: usuário| usuario)? @(\d{11,15})$`), true, (*Table).addUser},
			{"remove-user", regexp.MustCompile(`(?i)^remover(?: usuário| usuario)? @(\d{11,15})$`), true, (*Table).removeUser},
			{"status", regexp.MustCompile(`(?i)^status$`), false, (*Table).status},
			{"listen", regexp.MustCompile(`(?i)^atender$`), false, (*Table).toggleListen},
			{"notify", regexp.MustCompile(`(?i)^notificar$`), false, (*Table).toggleNotify},
			{"freemode", regexp.MustCompile(`(?i)^livre$`), false, (*Table).toggleFreemode},
			{"timezone", regexp.MustCompile(`(?i)^fuso (\S+)$`), false, (*Table).setTimezone},
		},
	}
}

// Handle runs the first command matching req.Text. handled is false when
// the message is not a command (or the sender lacks the permission), in
// which case the caller continues with interpretation.
func (t *Table) Handle(ctx context.Context, req Request) (reply Reply, handled bool, err error) {
	text := strings.TrimSpace(req.Text)
	for _, c := range t.commands {
		m := c.pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if c.admin && !req.IsAdmin {
			return Reply{}, false, nil
		}
		if !c.admin && !t.store.Exists(req.ConversationID) {
			return Reply{}, false, nil
		}

		reply, err = c.run(t, ctx, req, m)
		if err != nil {
			t.logger.Error("command failed", "command", c.name, "conversation", req.ConversationID, "error", err)
		} else {
			t.logger.Info("command executed", "command", c.name, "conversation", req.ConversationID)
		}
		return reply, reply.Text != "", err
	}
	return Reply{}, false, nil
}

// ---------- Commands ----------

func (t *Table) addUser(ctx context.Context, _ Request, m []string) (Reply, error) {
	id := m[1] + UserSuffix
	if !t.store.Ensure(id) {
		return Reply{Text: "❌ Usuário já está autorizado."}, nil
	}
	t.logger.Info("user authorized", "user", id)
	return t.commit(ctx, "✅ Usuário adicionado.")
}

func (t *Table) removeUser(ctx context.Context, _ Request, m []string) (Reply, error) {
	id := m[1] + UserSuffix
	if !t.store.Delete(id) {
		return Reply{Text: "❌ Usuário não encontrado."}, nil
	}
	t.logger.Info("user removed", "user", id)
	return t.commit(ctx, "✅ Usuário removido.")
}

func (t *Table) status(_ context.Context, req Request, _ []string) (Reply, error) {
	c, ok := t.store.Get(req.ConversationID)
	if !ok {
		return Reply{}, nil
	}
	return Reply{Text: statusText(c)}, nil
}

func (t *Table) toggleListen(ctx context.Context, req Request, _ []string) (Reply, error) {
	var on bool
	_ = t.store.Update(req.ConversationID, func(c *store.Conversation) error {
		c.Configs.Listen = !c.Configs.Listen
		on = c.Configs.Listen
		return nil
	})
	if on {
		return t.commit(ctx, "✅ Ativado, aguardando solicitações.")
	}
	return t.commit(ctx, "❌ Desativado, ignorando solicitações.")
}

func (t *Table) toggleNotify(ctx context.Context, req Request, _ []string) (Reply, error) {
	var on bool
	_ = t.store.Update(req.ConversationID, func(c *store.Conversation) error {
		c.Configs.Notify = !c.Configs.Notify
		on = c.Configs.Notify
		return nil
	})
	if on {
		return t.commit(ctx, "✅ Notificações ativadas.")
	}
	return t.commit(ctx, "❌ Notificações desativadas.")
}

func (t *Table) toggleFreemode(ctx context.Context, req Request, _ []string) (Reply, error) {
	var (
		group bool
		on    bool
	)
	_ = t.store.Update(req.ConversationID, func(c *store.Conversation) error {
		if c.Configs.Freemode == nil {
			return nil
		}
		group = true
		on = !*c.Configs.Freemode
		c.Configs.Freemode = &on
		return nil
	})
	if !group {
		// Individual chats have no freemode; let the message through.
		return Reply{}, nil
	}
	if on {
		return t.commit(ctx, "✅ Qualquer mensagem.")
	}
	return t.commit(ctx, "❌ Menções ativadas.")
}

func (t *Table) setTimezone(ctx context.Context, req Request, m []string) (Reply, error) {
	tz := m[1]
	if _, ok := datetime.LoadLocation(tz); !ok {
		return Reply{Text: fmt.Sprintf("❌ Fuso horário inválido: %s.", tz)}, nil
	}
	_ = t.store.Update(req.ConversationID, func(c *store.Conversation) error {
		c.Configs.Timezone = tz
		return nil
	})
	return t.commit(ctx, fmt.Sprintf("✅ Fuso horário definido para %s.", tz))
}

func (t *Table) commit(ctx context.Context, text string) (Reply, error) {
	reply := Reply{Text: text, Changed: true}
	if err := t.store.Commit(ctx); err != nil {
		return reply, fmt.Errorf("commit: %w", err)
	}
	return reply, nil
}

// ---------- Status ----------

func statusText(c store.Conversation) string {
	var b strings.Builder

	if c.Configs.Listen {
		b.WriteString("✅ Aguardando solicitações.\n")
	} else {
		b.WriteString("❌ Ignorando solicitações.\n")
	}
	if c.Configs.Notify {
		b.WriteString("✅ Notificações ativadas.")
	} else {
		b.WriteString("❌ Notificações desativadas.")
	}
	if c.Configs.Freemode != nil {
		if *c.Configs.Freemode {
			b.WriteString("\n✅ Qualquer mensagem.")
		} else {
			b.WriteString("\n❌ Menções ativadas.")
		}
	}
	fmt.Fprintf(&b, "\n🕒 Fuso horário: %s", c.Configs.Timezone)
	fmt.Fprintf(&b, "\n📋 %s", count(len(c.Tasks), "Nenhuma tarefa", "tarefa", "tarefas"))
	fmt.Fprintf(&b, "\n📅 %s", count(len(c.Events), "Nenhum evento", "evento", "eventos"))

	b.WriteString("\n\n🤖 *Comandos disponíveis:*\n")
	b.WriteString("▪ *atender*: ativa/desativa novas solicitações.\n")
	b.WriteString("▪ *notificar*: ativa/desativa todas notificações.\n")
	if c.Configs.Freemode != nil {
		b.WriteString("▪ *livre*: ativa/desativa mensagens sem menções.\n")
	}
	b.WriteString("▪ *fuso <zona>*: define o fuso horário (ex.: America/Sao_Paulo, -3).\n")
	b.WriteString("▪ *agenda*: mostra tarefas e eventos.\n")
	b.WriteString("▪ *tarefas*: mostra as tarefas.\n")
	b.WriteString("▪ *eventos*: mostra os eventos.")
	return b.String()
}

func count(n int, none, one, many string) string {
	switch n {
	case 0:
		return none
	case 1:
		return "1 " + one
	default:
		return fmt.Sprintf("%d %s", n, many)
	}
}
