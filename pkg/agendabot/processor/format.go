package processor

import (
	"fmt"
	"strings"

	"github.com/jholhewres/agendabot/pkg/agendabot/datetime"
	"github.com/jholhewres/agendabot/pkg/agendabot/store"
)

// Reply texts.
const (
	MsgUnknown          = "Não entendi sua solicitação. Reformule, por favor."
	MsgInvalidUpdate    = "❌ Índice inválido para atualização."
	MsgInvalidRemoval   = "❌ Falha na remoção."
	MsgMissingEventDate = "❌ Não foi possível identificar a data do evento."
	MsgNoItems          = "Nenhum item encontrado."
	MsgNoTasks          = "Nenhuma tarefa encontrada."
	MsgNoEvents         = "Nenhum evento encontrado."

	emptySection = "Nenhum item encontrado"
	tasksHeader  = "📋 Tarefas:"
	eventsHeader = "📅 Eventos:"
)

// FormatTasks renders a numbered task list ("*1.* Comprar pão").
func FormatTasks(tasks []store.Task) string {
	lines := make([]string, len(tasks))
	for i, t := range tasks {
		lines[i] = fmt.Sprintf("*%d.* %s", i+1, t.Description)
	}
	return strings.Join(lines, "\n")
}

// FormatEvents renders a numbered event list with datetime and lead time.
func FormatEvents(events []store.Event, tz string) string {
	entries := make([]string, len(events))
	for i, e := range events {
		entries[i] = formatEventEntry(i+1, e, tz)
	}
	return strings.Join(entries, "\n")
}

func formatEventEntry(n int, e store.Event, tz string) string {
	return fmt.Sprintf("*%d. %s*\n   %s\n   _(notificar %s)_",
		n, e.Description, datetime.Format(e.Datetime, tz), datetime.LeadTime(e.Notify))
}

// ReminderText is the message pushed when an event becomes due.
func ReminderText(e store.Event, tz string) string {
	return fmt.Sprintf("⏰ \"%s\"\nEm: %s.", e.Description, datetime.Format(e.Datetime, tz))
}

func eventAdded(e store.Event, tz string) string {
	return fmt.Sprintf("✅ Evento *\"%s\"*\nAgendado para *%s*.\nNotificação %s.",
		e.Description, datetime.Format(e.Datetime, tz), datetime.LeadTime(e.Notify))
}

func taskAdded(t store.Task) string {
	return fmt.Sprintf("✅ Tarefa \"%s\" adicionada.", t.Description)
}

func taskUpdated(i int, t store.Task) string {
	return fmt.Sprintf("✅ Tarefa atualizada com sucesso.\n*%d.* %s", i+1, t.Description)
}

func eventUpdated(i int, e store.Event, tz string) string {
	return fmt.Sprintf("✅ Evento atualizado com sucesso.\n*%d.* %s\n   %s\n   _(notificar %s)_",
		i+1, e.Description, datetime.Format(e.Datetime, tz), datetime.LeadTime(e.Notify))
}

func taskRemoved(t store.Task) string {
	return fmt.Sprintf("✅ Tarefa \"%s\" removida.", t.Description)
}

func eventRemoved(e store.Event) string {
	return fmt.Sprintf("✅ Evento \"%s\" removido.", e.Description)
}

func listCleared(scope string) string {
	return fmt.Sprintf("✅ Lista %s foi limpa com sucesso.", scope)
}

func queryBoth(c store.Conversation) string {
	if len(c.Tasks) == 0 && len(c.Events) == 0 {
		return MsgNoItems
	}
	tasks, events := FormatTasks(c.Tasks), FormatEvents(c.Events, c.Configs.Timezone)
	if tasks == "" {
		tasks = emptySection
	}
	if events == "" {
		events = emptySection
	}
	return tasksHeader + "\n" + tasks + "\n\n" + eventsHeader + "\n" + events
}

func queryTasks(c store.Conversation) string {
	if len(c.Tasks) == 0 {
		return MsgNoTasks
	}
	return tasksHeader + "\n" + FormatTasks(c.Tasks)
}

func queryEvents(c store.Conversation) string {
	if len(c.Events) == 0 {
		return MsgNoEvents
	}
	return eventsHeader + "\n" + FormatEvents(c.Events, c.Configs.Timezone)
}
