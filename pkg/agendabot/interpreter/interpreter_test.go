package interpreter

import (
	"testing"
	"time"

	"github.com/jholhewres/agendabot/pkg/agendabot/intent"
	"github.com/jholhewres/agendabot/pkg/agendabot/store"
)

var ref = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func conversation() store.Conversation {
	c := store.NewConversation("UTC", false)
	c.AddTask("Comprar pão", "")
	c.AddTask("Pagar boleto", "")
	c.AddEvent("Dentista", time.Date(2025, 6, 5, 12, 0, 0, 0, time.UTC), 0, "")
	c.AddEvent("Pagar boleto", time.Date(2025, 6, 6, 12, 0, 0, 0, time.UTC), 0, "")
	return c.Clone()
}

func TestTaskCreation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{"nova tarefa: Comprar leite", "Comprar leite"},
		{"Criar Tarefa: Ligar para João", "Ligar para João"},
		{"tarefa:   lavar o carro  ", "lavar o carro"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			got, ok := Interpret(tt.input, ref, conversation())
			if !ok || got.Type != intent.TypeTask || got.Description != tt.want {
				t.Errorf("Interpret(%q) = %+v, %v; want task %q", tt.input, got, ok, tt.want)
			}
		})
	}
}

func TestTaskCreationEmptyRemainderFallsThrough(t *testing.T) {
	t.Parallel()

	if got, ok := Interpret("tarefa:   ", ref, conversation()); ok {
		t.Errorf("expected NoMatch, got %+v", got)
	}
}

func TestRemoveByDescription(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input  string
		target intent.Target
		index  int
	}{
		{"remover Comprar pão", intent.TargetTask, 0},
		{"apagar dentista", intent.TargetEvent, 0},
		// Tasks are searched before events.
		{"excluir Pagar boleto", intent.TargetTask, 1},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			got, ok := Interpret(tt.input, ref, conversation())
			if !ok || got.Type != intent.TypeRemove || got.Target != tt.target || got.ItemIndex != tt.index {
				t.Errorf("Interpret(%q) = %+v, want remove %s[%d]", tt.input, got, tt.target, tt.index)
			}
		})
	}
}

func TestRemoveUnknownDescriptionFallsThrough(t *testing.T) {
	t.Parallel()

	if got, ok := Interpret("remover Academia", ref, conversation()); ok {
		t.Errorf("expected NoMatch, got %+v", got)
	}
}

func TestClear(t *testing.T) {
	t.Parallel()

	tests := map[string]intent.Target{
		"limpar tarefas":  intent.TargetTasks,
		"Apagar eventos":  intent.TargetEvents,
		"excluir tudo":    intent.TargetAll,
		"remover tarefas": intent.TargetTasks,
	}
	for input, want := range tests {
		got, ok := Interpret(input, ref, conversation())
		if !ok || got.Type != intent.TypeClear || got.Target != want {
			t.Errorf("Interpret(%q) = %+v, want clear %s", input, got, want)
		}
	}
}

func TestRename(t *testing.T) {
	t.Parallel()

	t.Run("task description", func(t *testing.T) {
		t.Parallel()
		got, ok := Interpret("mudar comprar pão para Comprar pão integral", ref, conversation())
		if !ok || got.Type != intent.TypeUpdate || got.Target != intent.TargetTask || got.ItemIndex != 0 {
			t.Fatalf("got %+v", got)
		}
		if got.Fields.Description == nil || *got.Fields.Description != "Comprar pão integral" {
			t.Errorf("Description = %v", got.Fields.Description)
		}
	})

	t.Run("event datetime", func(t *testing.T) {
		t.Parallel()
		got, ok := Interpret("Mudar Dentista para amanhã às 15:00", ref, conversation())
		if !ok || got.Target != intent.TargetEvent || got.ItemIndex != 0 {
			t.Fatalf("got %+v", got)
		}
		want := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)
		if got.Fields.Datetime == nil || !got.Fields.Datetime.Equal(want) {
			t.Errorf("Datetime = %v, want %v", got.Fields.Datetime, want)
		}
		if got.Fields.Description != nil {
			t.Errorf("Description should be untouched, got %q", *got.Fields.Description)
		}
	})

	t.Run("command inside a sentence", func(t *testing.T) {
		t.Parallel()
		got, ok := Interpret("pode mudar dentista para amanhã às 10", ref, conversation())
		if !ok || got.Type != intent.TypeUpdate || got.Target != intent.TargetEvent || got.ItemIndex != 0 {
			t.Fatalf("got %+v", got)
		}
		want := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
		if got.Fields.Datetime == nil || !got.Fields.Datetime.Equal(want) {
			t.Errorf("Datetime = %v, want %v", got.Fields.Datetime, want)
		}
	})

	t.Run("event description", func(t *testing.T) {
		t.Parallel()
		got, ok := Interpret("mudar dentista para Ortodontista", ref, conversation())
		if !ok || got.Target != intent.TargetEvent {
			t.Fatalf("got %+v", got)
		}
		if got.Fields.Description == nil || *got.Fields.Description != "Ortodontista" {
			t.Errorf("Description = %v", got.Fields.Description)
		}
	})
}

func TestEventCreation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		desc  string
		at    time.Time
	}{
		{"Reunião com equipe às 15:00", "Reunião com equipe", time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)},
		{"Reunião com equipe hoje às 15:00", "Reunião com equipe", time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)},
		{"evento: Team Meeting hoje às 09:30", "Team Meeting", time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)},
		{"Reunião em 2 horas", "Reunião", time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
		{"Consulta médica dia 10/06/2025 às 14:30", "Consulta médica", time.Date(2025, 6, 10, 14, 30, 0, 0, time.UTC)},
		{"Viagem daqui a 3 dias", "Viagem", time.Date(2025, 6, 4, 8, 0, 0, 0, time.UTC)},
		{"hoje às 18", "Evento sem descrição", time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)},
		{"Almoço com İlker às 13", "Almoço com İlker", time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)},
		{"Evento: Reunião ANUAL hoje às 16", "Reunião ANUAL", time.Date(2025, 6, 1, 16, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			rule, got, ok := Classify(tt.input, ref, conversation())
			if !ok || rule != "event" || got.Type != intent.TypeEvent {
				t.Fatalf("Classify(%q) = %s %+v", tt.input, rule, got)
			}
			if got.Description != tt.desc {
				t.Errorf("Description = %q, want %q", got.Description, tt.desc)
			}
			if got.Datetime == nil || !got.Datetime.Equal(tt.at) {
				t.Errorf("Datetime = %v, want %v", got.Datetime, tt.at)
			}
			if got.Notify != 0 {
				t.Errorf("Notify = %d, want 0", got.Notify)
			}
		})
	}
}

func TestEventCreationUsesConversationTimezone(t *testing.T) {
	t.Parallel()

	c := store.NewConversation("-3", false).Clone()
	got, ok := Interpret("Dentista amanhã às 9", ref, c)
	if !ok {
		t.Fatal("expected event")
	}
	want := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	if !got.Datetime.Equal(want) {
		t.Errorf("Datetime = %v, want %v", got.Datetime, want)
	}
}

func TestQuery(t *testing.T) {
	t.Parallel()

	tests := map[string]intent.QueryType{
		"Agenda":       intent.QueryBoth,
		"mostre":       intent.QueryBoth,
		"compromissos": intent.QueryBoth,
		"  tudo ":      intent.QueryBoth,
		"LISTA":        intent.QueryBoth,
		"tarefas":      intent.QueryTasks,
		"Eventos":      intent.QueryEvents,
	}
	for input, want := range tests {
		got, ok := Interpret(input, ref, conversation())
		if !ok || got.Type != intent.TypeQuery || got.QueryType != want {
			t.Errorf("Interpret(%q) = %+v, want query %s", input, got, want)
		}
	}
}

func TestNoMatch(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"olá, como vai?",
		"qual a capital da França?",
		"lembrar de algo amanhã",
		"oi, tudo bem?",
		"qual a lista de compras ideal",
		"me explique as tarefas de casa",
		"minha agenda",
	}
	for _, input := range inputs {
		if got, ok := Interpret(input, ref, conversation()); ok {
			t.Errorf("Interpret(%q) = %+v, want NoMatch", input, got)
		}
	}
}
