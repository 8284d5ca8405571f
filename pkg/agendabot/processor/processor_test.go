package processor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jholhewres/agendabot/pkg/agendabot/intent"
	"github.com/jholhewres/agendabot/pkg/agendabot/interpreter"
	"github.com/jholhewres/agendabot/pkg/agendabot/store"
)

const conv = "5511999999999@s.whatsapp.net"

// memStorage records how many times conversations were saved.
type memStorage struct {
	mu      sync.Mutex
	saves   int
	last    map[string]store.Conversation
	failErr error
}

func (m *memStorage) LoadSettings(context.Context, *store.Settings) (bool, error) { return false, nil }
func (m *memStorage) SaveSettings(context.Context, store.Settings) error { return nil }
func (m *memStorage) LoadConversations(context.Context) (map[string]*store.Conversation, error) {
	return map[string]*store.Conversation{}, nil
}
func (m *memStorage) SaveConversations(_ context.Context, s map[string]store.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.saves++
	m.last = s
	return nil
}
func (m *memStorage) Close() error { return nil }

func (m *memStorage) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func setup(t *testing.T) (*Processor, *store.Store, *memStorage) {
	t.Helper()
	ms := &memStorage{}
	s := store.New(ms, store.DefaultSettings(), nil)
	if err := s.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	s.Ensure(conv)
	_ = s.Update(conv, func(c *store.Conversation) error {
		c.Configs.Timezone = "UTC"
		return nil
	})
	return New(s, nil), s, ms
}

func apply(t *testing.T, p *Processor, in intent.Intent) Result {
	t.Helper()
	res, err := p.Apply(context.Background(), conv, conv, in)
	if err != nil {
		t.Fatalf("Apply(%s): %v", in.Type, err)
	}
	return res
}

func TestTaskLifecycle(t *testing.T) {
	t.Parallel()

	p, s, ms := setup(t)
	ref := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	view := func() store.Conversation {
		c, _ := s.Get(conv)
		return c
	}
	interpret := func(text string) intent.Intent {
		in, ok := interpreter.Interpret(text, ref, view())
		if !ok {
			t.Fatalf("Interpret(%q) NoMatch", text)
		}
		return in
	}

	before := ms.saveCount()
	res := apply(t, p, interpret("nova tarefa: Comprar pão"))
	if res.Text != `✅ Tarefa "Comprar pão" adicionada.` {
		t.Errorf("add text = %q", res.Text)
	}
	if ms.saveCount() != before+1 {
		t.Error("task creation was not persisted")
	}

	res = apply(t, p, interpret("tarefas"))
	if res.Text != "📋 Tarefas:\n*1.* Comprar pão" {
		t.Errorf("query text = %q", res.Text)
	}
	if res.Mutated {
		t.Error("query must not mutate")
	}

	res = apply(t, p, interpret("remover Comprar pão"))
	if res.Text != `✅ Tarefa "Comprar pão" removida.` {
		t.Errorf("remove text = %q", res.Text)
	}

	res = apply(t, p, interpret("tarefas"))
	if res.Text != MsgNoTasks {
		t.Errorf("query after removal = %q", res.Text)
	}
}

func TestRelativeEventScenario(t *testing.T) {
	t.Parallel()

	p, s, _ := setup(t)
	ref := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	c, _ := s.Get(conv)

	in, ok := interpreter.Interpret("Reunião em 2 horas", ref, c)
	if !ok {
		t.Fatal("expected event intent")
	}
	res := apply(t, p, in)

	want := "✅ Evento *\"Reunião\"*\nAgendado para *01/06/2025, 12:00*.\nNotificação na hora do evento."
	if res.Text != want {
		t.Errorf("text = %q, want %q", res.Text, want)
	}

	c, _ = s.Get(conv)
	if len(c.Events) != 1 || !c.Events[0].Datetime.Equal(ref.Add(2*time.Hour)) || c.Events[0].Notify != 0 {
		t.Errorf("events = %+v", c.Events)
	}
}

func TestClearAllScenario(t *testing.T) {
	t.Parallel()

	p, s, _ := setup(t)
	at := time.Date(2025, 6, 5, 12, 0, 0, 0, time.UTC)
	apply(t, p, intent.Task("a"))
	apply(t, p, intent.Task("b"))
	apply(t, p, intent.Event("e", at, 0))

	res := apply(t, p, intent.Clear(intent.TargetAll))
	if res.Text != "✅ Lista completa foi limpa com sucesso." {
		t.Errorf("clear text = %q", res.Text)
	}
	c, _ := s.Get(conv)
	if len(c.Tasks) != 0 || len(c.Events) != 0 {
		t.Errorf("lists not empty: %+v", c)
	}

	if got := apply(t, p, intent.Query(intent.QueryBoth)).Text; got != MsgNoItems {
		t.Errorf("query both = %q", got)
	}
}

func TestClearTargets(t *testing.T) {
	t.Parallel()

	p, _, _ := setup(t)
	if got := apply(t, p, intent.Clear(intent.TargetTasks)).Text; got != "✅ Lista de tarefas foi limpa com sucesso." {
		t.Errorf("tasks = %q", got)
	}
	if got := apply(t, p, intent.Clear(intent.TargetEvents)).Text; got != "✅ Lista de eventos foi limpa com sucesso." {
		t.Errorf("events = %q", got)
	}
}

func TestUpdateAndRemoveOutOfRange(t *testing.T) {
	t.Parallel()

	p, s, ms := setup(t)
	apply(t, p, intent.Task("única"))
	saves := ms.saveCount()

	desc := "nova"
	res := apply(t, p, intent.Update(intent.TargetTask, 5, intent.Fields{Description: &desc}))
	if res.Text != MsgInvalidUpdate || res.Mutated {
		t.Errorf("update = %+v", res)
	}
	res = apply(t, p, intent.Remove(intent.TargetEvent, 0))
	if res.Text != MsgInvalidRemoval || res.Mutated {
		t.Errorf("remove = %+v", res)
	}
	if ms.saveCount() != saves {
		t.Error("failed mutations must not commit")
	}

	c, _ := s.Get(conv)
	if len(c.Tasks) != 1 || c.Tasks[0].Description != "única" {
		t.Errorf("state changed: %+v", c.Tasks)
	}
}

func TestUpdateEventText(t *testing.T) {
	t.Parallel()

	p, _, _ := setup(t)
	at := time.Date(2025, 6, 5, 12, 0, 0, 0, time.UTC)
	apply(t, p, intent.Event("Dentista", at, 0))

	notify := 30
	res := apply(t, p, intent.Update(intent.TargetEvent, 0, intent.Fields{Notify: &notify}))
	want := "✅ Evento atualizado com sucesso.\n*1.* Dentista\n   05/06/2025, 12:00\n   _(notificar 30 minutos antes)_"
	if res.Text != want {
		t.Errorf("text = %q, want %q", res.Text, want)
	}

	desc := "Ortodontista"
	res = apply(t, p, intent.Update(intent.TargetTask, 0, intent.Fields{Description: &desc}))
	if res.Text != MsgInvalidUpdate {
		t.Errorf("task update with no tasks = %q", res.Text)
	}
}

func TestUpdateIgnoresBlankDescription(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		json string
	}{
		{"task empty", `{"type":"update","target":"tasks","itemIndex":0,"fields":{"description":""}}`},
		{"task blank", `{"type":"update","target":"task","itemIndex":0,"fields":{"description":"   "}}`},
		{"event empty", `{"type":"update","target":"events","itemIndex":0,"fields":{"description":""}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, s, _ := setup(t)
			apply(t, p, intent.Task("Comprar café"))
			apply(t, p, intent.Event("Dentista", time.Date(2025, 6, 5, 12, 0, 0, 0, time.UTC), 0))

			in, err := intent.Decode([]byte(tt.json))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			apply(t, p, in)

			c, _ := s.Get(conv)
			if c.Tasks[0].Description != "Comprar café" || c.Events[0].Description != "Dentista" {
				t.Errorf("descriptions = %q / %q, want unchanged", c.Tasks[0].Description, c.Events[0].Description)
			}
		})
	}

	t.Run("direct intent", func(t *testing.T) {
		t.Parallel()
		p, s, _ := setup(t)
		apply(t, p, intent.Task("Comprar café"))

		blank := " "
		apply(t, p, intent.Update(intent.TargetTask, 0, intent.Fields{Description: &blank}))
		if c, _ := s.Get(conv); c.Tasks[0].Description != "Comprar café" {
			t.Errorf("description = %q, want unchanged", c.Tasks[0].Description)
		}
	})
}

func TestQueryBothFormatting(t *testing.T) {
	t.Parallel()

	p, _, _ := setup(t)
	apply(t, p, intent.Event("Dentista", time.Date(2025, 6, 5, 12, 0, 0, 0, time.UTC), 1))

	got := apply(t, p, intent.Query(intent.QueryBoth)).Text
	want := "📋 Tarefas:\nNenhum item encontrado\n\n📅 Eventos:\n*1. Dentista*\n   05/06/2025, 12:00\n   _(notificar 1 minuto antes)_"
	if got != want {
		t.Errorf("query = %q, want %q", got, want)
	}

	if got := apply(t, p, intent.Query(intent.QueryEvents)).Text; got[:len(eventsHeader)] != eventsHeader {
		t.Errorf("events query = %q", got)
	}
}

func TestEventWithoutDatetime(t *testing.T) {
	t.Parallel()

	p, _, _ := setup(t)
	res := apply(t, p, intent.Intent{Type: intent.TypeEvent, Description: "x"})
	if res.Text != MsgMissingEventDate || res.Mutated {
		t.Errorf("res = %+v", res)
	}
}

func TestTextAndUnknown(t *testing.T) {
	t.Parallel()

	p, _, _ := setup(t)
	if got := apply(t, p, intent.Text("Olá! Posso ajudar?")).Text; got != "Olá! Posso ajudar?" {
		t.Errorf("text = %q", got)
	}
	if got := apply(t, p, intent.Intent{Type: "dance"}).Text; got != MsgUnknown {
		t.Errorf("unknown = %q", got)
	}
}

func TestCommitFailureStillReturnsText(t *testing.T) {
	t.Parallel()

	p, _, ms := setup(t)
	ms.mu.Lock()
	ms.failErr = errors.New("disk full")
	ms.mu.Unlock()

	res, err := p.Apply(context.Background(), conv, conv, intent.Task("x"))
	if err == nil {
		t.Fatal("expected commit error")
	}
	if res.Text != `✅ Tarefa "x" adicionada.` {
		t.Errorf("text = %q", res.Text)
	}
}

func TestApplyUnknownConversation(t *testing.T) {
	t.Parallel()

	p, _, _ := setup(t)
	res, err := p.Apply(context.Background(), "ghost", "ghost", intent.Task("x"))
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v", err)
	}
	if res.Text != MsgUnknown {
		t.Errorf("text = %q", res.Text)
	}
}
