package llm

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jholhewres/agendabot/pkg/agendabot/datetime"
)

const systemPrompt = `Você organiza a agenda de um usuário. Converta cada pedido em um único objeto JSON, sem texto adicional.

Categorias:
- Evento: {"type":"event","description":...,"datetime":<ISO 8601 em UTC>,"notify":<minutos antes, padrão 0>}.
  Tempo relativo ("em 20 minutos", "daqui a 2 horas") conta a partir da data/hora atual.
  Tempo absoluto ("às 15h", "dia 10 às 9h") é interpretado no fuso horário informado e convertido para UTC.
  Se só a data for informada, use 08:00 no fuso do usuário.
  Use notify diferente de 0 apenas se o usuário pedir para ser avisado antes.
- Tarefa: {"type":"task","description":...} para pedidos sem data ou hora.
- Alteração: {"type":"update","target":"task"|"event","itemIndex":<índice base 0>,"fields":{"description"?,"datetime"?,"notify"?}}.
- Consulta: {"type":"query","queryType":"tasks"|"events"|"both"}.
- Remoção: {"type":"remove","target":"task"|"event","itemIndex":<índice base 0>}.
- Limpeza: {"type":"clear","target":"tasks"|"events"|"all"}.

Se o pedido não se encaixar em nenhuma categoria, responda {"type":"text","content":<resposta curta em português>}.`

type promptItem struct {
	Index       int    `json:"index"`
	Description string `json:"description"`
	Datetime    string `json:"datetime,omitempty"`
	Notify      *int   `json:"notify,omitempty"`
}

func userPrompt(req Request) string {
	c := req.Conversation
	tasks := make([]promptItem, len(c.Tasks))
	for i, t := range c.Tasks {
		tasks[i] = promptItem{Index: i, Description: t.Description}
	}
	events := make([]promptItem, len(c.Events))
	for i, e := range c.Events {
		n := e.Notify
		events[i] = promptItem{
			Index:       i,
			Description: e.Description,
			Datetime:    e.Datetime.UTC().Format(time.RFC3339),
			Notify:      &n,
		}
	}
	tasksJSON, _ := json.Marshal(tasks)
	eventsJSON, _ := json.Marshal(events)

	local := req.Now.In(datetime.Location(c.Configs.Timezone))

	return fmt.Sprintf(`Fuso horário: %s
Data/hora atual (UTC): %s
Data/hora atual (local): %s
Tarefas existentes: %s
Eventos existentes: %s
Mensagem: %q`,
		c.Configs.Timezone,
		req.Now.UTC().Format(time.RFC3339),
		local.Format("2006-01-02T15:04:05-07:00 (Monday)"),
		tasksJSON,
		eventsJSON,
		req.Text,
	)
}
