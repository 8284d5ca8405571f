// Package interpreter classifies a user message into an intent using an
// ordered list of hand-written Portuguese patterns. The first rule that
// matches wins; when none does the caller falls back to the LLM.
package interpreter

import (
	"regexp"
	"strings"
	"time"

	"github.com/jholhewres/agendabot/pkg/agendabot/datetime"
	"github.com/jholhewres/agendabot/pkg/agendabot/intent"
	"github.com/jholhewres/agendabot/pkg/agendabot/store"
)

// emptyEventDescription is used when stripping the temporal phrase leaves
// nothing behind.
const emptyEventDescription = "Evento sem descrição"

// input is what every rule sees.
type input struct {
	raw   string
	lower string
	ref   time.Time // reference instant in the conversation location
	conv  store.Conversation
}

type rule struct {
	name  string
	match func(in input) (intent.Intent, bool)
}

// rules is evaluated in order.
var rules = []rule{
	{"task", matchTask},
	{"remove-by-description", matchRemove},
	{"clear", matchClear},
	{"rename", matchRename},
	{"event", matchEvent},
	{"query", matchQuery},
}

// Interpret classifies text for the given conversation. ref is the current
// instant; the conversation timezone is applied to it before resolving
// wall-clock phrases. The boolean is false on NoMatch.
func Interpret(text string, ref time.Time, conv store.Conversation) (intent.Intent, bool) {
	_, got, ok := Classify(text, ref, conv)
	return got, ok
}

// Classify is Interpret that also reports the name of the matching rule.
func Classify(text string, ref time.Time, conv store.Conversation) (string, intent.Intent, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", intent.Intent{}, false
	}

	in := input{
		raw:   text,
		lower: strings.ToLower(text),
		ref:   ref.In(datetime.Location(conv.Configs.Timezone)),
		conv:  conv,
	}
	for _, r := range rules {
		if got, ok := r.match(in); ok {
			return r.name, got, true
		}
	}
	return "", intent.Intent{}, false
}

// ---------- Rules ----------

var taskPrefixes = []string{"nova tarefa:", "criar tarefa:", "tarefa:"}

func matchTask(in input) (intent.Intent, bool) {
	for _, p := range taskPrefixes {
		if strings.HasPrefix(in.lower, p) {
			desc := strings.TrimSpace(in.raw[len(p):])
			if desc == "" {
				return intent.Intent{}, false
			}
			return intent.Task(desc), true
		}
	}
	return intent.Intent{}, false
}

var removePrefixes = []string{"remover ", "apagar ", "excluir "}

func matchRemove(in input) (intent.Intent, bool) {
	for _, p := range removePrefixes {
		if !strings.HasPrefix(in.lower, p) {
			continue
		}
		desc := in.raw[len(p):]
		if i := in.conv.FindTask(desc); i >= 0 {
			return intent.Remove(intent.TargetTask, i), true
		}
		if i := in.conv.FindEvent(desc); i >= 0 {
			return intent.Remove(intent.TargetEvent, i), true
		}
		return intent.Intent{}, false
	}
	return intent.Intent{}, false
}

var clearKeywords = map[string]intent.Target{
	"remover tarefas": intent.TargetTasks,
	"apagar tarefas":  intent.TargetTasks,
	"limpar tarefas":  intent.TargetTasks,
	"excluir tarefas": intent.TargetTasks,
	"remover eventos": intent.TargetEvents,
	"apagar eventos":  intent.TargetEvents,
	"limpar eventos":  intent.TargetEvents,
	"excluir eventos": intent.TargetEvents,
	"remover tudo":    intent.TargetAll,
	"apagar tudo":     intent.TargetAll,
	"limpar tudo":     intent.TargetAll,
	"excluir tudo":    intent.TargetAll,
}

func matchClear(in input) (intent.Intent, bool) {
	if target, ok := clearKeywords[in.lower]; ok {
		return intent.Clear(target), true
	}
	return intent.Intent{}, false
}

var reRename = regexp.MustCompile(`(?is)mudar (.+) para (.+)$`)

func matchRename(in input) (intent.Intent, bool) {
	m := reRename.FindStringSubmatch(in.raw)
	if m == nil {
		return intent.Intent{}, false
	}
	old, details := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])

	if i := in.conv.FindTask(old); i >= 0 {
		return intent.Update(intent.TargetTask, i, intent.Fields{Description: &details}), true
	}
	if i := in.conv.FindEvent(old); i >= 0 {
		if at, ok := datetime.Resolve(details, in.ref); ok {
			return intent.Update(intent.TargetEvent, i, intent.Fields{Datetime: &at}), true
		}
		return intent.Update(intent.TargetEvent, i, intent.Fields{Description: &details}), true
	}
	return intent.Intent{}, false
}

var (
	// reEventTrigger requires some text followed by a recognized temporal phrase.
	reEventTrigger = regexp.MustCompile(`^(?:novo evento:|adicionar evento:|evento:)?\s?.{2,}\s(?:hoje|amanhã|dia \d{1,2}/\d{1,2}|às \d{1,2}|(?:em|daqui a|daqui) \d+ (?:dias?|minutos?|horas?))`)

	reEventPrefix = regexp.MustCompile(`(?i)^(?:novo evento:|adicionar evento:|evento:)\s*`)

	// Everything from "hoje", "amanhã" or "dia D/" onwards is temporal.
	reEventTail = regexp.MustCompile(`(?i)(?:^|\s)(?:hoje|amanhã|dia \d{1,2}/).*$`)

	reEventRelative = regexp.MustCompile(`(?i)(?:^|\s)(?:em|daqui a|daqui) \d+ (?:dias?|minutos?|horas?)\b`)
	reEventClock    = regexp.MustCompile(`(?i)(?:^|\s)às \d{1,2}(?:[:h]\d{2})?(?::\d{2})?`)
)

func matchEvent(in input) (intent.Intent, bool) {
	if !reEventTrigger.MatchString(in.lower) {
		return intent.Intent{}, false
	}
	at, ok := datetime.Resolve(in.lower, in.ref)
	if !ok {
		return intent.Intent{}, false
	}
	return intent.Event(eventDescription(in.raw), at, 0), true
}

// eventDescription strips the command prefix and the temporal phrase,
// preserving the user's casing.
func eventDescription(raw string) string {
	raw = reEventPrefix.ReplaceAllString(raw, "")
	for _, re := range []*regexp.Regexp{reEventTail, reEventRelative, reEventClock} {
		raw = re.ReplaceAllString(raw, " ")
	}

	desc := strings.Join(strings.Fields(raw), " ")
	if desc == "" {
		return emptyEventDescription
	}
	return desc
}

// queryKeywords must match the whole message.
var queryKeywords = map[string]intent.QueryType{
	"agenda":       intent.QueryBoth,
	"compromissos": intent.QueryBoth,
	"mostre":       intent.QueryBoth,
	"tudo":         intent.QueryBoth,
	"lista":        intent.QueryBoth,
	"tarefas":      intent.QueryTasks,
	"eventos":      intent.QueryEvents,
}

func matchQuery(in input) (intent.Intent, bool) {
	if q, ok := queryKeywords[in.lower]; ok {
		return intent.Query(q), true
	}
	return intent.Intent{}, false
}
