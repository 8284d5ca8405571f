// Package intent defines the structured request produced by the rule
// interpreter or the LLM fallback and consumed by the processor.
package intent

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Type identifies the intent variant.
type Type string

const (
	TypeTask   Type = "task"
	TypeEvent  Type = "event"
	TypeUpdate Type = "update"
	TypeRemove Type = "remove"
	TypeClear  Type = "clear"
	TypeQuery  Type = "query"
	TypeText   Type = "text"
)

// Target selects the collection an update/remove/clear applies to.
type Target string

const (
	TargetTask  Target = "task"
	TargetEvent Target = "event"

	// Clear-only targets.
	TargetTasks  Target = "tasks"
	TargetEvents Target = "events"
	TargetAll    Target = "all"
)

// QueryType selects which collections a query lists.
type QueryType string

const (
	QueryTasks  QueryType = "tasks"
	QueryEvents QueryType = "events"
	QueryBoth   QueryType = "both"
)

// Fields carries the partial changes of an update. Nil means unchanged.
type Fields struct {
	Description *string    `json:"description,omitempty"`
	Datetime    *time.Time `json:"datetime,omitempty"`
	Notify      *int       `json:"notify,omitempty"`
}

// Empty reports whether no field is set.
func (f Fields) Empty() bool {
	return f.Description == nil && f.Datetime == nil && f.Notify == nil
}

// Intent is a tagged variant; which fields are meaningful depends on Type:
//
//	task    Description
//	event   Description, Datetime, Notify
//	update  Target, ItemIndex, Fields
//	remove  Target, ItemIndex
//	clear   Target (tasks, events, all)
//	query   QueryType
//	text    Content
type Intent struct {
	Type        Type       `json:"type"`
	Description string     `json:"description,omitempty"`
	Datetime    *time.Time `json:"datetime,omitempty"`
	Notify      int        `json:"notify,omitempty"`
	Target      Target     `json:"target,omitempty"`
	ItemIndex   int        `json:"itemIndex"`
	Fields      Fields     `json:"fields"`
	QueryType   QueryType  `json:"queryType,omitempty"`
	Content     string     `json:"content,omitempty"`
}

// Task builds a task-creation intent.
func Task(description string) Intent {
	return Intent{Type: TypeTask, Description: description}
}

// Event builds an event-creation intent.
func Event(description string, at time.Time, notify int) Intent {
	return Intent{Type: TypeEvent, Description: description, Datetime: &at, Notify: notify}
}

// Update builds an update intent for the item at index of target.
func Update(target Target, index int, fields Fields) Intent {
	return Intent{Type: TypeUpdate, Target: target, ItemIndex: index, Fields: fields}
}

// Remove builds a removal intent for the item at index of target.
func Remove(target Target, index int) Intent {
	return Intent{Type: TypeRemove, Target: target, ItemIndex: index}
}

// Clear builds a clear intent.
func Clear(target Target) Intent {
	return Intent{Type: TypeClear, Target: target}
}

// Query builds a listing intent.
func Query(q QueryType) Intent {
	return Intent{Type: TypeQuery, QueryType: q}
}

// Text builds a free-text reply intent.
func Text(content string) Intent {
	return Intent{Type: TypeText, Content: content}
}

// wireIntent is the loose JSON shape accepted from the LLM. Numbers may
// arrive as strings and update fields may be flattened onto the root.
type wireIntent struct {
	Type        string          `json:"type"`
	Description *string         `json:"description"`
	Datetime    string          `json:"datetime"`
	Notify      json.RawMessage `json:"notify"`
	Target      string          `json:"target"`
	ItemIndex   json.RawMessage `json:"itemIndex"`
	Fields      *struct {
		Description *string         `json:"description"`
		Datetime    string          `json:"datetime"`
		Notify      json.RawMessage `json:"notify"`
	} `json:"fields"`
	QueryType string `json:"queryType"`
	Content   string `json:"content"`
}

// Decode parses an intent from JSON. Datetimes must be ISO 8601; a datetime
// without zone information is read as UTC.
func Decode(data []byte) (Intent, error) {
	var w wireIntent
	if err := json.Unmarshal(data, &w); err != nil {
		return Intent{}, fmt.Errorf("decoding intent: %w", err)
	}

	in := Intent{
		Type:      Type(strings.ToLower(strings.TrimSpace(w.Type))),
		Target:    Target(strings.ToLower(w.Target)),
		QueryType: QueryType(strings.ToLower(w.QueryType)),
		Content:   w.Content,
	}
	if w.Description != nil {
		in.Description = *w.Description
	}
	if in.Type == TypeUpdate || in.Type == TypeRemove {
		switch in.Target {
		case TargetTasks:
			in.Target = TargetTask
		case TargetEvents:
			in.Target = TargetEvent
		}
	}

	var err error
	if in.ItemIndex, err = decodeInt(w.ItemIndex); err != nil {
		return Intent{}, fmt.Errorf("decoding itemIndex: %w", err)
	}
	if n, err := decodeInt(w.Notify); err != nil {
		return Intent{}, fmt.Errorf("decoding notify: %w", err)
	} else if n > 0 {
		in.Notify = n
	}
	if w.Datetime != "" {
		t, err := ParseTime(w.Datetime)
		if err != nil {
			return Intent{}, err
		}
		in.Datetime = &t
	}

	if in.Type != TypeUpdate {
		return in, nil
	}

	// Update fields: prefer the nested object, fall back to root keys.
	desc, dt, notify := w.Description, w.Datetime, w.Notify
	if w.Fields != nil {
		desc, dt, notify = w.Fields.Description, w.Fields.Datetime, w.Fields.Notify
	}
	if desc != nil && strings.TrimSpace(*desc) != "" {
		d := *desc
		in.Fields.Description = &d
	}
	if dt != "" {
		t, err := ParseTime(dt)
		if err != nil {
			return Intent{}, err
		}
		in.Fields.Datetime = &t
	}
	if len(notify) > 0 && string(notify) != "null" {
		n, err := decodeInt(notify)
		if err != nil {
			return Intent{}, fmt.Errorf("decoding fields.notify: %w", err)
		}
		in.Fields.Notify = &n
	}
	return in, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseTime parses the ISO 8601 variants commonly produced by LLMs.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid datetime %q", s)
}

func decodeInt(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return int(n), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	var i int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &i); err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return i, nil
}
