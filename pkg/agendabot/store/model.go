package store

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GroupSuffix marks group conversation identifiers.
const GroupSuffix = "@g.us"

// ErrIndexOutOfRange is returned when an item index does not address an
// existing task or event at the time of mutation.
var ErrIndexOutOfRange = errors.New("index out of range")

// Configs holds the per-conversation switches.
type Configs struct {
	// Listen enables interpretation of regular messages.
	Listen bool `json:"listen"`

	// Notify enables reminder delivery.
	Notify bool `json:"notify"`

	// Freemode lets a group talk to the bot without mentioning it.
	// Only set for group conversations.
	Freemode *bool `json:"freemode,omitempty"`

	// Timezone is an IANA name or a fixed offset such as "-3".
	Timezone string `json:"timezone"`

	// Expiration is the disappearing-messages TTL in seconds (0 = off).
	Expiration int `json:"expiration"`
}

// Task is a to-do item.
type Task struct {
	ID          string `json:"id,omitempty"`
	Description string `json:"description"`
	Sender      string `json:"sender,omitempty"`
}

// Event is a scheduled item with a reminder lead time.
type Event struct {
	ID          string    `json:"id,omitempty"`
	Description string    `json:"description"`
	Datetime    time.Time `json:"datetime"`
	Notify      int       `json:"notify"`
	Sender      string    `json:"sender,omitempty"`
}

// NotifyAt returns the instant the event's reminder becomes due.
func (e Event) NotifyAt() time.Time {
	return e.Datetime.Add(-time.Duration(e.Notify) * time.Minute)
}

// Conversation is the record owned by a single conversation identifier.
type Conversation struct {
	Configs Configs `json:"configs"`
	Tasks   []Task  `json:"tasks"`
	Events  []Event `json:"events"`
}

// Settings is the global configuration document.
type Settings struct {
	// Admins may run administrative commands and are always authorized.
	Admins []string `json:"admins"`

	// Listen and Notify are global kill switches.
	Listen bool `json:"listen"`
	Notify bool `json:"notify"`

	// Self is the bot's own identifier on the transport.
	Self string `json:"self,omitempty"`

	// Timezone is applied to newly created conversations.
	Timezone string `json:"timezone"`

	// WAVersion caches the newest known WhatsApp web protocol version.
	WAVersion [3]uint32 `json:"wa_version"`
}

// DefaultSettings returns the settings used when none are stored.
func DefaultSettings() Settings {
	return Settings{
		Admins:   []string{},
		Listen:   true,
		Notify:   true,
		Timezone: "America/Sao_Paulo",
	}
}

// IsAdmin reports whether id is listed as administrator.
func (s Settings) IsAdmin(id string) bool {
	for _, a := range s.Admins {
		if a == id {
			return true
		}
	}
	return false
}

// IsGroup reports whether id identifies a group conversation.
func IsGroup(id string) bool {
	return strings.HasSuffix(id, GroupSuffix)
}

// NewConversation returns an empty record with default switches.
func NewConversation(timezone string, group bool) *Conversation {
	c := &Conversation{
		Configs: Configs{
			Listen:   true,
			Notify:   true,
			Timezone: timezone,
		},
		Tasks:  []Task{},
		Events: []Event{},
	}
	if group {
		off := false
		c.Configs.Freemode = &off
	}
	return c
}

// Clone returns a deep copy.
func (c *Conversation) Clone() Conversation {
	out := Conversation{
		Configs: c.Configs,
		Tasks:   append([]Task{}, c.Tasks...),
		Events:  append([]Event{}, c.Events...),
	}
	if c.Configs.Freemode != nil {
		v := *c.Configs.Freemode
		out.Configs.Freemode = &v
	}
	return out
}

// FreemodeOn reports whether freemode is set and enabled.
func (c *Conversation) FreemodeOn() bool {
	return c.Configs.Freemode != nil && *c.Configs.Freemode
}

// ---------- Tasks ----------

// AddTask appends a task and returns it.
func (c *Conversation) AddTask(description, sender string) Task {
	t := Task{ID: uuid.NewString(), Description: description, Sender: sender}
	c.Tasks = append(c.Tasks, t)
	return t
}

// UpdateTask changes the description of the task at index i. A nil or
// blank description leaves it unchanged.
func (c *Conversation) UpdateTask(i int, description *string) (Task, error) {
	if i < 0 || i >= len(c.Tasks) {
		return Task{}, ErrIndexOutOfRange
	}
	if description != nil && strings.TrimSpace(*description) != "" {
		c.Tasks[i].Description = *description
	}
	return c.Tasks[i], nil
}

// RemoveTask deletes the task at index i and returns it.
func (c *Conversation) RemoveTask(i int) (Task, error) {
	if i < 0 || i >= len(c.Tasks) {
		return Task{}, ErrIndexOutOfRange
	}
	t := c.Tasks[i]
	c.Tasks = append(c.Tasks[:i], c.Tasks[i+1:]...)
	return t, nil
}

// FindTask returns the index of the first task whose description equals
// description ignoring case and surrounding spaces, or -1.
func (c *Conversation) FindTask(description string) int {
	for i, t := range c.Tasks {
		if sameDescription(t.Description, description) {
			return i
		}
	}
	return -1
}

// ---------- Events ----------

// AddEvent appends an event and returns it. Negative lead times are
// clamped to zero and the datetime is normalized to UTC.
func (c *Conversation) AddEvent(description string, at time.Time, notify int, sender string) Event {
	if notify < 0 {
		notify = 0
	}
	e := Event{
		ID:          uuid.NewString(),
		Description: description,
		Datetime:    at.UTC(),
		Notify:      notify,
		Sender:      sender,
	}
	c.Events = append(c.Events, e)
	return e
}

// UpdateEvent applies the non-nil fields to the event at index i. A blank
// description is ignored.
func (c *Conversation) UpdateEvent(i int, description *string, at *time.Time, notify *int) (Event, error) {
	if i < 0 || i >= len(c.Events) {
		return Event{}, ErrIndexOutOfRange
	}
	e := &c.Events[i]
	if description != nil && strings.TrimSpace(*description) != "" {
		e.Description = *description
	}
	if at != nil {
		e.Datetime = at.UTC()
	}
	if notify != nil {
		e.Notify = max(*notify, 0)
	}
	return *e, nil
}

// RemoveEvent deletes the event at index i and returns it.
func (c *Conversation) RemoveEvent(i int) (Event, error) {
	if i < 0 || i >= len(c.Events) {
		return Event{}, ErrIndexOutOfRange
	}
	e := c.Events[i]
	c.Events = append(c.Events[:i], c.Events[i+1:]...)
	return e, nil
}

// FindEvent is FindTask for events.
func (c *Conversation) FindEvent(description string) int {
	for i, e := range c.Events {
		if sameDescription(e.Description, description) {
			return i
		}
	}
	return -1
}

// ClearTasks empties the task list.
func (c *Conversation) ClearTasks() { c.Tasks = []Task{} }

// ClearEvents empties the event list.
func (c *Conversation) ClearEvents() { c.Events = []Event{} }

func sameDescription(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
