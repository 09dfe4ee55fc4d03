package normalize

import (
	"bytes"
	"encoding/json"
	"strings"

	"reminderd/internal/reminder"
)

// TypeTodoReminder is the only accepted message type.
const TypeTodoReminder = "TODO_REMINDER"

// Wire identifies which inbound schema a payload was decoded as.
type Wire int

const (
	WireLegacy Wire = iota
	WireV1
	WireV2
)

func (w Wire) String() string {
	switch w {
	case WireV2:
		return "v2"
	case WireV1:
		return "v1"
	default:
		return "legacy"
	}
}

// Payload is the tagged union produced by Decode. Exactly one of V2, V1,
// Legacy is set, selected by Wire.
type Payload struct {
	Wire   Wire
	V2     *V2Message
	V1     *V1Message
	Legacy *LegacyMessage
}

// V2Message is the versioned envelope. reminderType and priority normally sit
// at the top level; copies inside data or metadata are accepted as fallbacks.
type V2Message struct {
	Version      json.RawMessage `json:"version"`
	Type         string          `json:"type"`
	ReminderType string          `json:"reminderType"`
	Priority     string          `json:"priority"`
	Data         V2Data          `json:"data"`
	Metadata     V2Metadata      `json:"metadata"`
}

// KindName resolves the reminder type: top level, then data, then metadata.
func (m *V2Message) KindName() string {
	return firstNonEmpty(m.ReminderType, m.Data.ReminderType, m.Metadata.ReminderType)
}

// PriorityName resolves the priority: top level, then data.
func (m *V2Message) PriorityName() string {
	return firstNonEmpty(m.Priority, m.Data.Priority)
}

type V2Data struct {
	TodoID       string       `json:"todoId"`
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Content      string       `json:"content"`
	Message      string       `json:"message"`
	Description  string       `json:"description"`
	Text         string       `json:"text"`
	Priority     string       `json:"priority"`
	ReminderType string       `json:"reminderType"`
	Deadline     *Timestamp   `json:"deadline"`
	Assignee     string       `json:"assignee"`
	Progress     int          `json:"progress"`
	CreatedAt    *Timestamp   `json:"createdAt"`
	UpdatedAt    *Timestamp   `json:"updatedAt"`
	Tags         []string     `json:"tags"`
	Summary      *wireSummary `json:"summary"`
	RelatedTodos []wireItem   `json:"relatedTodos"`
	Items        []wireItem   `json:"items"`
	OverdueInfo  *wireOverdue `json:"overdueInfo"`
}

type V2Metadata struct {
	AgentName    string     `json:"agentName"`
	Source       string     `json:"source"`
	ReminderType string     `json:"reminderType"`
	Timestamp    *Timestamp `json:"timestamp"`
}

type V1Message struct {
	Type          string       `json:"type"`
	ReminderType  string       `json:"reminderType"`
	TodoID        string       `json:"todoId"`
	ID            string       `json:"id"`
	Title         string       `json:"title"`
	Content       string       `json:"content"`
	Message       string       `json:"message"`
	Description   string       `json:"description"`
	Text          string       `json:"text"`
	Priority      string       `json:"priority"`
	ScheduledTime *Timestamp   `json:"scheduledTime"`
	Timestamp     *Timestamp   `json:"timestamp"`
	AgentName     string       `json:"agentName"`
	Tags          []string     `json:"tags"`
	Summary       *wireSummary `json:"summary"`
	Items         []wireItem   `json:"items"`
	OverdueInfo   *wireOverdue `json:"overdueInfo"`
}

func (m *V1Message) empty() bool {
	return firstNonEmpty(m.TodoID, m.ID, m.Title, m.Content, m.Message, m.Description, m.Text) == "" &&
		m.Summary == nil && len(m.Items) == 0 && m.OverdueInfo == nil
}

// LegacyMessage is anything that is neither v2 nor v1: free text, or a JSON
// object whose recognizable text fields were lifted out.
type LegacyMessage struct {
	Title string
	Text  string
}

type wireSummary struct {
	Total     int        `json:"total"`
	Completed int        `json:"completed"`
	Pending   int        `json:"pending"`
	Overdue   int        `json:"overdue"`
	Items     []wireItem `json:"items"`
}

type wireItem struct {
	ID        string     `json:"id"`
	TodoID    string     `json:"todoId"`
	Title     string     `json:"title"`
	Deadline  *Timestamp `json:"deadline"`
	Completed bool       `json:"completed"`
	Status    string     `json:"status"`
	Priority  string     `json:"priority"`
}

type wireOverdue struct {
	Count          int        `json:"count"`
	OverdueCount   int        `json:"overdueCount"`
	OldestDeadline *Timestamp `json:"oldestDeadline"`
	Items          []wireItem `json:"items"`
	Todos          []wireItem `json:"todos"`
}

// Decode classifies raw as v2, v1, or legacy. When a v2/v1 payload fails
// strict decoding, the returned Payload is the legacy fallback and err is a
// *reminder.NormalizationError describing why.
func Decode(raw []byte) (Payload, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Payload{}, reminder.ErrEmptyPayload
	}

	var top map[string]json.RawMessage
	if trimmed[0] != '{' || json.Unmarshal(trimmed, &top) != nil {
		return Payload{Wire: WireLegacy, Legacy: legacyFromText(trimmed)}, nil
	}

	fallback := Payload{Wire: WireLegacy, Legacy: legacyFromObject(top, trimmed)}

	if isV2(top) {
		var m V2Message
		if err := json.Unmarshal(trimmed, &m); err != nil {
			return fallback, &reminder.NormalizationError{Wire: "v2", Reason: err}
		}
		if m.Type != "" && m.Type != TypeTodoReminder {
			return fallback, &reminder.NormalizationError{Wire: "v2", Reason: reminder.ErrInvalidType}
		}
		if _, err := parseKind(m.KindName()); err != nil {
			return fallback, &reminder.NormalizationError{Wire: "v2", Reason: err}
		}
		return Payload{Wire: WireV2, V2: &m}, nil
	}

	if _, ok := top["type"]; ok {
		var m V1Message
		if err := json.Unmarshal(trimmed, &m); err != nil {
			return fallback, &reminder.NormalizationError{Wire: "v1", Reason: err}
		}
		if m.Type != TypeTodoReminder {
			return fallback, &reminder.NormalizationError{Wire: "v1", Reason: reminder.ErrInvalidType}
		}
		if _, err := parseKind(m.ReminderType); err != nil {
			return fallback, &reminder.NormalizationError{Wire: "v1", Reason: err}
		}
		// Nothing canonical at the top level: the text lives elsewhere (for
		// example under data), which only the legacy wrapper can reach.
		if m.empty() {
			return fallback, nil
		}
		return Payload{Wire: WireV1, V1: &m}, nil
	}

	return fallback, nil
}

func isV2(top map[string]json.RawMessage) bool {
	v, ok := top["version"]
	if !ok {
		return false
	}
	ver := strings.Trim(string(bytes.TrimSpace(v)), `"`)
	if !strings.HasPrefix(ver, "2") {
		return false
	}
	// metadata is optional: it only carries the agent name.
	if m, ok := top["metadata"]; ok && !isObject(m) && string(bytes.TrimSpace(m)) != "null" {
		return false
	}
	return isObject(top["data"])
}

func isObject(b json.RawMessage) bool {
	b = bytes.TrimSpace(b)
	return len(b) > 0 && b[0] == '{'
}

func legacyFromText(b []byte) *LegacyMessage {
	text := string(b)
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err == nil {
			text = s
		}
	}
	return &LegacyMessage{Text: strings.TrimSpace(text)}
}

// legacyFromObject lifts text out of an unrecognized object. It looks at the
// top level and, failing that, inside a "data" object.
func legacyFromObject(top map[string]json.RawMessage, raw []byte) *LegacyMessage {
	msg := &LegacyMessage{}
	scan := func(m map[string]json.RawMessage) {
		if msg.Title == "" {
			msg.Title = stringField(m, "title")
		}
		if msg.Text == "" {
			for _, k := range []string{"content", "message", "description", "text", "body"} {
				if s := stringField(m, k); s != "" {
					msg.Text = s
					break
				}
			}
		}
	}
	scan(top)
	if d, ok := top["data"]; ok && isObject(d) {
		var inner map[string]json.RawMessage
		if json.Unmarshal(d, &inner) == nil {
			scan(inner)
		}
	}
	if msg.Text == "" && msg.Title == "" {
		msg.Text = string(raw)
	}
	return msg
}

func stringField(m map[string]json.RawMessage, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	var s string
	if json.Unmarshal(v, &s) != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func parseKind(s string) (reminder.Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal", "reminder", "todo":
		return reminder.KindNormal, nil
	case "overdue":
		return reminder.KindOverdue, nil
	case "daily_summary", "dailysummary", "daily-summary", "daily", "summary":
		return reminder.KindDailySummary, nil
	default:
		return "", reminder.ErrUnknownKind
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
