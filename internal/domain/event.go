package domain

import (
	"slices"
	"strconv"
	"time"
)

type Visibility string

const (
	VisibilityPublic   Visibility = "PUBLIC"
	VisibilityPrivate  Visibility = "PRIVATE"
	VisibilityInternal Visibility = "INTERNAL"
)

func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityPrivate, VisibilityInternal:
		return true
	}
	return false
}

type DataType string

const (
	DataString   DataType = "STRING"
	DataInteger  DataType = "INTEGER"
	DataDouble   DataType = "DOUBLE"
	DataBoolean  DataType = "BOOLEAN"
	DataDateTime DataType = "DATETIME"
)

// DataField is one typed key/value of an event payload. Values travel as strings.
type DataField struct {
	Key   string   `json:"key"`
	Type  DataType `json:"type" enum:"STRING,INTEGER,DOUBLE,BOOLEAN,DATETIME"`
	Value string   `json:"value"`
}

func StringField(key, value string) DataField {
	return DataField{Key: key, Type: DataString, Value: value}
}

func IntField(key string, value int) DataField {
	return DataField{Key: key, Type: DataInteger, Value: strconv.Itoa(value)}
}

func BoolField(key string, value bool) DataField {
	return DataField{Key: key, Type: DataBoolean, Value: strconv.FormatBool(value)}
}

func TimeField(key string, value time.Time) DataField {
	return DataField{Key: key, Type: DataDateTime, Value: value.UTC().Format(time.RFC3339)}
}

type Event struct {
	ID         string      `json:"id"`
	ProjectID  string      `json:"project_id"`
	UserID     string      `json:"user_id,omitempty"`
	ParentID   string      `json:"parent_id,omitempty"`
	IssueID    string      `json:"issue_id,omitempty"`
	Type       string      `json:"type"`
	Visibility Visibility  `json:"visibility" enum:"PUBLIC,PRIVATE,INTERNAL"`
	VisibleTo  []string    `json:"visible_to,omitempty"`
	Timestamp  time.Time   `json:"timestamp" format:"date-time"`
	Message    string      `json:"message,omitempty"`
	Data       []DataField `json:"data"`
}

// Field returns the first data field named key.
func (e Event) Field(key string) (DataField, bool) {
	return lookupField(e.Data, key)
}

// Int returns the integer value of key, or false if absent or not an integer.
func (e Event) Int(key string) (int, bool) {
	f, ok := e.Field(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(f.Value)
	if err != nil {
		return 0, false
	}
	return n, true
}

// VisibleFor reports whether userID may see the event in a feed or stream.
// INTERNAL events never appear; PRIVATE ones only for the owner and the allow-list.
func (e Event) VisibleFor(userID string) bool {
	switch e.Visibility {
	case VisibilityInternal:
		return false
	case VisibilityPublic:
		return true
	}
	if userID == "" {
		return false
	}
	return e.UserID == userID || slices.Contains(e.VisibleTo, userID)
}

// CreateEventInput is what callers hand to the publisher. Zero values are filled
// from the event type (visibility, message) and the clock (id, timestamp).
type CreateEventInput struct {
	ID         string      `json:"id,omitempty"`
	ProjectID  string      `json:"project_id"`
	UserID     string      `json:"user_id,omitempty"`
	ParentID   string      `json:"parent_id,omitempty"`
	IssueID    string      `json:"issue_id,omitempty"`
	Type       string      `json:"type"`
	Visibility Visibility  `json:"visibility,omitempty"`
	VisibleTo  []string    `json:"visible_to,omitempty"`
	Timestamp  time.Time   `json:"timestamp,omitempty"`
	Message    string      `json:"message,omitempty"`
	Data       []DataField `json:"data,omitempty"`
}

func (in CreateEventInput) Field(key string) (DataField, bool) {
	return lookupField(in.Data, key)
}

func lookupField(fields []DataField, key string) (DataField, bool) {
	for _, f := range fields {
		if f.Key == key {
			return f, true
		}
	}
	return DataField{}, false
}

// Page selects a window of a newest-first listing.
type Page struct {
	Number int
	Size   int
}

func (p Page) Normalize() Page {
	if p.Number < 0 {
		p.Number = 0
	}
	if p.Size <= 0 {
		p.Size = 50
	}
	if p.Size > 500 {
		p.Size = 500
	}
	return p
}

func (p Page) Offset() int {
	return p.Number * p.Size
}

// Reaction is one user's reaction to an event, derived from EVENT_REACTION children.
type Reaction struct {
	Reaction string `json:"reaction"`
	UserID   string `json:"user_id"`
}
