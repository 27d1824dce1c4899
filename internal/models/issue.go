package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Issue document field names.
const (
	FieldID         = "_id"
	FieldTitle      = "issue_title"
	FieldText       = "issue_text"
	FieldCreatedBy  = "created_by"
	FieldAssignedTo = "assigned_to"
	FieldStatusText = "status_text"
	FieldOpen       = "open"
	FieldCreatedOn  = "created_on"
	FieldUpdatedOn  = "updated_on"
)

// RequiredFields must be present and truthy on every persisted issue.
var RequiredFields = []string{FieldTitle, FieldText, FieldCreatedBy}

// TimestampLayout is the format used for created_on and updated_on.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Document is a schemaless issue record. Known fields are described by the
// Field constants; anything else a client sends is kept as given.
type Document map[string]any

// Clone returns a shallow copy of the document.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// ID returns the document's _id as a string, or "" when it is absent or falsy.
func (d Document) ID() string {
	v, ok := d[FieldID]
	if !ok || !Truthy(v) {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// String returns a string field, or "" when absent or not a string.
func (d Document) String(key string) string {
	s, _ := d[key].(string)
	return s
}

// Bool returns a boolean field and whether it was a JSON boolean.
func (d Document) Bool(key string) (bool, bool) {
	b, ok := d[key].(bool)
	return b, ok
}

// MissingRequired returns the required fields that are absent or falsy.
func (d Document) MissingRequired() []string {
	var missing []string
	for _, f := range RequiredFields {
		if !Truthy(d[f]) {
			missing = append(missing, f)
		}
	}
	return missing
}

// ApplyDefaults fills the optional issue fields that the caller left out.
func (d Document) ApplyDefaults(now time.Time) {
	if _, ok := d[FieldOpen]; !ok {
		d[FieldOpen] = true
	}
	if _, ok := d[FieldAssignedTo]; !ok {
		d[FieldAssignedTo] = ""
	}
	if _, ok := d[FieldStatusText]; !ok {
		d[FieldStatusText] = ""
	}
	ts := FormatTimestamp(now)
	if _, ok := d[FieldCreatedOn]; !ok {
		d[FieldCreatedOn] = ts
	}
	if _, ok := d[FieldUpdatedOn]; !ok {
		d[FieldUpdatedOn] = ts
	}
}

// FormatTimestamp renders t in UTC with millisecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Truthy reports whether v counts as present for required-field checks.
// nil, false, "", and zero numbers are falsy.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case json.Number:
		f, err := x.Float64()
		return err != nil || f != 0
	case float64:
		return x != 0
	case float32:
		return x != 0
	case int:
		return x != 0
	case int64:
		return x != 0
	default:
		return true
	}
}
