package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Declared field names shared by every service mapper.
const (
	FieldID          = "id"
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldComplete    = "complete"
)

// DefaultFieldMap is the declared field list used when none is configured.
var DefaultFieldMap = []string{FieldDescription, FieldComplete, FieldTitle, FieldID}

// Completion is the generic completion state. It is two-valued and
// serializes as the strings "true" and "false", which is the form both
// services' request payloads use.
type Completion string

const (
	Complete   Completion = "true"
	Incomplete Completion = "false"
)

// CompletionOf converts a native boolean.
func CompletionOf(done bool) Completion {
	if done {
		return Complete
	}
	return Incomplete
}

// ParseCompletion parses "true" or "false" (case-insensitive).
func ParseCompletion(s string) (Completion, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return Complete, nil
	case "false", "":
		return Incomplete, nil
	default:
		return "", fmt.Errorf("%w: completion %q", ErrInvalidInput, s)
	}
}

// Bool reports whether the item is complete.
func (c Completion) Bool() bool { return c == Complete }

func (c Completion) String() string {
	if c == Complete {
		return string(Complete)
	}
	return string(Incomplete)
}

// GenericItem is the service-agnostic projection of a task record.
// An empty ID means the field is absent.
type GenericItem struct {
	ID          string     `json:"id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Complete    Completion `json:"complete"`
}

// NativeItem is a document in its owning service's own shape. Extra fields
// are kept so the document can be persisted verbatim.
type NativeItem map[string]any

// DecodeNativeItem decodes a JSON object keeping numbers as json.Number so
// large numeric ids survive a round trip.
func DecodeNativeItem(data []byte) (NativeItem, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var item NativeItem
	if err := dec.Decode(&item); err != nil {
		return nil, fmt.Errorf("decode native item: %w", err)
	}
	if item == nil {
		return nil, fmt.Errorf("decode native item: %w: null document", ErrInvalidInput)
	}
	return item, nil
}

// String returns field as a string, formatting numbers without exponent.
func (n NativeItem) String(field string) string {
	switch v := n[field].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

// Bool returns field as a boolean. Strings "true"/"false" are accepted.
func (n NativeItem) Bool(field string) bool {
	switch v := n[field].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	default:
		return false
	}
}

// Clone returns a shallow copy.
func (n NativeItem) Clone() NativeItem {
	out := make(NativeItem, len(n))
	for k, v := range n {
		out[k] = v
	}
	return out
}

// FieldRule converts one declared field between a service's native shape
// and the generic shape. A nil direction means the field has no rule in
// that direction.
type FieldRule struct {
	ToGeneric func(src NativeItem, dst *GenericItem)
	ToNative  func(src GenericItem, dst NativeItem)
}

// FieldRules maps declared field names to a service's conversion rules.
type FieldRules map[string]FieldRule
