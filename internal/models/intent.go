// internal/models/intent.go
package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Intent is the closed set of operations the assistant recognizes.
type Intent string

const (
	IntentCreateVM      Intent = "create_vm"
	IntentResizeVM      Intent = "resize_vm"
	IntentDeleteVM      Intent = "delete_vm"
	IntentCreateNetwork Intent = "create_network"
	IntentCreateVolume  Intent = "create_volume"
	IntentDeleteVolume  Intent = "delete_volume"
	IntentGetUsage      Intent = "get_usage"
	IntentUnknown       Intent = "unknown"
)

func (i Intent) String() string {
	return string(i)
}

// Entity names shared by the extractor, catalog and dispatcher.
const (
	EntityName   = "name"
	EntityFlavor = "flavor"
	EntitySize   = "size"
)

// EntitySet maps entity names to extracted values (string or int).
type EntitySet map[string]interface{}

// Clone returns a shallow copy; nil stays nil.
func (e EntitySet) Clone() EntitySet {
	if e == nil {
		return nil
	}
	out := make(EntitySet, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Has reports whether key is present with a non-nil value.
func (e EntitySet) Has(key string) bool {
	v, ok := e[key]
	return ok && v != nil
}

// String returns the value for key rendered as text, or "" when absent.
func (e EntitySet) String(key string) string {
	v, ok := e[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// Int coerces the value for key to an int. JSON numbers decode as float64 and
// callers may echo sizes back as strings, so both are accepted.
func (e EntitySet) Int(key string) (int, error) {
	v, ok := e[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("missing %s", key)
	}
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		if t != float64(int(t)) {
			return 0, fmt.Errorf("%s must be a whole number, got %v", key, t)
		}
		return int(t), nil
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, fmt.Errorf("%s must be a whole number: %w", key, err)
		}
		return int(n), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, fmt.Errorf("%s must be a whole number, got %q", key, t)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%s has unsupported type %T", key, v)
	}
}

// ProposedOperation is returned to the caller by /chat; it is never kept server-side.
type ProposedOperation struct {
	Intent           Intent    `json:"intent"`
	Entities         EntitySet `json:"entities"`
	ConfirmationText string    `json:"confirmation_text"`
}

// ChatResponse renders the proposal as a /chat answer awaiting confirmation.
func (p ProposedOperation) ChatResponse() ChatResponse {
	return ChatResponse{
		Message:              p.ConfirmationText,
		RequiresConfirmation: true,
		Operation:            string(p.Intent),
		Parameters:           p.Entities,
	}
}
