// internal/models/interaction.go
package models

import "time"

// InteractionRecord is one row of the append-only audit log.
// It is mutable only inside the call that owns it and frozen once appended.
type InteractionRecord struct {
	ID                int64                  `json:"id"`
	Timestamp         time.Time              `json:"timestamp"`
	UserMessage       string                 `json:"user_message"`
	DetectedIntent    string                 `json:"detected_intent"`
	Entities          EntitySet              `json:"entities"`
	SystemResponse    string                 `json:"system_response"`
	OperationExecuted *string                `json:"operation_executed,omitempty"`
	OperationResult   map[string]interface{} `json:"operation_result,omitempty"`
}

// MarkExecuted records the operation and its outcome.
func (r *InteractionRecord) MarkExecuted(operation string, result map[string]interface{}) {
	op := operation
	r.OperationExecuted = &op
	r.OperationResult = result
}
