// internal/models/operation.go
package models

// ExecutionStatus is the outcome of a /confirm call.
type ExecutionStatus string

const (
	StatusSuccess   ExecutionStatus = "success"
	StatusCancelled ExecutionStatus = "cancelled"
	StatusError     ExecutionStatus = "error"
)

// ConfirmationRequest is the sole carrier of state between proposal and execution.
type ConfirmationRequest struct {
	Operation  string    `json:"operation"`
	Confirmed  bool      `json:"confirmed"`
	Parameters EntitySet `json:"parameters"`
	Token      string    `json:"token,omitempty"`
}

// ExecutionResult is the typed outcome of the confirmation gate and dispatcher.
type ExecutionResult struct {
	Status  ExecutionStatus        `json:"status"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// AsMap renders the result for the operation_result JSON column.
func (r *ExecutionResult) AsMap() map[string]interface{} {
	m := map[string]interface{}{
		"status":  string(r.Status),
		"message": r.Message,
	}
	if r.Details != nil {
		m["details"] = r.Details
	}
	return m
}

// ChatResponse is the body returned by /chat.
type ChatResponse struct {
	Message              string    `json:"message"`
	RequiresConfirmation bool      `json:"requires_confirmation"`
	Operation            string    `json:"operation,omitempty"`
	Parameters           EntitySet `json:"parameters,omitempty"`
	Token                string    `json:"token,omitempty"`
}

// Usage is the project-wide consumption snapshot reported by the provider.
type Usage struct {
	VCPUs       int `json:"vcpus_used"`
	RAMMB       int `json:"ram_mb_used"`
	VolumesGB   int `json:"volumes_gb"`
	VMCount     int `json:"vm_count"`
	VolumeCount int `json:"volume_count"`
}

// AsMap renders the usage snapshot with the public field names.
func (u *Usage) AsMap() map[string]interface{} {
	return map[string]interface{}{
		"vcpus_used":   u.VCPUs,
		"ram_mb_used":  u.RAMMB,
		"volumes_gb":   u.VolumesGB,
		"vm_count":     u.VMCount,
		"volume_count": u.VolumeCount,
	}
}

// Network is a provisioned private network.
type Network struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	AdminStateUp bool   `json:"admin_state_up"`
	Status       string `json:"status,omitempty"`
}

// Subnet is the subnet provisioned alongside a network.
type Subnet struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	NetworkID string `json:"network_id"`
	IPVersion int    `json:"ip_version"`
	CIDR      string `json:"cidr"`
}

// NetworkResult pairs a network with its subnet.
type NetworkResult struct {
	Network Network `json:"network"`
	Subnet  Subnet  `json:"subnet"`
}
