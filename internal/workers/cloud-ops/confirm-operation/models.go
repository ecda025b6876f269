package confirmoperation

// Input carries the approver's decision. Operation and parameters are the
// values parse-operation produced.
type Input struct {
	Operation  string                 `json:"operation"`
	Approved   bool                   `json:"approved"`
	Parameters map[string]interface{} `json:"parameters"`
	Token      string                 `json:"token"`
}

type Output struct {
	ExecutionStatus  string                 `json:"executionStatus"`
	ExecutionMessage string                 `json:"executionMessage"`
	ExecutionDetails map[string]interface{} `json:"executionDetails,omitempty"`
}
