package parseoperation

type Input struct {
	Message string `json:"message"`
}

// Output is merged into the process variables. An approval process routes on
// requiresConfirmation and hands operation/parameters to confirm-operation.
type Output struct {
	Reply                string                 `json:"reply"`
	RequiresConfirmation bool                   `json:"requiresConfirmation"`
	Operation            string                 `json:"operation,omitempty"`
	Parameters           map[string]interface{} `json:"parameters,omitempty"`
	Token                string                 `json:"token,omitempty"`
}
