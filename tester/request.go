package tester

// StartRequest describes a request for starting a workflow instance
type StartRequest struct {
	Data map[string]interface{} `json:"data,omitempty"`
}

// SubmitRequest describes a request for submitting the data of a ready task
type SubmitRequest struct {
	Data   map[string]interface{} `json:"data,omitempty"`
	TaskId string                 `json:"task_id"`
}

// IDResponse is returned when an instance is started
type IDResponse struct {
	WorkflowId string `json:"workflow_id"`
	InstanceId string `json:"instance_id"`
}

type submitResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}
