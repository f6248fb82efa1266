package client

type StartRequest struct {
	Data map[string]interface{} `json:"data,omitempty"`
}

type StartResponse struct {
	WorkflowId string `json:"workflow_id"`
	InstanceId string `json:"instance_id"`
}

type SubmitTaskRequest struct {
	Data   map[string]interface{} `json:"data"`
	TaskId string                 `json:"task_id"`
}

type SubmitTaskResponse struct {
	Success *bool  `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
}
