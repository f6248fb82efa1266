package state

import (
	"time"

	"github.com/project-flogo/flowwatch/model"
	"github.com/project-flogo/flowwatch/util"
)

// RunState is the state derived from one engine snapshot
type RunState struct {
	WorkflowId      string                 `json:"workflow_id,omitempty"`
	InstanceId      string                 `json:"instance_id,omitempty"`
	Seq             uint64                 `json:"seq"`
	Status          model.RunStatus        `json:"status"`
	ReadyTask       *ReadyTask             `json:"ready_task,omitempty"`
	TerminalMessage string                 `json:"terminal_message,omitempty"`
	ChangedOutputs  map[string]interface{} `json:"changed_outputs,omitempty"`
	Messages        []*Message             `json:"messages,omitempty"`
	Time            time.Time              `json:"time"`
}

// ReadyTask identifies the task instance awaiting user input
type ReadyTask struct {
	TaskSpecName   string                 `json:"task_spec_name"`
	TaskInstanceId string                 `json:"task_instance_id"`
	DisplayName    string                 `json:"display_name,omitempty"`
	TypeName       string                 `json:"typename,omitempty"`
	Form           map[string]interface{} `json:"form,omitempty"`
}

// Message is an intermediate result of a completed task
type Message struct {
	TaskInstanceId string                 `json:"task_instance_id"`
	TaskSpecName   string                 `json:"task_spec_name,omitempty"`
	DisplayName    string                 `json:"display_name,omitempty"`
	Text           string                 `json:"text,omitempty"`
	Outputs        map[string]interface{} `json:"outputs,omitempty"`
}

// Idle returns the state of a run that has not been started
func Idle() *RunState {
	return &RunState{Status: model.RunStatusIdle, Time: time.Now()}
}

// IsTerminal returns true if the state ends polling
func (rs *RunState) IsTerminal() bool {
	return rs != nil && rs.Status.IsTerminal()
}

// Copy returns a deep copy of the state, so callbacks can't mutate reconciler owned data
func (rs *RunState) Copy() *RunState {
	if rs == nil {
		return nil
	}
	cp, _ := util.DeepCopy(rs).(*RunState)
	return cp
}
