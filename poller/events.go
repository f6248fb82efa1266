package poller

import (
	"time"

	coreevent "github.com/project-flogo/core/engine/event"
	"github.com/project-flogo/flowwatch/model"
	"github.com/project-flogo/flowwatch/state"
	"github.com/project-flogo/flowwatch/support/event"
)

type runEvent struct {
	time                   time.Time
	status                 event.Status
	workflowId, instanceId string
	outputs                map[string]interface{}
	message                string
}

func (re *runEvent) WorkflowID() string {
	return re.workflowId
}

func (re *runEvent) InstanceID() string {
	return re.instanceId
}

func (re *runEvent) Time() time.Time {
	return re.time
}

func (re *runEvent) RunStatus() event.Status {
	return re.status
}

func (re *runEvent) ChangedOutputs() map[string]interface{} {
	return re.outputs
}

func (re *runEvent) Message() string {
	return re.message
}

type taskEvent struct {
	time                   time.Time
	status                 event.Status
	workflowId, instanceId string
	taskId, taskName       string
	outputs                map[string]interface{}
}

func (te *taskEvent) WorkflowID() string {
	return te.workflowId
}

func (te *taskEvent) InstanceID() string {
	return te.instanceId
}

func (te *taskEvent) TaskInstanceID() string {
	return te.taskId
}

func (te *taskEvent) TaskName() string {
	return te.taskName
}

func (te *taskEvent) TaskStatus() event.Status {
	return te.status
}

func (te *taskEvent) Time() time.Time {
	return te.time
}

func (te *taskEvent) TaskOutput() map[string]interface{} {
	return te.outputs
}

func postEvents(rs *state.RunState) {
	if coreevent.HasListener(event.RunEventType) {
		coreevent.Post(event.RunEventType, &runEvent{
			time:       rs.Time,
			status:     convertRunStatus(rs.Status),
			workflowId: rs.WorkflowId,
			instanceId: rs.InstanceId,
			outputs:    rs.ChangedOutputs,
			message:    rs.TerminalMessage,
		})
	}

	if !coreevent.HasListener(event.TaskEventType) {
		return
	}

	for _, msg := range rs.Messages {
		coreevent.Post(event.TaskEventType, &taskEvent{
			time:       rs.Time,
			status:     event.COMPLETED,
			workflowId: rs.WorkflowId,
			instanceId: rs.InstanceId,
			taskId:     msg.TaskInstanceId,
			taskName:   msg.TaskSpecName,
			outputs:    msg.Outputs,
		})
	}

	if rs.ReadyTask != nil {
		coreevent.Post(event.TaskEventType, &taskEvent{
			time:       rs.Time,
			status:     event.WAITING,
			workflowId: rs.WorkflowId,
			instanceId: rs.InstanceId,
			taskId:     rs.ReadyTask.TaskInstanceId,
			taskName:   rs.ReadyTask.TaskSpecName,
		})
	}
}

func convertRunStatus(status model.RunStatus) event.Status {
	switch status {
	case model.RunStatusRunning:
		return event.RUNNING
	case model.RunStatusTaskReady:
		return event.WAITING
	case model.RunStatusCompleted:
		return event.COMPLETED
	case model.RunStatusFailed:
		return event.FAILED
	}
	return event.STOPPED
}
