package event

import (
	"time"
)

type Status string

const (
	STARTED   Status = "Started"
	RUNNING   Status = "Running"
	WAITING   Status = "Waiting"
	COMPLETED Status = "Completed"
	FAILED    Status = "Failed"
	STOPPED   Status = "Stopped"
)

const RunEventType = "flowwatch.runevent"
const TaskEventType = "flowwatch.taskevent"

// RunEvent provides access to run state changes observed by the poller
type RunEvent interface {
	// Returns workflow ID
	WorkflowID() string
	// Returns instance ID
	InstanceID() string
	// Returns event time
	Time() time.Time
	// Returns current run status
	RunStatus() Status
	// Returns the output values that changed with this state
	ChangedOutputs() map[string]interface{}
	// Returns the terminal message of a completed or failed run
	Message() string
}

// TaskEvent is posted for a task surfaced by the reconciler, either awaiting input or with an intermediate result
type TaskEvent interface {
	// Returns workflow ID
	WorkflowID() string
	// Returns instance ID
	InstanceID() string
	// Returns task instance ID
	TaskInstanceID() string
	// Returns task spec name
	TaskName() string
	// Returns task status
	TaskStatus() Status
	// Returns event time
	Time() time.Time
	// Returns task output data
	TaskOutput() map[string]interface{}
}
