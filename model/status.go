package model

import (
	"github.com/project-flogo/core/data/coerce"
)

type TaskState int
type RunStatus string

const (
	// TaskStateFuture indicates that the Task may run at some later point
	TaskStateFuture TaskState = 1

	// TaskStateLikely indicates that the Task is likely to run
	TaskStateLikely TaskState = 2

	// TaskStateMaybe indicates that the Task may run, depending on a decision
	TaskStateMaybe TaskState = 4

	// TaskStateWaiting indicates that the Task is waiting on its inputs
	TaskStateWaiting TaskState = 8

	// TaskStateReady indicates that the Task is ready to run or awaiting input
	TaskStateReady TaskState = 16

	// TaskStateCompleted indicates that the Task has completed
	TaskStateCompleted TaskState = 32

	// TaskStateCompletedAlt is the engine's second completed code
	TaskStateCompletedAlt TaskState = 64

	// TaskStateFailed indicates that the Task failed
	TaskStateFailed TaskState = 128
)

const (
	// RunStatusIdle indicates that no run has been started
	RunStatusIdle RunStatus = "idle"

	// RunStatusRunning indicates that the run is in progress with nothing new to surface
	RunStatusRunning RunStatus = "running"

	// RunStatusTaskReady indicates that a user or manual task awaits input
	RunStatusTaskReady RunStatus = "task_ready"

	// RunStatusCompleted indicates that the run finished successfully
	RunStatusCompleted RunStatus = "completed"

	// RunStatusFailed indicates that the run failed
	RunStatusFailed RunStatus = "failed"
)

// ToTaskState converts a raw state value to a TaskState, unknown values map to TaskStateFuture
func ToTaskState(val interface{}) TaskState {
	i, err := coerce.ToInt(val)
	if err != nil {
		return TaskStateFuture
	}

	switch s := TaskState(i); s {
	case TaskStateFuture, TaskStateLikely, TaskStateMaybe, TaskStateWaiting,
		TaskStateReady, TaskStateCompleted, TaskStateCompletedAlt, TaskStateFailed:
		return s
	default:
		return TaskStateFuture
	}
}

// IsCompleted returns true for either of the completed codes
func (s TaskState) IsCompleted() bool {
	return s == TaskStateCompleted || s == TaskStateCompletedAlt
}

func (s TaskState) String() string {
	switch s {
	case TaskStateFuture:
		return "Future"
	case TaskStateLikely:
		return "Likely"
	case TaskStateMaybe:
		return "Maybe"
	case TaskStateWaiting:
		return "Waiting"
	case TaskStateReady:
		return "Ready"
	case TaskStateCompleted, TaskStateCompletedAlt:
		return "Completed"
	case TaskStateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// IsTerminal returns true if the status ends polling
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}
