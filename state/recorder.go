package state

import (
	"context"
	"errors"
	"time"

	"github.com/project-flogo/flowwatch/model"
)

var ErrRunNotFound = errors.New("run not found")

// RunInfo describes one run of a workflow watched by a session
type RunInfo struct {
	SessionId  string          `json:"session_id"`
	WorkflowId string          `json:"workflow_id"`
	InstanceId string          `json:"instance_id"`
	HostId     string          `json:"host_id,omitempty"`
	Status     model.RunStatus `json:"status"`
	StartTime  time.Time       `json:"start_time"`
	EndTime    time.Time       `json:"end_time,omitempty"`
}

// Recorder is the interface that describes a service that can record
// the derived states of a watched run
type Recorder interface {
	RecordStart(ctx context.Context, run *RunInfo) error

	// RecordState records a RunState applied to the run
	RecordState(ctx context.Context, rs *RunState) error

	RecordDone(ctx context.Context, run *RunInfo) error

	// History returns the run info and the recorded states of the run, oldest first
	History(ctx context.Context, instanceId string) (*RunInfo, []*RunState, error)
}
