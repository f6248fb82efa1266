package state

import (
	"fmt"
	"github.com/project-flogo/core/data/coerce"
	"strings"
)

type RecordingMode string

const (
	// RecordingModeOff indicates that the recording been turned off
	RecordingModeOff RecordingMode = "off"
	// RecordingModeTransitions indicates that only status changes and states carrying messages or outputs are recorded
	RecordingModeTransitions RecordingMode = "transitions"
	// RecordingModeFull indicates that every applied state is recorded
	RecordingModeFull RecordingMode = "full"
)

// ToRecordingMode convert data to recording model const
func ToRecordingMode(mode interface{}) (RecordingMode, error) {
	m, _ := coerce.ToString(mode)
	rMode := RecordingMode(strings.ToLower(m))
	switch rMode {
	case RecordingModeOff, RecordingModeTransitions, RecordingModeFull:
		return rMode, nil
	case "":
		return RecordingModeTransitions, nil
	default:
		return RecordingModeOff, fmt.Errorf("unsupport state recording mode [%s]", m)
	}
}

// ShouldRecord check to see if the state should be recorded given the previously recorded status
func ShouldRecord(mode RecordingMode, prev *RunState, rs *RunState) bool {
	switch mode {
	case RecordingModeOff:
		return false
	case RecordingModeFull:
		return true
	}

	if rs == nil {
		return false
	}
	if prev == nil || prev.Status != rs.Status {
		return true
	}
	return len(rs.Messages) > 0 || len(rs.ChangedOutputs) > 0
}
