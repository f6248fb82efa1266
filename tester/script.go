package tester

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Script describes the snapshots the scripted engine serves per workflow
type Script struct {
	Workflows map[string]*Workflow `json:"workflows"`
}

// Workflow is the ordered list of steps every instance of the workflow walks through
type Workflow struct {
	Steps []*Step `json:"steps"`
}

// Step is served for Repeat+1 fetches before the instance moves on. A step
// awaiting a task only moves on once that task is submitted. A step with a
// Status answers fetches with that HTTP status instead of a snapshot.
type Step struct {
	Snapshot  map[string]interface{} `json:"snapshot,omitempty"`
	Repeat    int                    `json:"repeat,omitempty"`
	AwaitTask string                 `json:"await_task,omitempty"`
	Status    int                    `json:"status,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// LoadScript reads a JSON script file
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading script '%s': %v", path, err)
	}
	return ParseScript(data)
}

func ParseScript(data []byte) (*Script, error) {
	script := &Script{}
	if err := json.Unmarshal(data, script); err != nil {
		return nil, fmt.Errorf("error parsing script: %v", err)
	}
	if err := script.Validate(); err != nil {
		return nil, err
	}
	return script, nil
}

func (s *Script) Validate() error {
	if len(s.Workflows) == 0 {
		return errors.New("script defines no workflows")
	}

	for id, wf := range s.Workflows {
		if strings.TrimSpace(id) == "" {
			return errors.New("script contains a workflow without id")
		}
		if wf == nil || len(wf.Steps) == 0 {
			return fmt.Errorf("workflow '%s' has no steps", id)
		}
		for i, step := range wf.Steps {
			if step == nil {
				return fmt.Errorf("workflow '%s' step %d is empty", id, i)
			}
			if step.Repeat < 0 {
				return fmt.Errorf("workflow '%s' step %d has a negative repeat", id, i)
			}
			if step.Status != 0 && (step.Status < 400 || step.Status > 599) {
				return fmt.Errorf("workflow '%s' step %d has invalid status %d", id, i, step.Status)
			}
			if step.Status == 0 && step.Snapshot == nil {
				return fmt.Errorf("workflow '%s' step %d has no snapshot", id, i)
			}
		}
	}

	return nil
}
