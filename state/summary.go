package state

import (
	"github.com/project-flogo/flowwatch/model"
)

// Summary folds the recorded states of a run into a single view
type Summary struct {
	InstanceId      string                 `json:"instance_id"`
	Status          model.RunStatus        `json:"status"`
	TerminalMessage string                 `json:"terminal_message,omitempty"`
	Transitions     []model.RunStatus      `json:"transitions"`
	Messages        []*Message             `json:"messages,omitempty"`
	Outputs         map[string]interface{} `json:"outputs,omitempty"`
}

// Summarize builds a Summary from states ordered oldest first, later outputs override earlier ones
func Summarize(instanceId string, states []*RunState) *Summary {
	s := &Summary{
		InstanceId: instanceId,
		Status:     model.RunStatusIdle,
		Outputs:    make(map[string]interface{}),
	}

	for _, rs := range states {
		if rs == nil {
			continue
		}

		if len(s.Transitions) == 0 || s.Transitions[len(s.Transitions)-1] != rs.Status {
			s.Transitions = append(s.Transitions, rs.Status)
		}
		s.Status = rs.Status
		if rs.TerminalMessage != "" {
			s.TerminalMessage = rs.TerminalMessage
		}

		s.Messages = append(s.Messages, rs.Messages...)
		for _, msg := range rs.Messages {
			for k, v := range msg.Outputs {
				s.Outputs[k] = v
			}
		}
		for k, v := range rs.ChangedOutputs {
			s.Outputs[k] = v
		}
	}

	return s
}
