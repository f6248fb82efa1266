package state

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/project-flogo/core/data/coerce"
	"github.com/project-flogo/flowwatch/model"
)

const (
	// OutputPrefix marks data keys that are surfaced to the user as results
	OutputPrefix = "_output"

	keyWorkflowStatus = "workflow_status"
	keySerializedData = "serialized_data"
)

// Snapshot is the instance view returned by the workflow engine on each poll
type Snapshot struct {
	Completed bool                   `json:"completed"`
	Tasks     map[string]*Task       `json:"tasks,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	TaskSpecs map[string]*TaskSpec   `json:"task_specs,omitempty"`
}

type Task struct {
	Id    string                 `json:"id"`
	State model.TaskState        `json:"state"`
	Spec  string                 `json:"task_spec"`
	Data  map[string]interface{} `json:"data,omitempty"`
}

type TaskSpec struct {
	Name        string                 `json:"name"`
	TypeName    string                 `json:"typename"`
	DisplayName string                 `json:"bpmn_name,omitempty"`
	Description string                 `json:"description,omitempty"`
	Form        map[string]interface{} `json:"form,omitempty"`
}

// UnmarshalJSON decodes a snapshot permissively, missing or malformed fields are left empty
func (s *Snapshot) UnmarshalJSON(b []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	*s = *ParseSnapshot(raw)
	return nil
}

// ParseSnapshot builds a Snapshot from a decoded engine response
func ParseSnapshot(raw map[string]interface{}) *Snapshot {
	s := &Snapshot{
		Tasks:     make(map[string]*Task),
		Data:      make(map[string]interface{}),
		TaskSpecs: make(map[string]*TaskSpec),
	}
	if raw == nil {
		return s
	}

	// some engine versions nest the run data inside a serialized envelope
	if envelope, err := coerce.ToObject(raw[keySerializedData]); err == nil && envelope != nil {
		flattened := make(map[string]interface{}, len(raw)+len(envelope))
		for k, v := range envelope {
			flattened[k] = v
		}
		for k, v := range raw {
			flattened[k] = v
		}
		raw = flattened
	}

	s.Completed, _ = coerce.ToBool(raw["completed"])

	if data, err := coerce.ToObject(raw["data"]); err == nil && data != nil {
		s.Data = data
	}

	if tasks, err := coerce.ToObject(raw["tasks"]); err == nil {
		for id, rep := range tasks {
			if task := parseTask(id, rep); task != nil {
				s.Tasks[id] = task
			}
		}
	}

	specsRep, exists := raw["task_specs"]
	if !exists {
		specsRep = raw["taskSpecs"]
	}
	if specs, err := coerce.ToObject(specsRep); err == nil {
		for name, rep := range specs {
			if spec := parseTaskSpec(name, rep); spec != nil {
				s.TaskSpecs[name] = spec
			}
		}
	}

	return s
}

func parseTask(id string, rep interface{}) *Task {
	obj, err := coerce.ToObject(rep)
	if err != nil || obj == nil {
		return nil
	}

	task := &Task{Id: id, State: model.ToTaskState(obj["state"])}
	task.Spec, _ = coerce.ToString(obj["task_spec"])
	if data, err := coerce.ToObject(obj["data"]); err == nil && data != nil {
		task.Data = data
	} else {
		task.Data = make(map[string]interface{})
	}

	return task
}

func parseTaskSpec(name string, rep interface{}) *TaskSpec {
	obj, err := coerce.ToObject(rep)
	if err != nil || obj == nil {
		return nil
	}

	spec := &TaskSpec{Name: name}
	spec.TypeName, _ = coerce.ToString(obj["typename"])
	spec.Description, _ = coerce.ToString(obj["description"])
	spec.DisplayName, _ = coerce.ToString(obj["bpmn_name"])
	if spec.DisplayName == "" {
		if n, _ := coerce.ToString(obj["name"]); n != "" {
			spec.DisplayName = n
		}
	}
	if form, err := coerce.ToObject(obj["form"]); err == nil && len(form) > 0 {
		spec.Form = form
	}

	return spec
}

// WorkflowStatus returns the status string and completed flag of the optional workflow_status object
func (s *Snapshot) WorkflowStatus() (status string, completed bool) {
	ws, err := coerce.ToObject(s.Data[keyWorkflowStatus])
	if err != nil || ws == nil {
		return "", false
	}

	status, _ = coerce.ToString(ws["status"])
	completed, _ = coerce.ToBool(ws["completed"])
	return strings.TrimSpace(status), completed
}

// Spec returns the task spec of the task, nil if the snapshot does not define it
func (s *Snapshot) Spec(task *Task) *TaskSpec {
	if task == nil {
		return nil
	}
	return s.TaskSpecs[task.Spec]
}

// TaskIds returns the task instance ids in lexical order
func (s *Snapshot) TaskIds() []string {
	ids := make([]string, 0, len(s.Tasks))
	for id := range s.Tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Outputs selects the output-prefixed entries of a data map
func Outputs(data map[string]interface{}) map[string]interface{} {
	outputs := make(map[string]interface{})
	for k, v := range data {
		if strings.HasPrefix(k, OutputPrefix) {
			outputs[k] = v
		}
	}
	return outputs
}

// StringValue returns the first non-empty string value among keys
func StringValue(data map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		v, exists := data[key]
		if !exists || v == nil {
			continue
		}
		str, err := coerce.ToString(v)
		if err != nil {
			continue
		}
		if strings.TrimSpace(str) != "" {
			return str
		}
	}
	return ""
}
