package tester

import (
	"errors"
	"fmt"
	"sync"

	"github.com/project-flogo/core/support"
	"github.com/project-flogo/core/support/log"
	"github.com/project-flogo/flowwatch/util"
)

var (
	ErrWorkflowNotFound = errors.New("workflow not found")
	ErrInstanceNotFound = errors.New("instance not found")
)

// StepError is returned by Fetch for scripted failure steps
type StepError struct {
	Status  int
	Message string
}

func (e *StepError) Error() string {
	return fmt.Sprintf("scripted failure %d: %s", e.Status, e.Message)
}

// TaskNotReadyError is returned when a submitted task is not the one the instance awaits
type TaskNotReadyError struct {
	TaskId string
}

func (e *TaskNotReadyError) Error() string {
	return fmt.Sprintf("task '%s' is not ready", e.TaskId)
}

// Submission is task data received by the engine
type Submission struct {
	TaskId string                 `json:"task_id"`
	Data   map[string]interface{} `json:"data,omitempty"`
}

type instance struct {
	workflowId  string
	data        map[string]interface{}
	step        int
	served      int
	submissions []*Submission
}

// Engine is an in-memory workflow engine that replays a Script
type Engine struct {
	script *Script
	idGen  *support.Generator
	logger log.Logger

	mu        sync.Mutex
	instances map[string]*instance
}

func NewEngine(script *Script, logger log.Logger) (*Engine, error) {
	if script == nil {
		return nil, errors.New("script is required")
	}
	if err := script.Validate(); err != nil {
		return nil, err
	}

	idGen, err := support.NewGenerator()
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = log.ChildLogger(log.RootLogger(), "tester")
	}

	return &Engine{
		script:    script,
		idGen:     idGen,
		logger:    logger,
		instances: make(map[string]*instance),
	}, nil
}

// Start creates a new instance of the workflow positioned at its first step
func (e *Engine) Start(workflowId string, data map[string]interface{}) (string, error) {
	if _, exists := e.script.Workflows[workflowId]; !exists {
		return "", ErrWorkflowNotFound
	}

	id := e.idGen.NextAsString()

	e.mu.Lock()
	e.instances[id] = &instance{workflowId: workflowId, data: util.DeepCopyMap(data)}
	e.mu.Unlock()

	e.logger.Debugf("Started instance [%s] of workflow [%s]", id, workflowId)
	return id, nil
}

// Fetch serves the current step of the instance and advances it
func (e *Engine) Fetch(workflowId, instanceId string) (map[string]interface{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	inst, steps, err := e.lookup(workflowId, instanceId)
	if err != nil {
		return nil, err
	}

	step := steps[inst.step]
	inst.served++
	if step.AwaitTask == "" && inst.served > step.Repeat {
		e.advance(inst, steps)
	}

	if step.Status != 0 {
		return nil, &StepError{Status: step.Status, Message: step.Error}
	}

	snapshot := util.DeepCopyMap(step.Snapshot)
	if len(inst.data) > 0 {
		data, _ := snapshot["data"].(map[string]interface{})
		snapshot["data"] = util.MergeMaps(inst.data, data)
	}
	return snapshot, nil
}

// Submit accepts task data when the instance awaits that task
func (e *Engine) Submit(workflowId, instanceId, taskId string, data map[string]interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	inst, steps, err := e.lookup(workflowId, instanceId)
	if err != nil {
		return err
	}

	if taskId == "" || steps[inst.step].AwaitTask != taskId {
		return &TaskNotReadyError{TaskId: taskId}
	}

	inst.submissions = append(inst.submissions, &Submission{TaskId: taskId, Data: util.DeepCopyMap(data)})
	e.advance(inst, steps)

	e.logger.Debugf("Task [%s] of instance [%s] submitted", taskId, instanceId)
	return nil
}

// Submissions returns the task data received for the instance
func (e *Engine) Submissions(instanceId string) []*Submission {
	e.mu.Lock()
	defer e.mu.Unlock()

	inst, exists := e.instances[instanceId]
	if !exists {
		return nil
	}
	return append([]*Submission(nil), inst.submissions...)
}

// Instances returns the number of started instances
func (e *Engine) Instances() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.instances)
}

func (e *Engine) lookup(workflowId, instanceId string) (*instance, []*Step, error) {
	wf, exists := e.script.Workflows[workflowId]
	if !exists {
		return nil, nil, ErrWorkflowNotFound
	}
	inst, exists := e.instances[instanceId]
	if !exists || inst.workflowId != workflowId {
		return nil, nil, ErrInstanceNotFound
	}
	return inst, wf.Steps, nil
}

// the last step is served forever
func (e *Engine) advance(inst *instance, steps []*Step) {
	if inst.step < len(steps)-1 {
		inst.step++
		inst.served = 0
	}
}
