package reconcile

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/project-flogo/core/support/log"
	"github.com/project-flogo/flowwatch/model"
	"github.com/project-flogo/flowwatch/output"
	"github.com/project-flogo/flowwatch/state"
)

const (
	DefaultCompletedMessage = "Workflow completed successfully"
)

var (
	answerKeys = []string{"final_answer", "answer", "result"}
	resultKeys = []string{"result", "output"}
	errorKeys  = []string{"error", "error_message", "errorMessage"}
)

// Option configures a Reconciler
type Option func(*Reconciler)

// WithLogger sets the logger used to trace decisions
func WithLogger(logger log.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// WithSuccessStatuses replaces the workflow_status values treated as completion
func WithSuccessStatuses(statuses ...string) Option {
	return func(r *Reconciler) {
		r.success = newSentinels(statuses)
	}
}

// WithInteractiveTypes replaces the task spec typenames surfaced as ready for input
func WithInteractiveTypes(typeNames ...string) Option {
	return func(r *Reconciler) {
		r.interactive = model.NewInteractiveTypes(typeNames...)
	}
}

// WithFailureStatuses replaces the workflow_status values treated as failure
func WithFailureStatuses(statuses ...string) Option {
	return func(r *Reconciler) {
		r.failure = newSentinels(statuses)
	}
}

// Reconciler derives the RunState of a single run from successive engine
// snapshots. It owns the processed task set, the output tracker and the
// one-shot terminal flags of the run; Reset clears all of them together.
type Reconciler struct {
	mu sync.Mutex

	logger      log.Logger
	success     sentinels
	failure     sentinels
	interactive model.InteractiveTypes

	processed map[string]struct{}
	tracker   *output.Tracker
	pending   *state.ReadyTask
	terminal  model.RunStatus
}

func New(opts ...Option) *Reconciler {
	r := &Reconciler{
		logger:      log.ChildLogger(log.RootLogger(), "reconciler"),
		success:     newSentinels(defaultSuccessStatuses),
		failure:     newSentinels(defaultFailureStatuses),
		interactive: model.DefaultInteractiveTypes(),
		processed:   make(map[string]struct{}),
		tracker:     output.NewTracker(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Reconcile maps a snapshot to the RunState of this poll. It returns nil
// once a terminal state has been reported, until Reset is called.
func (r *Reconciler) Reconcile(snapshot *state.Snapshot) *state.RunState {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.terminal != "" {
		return nil
	}

	if snapshot == nil {
		snapshot = state.ParseSnapshot(nil)
	}

	rs := &state.RunState{Status: model.RunStatusRunning, Time: time.Now()}
	wfStatus, wfCompleted := snapshot.WorkflowStatus()

	if snapshot.Completed || wfCompleted || r.success.matches(wfStatus) {
		r.terminal = model.RunStatusCompleted
		rs.Status = model.RunStatusCompleted
		rs.TerminalMessage = state.StringValue(snapshot.Data, answerKeys...)
		if rs.TerminalMessage == "" {
			rs.TerminalMessage = DefaultCompletedMessage
		}
		rs.ChangedOutputs = r.tracker.DiffOutputs(snapshot.Data)
		r.pending = nil

		r.logger.Debugf("Run completed: %s", rs.TerminalMessage)
		return rs
	}

	if r.failure.matches(wfStatus) || hasFailedTask(snapshot) {
		r.terminal = model.RunStatusFailed
		rs.Status = model.RunStatusFailed
		rs.TerminalMessage = r.failureMessage(snapshot, wfStatus)
		r.pending = nil

		r.logger.Debugf("Run failed: %s", rs.TerminalMessage)
		return rs
	}

	ids := snapshot.TaskIds()

	for _, id := range ids {
		task := snapshot.Tasks[id]
		if !task.State.IsCompleted() || r.isProcessed(id) {
			continue
		}

		text := state.StringValue(task.Data, resultKeys...)
		outputs := r.tracker.DiffScoped(id, task.Data)
		if text == "" && len(outputs) == 0 {
			continue
		}
		if text == "" {
			text = outputText(outputs)
		}

		r.processed[id] = struct{}{}
		msg := &state.Message{
			TaskInstanceId: id,
			TaskSpecName:   task.Spec,
			DisplayName:    displayName(snapshot, task),
			Text:           text,
		}
		if len(outputs) > 0 {
			msg.Outputs = outputs
		}
		rs.Messages = append(rs.Messages, msg)

		r.logger.Debugf("Intermediate result from task [%s]", id)
	}

	// a surfaced task is reported once, it stays pending until resolved or moved on by the engine
	if r.pending != nil {
		if task, exists := snapshot.Tasks[r.pending.TaskInstanceId]; !exists || task.State != model.TaskStateReady {
			r.pending = nil
		}
	}

	for _, id := range ids {
		task := snapshot.Tasks[id]
		if task.State != model.TaskStateReady || r.isProcessed(id) {
			continue
		}
		spec := snapshot.Spec(task)
		if spec == nil || !r.interactive.Contains(spec.TypeName) {
			continue
		}

		r.processed[id] = struct{}{}
		r.pending = &state.ReadyTask{
			TaskSpecName:   task.Spec,
			TaskInstanceId: id,
			DisplayName:    displayName(snapshot, task),
			TypeName:       spec.TypeName,
			Form:           spec.Form,
		}
		rs.Status = model.RunStatusTaskReady
		rs.ReadyTask = copyReady(r.pending)

		r.logger.Debugf("Task [%s] of spec '%s' is ready for input", id, task.Spec)
		return rs
	}

	return rs
}

// Resolve marks the pending ready task as answered, the next poll reports
// running unless the engine surfaces another task
func (r *Reconciler) Resolve(taskInstanceId string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending == nil || r.pending.TaskInstanceId != taskInstanceId {
		return false
	}
	r.pending = nil
	return true
}

// Pending returns the ready task awaiting input, nil if there is none
func (r *Reconciler) Pending() *state.ReadyTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copyReady(r.pending)
}

// Terminal returns the terminal status reported, empty if the run is still live
func (r *Reconciler) Terminal() model.RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.terminal
}

// Processed returns true if the task instance has already been surfaced
func (r *Reconciler) Processed(taskInstanceId string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isProcessed(taskInstanceId)
}

// Reset discards everything known about the current run
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.processed = make(map[string]struct{})
	r.tracker = output.NewTracker()
	r.pending = nil
	r.terminal = ""
}

func (r *Reconciler) isProcessed(id string) bool {
	_, ok := r.processed[id]
	return ok
}

func (r *Reconciler) failureMessage(snapshot *state.Snapshot, wfStatus string) string {
	var failedTask *state.Task
	for _, id := range snapshot.TaskIds() {
		if task := snapshot.Tasks[id]; task.State == model.TaskStateFailed {
			failedTask = task
			break
		}
	}

	if failedTask != nil {
		if msg := state.StringValue(failedTask.Data, errorKeys...); msg != "" {
			return msg
		}
	}

	if msg := state.StringValue(snapshot.Data, errorKeys...); msg != "" {
		return msg
	}

	if failedTask != nil {
		name := failedTask.Spec
		if name == "" {
			name = failedTask.Id
		}
		return fmt.Sprintf("Task %s failed", name)
	}

	if wfStatus != "" {
		return fmt.Sprintf("Workflow %s", strings.ToLower(wfStatus))
	}
	return "Workflow failed"
}

func hasFailedTask(snapshot *state.Snapshot) bool {
	for _, task := range snapshot.Tasks {
		if task.State == model.TaskStateFailed {
			return true
		}
	}
	return false
}

func displayName(snapshot *state.Snapshot, task *state.Task) string {
	if spec := snapshot.Spec(task); spec != nil && spec.DisplayName != "" {
		return spec.DisplayName
	}
	if task.Spec != "" {
		return task.Spec
	}
	return task.Id
}

func outputText(outputs map[string]interface{}) string {
	keys := make([]string, 0, len(outputs))
	for k := range outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		if str, ok := outputs[k].(string); ok {
			lines = append(lines, str)
		} else {
			lines = append(lines, output.Canonical(outputs[k]))
		}
	}
	return strings.Join(lines, "\n")
}

func copyReady(rt *state.ReadyTask) *state.ReadyTask {
	if rt == nil {
		return nil
	}
	cp := *rt
	return &cp
}
