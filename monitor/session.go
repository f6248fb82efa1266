package monitor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/project-flogo/core/support/log"
	"github.com/project-flogo/flowwatch/client"
	"github.com/project-flogo/flowwatch/model"
	"github.com/project-flogo/flowwatch/poller"
	"github.com/project-flogo/flowwatch/state"
	"github.com/project-flogo/flowwatch/support"
)

const subscriberBuffer = 16

var (
	ErrNoRun        = errors.New("no run has been started")
	ErrTaskNotReady = errors.New("task is not awaiting input")
	ErrClosed       = errors.New("session is closed")
)

// Engine is the part of the workflow engine API a session needs
type Engine interface {
	poller.Fetcher
	StartWorkflow(ctx context.Context, workflowId string, data map[string]interface{}) (*client.StartResponse, error)
	SubmitTask(ctx context.Context, workflowId, instanceId, taskId string, data map[string]interface{}) error
}

// View is the externally visible state of a session
type View struct {
	Id        string           `json:"id"`
	Running   bool             `json:"running"`
	State     *state.RunState  `json:"state"`
	ReadyTask *state.ReadyTask `json:"ready_task,omitempty"`
	Messages  []*state.Message `json:"messages,omitempty"`
	Run       *state.RunInfo   `json:"run,omitempty"`
}

// Session is one watcher of workflow runs, it owns at most one active run
type Session struct {
	id       string
	engine   Engine
	recorder state.Recorder
	mode     state.RecordingMode
	driver   *poller.Driver
	logger   log.Logger

	// messageLimit caps the intermediate messages kept for the run, zero keeps all
	messageLimit int

	mu           sync.Mutex
	closed       bool
	run          *state.RunInfo
	current      *state.RunState
	messages     []*state.Message
	lastRecorded *state.RunState
	subscribers  map[chan *state.RunState]struct{}
}

func newSession(id string, engine Engine, recorder state.Recorder, mode state.RecordingMode, messageLimit int, opts []poller.Option, logger log.Logger) *Session {
	s := &Session{
		id:           id,
		engine:       engine,
		recorder:     recorder,
		mode:         mode,
		logger:       logger,
		messageLimit: messageLimit,
		current:      state.Idle(),
		subscribers:  make(map[chan *state.RunState]struct{}),
	}

	driverOpts := append([]poller.Option{poller.WithLogger(logger)}, opts...)
	s.driver = poller.New(engine, s.handle, driverOpts...)
	return s
}

func (s *Session) Id() string {
	return s.id
}

// Start starts a run of the workflow on the engine and begins polling it
func (s *Session) Start(ctx context.Context, workflowId string, data map[string]interface{}) (*state.RunState, error) {
	workflowId = strings.TrimSpace(workflowId)
	if workflowId == "" {
		return nil, errors.New("workflow id is required")
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	started, err := s.engine.StartWorkflow(ctx, workflowId, data)
	if err != nil {
		return nil, err
	}
	if started.WorkflowId == "" {
		started.WorkflowId = workflowId
	}

	// the previous run is abandoned before the new one is polled
	s.driver.Stop()
	s.finish(ctx, model.RunStatusIdle)

	rs := &state.RunState{
		WorkflowId: started.WorkflowId,
		InstanceId: started.InstanceId,
		Status:     model.RunStatusRunning,
		Time:       time.Now(),
	}
	info := &state.RunInfo{
		SessionId:  s.id,
		WorkflowId: started.WorkflowId,
		InstanceId: started.InstanceId,
		HostId:     support.GetHostId(),
		Status:     model.RunStatusRunning,
		StartTime:  rs.Time,
	}

	s.mu.Lock()
	s.run = info
	s.current = rs
	s.messages = nil
	s.lastRecorded = nil
	s.mu.Unlock()

	if s.recorder != nil && s.mode != state.RecordingModeOff {
		if err := s.recorder.RecordStart(ctx, info); err != nil {
			s.logger.Warnf("Unable to record start of instance [%s]: %v", info.InstanceId, err)
		}
	}

	s.broadcast(rs)
	if err := s.driver.Start(started.WorkflowId, started.InstanceId); err != nil {
		return nil, err
	}

	s.logger.Infof("Session [%s] watching instance [%s] of workflow [%s]", s.id, started.InstanceId, started.WorkflowId)
	return rs.Copy(), nil
}

// Submit validates the data against the ready task's form and sends it to the engine
func (s *Session) Submit(ctx context.Context, taskId string, data map[string]interface{}) (*state.RunState, error) {
	s.mu.Lock()
	run := s.run
	s.mu.Unlock()
	if run == nil {
		return nil, ErrNoRun
	}

	ready := s.driver.Reconciler().Pending()
	if ready == nil || (taskId != "" && ready.TaskInstanceId != taskId) {
		return nil, ErrTaskNotReady
	}

	spec := &state.TaskSpec{Name: ready.TaskSpecName, TypeName: ready.TypeName, Form: ready.Form}
	if err := spec.ValidateData(data); err != nil {
		return nil, err
	}

	if err := s.engine.SubmitTask(ctx, run.WorkflowId, run.InstanceId, ready.TaskInstanceId, data); err != nil {
		return nil, err
	}

	// the engine may already have moved the run past the task
	s.driver.Reconciler().Resolve(ready.TaskInstanceId)

	s.mu.Lock()
	rs := s.current.Copy()
	resolved := rs.Status == model.RunStatusTaskReady
	if resolved {
		rs.Status = model.RunStatusRunning
		rs.ReadyTask = nil
		rs.Messages = nil
		rs.ChangedOutputs = nil
		rs.Time = time.Now()
		s.current = rs
	}
	record := resolved && s.shouldRecord(rs)
	s.mu.Unlock()

	s.logger.Debugf("Session [%s] submitted task [%s]", s.id, ready.TaskInstanceId)
	if record {
		s.recordState(ctx, rs)
	}
	s.broadcast(rs)
	return rs.Copy(), nil
}

// Reset stops polling and returns the session to idle
func (s *Session) Reset(ctx context.Context) *state.RunState {
	s.driver.Reset()
	s.finish(ctx, model.RunStatusIdle)

	rs := state.Idle()
	s.mu.Lock()
	s.run = nil
	s.current = rs
	s.messages = nil
	s.lastRecorded = nil
	s.mu.Unlock()

	s.broadcast(rs)
	return rs.Copy()
}

// View returns a copy of the session state
func (s *Session) View() *View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := &View{
		Id:        s.id,
		Running:   s.driver.Running(),
		State:     s.current.Copy(),
		ReadyTask: s.driver.Reconciler().Pending(),
	}
	if len(s.messages) > 0 {
		v.Messages = make([]*state.Message, len(s.messages))
		copy(v.Messages, s.messages)
	}
	if s.run != nil {
		info := *s.run
		v.Run = &info
	}
	return v
}

// Subscribe returns a channel receiving every state change of the session
// and a function to cancel the subscription. The channel is closed when the
// subscription is cancelled or the session is closed.
func (s *Session) Subscribe() (<-chan *state.RunState, func()) {
	ch := make(chan *state.RunState, subscriberBuffer)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.subscribers[ch]; ok {
				delete(s.subscribers, ch)
				close(ch)
			}
		})
	}
}

// Close stops polling and closes all subscriptions
func (s *Session) Close() {
	s.driver.Stop()
	s.finish(context.Background(), model.RunStatusIdle)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = nil
}

func (s *Session) handle(rs *state.RunState) {
	s.mu.Lock()
	run := s.run
	if run == nil || run.InstanceId != rs.InstanceId {
		s.mu.Unlock()
		return
	}

	s.current = rs
	s.messages = append(s.messages, rs.Messages...)
	if s.messageLimit > 0 && len(s.messages) > s.messageLimit {
		s.messages = s.messages[len(s.messages)-s.messageLimit:]
	}

	record := s.shouldRecord(rs)
	if rs.IsTerminal() {
		run.Status = rs.Status
		run.EndTime = rs.Time
	}
	s.mu.Unlock()

	ctx := context.Background()
	if record {
		s.recordState(ctx, rs)
	}
	if rs.IsTerminal() {
		s.logger.Infof("Session [%s] instance [%s] %s: %s", s.id, rs.InstanceId, rs.Status, rs.TerminalMessage)
		s.recordDone(ctx, run)
	}

	s.broadcast(rs)
}

// shouldRecord must be called with s.mu held, a true result marks rs as the last recorded state
func (s *Session) shouldRecord(rs *state.RunState) bool {
	if s.recorder == nil || !state.ShouldRecord(s.mode, s.lastRecorded, rs) {
		return false
	}
	s.lastRecorded = rs
	return true
}

func (s *Session) recordState(ctx context.Context, rs *state.RunState) {
	if err := s.recorder.RecordState(ctx, rs.Copy()); err != nil {
		s.logger.Warnf("Unable to record state of instance [%s]: %v", rs.InstanceId, err)
	}
}

// finish records the end of a run that is abandoned before reaching a terminal state
func (s *Session) finish(ctx context.Context, status model.RunStatus) {
	s.mu.Lock()
	run := s.run
	if run == nil || run.Status.IsTerminal() || !run.EndTime.IsZero() {
		s.mu.Unlock()
		return
	}
	run.Status = status
	run.EndTime = time.Now()
	s.mu.Unlock()

	s.recordDone(ctx, run)
}

func (s *Session) recordDone(ctx context.Context, run *state.RunInfo) {
	if s.recorder == nil || s.mode == state.RecordingModeOff {
		return
	}
	s.mu.Lock()
	info := *run
	s.mu.Unlock()

	if err := s.recorder.RecordDone(ctx, &info); err != nil {
		s.logger.Warnf("Unable to record end of instance [%s]: %v", info.InstanceId, err)
	}
}

func (s *Session) broadcast(rs *state.RunState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ch := range s.subscribers {
		select {
		case ch <- rs.Copy():
		default:
			s.logger.Warnf("Subscriber of session [%s] is too slow, dropping state %d", s.id, rs.Seq)
		}
	}
}
