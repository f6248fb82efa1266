package state

import (
	"context"
	"sync"
)

// MemoryRecorder keeps recorded runs in process, suitable for a single monitor instance
type MemoryRecorder struct {
	mu     sync.RWMutex
	runs   map[string]*RunInfo
	states map[string][]*RunState
	limit  int
}

// NewMemoryRecorder creates a MemoryRecorder keeping at most limit states per run, 0 means unbounded
func NewMemoryRecorder(limit int) *MemoryRecorder {
	return &MemoryRecorder{
		runs:   make(map[string]*RunInfo),
		states: make(map[string][]*RunState),
		limit:  limit,
	}
}

func (r *MemoryRecorder) RecordStart(ctx context.Context, run *RunInfo) error {
	if run == nil || run.InstanceId == "" {
		return ErrRunNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	info := *run
	r.runs[run.InstanceId] = &info
	r.states[run.InstanceId] = nil
	return nil
}

func (r *MemoryRecorder) RecordState(ctx context.Context, rs *RunState) error {
	if rs == nil || rs.InstanceId == "" {
		return ErrRunNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	states := append(r.states[rs.InstanceId], rs.Copy())
	if r.limit > 0 && len(states) > r.limit {
		states = states[len(states)-r.limit:]
	}
	r.states[rs.InstanceId] = states

	if info, exists := r.runs[rs.InstanceId]; exists {
		info.Status = rs.Status
	}
	return nil
}

func (r *MemoryRecorder) RecordDone(ctx context.Context, run *RunInfo) error {
	if run == nil || run.InstanceId == "" {
		return ErrRunNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	info := *run
	r.runs[run.InstanceId] = &info
	return nil
}

func (r *MemoryRecorder) History(ctx context.Context, instanceId string) (*RunInfo, []*RunState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, exists := r.runs[instanceId]
	if !exists {
		return nil, nil, ErrRunNotFound
	}

	infoCopy := *info
	states := make([]*RunState, 0, len(r.states[instanceId]))
	for _, rs := range r.states[instanceId] {
		states = append(states, rs.Copy())
	}
	return &infoCopy, states, nil
}
