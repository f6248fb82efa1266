package output

import (
	"sync"

	"github.com/project-flogo/flowwatch/state"
)

// Tracker remembers the last serialization of every output key it has
// reported, so values the engine resends unchanged are not surfaced again.
type Tracker struct {
	mu   sync.Mutex
	seen map[string]string
}

func NewTracker() *Tracker {
	return &Tracker{seen: make(map[string]string)}
}

// Diff returns the entries of current whose value is new or differs from
// the last reported one. The stored serialization is updated immediately.
func (t *Tracker) Diff(current map[string]interface{}) map[string]interface{} {
	changed := make(map[string]interface{})
	if len(current) == 0 {
		return changed
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for key, value := range current {
		serialized := Canonical(value)
		if last, exists := t.seen[key]; exists && last == serialized {
			continue
		}
		t.seen[key] = serialized
		changed[key] = value
	}

	return changed
}

// DiffOutputs runs Diff on the output-prefixed entries of data only
func (t *Tracker) DiffOutputs(data map[string]interface{}) map[string]interface{} {
	return t.Diff(state.Outputs(data))
}

// DiffScoped is DiffOutputs for values owned by a single task, keys are
// tracked per scope but reported unscoped
func (t *Tracker) DiffScoped(scope string, data map[string]interface{}) map[string]interface{} {
	outputs := state.Outputs(data)
	scoped := make(map[string]interface{}, len(outputs))
	for k, v := range outputs {
		scoped[scope+"/"+k] = v
	}

	changed := make(map[string]interface{})
	for k := range t.Diff(scoped) {
		key := k[len(scope)+1:]
		changed[key] = outputs[key]
	}
	return changed
}

// Reset forgets every stored serialization
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.seen = make(map[string]string)
	t.mu.Unlock()
}

// Len returns the number of keys tracked
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}
