package model

import (
	"sort"
	"strings"
)

const (
	TypeUserTask   = "UserTask"
	TypeManualTask = "ManualTask"
)

// InteractiveTypes is the set of task spec typenames that wait on human input.
// Typenames are matched exactly.
type InteractiveTypes map[string]struct{}

// DefaultInteractiveTypes returns the set holding UserTask and ManualTask
func DefaultInteractiveTypes() InteractiveTypes {
	return NewInteractiveTypes(TypeUserTask, TypeManualTask)
}

// NewInteractiveTypes creates a set from the typenames, blank names are skipped
func NewInteractiveTypes(typeNames ...string) InteractiveTypes {
	types := make(InteractiveTypes, len(typeNames))
	for _, name := range typeNames {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		types[name] = struct{}{}
	}
	return types
}

// Contains returns true if tasks of the specified typename are surfaced for user input
func (t InteractiveTypes) Contains(typeName string) bool {
	_, ok := t[typeName]
	return ok
}

// Names gets the typenames of the set in sorted order
func (t InteractiveTypes) Names() []string {
	list := make([]string, 0, len(t))
	for name := range t {
		list = append(list, name)
	}
	sort.Strings(list)
	return list
}
