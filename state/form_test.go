package state

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func approvalSpec() *TaskSpec {
	return &TaskSpec{
		Name:     "approve",
		TypeName: "UserTask",
		Form: map[string]interface{}{
			"schema": map[string]interface{}{
				"type":     "object",
				"required": []interface{}{"approved"},
				"properties": map[string]interface{}{
					"approved": map[string]interface{}{"type": "boolean"},
					"comment":  map[string]interface{}{"type": "string"},
				},
			},
		},
	}
}

func TestValidateData(t *testing.T) {
	spec := approvalSpec()

	assert.NoError(t, spec.ValidateData(map[string]interface{}{"approved": true, "comment": "ok"}))

	err := spec.ValidateData(map[string]interface{}{"comment": 5})
	var formErr *FormError
	assert.True(t, errors.As(err, &formErr))
	assert.Equal(t, "approve", formErr.TaskSpec)
	assert.Len(t, formErr.Problems, 2)

	assert.Error(t, spec.ValidateData(nil))
}

func TestValidateData_NoForm(t *testing.T) {
	spec := &TaskSpec{Name: "manual", TypeName: "ManualTask"}
	assert.NoError(t, spec.ValidateData(map[string]interface{}{"anything": 1}))

	spec.Form = map[string]interface{}{"ui": "layout only"}
	assert.Nil(t, spec.Schema())
	assert.NoError(t, spec.ValidateData(nil))

	var nilSpec *TaskSpec
	assert.NoError(t, nilSpec.ValidateData(nil))
}
