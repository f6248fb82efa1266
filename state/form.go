package state

import (
	"fmt"
	"strings"

	"github.com/project-flogo/core/data/coerce"
	"github.com/xeipuuv/gojsonschema"
)

// FormError lists the problems found when validating task data against its form
type FormError struct {
	TaskSpec string
	Problems []string
}

func (e *FormError) Error() string {
	return fmt.Sprintf("data for task '%s' does not match its form: %s", e.TaskSpec, strings.Join(e.Problems, "; "))
}

// Schema returns the JSON schema of the task form, nil if the task has no usable form
func (ts *TaskSpec) Schema() map[string]interface{} {
	if ts == nil || len(ts.Form) == 0 {
		return nil
	}

	if nested, err := coerce.ToObject(ts.Form["schema"]); err == nil && len(nested) > 0 {
		return nested
	}

	_, hasType := ts.Form["type"]
	_, hasProps := ts.Form["properties"]
	if hasType || hasProps {
		return ts.Form
	}

	return nil
}

// ValidateData checks submitted task data against the task form schema
func (ts *TaskSpec) ValidateData(data map[string]interface{}) error {
	schema := ts.Schema()
	if schema == nil {
		return nil
	}

	if data == nil {
		data = make(map[string]interface{})
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(data))
	if err != nil {
		return fmt.Errorf("invalid form schema for task '%s': %s", ts.Name, err.Error())
	}

	if result.Valid() {
		return nil
	}

	formErr := &FormError{TaskSpec: ts.Name}
	for _, re := range result.Errors() {
		formErr.Problems = append(formErr.Problems, re.String())
	}
	return formErr
}
