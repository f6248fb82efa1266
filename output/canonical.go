package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// Canonical returns a deterministic serialization of v. Object keys are
// sorted at every depth, so equal values with a different key order
// serialize identically. Values that cannot be encoded as JSON fall back to
// a best-effort string form and never cause an error.
func Canonical(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fallback(v)
	}

	// decode and encode again so structs, typed maps and numbers share one form
	var normalized interface{}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&normalized); err != nil {
		return string(b)
	}

	out, err := json.Marshal(normalized)
	if err != nil {
		return string(b)
	}
	return string(out)
}

func fallback(v interface{}) string {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Ptr, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		// may be cyclic, formatting recursively is unsafe
		return fmt.Sprintf("!%T@%x", v, rv.Pointer())
	case reflect.Struct, reflect.Array, reflect.Interface:
		return fmt.Sprintf("!%T", v)
	default:
		return fmt.Sprintf("!%T:%v", v, v)
	}
}
