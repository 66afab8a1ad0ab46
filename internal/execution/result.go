package execution

import (
	"bytes"
	"encoding/json"

	"github.com/vektah/gqlparser/v2/gqlerror"
)

var jsonNull = []byte("null")

// Result is what an Engine produces for a query that got as far as
// execution. Resolver and validation errors live in Errors.
type Result struct {
	// Data is nil when the engine produced no data at all, and the JSON
	// literal null when execution failed at the root.
	Data       json.RawMessage
	Errors     gqlerror.List
	Extensions map[string]any
}

// DataIsNull reports whether data is present and null.
func (r *Result) DataIsNull() bool {
	return r != nil && bytes.Equal(bytes.TrimSpace(r.Data), jsonNull)
}

// NewResult marshals data into a Result. A nil data marshals to null.
func NewResult(data any, errs ...*gqlerror.Error) (*Result, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Result{Data: raw, Errors: errs}, nil
}
