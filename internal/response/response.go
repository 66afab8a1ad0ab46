// Package response turns execution outcomes and pipeline failures into the
// GraphQL response envelope and its HTTP status.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/vektah/gqlparser/v2/gqlerror"

	execution "github.com/hanpama/gqlhttp/internal/execution"
	gqlerrors "github.com/hanpama/gqlhttp/internal/gqlerrors"
)

// Envelope is the JSON body sent to the client.
type Envelope struct {
	Data       json.RawMessage `json:"data,omitempty"`
	Errors     []any           `json:"errors,omitempty"`
	Extensions map[string]any  `json:"extensions,omitempty"`
}

// FormatFunc shapes a single execution error for the client.
type FormatFunc func(err *gqlerror.Error) any

// DefaultFormat keeps the client-facing fields of err and drops everything
// else, such as the wrapped cause and the validation rule name.
func DefaultFormat(err *gqlerror.Error) any {
	if err == nil {
		return nil
	}
	return &gqlerror.Error{
		Message:    err.Message,
		Locations:  err.Locations,
		Path:       err.Path,
		Extensions: err.Extensions,
	}
}

// NormalizeResult builds the envelope for a result that reached execution.
// status is what the caller has set so far; it becomes 500 when data is
// null. res is not modified.
func NormalizeResult(status int, format FormatFunc, res *execution.Result) (int, *Envelope) {
	if res == nil {
		return status, &Envelope{}
	}
	if res.DataIsNull() {
		status = http.StatusInternalServerError
	}
	if format == nil {
		format = DefaultFormat
	}
	env := &Envelope{Data: res.Data, Extensions: res.Extensions}
	if res.Errors != nil {
		env.Errors = make([]any, len(res.Errors))
		for i, e := range res.Errors {
			env.Errors[i] = format(e)
		}
	}
	return status, env
}

// NormalizeError builds the envelope for a failure. Protocol errors keep
// their status and error list as given; anything else is a 500 carrying the
// error message.
func NormalizeError(err error) (int, *Envelope) {
	switch f := gqlerrors.Classify(err).(type) {
	case *gqlerrors.ProtocolError:
		status := f.Status
		if status == 0 {
			status = http.StatusInternalServerError
		}
		return status, &Envelope{Errors: f.Errors}
	case *gqlerrors.GenericError:
		return http.StatusInternalServerError, &Envelope{Errors: []any{gqlerror.Errorf("%s", f.Cause.Error())}}
	default:
		return http.StatusInternalServerError, &Envelope{}
	}
}

// Write sends v as JSON with the given status.
func Write(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}
