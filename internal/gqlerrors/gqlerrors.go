// Package gqlerrors defines the two failure variants the request pipeline can
// end in: a ProtocolError that carries its own HTTP status and a ready-made
// error list, and a GenericError wrapping anything else.
package gqlerrors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Failure is implemented by *ProtocolError and *GenericError only.
type Failure interface {
	error
	failure()
}

// ProtocolError short-circuits the pipeline with a chosen status. Errors are
// written to the response verbatim, without running a formatter over them.
type ProtocolError struct {
	Status int
	Errors []any
}

func (e *ProtocolError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, v := range e.Errors {
		switch t := v.(type) {
		case error:
			msgs = append(msgs, t.Error())
		case string:
			msgs = append(msgs, t)
		default:
			msgs = append(msgs, fmt.Sprint(t))
		}
	}
	return fmt.Sprintf("graphql: %d %s", e.Status, strings.Join(msgs, "; "))
}

func (*ProtocolError) failure() {}

// GenericError is any failure that did not choose a status.
type GenericError struct {
	Cause error
}

func (e *GenericError) Error() string { return e.Cause.Error() }
func (e *GenericError) Unwrap() error { return e.Cause }
func (*GenericError) failure()        {}

// New builds a ProtocolError. With no errors the status text is used so the
// list is never empty.
func New(status int, errs ...any) *ProtocolError {
	if len(errs) == 0 {
		errs = []any{gqlerror.Errorf("%s", http.StatusText(status))}
	}
	return &ProtocolError{Status: status, Errors: errs}
}

// Errorf builds a ProtocolError holding a single message-only GraphQL error.
func Errorf(status int, format string, args ...any) *ProtocolError {
	return &ProtocolError{Status: status, Errors: []any{gqlerror.Errorf(format, args...)}}
}

// FromList builds a ProtocolError from a gqlparser error list.
func FromList(status int, list gqlerror.List) *ProtocolError {
	errs := make([]any, len(list))
	for i, e := range list {
		errs[i] = e
	}
	return New(status, errs...)
}

// Classify finds a ProtocolError anywhere in err's chain, falling back to a
// GenericError. A nil err classifies as nil.
func Classify(err error) Failure {
	if err == nil {
		return nil
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe
	}
	var ge *GenericError
	if errors.As(err, &ge) {
		return ge
	}
	return &GenericError{Cause: err}
}

// AsGQLError converts err into a gqlparser error, keeping location and path
// information when err already is one.
func AsGQLError(err error) *gqlerror.Error {
	if err == nil {
		return nil
	}
	var ge *gqlerror.Error
	if errors.As(err, &ge) {
		return ge
	}
	return gqlerror.Wrap(err)
}
