// Package events declares what the request pipeline publishes on the event
// bus. Handlers receive the request context alongside each event.
package events

import (
	"net/http"
	"time"
)

// HTTPStart is emitted when an HTTP request is received.
type HTTPStart struct {
	Request *http.Request
}

// HTTPFinish is emitted after the response has been written.
type HTTPFinish struct {
	Request  *http.Request
	Status   int
	Duration time.Duration
}

// BodyResolved is emitted once the request body has been turned into a
// payload, or failed to.
type BodyResolved struct {
	ContentType string
	Err         error
}

// GraphQLStart is emitted before executing a GraphQL operation.
type GraphQLStart struct {
	Query         string
	OperationName string
	OperationType string
}

// GraphQLFinish is emitted after executing a GraphQL operation. Status is
// the HTTP status the outcome maps to.
type GraphQLFinish struct {
	Query         string
	OperationName string
	OperationType string
	Status        int
	Errors        []error
	Duration      time.Duration
}
