package main

import (
	"context"
	"time"

	reqid "github.com/hanpama/gqlhttp/internal/reqid"
)

const demoSDL = `
schema {
	query: Query
	mutation: Mutation
}

type Query {
	hello(name: String): String!
	requestId: String
	now: String!
}

type Mutation {
	echo(message: String!): String!
}
`

// demoResolver serves demoSDL, or any schema file that is a subset of it.
type demoResolver struct {
	clock func() time.Time
}

func (r *demoResolver) Hello(args struct{ Name *string }) string {
	if args.Name == nil || *args.Name == "" {
		return "Hello, world!"
	}
	return "Hello, " + *args.Name + "!"
}

func (r *demoResolver) RequestID(ctx context.Context) *string {
	id, ok := reqid.FromContext(ctx)
	if !ok {
		return nil
	}
	return &id
}

func (r *demoResolver) Now() string {
	return r.clock().UTC().Format(time.RFC3339)
}

func (r *demoResolver) Echo(args struct{ Message string }) string {
	return args.Message
}
