// Package engine adapts graph-gophers/graphql-go to execution.Engine.
package engine

import (
	"context"
	"reflect"

	graphql "github.com/graph-gophers/graphql-go"
	gqlerrs "github.com/graph-gophers/graphql-go/errors"
	"github.com/pkg/errors"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"

	execution "github.com/hanpama/gqlhttp/internal/execution"
	language "github.com/hanpama/gqlhttp/internal/language"
)

// Gophers executes operations with graph-gophers. The root resolver is
// bound when the schema is parsed, so it cannot vary per request.
type Gophers struct {
	schema   *graphql.Schema
	ast      *ast.Schema
	resolver any
}

// NewGophers parses sdl twice: once for graph-gophers execution and once
// with gqlparser so requests can be validated before they reach the engine.
func NewGophers(sdl string, resolver any, opts ...graphql.SchemaOpt) (*Gophers, error) {
	sch, err := graphql.ParseSchema(sdl, resolver, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "parse schema")
	}
	astSchema, err := language.LoadSchema("schema.graphql", sdl)
	if err != nil {
		return nil, errors.Wrap(err, "load schema")
	}
	return &Gophers{schema: sch, ast: astSchema, resolver: resolver}, nil
}

// Schema returns the gqlparser view of the schema.
func (g *Gophers) Schema() *ast.Schema { return g.ast }

func (g *Gophers) Execute(ctx context.Context, req *execution.Request) (*execution.Result, error) {
	if req.RootValue != nil && !sameRoot(req.RootValue, g.resolver) {
		return nil, errors.New("root value does not match the resolver bound to the schema")
	}
	resp := g.schema.Exec(ctx, req.Query, req.OperationName, req.Variables)
	res := &execution.Result{
		Data:       resp.Data,
		Extensions: resp.Extensions,
	}
	if len(resp.Errors) > 0 {
		res.Errors = make(gqlerror.List, len(resp.Errors))
		for i, qe := range resp.Errors {
			res.Errors[i] = convertError(qe)
		}
	}
	return res, nil
}

func sameRoot(a, b any) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Kind() == reflect.Pointer && vb.Kind() == reflect.Pointer {
		return va.Pointer() == vb.Pointer()
	}
	return reflect.DeepEqual(a, b)
}

func convertError(qe *gqlerrs.QueryError) *gqlerror.Error {
	out := &gqlerror.Error{
		Message:    qe.Message,
		Extensions: qe.Extensions,
		Rule:       qe.Rule,
	}
	for _, loc := range qe.Locations {
		out.Locations = append(out.Locations, gqlerror.Location{Line: loc.Line, Column: loc.Column})
	}
	for _, p := range qe.Path {
		switch v := p.(type) {
		case string:
			out.Path = append(out.Path, ast.PathName(v))
		case int:
			out.Path = append(out.Path, ast.PathIndex(v))
		case float64:
			out.Path = append(out.Path, ast.PathIndex(int(v)))
		}
	}
	return out
}
