// Package execution runs a parsed GraphQL document through an Engine and
// decorates the outcome.
//
// The Coordinator separates two kinds of failure. An Engine that cannot even
// start (it returns an error or panics) produces a 400 ProtocolError: the
// request was unusable. Everything that goes wrong once execution runs is
// reported inside Result.Errors and is never a Go error.
//
// An optional ExtensionsFunc is awaited after execution and its output is
// stored on Result.Extensions before Execute returns, so a response is never
// written without it. A failing ExtensionsFunc is logged and ignored.
package execution

import (
	"context"
	"net/http"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.uber.org/zap"

	gqlerrors "github.com/hanpama/gqlhttp/internal/gqlerrors"
)

// Request is everything an Engine needs to run one operation.
type Request struct {
	// Document is the parsed and validated query. Query holds its source
	// for engines that parse on their own.
	Document      *ast.QueryDocument
	Query         string
	RootValue     any
	Variables     map[string]any
	OperationName string
}

// Engine is the GraphQL execution capability.
type Engine interface {
	Execute(ctx context.Context, req *Request) (*Result, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, req *Request) (*Result, error)

func (f EngineFunc) Execute(ctx context.Context, req *Request) (*Result, error) {
	return f(ctx, req)
}

// ExtensionContext is handed to an ExtensionsFunc once execution finished.
type ExtensionContext struct {
	Document      *ast.QueryDocument
	Variables     map[string]any
	OperationName string
	Result        *Result
}

// ExtensionsFunc computes the extensions block of a response.
type ExtensionsFunc func(ctx context.Context, ec ExtensionContext) (map[string]any, error)

// Coordinator invokes an Engine for one request at a time. It holds no
// per-request state and is safe for concurrent use.
type Coordinator struct {
	engine     Engine
	rootValue  any
	extensions ExtensionsFunc
	log        *zap.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRootValue sets the root value passed to the engine.
func WithRootValue(v any) Option { return func(c *Coordinator) { c.rootValue = v } }

// WithExtensions installs an extensions hook. nil means no extensions.
func WithExtensions(fn ExtensionsFunc) Option { return func(c *Coordinator) { c.extensions = fn } }

// WithLogger sets the logger used for failures that do not fail the request.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

// NewCoordinator returns a Coordinator running operations on engine.
func NewCoordinator(engine Engine, opts ...Option) *Coordinator {
	c := &Coordinator{engine: engine, log: zap.NewNop()}
	for _, f := range opts {
		f(c)
	}
	return c
}

// Execute runs one operation. A non-nil error is always a
// *gqlerrors.ProtocolError with status 400.
func (c *Coordinator) Execute(ctx context.Context, doc *ast.QueryDocument, query string, variables map[string]any, operationName string) (*Result, error) {
	req := &Request{
		Document:      doc,
		Query:         query,
		RootValue:     c.rootValue,
		Variables:     variables,
		OperationName: operationName,
	}
	res, err := c.invoke(ctx, req)
	if err != nil {
		return nil, gqlerrors.New(http.StatusBadRequest, gqlerrors.AsGQLError(err))
	}
	if res == nil {
		return nil, gqlerrors.Errorf(http.StatusBadRequest, "execution produced no result")
	}
	if c.extensions != nil {
		ext, err := c.runExtensions(ctx, ExtensionContext{
			Document:      doc,
			Variables:     variables,
			OperationName: operationName,
			Result:        res,
		})
		if err != nil {
			c.log.Warn("extensions failed; responding without them",
				zap.String("operation", operationName), zap.Error(err))
		} else {
			res.Extensions = ext
		}
	}
	return res, nil
}

func (c *Coordinator) invoke(ctx context.Context, req *Request) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, panicError(r)
		}
	}()
	return c.engine.Execute(ctx, req)
}

func (c *Coordinator) runExtensions(ctx context.Context, ec ExtensionContext) (ext map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			ext, err = nil, panicError(r)
		}
	}()
	return c.extensions(ctx, ec)
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return gqlerror.Errorf("%v", r)
}
