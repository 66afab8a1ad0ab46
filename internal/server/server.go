package server

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/vektah/gqlparser/v2/ast"
	"go.uber.org/zap"

	body "github.com/hanpama/gqlhttp/internal/body"
	eventbus "github.com/hanpama/gqlhttp/internal/eventbus"
	events "github.com/hanpama/gqlhttp/internal/events"
	execution "github.com/hanpama/gqlhttp/internal/execution"
	gqlerrors "github.com/hanpama/gqlhttp/internal/gqlerrors"
	graphiql "github.com/hanpama/gqlhttp/internal/graphiql"
	language "github.com/hanpama/gqlhttp/internal/language"
	reqid "github.com/hanpama/gqlhttp/internal/reqid"
	response "github.com/hanpama/gqlhttp/internal/response"
)

const (
	errMethodNotAllowed = "GraphQL only supports GET and POST requests."
	errMissingQuery     = "Must provide query string."
)

// Handler is an http.Handler that serves a GraphQL endpoint.
// It resolves the request body, validates the query against the schema,
// runs it through the execution coordinator and writes the normalized result.
type Handler struct {
	schema *ast.Schema
	coord  *execution.Coordinator
	opt    Options
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions

	// GraphiQL enables the in-browser IDE when true.
	GraphiQL bool

	// Endpoint is the URL the IDE sends queries to. Empty means the path
	// of the request that loaded it.
	Endpoint string

	// FormatError shapes execution errors. nil uses response.DefaultFormat.
	FormatError response.FormatFunc

	RootValue  any
	Extensions execution.ExtensionsFunc
	Logger     *zap.Logger
	Bus        *eventbus.Bus
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

func WithGraphiQL(enable bool) Option    { return func(o *Options) { o.GraphiQL = enable } }
func WithEndpoint(path string) Option    { return func(o *Options) { o.Endpoint = path } }
func WithRootValue(v any) Option         { return func(o *Options) { o.RootValue = v } }
func WithLogger(l *zap.Logger) Option    { return func(o *Options) { o.Logger = l } }
func WithEventBus(b *eventbus.Bus) Option { return func(o *Options) { o.Bus = b } }

// WithExtensions computes the extensions block of every executed response.
func WithExtensions(fn execution.ExtensionsFunc) Option {
	return func(o *Options) { o.Extensions = fn }
}

// WithFormatError replaces the default execution error formatter.
func WithFormatError(fn response.FormatFunc) Option {
	return func(o *Options) { o.FormatError = fn }
}

// New creates a GraphQL HTTP handler running queries on engine. Queries are
// validated against sch first; a nil sch only checks syntax.
func New(engine execution.Engine, sch *ast.Schema, opts ...Option) (*Handler, error) {
	if engine == nil {
		return nil, errors.New("server: engine is required")
	}
	op := Options{Timeout: 10 * time.Second, GraphiQL: true}
	for _, f := range opts {
		f(&op)
	}
	if op.Logger == nil {
		op.Logger = zap.NewNop()
	}
	coord := execution.NewCoordinator(engine,
		execution.WithRootValue(op.RootValue),
		execution.WithExtensions(op.Extensions),
		execution.WithLogger(op.Logger),
	)
	return &Handler{schema: sch, coord: coord, opt: op}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, body.FromHTTP(r))
}

func (h *Handler) serve(rw http.ResponseWriter, r *http.Request, br *body.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}

	ctx, rid := reqid.NewContext(ctx, r.Header.Get(reqid.Header))
	w := &statusWriter{ResponseWriter: rw}
	w.Header().Set(reqid.Header, rid)

	start := time.Now()
	eventbus.Publish(ctx, h.opt.Bus, events.HTTPStart{Request: r})
	defer func() {
		if rec := recover(); rec != nil {
			h.opt.Logger.Error("panic serving graphql request",
				zap.String("request_id", rid), zap.Any("panic", rec), zap.Stack("stack"))
			if !w.wrote {
				h.fail(w, errors.Errorf("internal server error"))
			}
		}
		eventbus.Publish(ctx, h.opt.Bus, events.HTTPFinish{Request: r, Status: w.Status(), Duration: time.Since(start)})
	}()

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodGet, http.MethodPost:
	default:
		w.Header().Set("Allow", "GET, POST")
		h.fail(w, gqlerrors.Errorf(http.StatusMethodNotAllowed, errMethodNotAllowed))
		return
	}

	params, err := h.params(ctx, r, br)
	if err != nil {
		h.fail(w, err)
		return
	}

	if h.opt.GraphiQL && graphiql.CanShow(r.Header, params) {
		h.renderGraphiQL(w, r, params)
		return
	}

	if params.Query == "" {
		h.fail(w, gqlerrors.Errorf(http.StatusBadRequest, errMissingQuery))
		return
	}

	doc, errs := language.LoadQuery(h.schema, params.Query)
	if len(errs) > 0 {
		h.fail(w, gqlerrors.FromList(http.StatusBadRequest, errs))
		return
	}

	opType := ""
	if op := language.SelectOperation(doc, params.OperationName); op != nil {
		opType = string(op.Operation)
		if r.Method == http.MethodGet && op.Operation != language.Query {
			w.Header().Set("Allow", "POST")
			h.fail(w, gqlerrors.Errorf(http.StatusMethodNotAllowed,
				"Can only perform a %s operation from a POST request.", op.Operation))
			return
		}
	}

	status, env := h.execute(ctx, doc, params, opType)
	response.Write(w, status, env, h.opt.Pretty)
}

// params resolves the body and overlays the URL query parameters on it.
func (h *Handler) params(ctx context.Context, r *http.Request, br *body.Request) (*body.Payload, error) {
	p, err := body.Resolve(br, body.WithMaxBytes(h.opt.MaxBodyBytes))
	eventbus.Publish(ctx, h.opt.Bus, events.BodyResolved{ContentType: contentTypeLabel(r.Header), Err: err})
	if err != nil {
		return nil, err
	}

	out := *p
	q := r.URL.Query()
	if q.Has("query") {
		out.Query = q.Get("query")
	}
	if q.Has("variables") {
		vars, err := body.ParseVariables(q.Get("variables"))
		if err != nil {
			return nil, err
		}
		out.Variables = vars
	}
	if q.Has("operationName") {
		out.OperationName = q.Get("operationName")
	}
	if q.Has("raw") {
		out.Raw = true
	}
	return &out, nil
}

func (h *Handler) execute(ctx context.Context, doc *ast.QueryDocument, p *body.Payload, opType string) (int, *response.Envelope) {
	start := time.Now()
	eventbus.Publish(ctx, h.opt.Bus, events.GraphQLStart{
		Query:         p.Query,
		OperationName: p.OperationName,
		OperationType: opType,
	})

	var (
		status int
		env    *response.Envelope
		errs   []error
	)
	res, err := h.coord.Execute(ctx, doc, p.Query, p.Variables, p.OperationName)
	if err != nil {
		status, env = response.NormalizeError(err)
		errs = []error{err}
	} else {
		status, env = response.NormalizeResult(http.StatusOK, h.opt.FormatError, res)
		errs = make([]error, len(res.Errors))
		for i, e := range res.Errors {
			errs[i] = e
		}
	}

	eventbus.Publish(ctx, h.opt.Bus, events.GraphQLFinish{
		Query:         p.Query,
		OperationName: p.OperationName,
		OperationType: opType,
		Status:        status,
		Errors:        errs,
		Duration:      time.Since(start),
	})
	return status, env
}

func (h *Handler) renderGraphiQL(w http.ResponseWriter, r *http.Request, p *body.Payload) {
	endpoint := h.opt.Endpoint
	if endpoint == "" {
		endpoint = r.URL.Path
	}
	err := graphiql.Render(w, graphiql.Page{
		Endpoint:      endpoint,
		Query:         p.Query,
		Variables:     p.Variables,
		OperationName: p.OperationName,
	})
	if err != nil {
		h.opt.Logger.Warn("render graphiql", zap.Error(err))
	}
}

// fail writes the envelope for err.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	status, env := response.NormalizeError(err)
	response.Write(w, status, env, h.opt.Pretty)
}

// contentTypeLabel reduces the request content type to a recognized media
// type, keeping event consumers such as metrics at bounded cardinality.
func contentTypeLabel(hdr http.Header) string {
	ct, err := body.ParseContentType(hdr.Get("Content-Type"))
	if err != nil || body.StrategyFor(ct.Type) == body.StrategyNone {
		return "other"
	}
	return ct.Type
}

// statusWriter remembers the status sent to the client.
type statusWriter struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wrote {
		w.status, w.wrote = code, true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wrote {
		w.status, w.wrote = http.StatusOK, true
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Status() int {
	if !w.wrote {
		return http.StatusOK
	}
	return w.status
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	for _, o := range opts.AllowedOrigins {
		if o == "*" || o == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}
	if contains(opts.AllowedOrigins, "*") {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
