package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/gqlerror"

	engine "github.com/hanpama/gqlhttp/internal/engine"
	eventbus "github.com/hanpama/gqlhttp/internal/eventbus"
	events "github.com/hanpama/gqlhttp/internal/events"
	execution "github.com/hanpama/gqlhttp/internal/execution"
	language "github.com/hanpama/gqlhttp/internal/language"
	reqid "github.com/hanpama/gqlhttp/internal/reqid"
)

const testSDL = `
schema { query: Query mutation: Mutation }
type Query { hello(name: String): String  broken: String! }
type Mutation { bump: Int }
`

func echoEngine(t *testing.T, captured **execution.Request) execution.EngineFunc {
	t.Helper()
	return func(ctx context.Context, req *execution.Request) (*execution.Result, error) {
		if captured != nil {
			*captured = req
		}
		return execution.NewResult(map[string]any{"hello": "world"})
	}
}

func newTestHandler(t *testing.T, eng execution.Engine, opts ...Option) *Handler {
	t.Helper()
	sch, err := language.LoadSchema("test.graphql", testSDL)
	require.NoError(t, err)
	h, err := New(eng, sch, opts...)
	require.NoError(t, err)
	return h
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func postJSON(payload string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestPostJSON(t *testing.T) {
	var got *execution.Request
	h := newTestHandler(t, echoEngine(t, &got))

	w := do(h, postJSON(`{"query":"query Q($n: String) { hello(name: $n) }","variables":{"n":"x"},"operationName":"Q"}`))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"data":{"hello":"world"}}`, w.Body.String())
	require.Equal(t, "Q", got.OperationName)
	require.Equal(t, map[string]any{"n": "x"}, got.Variables)
	require.NotNil(t, got.Document)
}

func TestGetQuery(t *testing.T) {
	h := newTestHandler(t, echoEngine(t, nil))
	w := do(h, httptest.NewRequest(http.MethodGet, "/graphql?query="+url.QueryEscape("{ hello }"), nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"data":{"hello":"world"}}`, w.Body.String())
}

func TestGetMutationNotAllowed(t *testing.T) {
	h := newTestHandler(t, echoEngine(t, nil))
	w := do(h, httptest.NewRequest(http.MethodGet, "/graphql?query="+url.QueryEscape("mutation { bump }"), nil))
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
	require.Equal(t, "POST", w.Header().Get("Allow"))
	require.JSONEq(t, `{"errors":[{"message":"Can only perform a mutation operation from a POST request."}]}`, w.Body.String())

	w = do(h, postJSON(`{"query":"mutation { bump }"}`))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestUnsupportedMethod(t *testing.T) {
	h := newTestHandler(t, echoEngine(t, nil))
	w := do(h, httptest.NewRequest(http.MethodPut, "/graphql", nil))
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
	require.Equal(t, "GET, POST", w.Header().Get("Allow"))
	require.JSONEq(t, `{"errors":[{"message":"GraphQL only supports GET and POST requests."}]}`, w.Body.String())
}

func TestMissingQuery(t *testing.T) {
	h := newTestHandler(t, echoEngine(t, nil), WithGraphiQL(false))
	w := do(h, postJSON(`{}`))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.JSONEq(t, `{"errors":[{"message":"Must provide query string."}]}`, w.Body.String())
}

func TestSyntaxError(t *testing.T) {
	h := newTestHandler(t, echoEngine(t, nil))
	w := do(h, postJSON(`{"query":"{ hello"}`))
	require.Equal(t, http.StatusBadRequest, w.Code)

	var env struct {
		Data   json.RawMessage `json:"data"`
		Errors []gqlerror.Error
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.Nil(t, env.Data)
	require.Len(t, env.Errors, 1)
	require.NotEmpty(t, env.Errors[0].Locations)
}

func TestValidationError(t *testing.T) {
	called := false
	h := newTestHandler(t, execution.EngineFunc(func(context.Context, *execution.Request) (*execution.Result, error) {
		called = true
		return nil, nil
	}))
	w := do(h, postJSON(`{"query":"{ nope }"}`))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "nope")
	require.False(t, called)
}

func TestNullDataIs500(t *testing.T) {
	h := newTestHandler(t, execution.EngineFunc(func(context.Context, *execution.Request) (*execution.Result, error) {
		return execution.NewResult(nil, gqlerror.Errorf("broken"))
	}))
	w := do(h, postJSON(`{"query":"{ broken }"}`))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.JSONEq(t, `{"data":null,"errors":[{"message":"broken"}]}`, w.Body.String())
}

func TestEngineFailureIs400(t *testing.T) {
	h := newTestHandler(t, execution.EngineFunc(func(context.Context, *execution.Request) (*execution.Result, error) {
		panic("engine exploded")
	}))
	w := do(h, postJSON(`{"query":"{ hello }"}`))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.JSONEq(t, `{"errors":[{"message":"engine exploded"}]}`, w.Body.String())
}

func TestFormatErrorAndExtensions(t *testing.T) {
	h := newTestHandler(t,
		execution.EngineFunc(func(context.Context, *execution.Request) (*execution.Result, error) {
			return execution.NewResult(map[string]any{"hello": nil}, gqlerror.Errorf("nope"))
		}),
		WithFormatError(func(err *gqlerror.Error) any { return map[string]any{"msg": err.Message} }),
		WithExtensions(func(_ context.Context, ec execution.ExtensionContext) (map[string]any, error) {
			return map[string]any{"errors": len(ec.Result.Errors)}, nil
		}),
	)
	w := do(h, postJSON(`{"query":"{ hello }"}`))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"data":{"hello":null},"errors":[{"msg":"nope"}],"extensions":{"errors":1}}`, w.Body.String())
}

func TestHandlerPanicIs500(t *testing.T) {
	bus := eventbus.New()
	var finished events.HTTPFinish
	eventbus.Subscribe(bus, func(_ context.Context, e events.HTTPFinish) { finished = e })

	h := newTestHandler(t,
		execution.EngineFunc(func(context.Context, *execution.Request) (*execution.Result, error) {
			return execution.NewResult(map[string]any{"hello": nil}, gqlerror.Errorf("nope"))
		}),
		WithFormatError(func(*gqlerror.Error) any { panic("formatter bug") }),
		WithEventBus(bus),
	)
	w := do(h, postJSON(`{"query":"{ hello }"}`))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.JSONEq(t, `{"errors":[{"message":"internal server error"}]}`, w.Body.String())
	require.Equal(t, http.StatusInternalServerError, finished.Status)
}

func TestURLParamsOverrideBody(t *testing.T) {
	var got *execution.Request
	h := newTestHandler(t, echoEngine(t, &got))
	target := "/graphql?operationName=B&variables=" + url.QueryEscape(`{"n":"url"}`)
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(
		`{"query":"query A { hello } query B($n: String) { hello(name: $n) }","operationName":"A","variables":{"n":"body"}}`))
	req.Header.Set("Content-Type", "application/json")

	w := do(h, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "B", got.OperationName)
	require.Equal(t, map[string]any{"n": "url"}, got.Variables)
}

func TestURLVariablesInvalid(t *testing.T) {
	h := newTestHandler(t, echoEngine(t, nil))
	w := do(h, httptest.NewRequest(http.MethodGet, "/graphql?query=%7Bhello%7D&variables=%7Bbad", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.JSONEq(t, `{"errors":[{"message":"Variables are invalid JSON."}]}`, w.Body.String())
}

func TestBodyErrors(t *testing.T) {
	h := newTestHandler(t, echoEngine(t, nil), WithMaxBodyBytes(10))

	w := do(h, postJSON(`{"query":"1234567890"}`))
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = do(h, postJSON(`[1]`))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.JSONEq(t, `{"errors":[{"message":"POST body sent invalid JSON."}]}`, w.Body.String())

	req := postJSON(`{}`)
	req.Header.Set("Content-Type", "application/json; charset=klingon")
	w = do(h, req)
	require.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestGraphQLContentType(t *testing.T) {
	h := newTestHandler(t, echoEngine(t, nil))
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{ hello }`))
	req.Header.Set("Content-Type", "application/graphql")
	w := do(h, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestGraphiQL(t *testing.T) {
	called := false
	h := newTestHandler(t, execution.EngineFunc(func(context.Context, *execution.Request) (*execution.Result, error) {
		called = true
		return execution.NewResult(map[string]any{})
	}), WithEndpoint("/api/graphql"))

	req := httptest.NewRequest(http.MethodGet, "/graphql?query="+url.QueryEscape("{ hello }"), nil)
	req.Header.Set("Accept", "text/html")
	w := do(h, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	require.Contains(t, w.Body.String(), "/api/graphql")
	require.False(t, called)

	req = httptest.NewRequest(http.MethodGet, "/graphql?raw&query="+url.QueryEscape("{ hello }"), nil)
	req.Header.Set("Accept", "text/html")
	w = do(h, req)
	require.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	require.True(t, called)
}

func TestGraphiQLDisabled(t *testing.T) {
	h := newTestHandler(t, echoEngine(t, nil), WithGraphiQL(false))
	req := httptest.NewRequest(http.MethodGet, "/graphql", nil)
	req.Header.Set("Accept", "text/html")
	w := do(h, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCORSAndPreflight(t *testing.T) {
	h := newTestHandler(t, echoEngine(t, nil), WithCORS("*"))

	// simple request
	req := postJSON(`{"query":"{ hello }"}`)
	req.Header.Set("Origin", "http://example.com")
	w := do(h, req)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	// preflight
	pre := httptest.NewRequest(http.MethodOptions, "/", nil)
	pre.Header.Set("Origin", "http://example.com")
	pre.Header.Set("Access-Control-Request-Headers", "X-Test")
	pw := do(h, pre)
	require.Equal(t, http.StatusNoContent, pw.Code)
	require.Equal(t, "*", pw.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "X-Test", pw.Header().Get("Access-Control-Allow-Headers"))
}

func TestCORSSpecificOrigin(t *testing.T) {
	h := newTestHandler(t, echoEngine(t, nil), WithCORS("https://a.example"))

	req := postJSON(`{"query":"{ hello }"}`)
	req.Header.Set("Origin", "https://a.example")
	w := do(h, req)
	require.Equal(t, "https://a.example", w.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "Origin", w.Header().Get("Vary"))

	req = postJSON(`{"query":"{ hello }"}`)
	req.Header.Set("Origin", "https://b.example")
	w = do(h, req)
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestID(t *testing.T) {
	var seen string
	h := newTestHandler(t, execution.EngineFunc(func(ctx context.Context, _ *execution.Request) (*execution.Result, error) {
		seen, _ = reqid.FromContext(ctx)
		return execution.NewResult(map[string]any{"hello": "world"})
	}))

	req := postJSON(`{"query":"{ hello }"}`)
	req.Header.Set(reqid.Header, "client-id-1")
	w := do(h, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "client-id-1", seen)
	require.Equal(t, "client-id-1", w.Header().Get(reqid.Header))

	w = do(h, postJSON(`{"query":"{ hello }"}`))
	require.NotEmpty(t, w.Header().Get(reqid.Header))
	require.Equal(t, seen, w.Header().Get(reqid.Header))
}

func TestEvents(t *testing.T) {
	bus := eventbus.New()
	var got []string
	eventbus.Subscribe(bus, func(context.Context, events.HTTPStart) { got = append(got, "http.start") })
	eventbus.Subscribe(bus, func(_ context.Context, e events.BodyResolved) { got = append(got, "body:"+e.ContentType) })
	eventbus.Subscribe(bus, func(_ context.Context, e events.GraphQLStart) { got = append(got, "gql.start:"+e.OperationType) })
	eventbus.Subscribe(bus, func(_ context.Context, e events.GraphQLFinish) {
		got = append(got, "gql.finish")
		require.Equal(t, http.StatusOK, e.Status)
	})
	eventbus.Subscribe(bus, func(_ context.Context, e events.HTTPFinish) {
		got = append(got, "http.finish")
		require.Equal(t, http.StatusOK, e.Status)
	})

	h := newTestHandler(t, echoEngine(t, nil), WithEventBus(bus))
	do(h, postJSON(`{"query":"{ hello }"}`))

	want := []string{"http.start", "body:application/json", "gql.start:query", "gql.finish", "http.finish"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestGophersEngine(t *testing.T) {
	g, err := engine.NewGophers(`type Query { hello: String! }`, &helloResolver{})
	require.NoError(t, err)
	h, err := New(g, g.Schema())
	require.NoError(t, err)

	w := do(h, postJSON(`{"query":"{ hello }"}`))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"data":{"hello":"world"}}`, w.Body.String())
}

type helloResolver struct{ calls int }

func (r *helloResolver) Hello() string {
	r.calls++
	return "world"
}

func TestGinAdapter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newTestHandler(t, echoEngine(t, nil))

	router := gin.New()
	router.POST("/graphql", func(c *gin.Context) {
		var peek map[string]any
		if err := c.ShouldBindBodyWith(&peek, binding.JSON); err != nil {
			c.AbortWithError(http.StatusBadRequest, err)
			return
		}
		c.Next()
	}, Gin(h))
	router.GET("/graphql", Gin(h))

	w := do(router, postJSON(`{"query":"{ hello }"}`))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"data":{"hello":"world"}}`, w.Body.String())

	w = do(router, httptest.NewRequest(http.MethodGet, "/graphql?query=%7Bhello%7D", bytes.NewReader(nil)))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestNewRequiresEngine(t *testing.T) {
	_, err := New(nil, nil)
	require.ErrorContains(t, err, "engine is required")
}
