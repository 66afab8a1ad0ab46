// Package body extracts a GraphQL payload from an HTTP request body.
//
// The parsing strategy is chosen from the declared Content-Type:
//
//	application/json                   JSON object with query/variables/operationName
//	application/x-www-form-urlencoded  form fields of the same names
//	application/graphql                the whole body is the query text
//	multipart/form-data                form fields of the same names
//
// Any other media type yields an empty payload. A body that is present but
// cannot be parsed by the selected strategy is an error, never a guess.
package body

import (
	"io"
	"net/http"
)

// Request is the framework-neutral view of an incoming request.
type Request struct {
	Header http.Header

	// Parsed is a body some framework already decoded: nil, a
	// map[string]any, a Payload or *Payload, a string, or []byte. []byte is
	// treated as unparsed binary.
	Parsed any

	// Stream is read only when the body has not been parsed yet.
	Stream io.Reader
}

// FromHTTP wraps a net/http request.
func FromHTTP(r *http.Request) *Request {
	return &Request{Header: r.Header, Stream: r.Body}
}

// Payload is the GraphQL request carried by a body. The zero value is the
// empty payload.
type Payload struct {
	Query         string         `json:"query,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
	Raw           bool           `json:"raw,omitempty"`
}

type options struct {
	maxBytes        int64
	multipartMemory int64
}

// Option configures Resolve.
type Option func(*options)

// WithMaxBytes caps the number of body bytes read. 0 means unlimited.
func WithMaxBytes(n int64) Option { return func(o *options) { o.maxBytes = n } }

// WithMultipartMemory sets how many bytes of a multipart body are kept in
// memory before file parts spill to disk.
func WithMultipartMemory(n int64) Option { return func(o *options) { o.multipartMemory = n } }

// Resolve returns the payload carried by r.
func Resolve(r *Request, opts ...Option) (*Payload, error) {
	o := options{multipartMemory: 32 << 20}
	for _, f := range opts {
		f(&o)
	}
	// A structured body from the framework wins.
	switch v := r.Parsed.(type) {
	case map[string]any:
		return fromFields(v)
	case Payload:
		return &v, nil
	case *Payload:
		if v != nil {
			return v, nil
		}
	}

	if len(r.Header.Values("Content-Type")) == 0 {
		return &Payload{}, nil
	}
	ct, err := ParseContentType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, badRequest("Invalid Content-Type header: %s.", err)
	}
	strategy := StrategyFor(ct.Type)

	if s, ok := r.Parsed.(string); ok && strategy == StrategyGraphQL {
		return parseGraphQL(s)
	}
	if present(r.Parsed) || strategy == StrategyNone {
		return &Payload{}, nil
	}

	text, err := readText(r, ct.Charset(), o.maxBytes)
	if err != nil {
		return nil, err
	}
	return parse(strategy, ct, text, o)
}

// present reports whether a pre-parsed body holds anything. Empty strings and
// byte slices count as absent.
func present(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case []byte:
		return len(t) > 0
	}
	return true
}

func parse(s Strategy, ct ContentType, text string, o options) (*Payload, error) {
	switch s {
	case StrategyJSON:
		return parseJSON(text)
	case StrategyForm:
		return parseForm(text)
	case StrategyGraphQL:
		return parseGraphQL(text)
	case StrategyMultipart:
		return parseMultipart(text, ct.Params["boundary"], o.multipartMemory)
	}
	return &Payload{}, nil
}
