package body

import (
	"mime"
	"strings"
)

// ContentType is a parsed Content-Type header.
type ContentType struct {
	// Type is the lower-cased media type without parameters.
	Type string
	// Params holds the header parameters keyed by lower-cased name.
	Params map[string]string
}

// Charset returns the lower-cased charset parameter, or utf-8.
func (ct ContentType) Charset() string {
	if cs := strings.TrimSpace(ct.Params["charset"]); cs != "" {
		return strings.ToLower(cs)
	}
	return "utf-8"
}

// ParseContentType parses a Content-Type header value.
func ParseContentType(v string) (ContentType, error) {
	typ, params, err := mime.ParseMediaType(v)
	if err != nil {
		return ContentType{}, err
	}
	if params == nil {
		params = map[string]string{}
	}
	return ContentType{Type: strings.ToLower(typ), Params: params}, nil
}

// Strategy identifies how a decoded body is turned into a Payload.
type Strategy int

const (
	// StrategyNone means the media type is not one we parse.
	StrategyNone Strategy = iota
	StrategyJSON
	StrategyForm
	StrategyGraphQL
	StrategyMultipart
)

var strategyNames = [...]string{
	StrategyNone:      "none",
	StrategyJSON:      "json",
	StrategyForm:      "form",
	StrategyGraphQL:   "graphql",
	StrategyMultipart: "multipart",
}

func (s Strategy) String() string {
	if s < 0 || int(s) >= len(strategyNames) {
		return "unknown"
	}
	return strategyNames[s]
}

var strategies = map[string]Strategy{
	"application/json":                  StrategyJSON,
	"application/x-www-form-urlencoded": StrategyForm,
	"application/graphql":               StrategyGraphQL,
	"multipart/form-data":               StrategyMultipart,
}

// StrategyFor selects the parsing strategy for a media type. Parameters must
// already be stripped; matching ignores case.
func StrategyFor(mediaType string) Strategy {
	return strategies[strings.ToLower(mediaType)]
}
