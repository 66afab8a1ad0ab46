package body

import (
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	gqlerrors "github.com/hanpama/gqlhttp/internal/gqlerrors"
)

const (
	errInvalidJSON      = "POST body sent invalid JSON."
	errInvalidForm      = "POST body sent invalid form data."
	errInvalidVariables = "Variables are invalid JSON."
)

func badRequest(format string, args ...any) error {
	return gqlerrors.Errorf(http.StatusBadRequest, format, args...)
}

func parseJSON(text string) (*Payload, error) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(text), &fields); err != nil || fields == nil {
		return nil, badRequest(errInvalidJSON)
	}
	return fromFields(fields)
}

func parseGraphQL(text string) (*Payload, error) {
	return &Payload{Query: text}, nil
}

func parseForm(text string) (*Payload, error) {
	values, err := url.ParseQuery(text)
	if err != nil {
		return nil, badRequest(errInvalidForm)
	}
	return fromValues(values)
}

func parseMultipart(text, boundary string, maxMemory int64) (*Payload, error) {
	if boundary == "" {
		return nil, badRequest("Invalid multipart body: missing boundary.")
	}
	form, err := multipart.NewReader(strings.NewReader(text), boundary).ReadForm(maxMemory)
	if err != nil {
		return nil, badRequest(errInvalidForm)
	}
	defer form.RemoveAll()
	return fromValues(url.Values(form.Value))
}

// fromValues maps form-style fields onto a Payload. Only the first value of a
// repeated field is used; the presence of raw sets Raw.
func fromValues(values url.Values) (*Payload, error) {
	p := &Payload{
		Query:         values.Get("query"),
		OperationName: values.Get("operationName"),
	}
	_, p.Raw = values["raw"]
	if v := values.Get("variables"); v != "" {
		vars, err := ParseVariables(v)
		if err != nil {
			return nil, err
		}
		p.Variables = vars
	}
	return p, nil
}

// fromFields maps a decoded JSON object onto a Payload.
func fromFields(fields map[string]any) (*Payload, error) {
	p := &Payload{Raw: rawFlag(fields["raw"])}
	var err error
	if p.Query, err = stringField(fields, "query"); err != nil {
		return nil, err
	}
	if p.OperationName, err = stringField(fields, "operationName"); err != nil {
		return nil, err
	}
	switch v := fields["variables"].(type) {
	case nil:
	case map[string]any:
		p.Variables = v
	case string:
		if v != "" {
			if p.Variables, err = ParseVariables(v); err != nil {
				return nil, err
			}
		}
	default:
		return nil, badRequest(errInvalidVariables)
	}
	return p, nil
}

func stringField(fields map[string]any, name string) (string, error) {
	switch v := fields[name].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", badRequest("Field %q must be a string, got %s.", name, jsonKind(v))
	}
}

func rawFlag(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	default:
		return true
	}
}

func jsonKind(v any) string {
	switch v.(type) {
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case float64:
		return "number"
	case bool:
		return "boolean"
	}
	return fmt.Sprintf("%T", v)
}

// ParseVariables decodes a JSON-encoded variables object as sent in a query
// string or form field.
func ParseVariables(text string) (map[string]any, error) {
	var vars map[string]any
	if err := json.Unmarshal([]byte(text), &vars); err != nil {
		return nil, badRequest(errInvalidVariables)
	}
	return vars, nil
}
