// Package language wraps gqlparser for the parts of the pipeline that need a
// GraphQL document: loading the schema and parsing plus validating queries.
package language

import (
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/parser"
)

type (
	QueryDocument       = ast.QueryDocument
	Schema              = ast.Schema
	OperationDefinition = ast.OperationDefinition
	Operation           = ast.Operation
	Error               = gqlerror.Error
	ErrorList           = gqlerror.List
)

const (
	Query        Operation = ast.Query
	Mutation     Operation = ast.Mutation
	Subscription Operation = ast.Subscription
)

// ParseQuery checks syntax only.
func ParseQuery(source string) (*QueryDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// LoadSchema builds a schema from SDL, adding the built-in types.
func LoadSchema(name, sdl string) (*Schema, error) {
	sch, err := gqlparser.LoadSchema(&ast.Source{Name: name, Input: sdl})
	if err != nil {
		return nil, err
	}
	return sch, nil
}

// LoadQuery parses source and validates it against sch. Without a schema
// only syntax is checked.
func LoadQuery(sch *Schema, source string) (*QueryDocument, ErrorList) {
	if sch == nil {
		doc, err := ParseQuery(source)
		if err != nil {
			return nil, ErrorList{asError(err)}
		}
		return doc, nil
	}
	doc, errs := gqlparser.LoadQuery(sch, source)
	if len(errs) > 0 {
		return nil, errs
	}
	return doc, nil
}

// SelectOperation picks the operation to run: the one named, or the only one
// when no name is given.
func SelectOperation(doc *QueryDocument, name string) *OperationDefinition {
	if doc == nil {
		return nil
	}
	if op := doc.Operations.ForName(name); op != nil {
		return op
	}
	if name == "" && len(doc.Operations) == 1 {
		return doc.Operations[0]
	}
	return nil
}

func asError(err error) *Error {
	if ge, ok := err.(*Error); ok {
		return ge
	}
	return gqlerror.Wrap(err)
}
