// Package graphiql decides when a request should get the in-browser IDE and
// renders it.
package graphiql

import (
	"encoding/json"
	"html/template"
	"net/http"

	"github.com/munnerz/goautoneg"

	body "github.com/hanpama/gqlhttp/internal/body"
)

// Offered response representations, in preference order.
var offers = []string{"application/json", "text/html"}

// CanShow reports whether the IDE may be served instead of JSON: the client
// did not ask for raw mode and its Accept header prefers HTML over JSON.
func CanShow(h http.Header, p *body.Payload) bool {
	if p != nil && p.Raw {
		return false
	}
	return goautoneg.Negotiate(h.Get("Accept"), offers) == "text/html"
}

// Page holds the values prefilled into the IDE.
type Page struct {
	Endpoint      string
	Query         string
	Variables     map[string]any
	OperationName string
}

// Render writes the IDE page.
func Render(w http.ResponseWriter, p Page) error {
	vars := ""
	if len(p.Variables) > 0 {
		b, err := json.MarshalIndent(p.Variables, "", "  ")
		if err != nil {
			return err
		}
		vars = string(b)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	return pageTemplate.Execute(w, map[string]any{
		"Endpoint":      p.Endpoint,
		"Query":         p.Query,
		"Variables":     vars,
		"OperationName": p.OperationName,
	})
}

var pageTemplate = template.Must(template.New("graphiql").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8" />
  <title>GraphiQL</title>
  <style>body { height: 100vh; margin: 0; overflow: hidden; } #graphiql { height: 100vh; }</style>
  <link rel="stylesheet" href="https://unpkg.com/graphiql@3/graphiql.min.css" />
  <script crossorigin src="https://unpkg.com/react@18/umd/react.production.min.js"></script>
  <script crossorigin src="https://unpkg.com/react-dom@18/umd/react-dom.production.min.js"></script>
  <script crossorigin src="https://unpkg.com/graphiql@3/graphiql.min.js"></script>
</head>
<body>
  <div id="graphiql">Loading...</div>
  <script>
    var endpoint = {{.Endpoint}};
    var fetcher = GraphiQL.createFetcher({ url: endpoint });
    ReactDOM.createRoot(document.getElementById('graphiql')).render(
      React.createElement(GraphiQL, {
        fetcher: fetcher,
        defaultQuery: {{.Query}},
        variables: {{.Variables}},
        operationName: {{.OperationName}},
      })
    );
  </script>
</body>
</html>
`))
