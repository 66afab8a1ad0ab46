// Package reqid carries a per-request identifier through the context.
package reqid

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Header is the HTTP header a client may use to supply its own id.
const Header = "X-Request-Id"

const maxLen = 128

// key is the context key for the request ID.
type key struct{}

type ids struct {
	id    string // echoed to the client, may come from it
	local string // always generated here
}

// NewContext returns a copy of parent carrying a request id. A usable
// incoming id is kept; otherwise a random UUID is generated.
func NewContext(parent context.Context, incoming string) (context.Context, string) {
	local := uuid.NewString()
	id := strings.TrimSpace(incoming)
	if id == "" || len(id) > maxLen || strings.ContainsAny(id, "\r\n") {
		id = local
	}
	return context.WithValue(parent, key{}, ids{id: id, local: local}), id
}

// FromContext extracts the request ID from ctx.
func FromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(key{}).(ids)
	return v.id, ok
}

// LocalFromContext returns an id generated by NewContext for this request
// alone. Unlike the request ID it cannot be chosen by the client, so it is
// safe as a key for per-request state.
func LocalFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(key{}).(ids)
	return v.local, ok
}
