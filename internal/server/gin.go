package server

import (
	"bytes"

	"github.com/gin-gonic/gin"

	body "github.com/hanpama/gqlhttp/internal/body"
)

// Gin mounts h on a gin router. A body that gin already consumed through
// ShouldBindBodyWith is replayed from its cached copy.
func Gin(h *Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		br := body.FromHTTP(c.Request)
		if v, ok := c.Get(gin.BodyBytesKey); ok {
			if raw, ok := v.([]byte); ok {
				br.Stream = bytes.NewReader(raw)
			}
		}
		h.serve(c.Writer, c.Request, br)
	}
}
