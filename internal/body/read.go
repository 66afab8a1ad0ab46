package body

import (
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"golang.org/x/text/encoding/htmlindex"

	gqlerrors "github.com/hanpama/gqlhttp/internal/gqlerrors"
)

const errTooLargeMessage = "Invalid body: request entity too large."

// readText reads the whole stream, undoing any Content-Encoding, and decodes
// it from charset into a Go string.
func readText(r *Request, charset string, maxBytes int64) (string, error) {
	if r.Stream == nil {
		return decode(nil, charset)
	}
	stream, closer, err := decompress(r.Stream, r.Header.Get("Content-Encoding"))
	if err != nil {
		return "", err
	}
	if closer != nil {
		defer closer.Close()
	}

	reader := stream
	if maxBytes > 0 {
		reader = io.LimitReader(stream, maxBytes+1)
	}
	raw, err := io.ReadAll(reader)
	if err != nil {
		return "", gqlerrors.Errorf(http.StatusBadRequest, "Invalid body: %s.", err)
	}
	if maxBytes > 0 && int64(len(raw)) > maxBytes {
		return "", gqlerrors.Errorf(http.StatusRequestEntityTooLarge, errTooLargeMessage)
	}
	return decode(raw, charset)
}

// decompress wraps stream according to a Content-Encoding value. The returned
// closer is non-nil when a decompressor was created.
func decompress(stream io.Reader, encoding string) (io.Reader, io.Closer, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return stream, nil, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(stream)
		if err != nil {
			return nil, nil, gqlerrors.Errorf(http.StatusBadRequest, "Invalid body: %s.", err)
		}
		return zr, zr, nil
	case "deflate":
		zr, err := zlib.NewReader(stream)
		if err != nil {
			return nil, nil, gqlerrors.Errorf(http.StatusBadRequest, "Invalid body: %s.", err)
		}
		return zr, zr, nil
	default:
		return nil, nil, gqlerrors.Errorf(http.StatusUnsupportedMediaType, "Unsupported content-encoding %q.", encoding)
	}
}

func decode(raw []byte, charset string) (string, error) {
	switch charset {
	case "utf-8", "utf8":
		return string(raw), nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return "", gqlerrors.Errorf(http.StatusUnsupportedMediaType, "Unsupported charset %q.", strings.ToUpper(charset))
	}
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", gqlerrors.Errorf(http.StatusBadRequest, "Invalid body: %s.", err)
	}
	return string(out), nil
}
