// Package codec encodes request bodies and decodes response bodies.
package codec

import (
	"mime"
	"strings"
)

const (
	ContentTypeJSON = "application/json"
	ContentTypeText = "text/plain; charset=utf-8"
)

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	ContentType() string
}

// ForContentType picks a codec from a Content-Type header value.
// Anything that is not JSON is treated as text.
func ForContentType(contentType string) Codec {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err == nil && (mediaType == ContentTypeJSON || strings.HasSuffix(mediaType, "+json")) {
		return &JSONCodec{}
	}
	return &TextCodec{}
}
