package codec

import (
	"fmt"
)

// TextCodec passes plain-text bodies through unchanged. The billing service
// answers in plain text.
type TextCodec struct{}

func (c *TextCodec) Encode(v any) ([]byte, error) {
	switch s := v.(type) {
	case string:
		return []byte(s), nil
	case []byte:
		return s, nil
	case fmt.Stringer:
		return []byte(s.String()), nil
	default:
		return nil, fmt.Errorf("TextCodec: cannot encode %T", v)
	}
}

func (c *TextCodec) Decode(data []byte, v any) error {
	switch dst := v.(type) {
	case *string:
		*dst = string(data)
	case *[]byte:
		*dst = append((*dst)[:0], data...)
	default:
		return fmt.Errorf("TextCodec: cannot decode into %T", v)
	}
	return nil
}

func (c *TextCodec) ContentType() string {
	return ContentTypeText
}
