package page

import (
	"fmt"
	"html"
)

// Encoder turns an expression result into output text.
type Encoder interface {
	Encode(v any) string
}

// TextEncoder writes values with fmt formatting and no escaping.
type TextEncoder struct{}

func (TextEncoder) Encode(v any) string {
	return fmt.Sprint(v)
}

// HTMLEncoder escapes values for HTML unless they are already HTML.
type HTMLEncoder struct{}

func (HTMLEncoder) Encode(v any) string {
	switch v := v.(type) {
	case HTML:
		return string(v)
	case string:
		return html.EscapeString(v)
	default:
		return html.EscapeString(fmt.Sprint(v))
	}
}
