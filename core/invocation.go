package core

import (
	"fmt"
	"sort"
	"strings"
)

// Invocation is a single decoded request to run a named action. It is
// produced identically regardless of which generator backend decoded it.
type Invocation struct {
	Action     string            `json:"action"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Payload    *string           `json:"payload,omitempty"`
}

// NewInvocation creates an Invocation. An empty attribute map is stored as nil.
func NewInvocation(action string, attributes map[string]string, payload *string) Invocation {
	if len(attributes) == 0 {
		attributes = nil
	}
	return Invocation{Action: action, Attributes: attributes, Payload: payload}
}

// PayloadString returns the payload or "" when absent.
func (i Invocation) PayloadString() string {
	if i.Payload == nil {
		return ""
	}
	return *i.Payload
}

// String renders the invocation for logs with attributes in key order.
func (i Invocation) String() string {
	var b strings.Builder
	b.WriteString(i.Action)
	if len(i.Attributes) > 0 {
		keys := make([]string, 0, len(i.Attributes))
		for k := range i.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("(")
		for n, k := range keys {
			if n > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%q", k, i.Attributes[k])
		}
		b.WriteString(")")
	}
	if i.Payload != nil {
		fmt.Fprintf(&b, " %q", *i.Payload)
	}
	return b.String()
}

// String returns a pointer to s. Used for optional fields.
func String(s string) *string { return &s }

// ActionOutput is the textual or visual result of an action. Concrete output
// types implement the unexported isActionOutput marker enabling a closed set.
type ActionOutput interface {
	isActionOutput()
	String() string
}

// TextOutput is a plain text result.
type TextOutput struct {
	Text string `json:"text"`
}

func (TextOutput) isActionOutput() {}

// String returns the text.
func (o TextOutput) String() string { return o.Text }

// ImageOutput is an image result. Data is either an http(s) URL or base64
// encoded bytes.
type ImageOutput struct {
	Data     string `json:"data"`
	MimeType string `json:"mime_type"`
}

func (ImageOutput) isActionOutput() {}

// String renders the image for logs and events.
func (o ImageOutput) String() string { return fmt.Sprintf("image: %s (%s)", o.Data, o.MimeType) }

// IsURL reports whether Data already references a remote image.
func (o ImageOutput) IsURL() bool {
	return strings.HasPrefix(o.Data, "http://") || strings.HasPrefix(o.Data, "https://")
}

// URL returns Data verbatim when it is an http(s) URL and a data URI otherwise.
func (o ImageOutput) URL() string {
	if o.IsURL() {
		return o.Data
	}
	return fmt.Sprintf("data:%s;base64,%s", o.MimeType, o.Data)
}

// NewTextOutput wraps text as an ActionOutput.
func NewTextOutput(text string) ActionOutput { return TextOutput{Text: text} }

// NewImageOutput wraps image data as an ActionOutput.
func NewImageOutput(data, mimeType string) ActionOutput {
	return ImageOutput{Data: data, MimeType: mimeType}
}
