// Package manifest parses web app manifest JSON into a typed field tree.
//
// Parsing is tolerant by design: a malformed document or a malformed member is
// reported as a diagnostic on the value it would have produced, never as an
// error or a panic. Callers can therefore always see exactly which members
// were usable, even when the document as a whole was garbage.
package manifest

import (
	"net/url"
)

// FieldValue wraps one manifest member together with its validation outcome.
// Value is nil whenever the member is absent, has the wrong type, or fails
// member-specific validation; DebugString then explains why. Raw preserves the
// original JSON value (nil when the member was absent).
type FieldValue[T any] struct {
	Raw         any    `json:"raw,omitempty"`
	Value       *T     `json:"value,omitempty"`
	DebugString string `json:"debug_string,omitempty"`
}

// Present reports whether the member carried a usable value.
func (f FieldValue[T]) Present() bool {
	return f.Value != nil
}

// Icon describes one entry of the manifest icons member. Src is resolved
// against the manifest URL; Sizes holds the raw "WxH" tokens of the sizes
// attribute; Type is the declared MIME type, empty when absent.
type Icon struct {
	Src   *url.URL `json:"src"`
	Sizes []string `json:"sizes,omitempty"`
	Type  string   `json:"type,omitempty"`
}

// Fields holds the parsed manifest members relevant to install eligibility.
// Each member is independently present or absent; one bad member never
// invalidates its siblings.
type Fields struct {
	StartURL  FieldValue[url.URL] `json:"start_url"`
	ShortName FieldValue[string]  `json:"short_name"`
	Name      FieldValue[string]  `json:"name"`
	Icons     FieldValue[[]Icon]  `json:"icons"`
}

// Manifest is the outcome of one Parse call. Value is nil iff the raw text
// did not parse to a JSON object (syntax error, top-level array or primitive);
// DebugString then states the parse failure. A document that parses to an
// object always yields a Fields record, even "{}" with every member absent.
type Manifest struct {
	Raw         string  `json:"raw"`
	Value       *Fields `json:"value,omitempty"`
	DebugString string  `json:"debug_string,omitempty"`
}
