package models

import (
	"fmt"
	"strings"
)

// OutputFormat selects which representation(s) a conversion returns.
type OutputFormat string

const (
	OutputMarkdown OutputFormat = "markdown"
	OutputJSON     OutputFormat = "json"
	OutputAll      OutputFormat = "all"
)

// ParseOutputFormat parses a query value. Empty input defaults to markdown.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", OutputMarkdown:
		return OutputMarkdown, nil
	case OutputJSON:
		return OutputJSON, nil
	case OutputAll:
		return OutputAll, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (expected markdown, json or all)", s)
	}
}

// WantsMarkdown reports whether the markdown representation is requested.
func (f OutputFormat) WantsMarkdown() bool {
	return f == OutputMarkdown || f == OutputAll
}

// WantsJSON reports whether the structured representation is requested.
func (f OutputFormat) WantsJSON() bool {
	return f == OutputJSON || f == OutputAll
}

// ConversionRequest asks for a source (URL or local path) to be converted.
type ConversionRequest struct {
	Source       string       `json:"source"`
	OutputFormat OutputFormat `json:"outputFormat"`
}

// ConversionResult is the response body of a successful conversion.
// Only the requested representations are populated. Structured holds a map[string]any; it is
// typed as an interface so an empty record is still emitted when it was requested.
type ConversionResult struct {
	Markdown   *string `json:"markdown,omitempty" msgpack:"markdown,omitempty"`
	Structured any     `json:"json,omitempty" msgpack:"json,omitempty"`
}
