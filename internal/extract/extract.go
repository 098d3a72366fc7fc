// Package extract pulls typed JSON values out of free-form model output.
package extract

import (
	"encoding/json"
	"strings"
)

// Object decodes the outermost {...} substring of text into v. It reports
// false when no object is present or decoding fails; v may be partially
// written in that case and should be discarded.
func Object(text string, v any) bool {
	return decodeBetween(text, '{', '}', v)
}

// Array decodes the outermost [...] substring of text into v.
func Array(text string, v any) bool {
	return decodeBetween(text, '[', ']', v)
}

func decodeBetween(text string, open, close byte, v any) bool {
	start := strings.IndexByte(text, open)
	end := strings.LastIndexByte(text, close)
	if start < 0 || end <= start {
		return false
	}
	return json.Unmarshal([]byte(text[start:end+1]), v) == nil
}
