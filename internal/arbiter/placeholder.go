package arbiter

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/sells-group/arbiter/internal/model"
)

// placeholders are strings sources emit in place of a missing value.
var placeholders = map[string]bool{
	"null":          true,
	"undefined":     true,
	"n/a":           true,
	"na":            true,
	"nan":           true,
	"unknown":       true,
	"not available": true,
	"not found":     true,
	"none":          true,
	"-":             true,
	"--":            true,
	"tbd":           true,
}

// IsPlaceholder reports whether v carries no usable data: null, the empty
// string, or one of the placeholder strings (case and surrounding whitespace
// ignored).
func IsPlaceholder(v model.Value) bool {
	if v.IsEmpty() {
		return true
	}
	s, ok := v.AsString()
	if !ok {
		return false
	}
	s = cases.Fold().String(strings.TrimSpace(s))
	return s == "" || placeholders[s]
}

// unwrap extracts the payload of a {value, source, confidence} wrapper that
// some sources return in place of a bare value.
func unwrap(v model.Value) model.Value {
	if inner, ok := v.Field("value"); ok {
		return inner
	}
	return v
}
