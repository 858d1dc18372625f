// Package jsonx extracts structured values from raw model output.
//
// Model responses frequently wrap JSON in code fences or surround it with
// prose. Callers must never trust the response as-is: First locates the
// first balanced JSON value, and Decode validates it against the expected
// shape before anything downstream sees it.
package jsonx

import (
	"encoding/json"
	"fmt"
	"strings"

	kberrors "github.com/docdraft/docdraft/errors"
)

// First returns the first balanced JSON object or array found in raw.
// It returns ErrMalformedOutput when no balanced value exists.
func First(raw string) (string, error) {
	clean := stripFences(raw)

	start := -1
	var open, close byte
	for i := 0; i < len(clean); i++ {
		switch clean[i] {
		case '{':
			start, open, close = i, '{', '}'
		case '[':
			start, open, close = i, '[', ']'
		}
		if start >= 0 {
			break
		}
	}
	if start < 0 {
		return "", fmt.Errorf("no JSON value in model output: %w", kberrors.ErrMalformedOutput)
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(clean); i++ {
		c := clean[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return clean[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced JSON in model output: %w", kberrors.ErrMalformedOutput)
}

// Decode extracts the first balanced JSON value from raw and unmarshals it
// into T. The zero-value check is the caller's business; Decode only
// guarantees syntactic validity.
func Decode[T any](raw string) (*T, error) {
	fragment, err := First(raw)
	if err != nil {
		return nil, err
	}
	var out T
	if err := json.Unmarshal([]byte(fragment), &out); err != nil {
		return nil, fmt.Errorf("decode JSON: %v: %w", err, kberrors.ErrMalformedOutput)
	}
	return &out, nil
}

func stripFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = trimmed[3:]
		trimmed = strings.TrimPrefix(trimmed, "json")
		trimmed = strings.TrimPrefix(trimmed, "JSON")
		if idx := strings.Index(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
	}
	return strings.TrimSpace(trimmed)
}
