package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedContent marks stored or received text that is not a document.
var ErrMalformedContent = errors.New("malformed content")

// Serialize encodes d as indented JSON. ok is false when d is nil or holds a
// block that is not valid JSON; callers treat that as "nothing to save".
func Serialize(d Document) (content string, ok bool) {
	if d == nil {
		return "", false
	}
	for _, b := range d {
		if !json.Valid(b) {
			return "", false
		}
	}

	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", false
	}
	return string(data), true
}

// Deserialize parses text produced by Serialize. Any failure is reported as
// an error wrapping ErrMalformedContent.
func Deserialize(text string) (Document, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty input", ErrMalformedContent)
	}
	if !strings.HasPrefix(trimmed, "[") {
		return nil, fmt.Errorf("%w: top level is not an array", ErrMalformedContent)
	}

	var d Document
	if err := json.Unmarshal([]byte(trimmed), &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedContent, err)
	}
	if d == nil {
		d = Document{}
	}
	return d, nil
}
