// Package jsonx is the single place the worker picks its JSON implementation.
package jsonx

import "github.com/goccy/go-json"

var (
	Marshal       = json.Marshal
	MarshalIndent = json.MarshalIndent
	Unmarshal     = json.Unmarshal
	NewDecoder    = json.NewDecoder
	NewEncoder    = json.NewEncoder
	Valid         = json.Valid
)

type RawMessage = json.RawMessage

// MarshalIndentLine marshals v as two-space indented JSON with a trailing newline.
func MarshalIndentLine(v any) ([]byte, error) {
	data, err := MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
