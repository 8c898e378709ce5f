package security

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxJSONDepth bounds the nesting of request bodies. Config documents and
// agent definitions stay well under it.
const MaxJSONDepth = 32

// Body check failures.
var (
	ErrBodyTooLarge = errors.New("request body too large")
	ErrJSONTooDeep  = errors.New("JSON nesting too deep")
	ErrInvalidJSON  = errors.New("invalid JSON body")
)

// CheckJSON verifies that data is a single well-formed JSON value no
// larger than maxBytes and nested no deeper than maxDepth. Non-positive
// limits disable the respective check; a zero maxDepth uses MaxJSONDepth.
func CheckJSON(data []byte, maxBytes, maxDepth int) error {
	if maxBytes > 0 && len(data) > maxBytes {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrBodyTooLarge, len(data), maxBytes)
	}
	if maxDepth == 0 {
		maxDepth = MaxJSONDepth
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return ErrInvalidJSON
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	depth, values := 0, 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
		}
		switch tok {
		case json.Delim('{'), json.Delim('['):
			if depth == 0 {
				values++
			}
			depth++
			if maxDepth > 0 && depth > maxDepth {
				return fmt.Errorf("%w: depth %d (max %d)", ErrJSONTooDeep, depth, maxDepth)
			}
		case json.Delim('}'), json.Delim(']'):
			depth--
		default:
			if depth == 0 {
				values++
			}
		}
	}
	if values != 1 {
		return fmt.Errorf("%w: expected a single value", ErrInvalidJSON)
	}
	return nil
}
