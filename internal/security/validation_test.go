package security

import (
	"errors"
	"strings"
	"testing"
)

func TestCheckJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		body     string
		maxBytes int
		maxDepth int
		wantErr  error
	}{
		{name: "flat object", body: `{"key": "value"}`, maxDepth: 2},
		{name: "nested within limit", body: `{"a": {"b": {"c": 1}}}`, maxDepth: 3},
		{name: "nested over limit", body: `{"a": {"b": {"c": {"d": 1}}}}`, maxDepth: 3, wantErr: ErrJSONTooDeep},
		{name: "arrays count", body: `[[[[1]]]]`, maxDepth: 3, wantErr: ErrJSONTooDeep},
		{name: "scalar", body: `42`},
		{name: "default depth", body: strings.Repeat("[", MaxJSONDepth+1) + strings.Repeat("]", MaxJSONDepth+1), wantErr: ErrJSONTooDeep},
		{name: "depth disabled", body: strings.Repeat("[", 40) + strings.Repeat("]", 40), maxDepth: -1},
		{name: "too large", body: `{"key": "value"}`, maxBytes: 8, wantErr: ErrBodyTooLarge},
		{name: "at size limit", body: `{}`, maxBytes: 2},
		{name: "empty", body: "  ", wantErr: ErrInvalidJSON},
		{name: "malformed", body: `{"a": }`, wantErr: ErrInvalidJSON},
		{name: "trailing value", body: `{} {}`, wantErr: ErrInvalidJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := CheckJSON([]byte(tt.body), tt.maxBytes, tt.maxDepth)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CheckJSON(%q) = %v, want %v", tt.body, err, tt.wantErr)
			}
		})
	}
}
