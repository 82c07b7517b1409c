package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "nil slice",
			input:    nil,
			expected: nil,
		},
		{
			name:     "trims whitespace",
			input:    []string{"  policy_document  ", "review_report  "},
			expected: []string{"policy_document", "review_report"},
		},
		{
			name:     "removes duplicates preserving order",
			input:    []string{"scan", "report", "scan", "cert", "report"},
			expected: []string{"scan", "report", "cert"},
		},
		{
			name:     "drops empty and blank entries",
			input:    []string{"scan", "", "  ", "report"},
			expected: []string{"scan", "report"},
		},
		{
			name:     "preserves case",
			input:    []string{"Scan", "scan"},
			expected: []string{"Scan", "scan"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}
