package checker

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		raw      any
		expected string
		invalid  bool
	}{
		{name: "https url", raw: "https://cdn.example.com/a.jpg", expected: "https://cdn.example.com/a.jpg"},
		{name: "http url", raw: "http://cdn.example.com/a.jpg", expected: "http://cdn.example.com/a.jpg"},
		{name: "surrounding whitespace is trimmed", raw: "  https://cdn.example.com/a.jpg\t\n", expected: "https://cdn.example.com/a.jpg"},
		{name: "scheme is case-insensitive", raw: "HTTPS://cdn.example.com/A.JPG", expected: "HTTPS://cdn.example.com/A.JPG"},
		{name: "bytes", raw: []byte("https://cdn.example.com/b.png"), expected: "https://cdn.example.com/b.png"},
		{name: "nil", raw: nil, invalid: true},
		{name: "empty string", raw: "", invalid: true},
		{name: "blank string", raw: "   ", invalid: true},
		{name: "number", raw: 42, invalid: true},
		{name: "float NaN-like cell", raw: 3.14, invalid: true},
		{name: "relative path", raw: "/images/a.jpg", invalid: true},
		{name: "ftp scheme", raw: "ftp://files.example.com/a.jpg", invalid: true},
		{name: "no scheme", raw: "cdn.example.com/a.jpg", invalid: true},
		{name: "missing host", raw: "https:///a.jpg", invalid: true},
		{name: "bad escape", raw: "https://cdn.example.com/%zz", invalid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.raw)
			if tt.invalid {
				assert.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidURL))
				assert.Empty(t, got)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
