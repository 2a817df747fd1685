package fetch

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateUTF8(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int64
		want string
	}{
		{"under limit", "süt", 10, "süt"},
		{"ascii cut", "<html>", 3, "<ht"},
		// "ü" 佔 2 位元組，上限落在其中間時退回
		{"inside multibyte rune", "süt", 2, "s"},
		{"after multibyte rune", "süt", 3, "sü"},
		{"three byte rune", "a₺b", 3, "a"},
		{"no limit", "şeker", 0, "şeker"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateUTF8(tt.in, tt.max)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}
