package captcha

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSolve(t *testing.T) {
	tests := []struct {
		prompt string
		want   string
		ok     bool
	}{
		{"12 + 7 = ?", "19", true},
		{"9 / 2 = ?", "4", true},
		{"3 - 8 = ?", "-5", true},
		{"6*7=?", "42", true},
		{"请计算: 6 × 3 = ?", "18", true},
		{"20 ÷ 6 = ?", "3", true},
		{"  4 − 1 =  ? ", "3", true},
		{"5 / 0 = ?", "", false},
		{"abc", "", false},
		{"12 + 7", "", false},
		{"", "", false},
		{"-3 + 2 = ?", "", false},
		{"- 3 + 2 = ?", "", false},
		{"1 + 2 = ? + 5", "", false},
		{"9999999999 * 9999999999 = ?", "", false},
		{"99999999999999999999 + 1 = ?", "", false},
		{"3000000000 * 3 = ?", "9000000000", true},
	}

	for _, tt := range tests {
		t.Run(tt.prompt, func(t *testing.T) {
			got, ok := Solve(tt.prompt)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse(t *testing.T) {
	c, ok := Parse("12 + 7 = ?")
	assert.True(t, ok)
	assert.Equal(t, Challenge{Left: 12, Op: Add, Right: 7}, c)
	assert.Equal(t, 19, c.Answer())
	assert.Equal(t, "12 + 7 = ?", c.String())

	_, ok = Parse("abc")
	assert.False(t, ok)
}
