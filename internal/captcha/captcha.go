// Package captcha solves the single-operator arithmetic captcha shown on the
// login form, e.g. "12 + 7 = ?".
package captcha

import (
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
)

// Operator is one of + - * /.
type Operator byte

const (
	Add Operator = '+'
	Sub Operator = '-'
	Mul Operator = '*'
	Div Operator = '/'
)

// Challenge is a parsed prompt.
type Challenge struct {
	Left  int
	Op    Operator
	Right int
}

// pattern requires the expression to end the prompt and rejects a sign or
// digit directly before the left operand, so "-3 + 2 = ?" does not parse as
// "3 + 2". A label such as "请计算:" may precede it.
var pattern = regexp.MustCompile(`(?:^|[^\d\-−\s])\s*(\d+)\s*([+\-*/×÷−])\s*(\d+)\s*=\s*\?\s*$`)

var aliases = map[string]Operator{
	"+": Add,
	"-": Sub, "−": Sub,
	"*": Mul, "×": Mul,
	"/": Div, "÷": Div,
}

// Parse extracts a challenge from prompt. ok is false when the prompt does
// not have the expected shape, divides by zero or overflows int.
func Parse(prompt string) (c Challenge, ok bool) {
	m := pattern.FindStringSubmatch(prompt)
	if m == nil {
		return Challenge{}, false
	}
	left, err := strconv.Atoi(m[1])
	if err != nil {
		return Challenge{}, false
	}
	right, err := strconv.Atoi(m[3])
	if err != nil {
		return Challenge{}, false
	}
	c = Challenge{Left: left, Op: aliases[m[2]], Right: right}
	if _, ok := c.evaluate(); !ok {
		return Challenge{}, false
	}
	return c, true
}

// Answer evaluates the challenge. Division truncates toward zero. It is 0
// for a challenge Parse would reject.
func (c Challenge) Answer() int {
	v, _ := c.evaluate()
	return v
}

func (c Challenge) evaluate() (int, bool) {
	l, r := big.NewInt(int64(c.Left)), big.NewInt(int64(c.Right))
	var v big.Int
	switch c.Op {
	case Add:
		v.Add(l, r)
	case Sub:
		v.Sub(l, r)
	case Mul:
		v.Mul(l, r)
	case Div:
		if r.Sign() == 0 {
			return 0, false
		}
		v.Quo(l, r)
	default:
		return 0, false
	}
	if !v.IsInt64() || int64(int(v.Int64())) != v.Int64() {
		return 0, false
	}
	return int(v.Int64()), true
}

func (c Challenge) String() string {
	return fmt.Sprintf("%d %c %d = ?", c.Left, c.Op, c.Right)
}

// Solve parses prompt and returns the answer as the string to type into the
// field.
func Solve(prompt string) (string, bool) {
	c, ok := Parse(strings.TrimSpace(prompt))
	if !ok {
		return "", false
	}
	return strconv.Itoa(c.Answer()), true
}
