package formula

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidFormula is returned when an expression contains forbidden
// characters, references an undefined variable, or does not evaluate to a
// finite number. It always reaches the caller: a broken formula must be fixed
// by an administrator, not papered over.
var ErrInvalidFormula = errors.New("formula: invalid formula")

var (
	allowedChars = regexp.MustCompile(`^[A-Za-z0-9_\s+\-*/.()]*$`)
	alphaResidue = regexp.MustCompile(`[A-Za-z]`)
)

// Evaluate substitutes the provided variables into the expression and computes
// the result. Only the four arithmetic operators, parentheses and decimal
// literals are supported; the substituted string is never handed to a
// general-purpose interpreter.
func Evaluate(expression string, vars map[string]float64) (float64, error) {
	if !allowedChars.MatchString(expression) {
		return 0, fmt.Errorf("%w: expression contains forbidden characters", ErrInvalidFormula)
	}
	substituted := substitute(expression, vars)
	if alphaResidue.MatchString(substituted) {
		return 0, fmt.Errorf("%w: undefined variable in %q", ErrInvalidFormula, expression)
	}
	p := parser{input: substituted}
	value, err := p.parse()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidFormula, err)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%w: result is not a finite number", ErrInvalidFormula)
	}
	return value, nil
}

// substitute replaces each variable name with its numeric value. Matching is
// case-sensitive and bounded on both sides so that a variable never replaces
// part of a longer identifier.
func substitute(expression string, vars map[string]float64) string {
	out := expression
	for name, value := range vars {
		if strings.TrimSpace(name) == "" {
			continue
		}
		re, err := regexp.Compile(`\b` + regexp.QuoteMeta(name) + `\b`)
		if err != nil {
			continue
		}
		out = re.ReplaceAllString(out, formatNumber(value))
	}
	return out
}

func formatNumber(v float64) string {
	if v < 0 {
		// Wrap negatives so substitution never produces "3 * -2"-style
		// sequences the parser would have to special-case.
		return "(0" + strconv.FormatFloat(v, 'f', -1, 64) + ")"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// parser is a small recursive-descent evaluator over + - * / ( ) and decimal
// literals.
//
// expr   = term { ("+" | "-") term }
// term   = unary { ("*" | "/") unary }
// unary  = [ "+" | "-" ] factor
// factor = number | "(" expr ")"
type parser struct {
	input string
	pos   int
}

func (p *parser) parse() (float64, error) {
	value, err := p.expr()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos < len(p.input) {
		return 0, fmt.Errorf("unexpected character %q at offset %d", p.input[p.pos], p.pos)
	}
	return value, nil
}

func (p *parser) expr() (float64, error) {
	value, err := p.term()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		switch p.peek() {
		case '+':
			p.pos++
			rhs, err := p.term()
			if err != nil {
				return 0, err
			}
			value += rhs
		case '-':
			p.pos++
			rhs, err := p.term()
			if err != nil {
				return 0, err
			}
			value -= rhs
		default:
			return value, nil
		}
	}
}

func (p *parser) term() (float64, error) {
	value, err := p.unary()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		switch p.peek() {
		case '*':
			p.pos++
			rhs, err := p.unary()
			if err != nil {
				return 0, err
			}
			value *= rhs
		case '/':
			p.pos++
			rhs, err := p.unary()
			if err != nil {
				return 0, err
			}
			value /= rhs
		default:
			return value, nil
		}
	}
}

func (p *parser) unary() (float64, error) {
	p.skipSpace()
	switch p.peek() {
	case '+':
		p.pos++
		return p.unary()
	case '-':
		p.pos++
		value, err := p.unary()
		if err != nil {
			return 0, err
		}
		return -value, nil
	}
	return p.factor()
}

func (p *parser) factor() (float64, error) {
	p.skipSpace()
	if p.peek() == '(' {
		p.pos++
		value, err := p.expr()
		if err != nil {
			return 0, err
		}
		p.skipSpace()
		if p.peek() != ')' {
			return 0, fmt.Errorf("missing closing parenthesis at offset %d", p.pos)
		}
		p.pos++
		return value, nil
	}
	return p.number()
}

func (p *parser) number() (float64, error) {
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if (c >= '0' && c <= '9') || c == '.' {
			p.pos++
			continue
		}
		break
	}
	if start == p.pos {
		if p.pos >= len(p.input) {
			return 0, errors.New("unexpected end of expression")
		}
		return 0, fmt.Errorf("unexpected character %q at offset %d", p.input[p.pos], p.pos)
	}
	value, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", p.input[start:p.pos])
	}
	return value, nil
}

func (p *parser) peek() byte {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) {
		switch p.input[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}
