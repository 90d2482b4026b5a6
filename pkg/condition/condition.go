// Package condition evaluates the deploy gating predicates from the
// pipeline file: comparisons of environment variables against literal
// strings or shell-style glob patterns, combined with "&&" and "||".
//
// The language matches what the original shell-based gates could say:
//
//	$CI_OS == linux && $CI_PYTHON == 2.7
//	$CI_TAG == *[ab]*
//	($CI_TAG != *[ab]*) || $FORCE == yes
//
// An unset variable evaluates as the empty string.
package condition

import (
	"fmt"
	"strings"
)

// Expr is a parsed predicate.
type Expr interface {
	// Eval evaluates the predicate; lookup resolves a variable name to
	// its value and must return "" for unset variables.
	Eval(lookup func(name string) string) bool

	// String returns a form that parses back to an equivalent predicate.
	String() string
}

// Parse parses a predicate string.  All syntax problems, including
// malformed glob patterns, are reported here rather than at evaluation
// time, so a pipeline file can be linted before anything runs.
func Parse(str string) (Expr, error) {
	toks, err := lex(str)
	if err != nil {
		return nil, fmt.Errorf("condition.Parse: %w", err)
	}
	p := &parser{toks: toks}
	expr, err := p.parseOr()
	if err != nil {
		return nil, fmt.Errorf("condition.Parse: %w", err)
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, fmt.Errorf("condition.Parse: unexpected %q", tok.text)
	}
	return expr, nil
}

// tokens ////////////////////////////////////////////////////////////////////

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokVar           // $NAME
	tokWord          // bare word or quoted string
	tokEq            // ==
	tokNe            // !=
	tokAnd           // &&
	tokOr            // ||
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
}

func isWordByte(c byte) bool {
	switch c {
	case ' ', '\t', '&', '|', '(', ')', '"':
		return false
	}
	return c > 0x20
}

func lex(str string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(str) {
		c := str[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case strings.HasPrefix(str[i:], "&&"):
			toks = append(toks, token{tokAnd, "&&"})
			i += 2
		case strings.HasPrefix(str[i:], "||"):
			toks = append(toks, token{tokOr, "||"})
			i += 2
		case strings.HasPrefix(str[i:], "=="):
			toks = append(toks, token{tokEq, "=="})
			i += 2
		case strings.HasPrefix(str[i:], "!="):
			toks = append(toks, token{tokNe, "!="})
			i += 2
		case c == '$':
			j := i + 1
			for j < len(str) && (isAlnum(str[j]) || str[j] == '_') {
				j++
			}
			if j == i+1 {
				return nil, fmt.Errorf("%q is not a variable reference", str[i:])
			}
			toks = append(toks, token{tokVar, str[i+1 : j]})
			i = j
		case c == '"':
			j := i + 1
			var sb strings.Builder
			for j < len(str) && str[j] != '"' {
				if str[j] == '\\' && j+1 < len(str) {
					j++
				}
				sb.WriteByte(str[j])
				j++
			}
			if j >= len(str) {
				return nil, fmt.Errorf("unterminated string: %s", str[i:])
			}
			toks = append(toks, token{tokWord, sb.String()})
			i = j + 1
		case isWordByte(c):
			j := i
			for j < len(str) && isWordByte(str[j]) {
				j++
			}
			toks = append(toks, token{tokWord, str[i:j]})
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q", string(c))
		}
	}
	toks = append(toks, token{tokEOF, ""})
	return toks, nil
}

func isAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// parser ////////////////////////////////////////////////////////////////////

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) parseOr() (Expr, error) {
	lhs, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		rhs, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		lhs = &orExpr{a: lhs, b: rhs}
	}
	return lhs, nil
}

func (p *parser) parseAnd() (Expr, error) {
	lhs, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		rhs, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		lhs = &andExpr{a: lhs, b: rhs}
	}
	return lhs, nil
}

func (p *parser) parseTerm() (Expr, error) {
	switch tok := p.next(); tok.kind {
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, fmt.Errorf("expected \")\", got %q", closing.text)
		}
		return inner, nil
	case tokVar:
		return p.parseCompare(tok.text)
	default:
		return nil, fmt.Errorf("expected a variable reference or \"(\", got %q", tok.text)
	}
}

func (p *parser) parseCompare(varName string) (Expr, error) {
	var negated bool
	switch op := p.next(); op.kind {
	case tokEq:
		// negated stays false
	case tokNe:
		negated = true
	default:
		return nil, fmt.Errorf("expected \"==\" or \"!=\" after $%s, got %q", varName, op.text)
	}
	val := p.next()
	if val.kind != tokWord && val.kind != tokVar {
		return nil, fmt.Errorf("expected a value after the operator, got %q", val.text)
	}
	if val.kind == tokVar {
		return nil, fmt.Errorf("comparing two variables is not supported ($%s vs $%s)", varName, val.text)
	}
	cmp := &compareExpr{varName: varName, negated: negated, value: val.text}
	if hasGlobMeta(val.text) {
		if err := checkPattern(val.text); err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", val.text, err)
		}
		cmp.glob = true
	}
	return cmp, nil
}

// AST ///////////////////////////////////////////////////////////////////////

type compareExpr struct {
	varName string
	negated bool
	value   string
	glob    bool
}

func (e *compareExpr) Eval(lookup func(string) string) bool {
	actual := lookup(e.varName)
	var matched bool
	if e.glob {
		// The pattern was validated at parse time.
		matched, _ = Match(e.value, actual)
	} else {
		matched = actual == e.value
	}
	return matched != e.negated
}

func (e *compareExpr) String() string {
	op := "=="
	if e.negated {
		op = "!="
	}
	val := e.value
	if val == "" || strings.ContainsAny(val, " \t&|()\"") {
		val = `"` + strings.ReplaceAll(val, `"`, `\"`) + `"`
	}
	return fmt.Sprintf("$%s %s %s", e.varName, op, val)
}

type andExpr struct {
	a, b Expr
}

func (e *andExpr) Eval(lookup func(string) string) bool {
	return e.a.Eval(lookup) && e.b.Eval(lookup)
}

func (e *andExpr) String() string {
	return fmt.Sprintf("%s && %s", paren(e.a), paren(e.b))
}

type orExpr struct {
	a, b Expr
}

func (e *orExpr) Eval(lookup func(string) string) bool {
	return e.a.Eval(lookup) || e.b.Eval(lookup)
}

func (e *orExpr) String() string {
	return fmt.Sprintf("%s || %s", paren(e.a), paren(e.b))
}

func paren(e Expr) string {
	switch e.(type) {
	case *andExpr, *orExpr:
		return "(" + e.String() + ")"
	}
	return e.String()
}
