package filter

import (
	"fmt"
	"strings"
	"unicode"
)

// Parse builds an expression tree from one rule tier.
//
// Grammar: identifiers (predicate names), keywords "not"/"and"/"or", and
// parentheses. "not" binds to the immediately following sub-expression.
// "and" and "or" share a single precedence level; without parentheses a
// chain folds rightward, so "A and B or C" means "A and (B or C)".
//
// Any structural anomaly (missing operand, unbalanced parens, trailing
// tokens) is an explicit error rather than an undefined result.
func Parse(input string) (Expr, error) {
	toks, err := lex(input)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return nil, fmt.Errorf("empty rule expression")
	}
	p := &parser{toks: toks}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if !p.done() {
		return nil, fmt.Errorf("unexpected token %q after expression", p.peek().text)
	}
	return expr, nil
}

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokNot
	tokAnd
	tokOr
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
}

func lex(input string) ([]token, error) {
	var toks []token
	rs := []rune(input)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case r == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case isIdentRune(r):
			j := i
			for j < len(rs) && isIdentRune(rs[j]) {
				j++
			}
			word := string(rs[i:j])
			switch word {
			case "not":
				toks = append(toks, token{tokNot, word})
			case "and":
				toks = append(toks, token{tokAnd, word})
			case "or":
				toks = append(toks, token{tokOr, word})
			default:
				toks = append(toks, token{tokIdent, word})
			}
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q in rule expression", string(r))
		}
	}
	return toks, nil
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) done() bool    { return p.pos >= len(p.toks) }
func (p *parser) peek() token   { return p.toks[p.pos] }
func (p *parser) advance() token {
	t := p.toks[p.pos]
	p.pos++
	return t
}

// parseExpr parses "unary (op expr)?". The right recursion is what gives
// unparenthesized chains their right-folded shape.
func (p *parser) parseExpr() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if p.done() {
		return left, nil
	}
	var op binOp
	switch p.peek().kind {
	case tokAnd:
		op = opAnd
	case tokOr:
		op = opOr
	default:
		return left, nil
	}
	p.advance()
	if p.done() {
		return nil, fmt.Errorf("missing operand after %q", op)
	}
	right, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return binaryExpr{op: op, left: left, right: right}, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.done() {
		return nil, fmt.Errorf("unexpected end of rule expression")
	}
	if p.peek().kind == tokNot {
		p.advance()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notExpr{expr: inner}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	if p.done() {
		return nil, fmt.Errorf("unexpected end of rule expression")
	}
	t := p.advance()
	switch t.kind {
	case tokIdent:
		return predExpr{name: t.text}, nil
	case tokLParen:
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.done() || p.peek().kind != tokRParen {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		p.advance()
		return inner, nil
	default:
		return nil, fmt.Errorf("unexpected token %q", t.text)
	}
}

// splitTiers splits a rule chain on ">" at parenthesis depth 0.
func splitTiers(chain string) []string {
	var tiers []string
	depth := 0
	start := 0
	for i, r := range chain {
		switch r {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case '>':
			if depth == 0 {
				tiers = append(tiers, chain[start:i])
				start = i + len(">")
			}
		}
	}
	tiers = append(tiers, chain[start:])
	for i := range tiers {
		tiers[i] = strings.TrimSpace(tiers[i])
	}
	return tiers
}
