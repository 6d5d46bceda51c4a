// internal/formula/parse.go
package formula

/*
 * Recursive descent parser for correlation formulas.
 *
 * Grammar (and binds tighter than or):
 *
 *   expr   := term { "or" term }
 *   term   := factor { "and" factor }
 *   factor := IDENT | "(" expr ")"
 *
 * IDENT is a letter sequence in letter formulas and a decimal condition ID
 * in numeric formulas. Operators are case-insensitive. In operand position a
 * word spelled "and"/"or" is only read as a letter when written in upper
 * case, which keeps three-letter letters such as AND usable.
 */

import (
	"strconv"
	"strings"

	"github.com/solatis/correlate/internal/types"
)

// Parse parses a letter formula such as "A and (B or C)". Letters are
// normalized to upper case.
func Parse(s string) (*Expr, error) {
	return parse(s, false)
}

// ParseNumeric parses a formula over condition IDs such as "10 and (11 or
// 12)". The braced form "{10}" is accepted as well.
func ParseNumeric(s string) (*Expr, error) {
	return parse(s, true)
}

// MustParse is Parse for literals known to be valid. Panics on error.
func MustParse(s string) *Expr {
	e, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return e
}

func parse(s string, numeric bool) (*Expr, error) {
	if strings.TrimSpace(s) == "" {
		return nil, &types.Error{Kind: types.KindFormulaSyntax, Message: "formula is empty", Pos: 0, Cause: types.ErrFormulaEmpty}
	}
	// Stored numeric formulas grow with the condition IDs, so only the
	// letter form is bounded.
	if !numeric && len(s) > types.MaxFormulaLength {
		return nil, types.FormulaSyntaxError(types.MaxFormulaLength, "formula is longer than %d characters", types.MaxFormulaLength)
	}

	toks, err := lex(s, numeric)
	if err != nil {
		return nil, err
	}

	p := &parser{toks: toks, numeric: numeric}
	root, err := p.expr()
	if err != nil {
		return nil, err
	}

	if t := p.peek(); t.kind != tokEOF {
		if t.kind == tokRParen {
			return nil, unexpected(t)
		}
		return nil, missingOperator(t)
	}
	return &Expr{root: root, numeric: numeric}, nil
}

type parser struct {
	toks    []token
	i       int
	numeric bool
}

func (p *parser) peek() token {
	return p.toks[p.i]
}

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

// acceptOp consumes the next token if it is the operator op.
func (p *parser) acceptOp(op Op) bool {
	t := p.peek()
	if t.kind != tokWord {
		return false
	}
	if got, ok := operatorOf(t.text); ok && got == op {
		p.i++
		return true
	}
	return false
}

func (p *parser) expr() (Node, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for p.acceptOp(OpOr) {
		right, err := p.term()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) term() (Node, error) {
	left, err := p.factor()
	if err != nil {
		return nil, err
	}
	for p.acceptOp(OpAnd) {
		right, err := p.factor()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: OpAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) factor() (Node, error) {
	t := p.next()
	switch t.kind {
	case tokLParen:
		inner, err := p.expr()
		if err != nil {
			return nil, err
		}
		closing := p.next()
		switch closing.kind {
		case tokRParen:
			return &Group{Inner: inner, Offset: t.pos}, nil
		case tokEOF:
			return nil, types.FormulaSyntaxError(t.pos, `missing closing parenthesis for "(" at position %d`, t.pos)
		default:
			return nil, missingOperator(closing)
		}

	case tokNumber:
		id, err := strconv.ParseUint(t.text, 10, 64)
		if err != nil || id == 0 {
			return nil, types.FormulaSyntaxError(t.pos, "invalid condition ID %q at position %d", t.text, t.pos)
		}
		return &Ident{Name: strconv.FormatUint(id, 10), Offset: t.pos}, nil

	case tokWord:
		_, isOp := operatorOf(t.text)
		if p.numeric {
			if isOp {
				return nil, unexpected(t)
			}
			return nil, types.FormulaSyntaxError(t.pos, "unknown token %q at position %d", t.text, t.pos)
		}
		if isOp && t.text != strings.ToUpper(t.text) {
			return nil, unexpected(t)
		}
		return &Ident{Name: strings.ToUpper(t.text), Offset: t.pos}, nil

	default:
		return nil, unexpected(t)
	}
}

func unexpected(t token) error {
	if t.kind == tokEOF {
		return types.FormulaSyntaxError(t.pos, "unexpected end of formula at position %d", t.pos)
	}
	return types.FormulaSyntaxError(t.pos, "unexpected %s at position %d", t.describe(), t.pos)
}

func missingOperator(t token) error {
	return types.FormulaSyntaxError(t.pos, "missing operator before %s at position %d", t.describe(), t.pos)
}
