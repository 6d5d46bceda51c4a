// internal/formula/lexer.go
package formula

/*
 * Formula tokenizer.
 *
 * Splits formula text into words (runs of ASCII letters), numbers (runs of
 * digits, optionally braced as {10}) and parentheses. Whether a word is an
 * operator or a condition letter depends on where it appears, so that
 * decision is left to the parser.
 */

import (
	"strings"

	"github.com/solatis/correlate/internal/types"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokNumber
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// describe renders the token for error messages.
func (t token) describe() string {
	if t.kind == tokEOF {
		return "end of formula"
	}
	return `"` + t.text + `"`
}

func isLetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isSpace(c byte) bool  { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }

// lex tokenizes s. Numbers are only accepted when numeric is true.
func lex(s string, numeric bool) ([]token, error) {
	var toks []token
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case isSpace(c):
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		case isLetter(c):
			start := i
			for i < len(s) && isLetter(s[i]) {
				i++
			}
			toks = append(toks, token{kind: tokWord, text: s[start:i], pos: start})
		case numeric && isDigit(c):
			start := i
			for i < len(s) && isDigit(s[i]) {
				i++
			}
			toks = append(toks, token{kind: tokNumber, text: s[start:i], pos: start})
		case numeric && c == '{':
			start := i
			i++
			for i < len(s) && isDigit(s[i]) {
				i++
			}
			if i == start+1 || i >= len(s) || s[i] != '}' {
				return nil, types.FormulaSyntaxError(start, "unterminated identifier at position %d", start)
			}
			toks = append(toks, token{kind: tokNumber, text: s[start+1 : i], pos: start})
			i++
		default:
			return nil, types.FormulaSyntaxError(i, "unknown token %q at position %d", string(c), i)
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(s)})
	return toks, nil
}

// operatorOf returns the binary operator a word spells, if any.
func operatorOf(word string) (Op, bool) {
	switch strings.ToLower(word) {
	case "and":
		return OpAnd, true
	case "or":
		return OpOr, true
	}
	return 0, false
}
