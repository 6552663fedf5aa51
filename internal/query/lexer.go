package query

import (
	"strings"
	"unicode"

	"mindgraph/internal/errors"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenIdent
	tokenKeyword
	tokenString
	tokenNumber
	tokenParam
	tokenLParen
	tokenRParen
	tokenLBracket
	tokenRBracket
	tokenColon
	tokenComma
	tokenDot
	tokenArrow // ->
	tokenDash  // -
	tokenEq
	tokenNeq
	tokenLt
	tokenLte
	tokenGt
	tokenGte
)

var keywords = map[string]bool{
	"MATCH": true, "WHERE": true, "RETURN": true, "LIMIT": true,
	"AND": true, "OR": true, "CONTAINS": true,
	"AS": true, "OF": true, "CHANGED": true, "SINCE": true, "UNTIL": true,
	"GROUP": true, "BY": true, "ORDER": true, "ASC": true, "DESC": true,
	"COUNT": true, "AVG": true, "SUM": true, "MIN": true, "MAX": true,
}

type token struct {
	kind tokenKind
	text string
	pos  int // 1-based character offset into the query string
}

// lex breaks a query string into tokens. Keywords are recognized
// case-insensitively and normalized to upper case.
func lex(input string) ([]token, error) {
	var tokens []token
	runes := []rune(input)
	i := 0
	for i < len(runes) {
		r := runes[i]
		pos := i + 1
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			tokens = append(tokens, token{tokenLParen, "(", pos})
			i++
		case r == ')':
			tokens = append(tokens, token{tokenRParen, ")", pos})
			i++
		case r == '[':
			tokens = append(tokens, token{tokenLBracket, "[", pos})
			i++
		case r == ']':
			tokens = append(tokens, token{tokenRBracket, "]", pos})
			i++
		case r == ':':
			tokens = append(tokens, token{tokenColon, ":", pos})
			i++
		case r == ',':
			tokens = append(tokens, token{tokenComma, ",", pos})
			i++
		case r == '.':
			tokens = append(tokens, token{tokenDot, ".", pos})
			i++
		case r == '-':
			if i+1 < len(runes) && runes[i+1] == '>' {
				tokens = append(tokens, token{tokenArrow, "->", pos})
				i += 2
			} else {
				tokens = append(tokens, token{tokenDash, "-", pos})
				i++
			}
		case r == '=':
			tokens = append(tokens, token{tokenEq, "=", pos})
			i++
		case r == '!':
			if i+1 < len(runes) && runes[i+1] == '=' {
				tokens = append(tokens, token{tokenNeq, "!=", pos})
				i += 2
			} else {
				return nil, errors.Newf(errors.QuerySyntax, "unexpected character %q at position %d", string(r), pos)
			}
		case r == '<':
			if i+1 < len(runes) && runes[i+1] == '=' {
				tokens = append(tokens, token{tokenLte, "<=", pos})
				i += 2
			} else {
				tokens = append(tokens, token{tokenLt, "<", pos})
				i++
			}
		case r == '>':
			if i+1 < len(runes) && runes[i+1] == '=' {
				tokens = append(tokens, token{tokenGte, ">=", pos})
				i += 2
			} else {
				tokens = append(tokens, token{tokenGt, ">", pos})
				i++
			}
		case r == '"' || r == '\'':
			text, next, err := lexString(runes, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{tokenString, text, pos})
			i = next
		case r == '$':
			start := i + 1
			j := start
			for j < len(runes) && isIdentRune(runes[j]) {
				j++
			}
			if j == start {
				return nil, errors.Newf(errors.QuerySyntax, "empty parameter name at position %d", pos)
			}
			tokens = append(tokens, token{tokenParam, string(runes[start:j]), pos})
			i = j
		case unicode.IsDigit(r):
			j := i
			for j < len(runes) && (unicode.IsDigit(runes[j]) || runes[j] == '.') {
				j++
			}
			tokens = append(tokens, token{tokenNumber, string(runes[i:j]), pos})
			i = j
		case isIdentRune(r):
			j := i
			for j < len(runes) && isIdentRune(runes[j]) {
				j++
			}
			word := string(runes[i:j])
			upper := strings.ToUpper(word)
			if keywords[upper] {
				tokens = append(tokens, token{tokenKeyword, upper, pos})
			} else {
				tokens = append(tokens, token{tokenIdent, word, pos})
			}
			i = j
		default:
			return nil, errors.Newf(errors.QuerySyntax, "unexpected character %q at position %d", string(r), pos)
		}
	}
	tokens = append(tokens, token{tokenEOF, "", len(runes) + 1})
	return tokens, nil
}

func lexString(runes []rune, start int) (string, int, error) {
	quote := runes[start]
	var b strings.Builder
	i := start + 1
	for i < len(runes) {
		r := runes[i]
		if r == quote {
			return b.String(), i + 1, nil
		}
		if r == '\\' && i+1 < len(runes) {
			i++
			r = runes[i]
		}
		b.WriteRune(r)
		i++
	}
	return "", 0, errors.Newf(errors.QuerySyntax, "unterminated string starting at position %d", start+1)
}

func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
