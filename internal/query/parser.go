package query

import (
	"strconv"
	"strings"
	"time"

	"mindgraph/internal/errors"
)

type parser struct {
	tokens []token
	pos    int
}

// Parse turns query text into an AST. Errors carry the offending
// token and its character position.
func Parse(text string) (*Query, error) {
	tokens, err := lex(text)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	q, err := p.parseQuery()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokenEOF {
		return nil, p.errorAt(tok, "unexpected trailing input")
	}
	return q, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokenEOF {
		p.pos++
	}
	return tok
}

func (p *parser) accept(kind tokenKind) (token, bool) {
	if p.peek().kind == kind {
		return p.next(), true
	}
	return token{}, false
}

func (p *parser) acceptKeyword(word string) bool {
	tok := p.peek()
	if tok.kind == tokenKeyword && tok.text == word {
		p.next()
		return true
	}
	return false
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	tok := p.next()
	if tok.kind != kind {
		return token{}, p.errorAt(tok, "expected "+what)
	}
	return tok, nil
}

func (p *parser) expectKeyword(word string) error {
	tok := p.next()
	if tok.kind != tokenKeyword || tok.text != word {
		return p.errorAt(tok, "expected "+word)
	}
	return nil
}

func (p *parser) errorAt(tok token, msg string) error {
	if tok.kind == tokenEOF {
		return errors.Newf(errors.QuerySyntax, "%s at end of query (position %d)", msg, tok.pos)
	}
	return errors.Newf(errors.QuerySyntax, "%s, got %q at position %d", msg, tok.text, tok.pos)
}

func (p *parser) parseQuery() (*Query, error) {
	if err := p.expectKeyword("MATCH"); err != nil {
		return nil, err
	}
	q := &Query{}
	if err := p.parsePattern(q); err != nil {
		return nil, err
	}

	if p.acceptKeyword("AS") {
		if err := p.expectKeyword("OF"); err != nil {
			return nil, err
		}
		ts, err := p.parseTimestamp()
		if err != nil {
			return nil, err
		}
		q.Temporal = &TemporalClause{AsOf: &ts}
	} else if p.acceptKeyword("CHANGED") {
		if err := p.expectKeyword("SINCE"); err != nil {
			return nil, err
		}
		since, err := p.parseTimestamp()
		if err != nil {
			return nil, err
		}
		q.Temporal = &TemporalClause{Since: &since}
		if p.acceptKeyword("UNTIL") {
			until, err := p.parseTimestamp()
			if err != nil {
				return nil, err
			}
			q.Temporal.Until = &until
		}
	}

	if p.acceptKeyword("WHERE") {
		expr, err := p.parseOrExpr()
		if err != nil {
			return nil, err
		}
		q.Where = expr
	}

	if err := p.expectKeyword("RETURN"); err != nil {
		return nil, err
	}
	for {
		field, err := p.parseReturnField()
		if err != nil {
			return nil, err
		}
		q.Return = append(q.Return, field)
		if _, ok := p.accept(tokenComma); !ok {
			break
		}
	}

	if p.acceptKeyword("GROUP") {
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for {
			path, err := p.parsePath()
			if err != nil {
				return nil, err
			}
			q.GroupBy = append(q.GroupBy, path)
			if _, ok := p.accept(tokenComma); !ok {
				break
			}
		}
	}

	if p.acceptKeyword("ORDER") {
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		field, err := p.parseReturnField()
		if err != nil {
			return nil, err
		}
		key := &OrderKey{Field: fieldLabel(field)}
		if p.acceptKeyword("DESC") {
			key.Desc = true
		} else {
			p.acceptKeyword("ASC")
		}
		q.OrderBy = key
	}

	if p.acceptKeyword("LIMIT") {
		tok, err := p.expect(tokenNumber, "a number after LIMIT")
		if err != nil {
			return nil, err
		}
		n, convErr := strconv.Atoi(tok.text)
		if convErr != nil || n < 1 {
			return nil, p.errorAt(tok, "expected a positive integer after LIMIT")
		}
		q.Limit = n
	}
	return q, p.validate(q)
}

func (p *parser) parsePattern(q *Query) error {
	node, err := p.parseNodePattern()
	if err != nil {
		return err
	}
	q.Patterns = append(q.Patterns, node)
	for p.peek().kind == tokenDash {
		edge, err := p.parseEdgePattern()
		if err != nil {
			return err
		}
		node, err := p.parseNodePattern()
		if err != nil {
			return err
		}
		q.Edges = append(q.Edges, edge)
		q.Patterns = append(q.Patterns, node)
	}
	return nil
}

func (p *parser) parseNodePattern() (NodePattern, error) {
	if _, err := p.expect(tokenLParen, "("); err != nil {
		return NodePattern{}, err
	}
	alias, err := p.expect(tokenIdent, "a node alias")
	if err != nil {
		return NodePattern{}, err
	}
	pat := NodePattern{Alias: alias.text}
	if _, ok := p.accept(tokenColon); ok {
		typ, err := p.expect(tokenIdent, "a node type after :")
		if err != nil {
			return NodePattern{}, err
		}
		pat.Type = strings.ToLower(typ.text)
	}
	if _, err := p.expect(tokenRParen, ")"); err != nil {
		return NodePattern{}, err
	}
	return pat, nil
}

func (p *parser) parseEdgePattern() (EdgePattern, error) {
	if _, err := p.expect(tokenDash, "-"); err != nil {
		return EdgePattern{}, err
	}
	if _, err := p.expect(tokenLBracket, "["); err != nil {
		return EdgePattern{}, err
	}
	var pat EdgePattern
	if alias, ok := p.accept(tokenIdent); ok {
		pat.Alias = alias.text
	}
	if _, err := p.expect(tokenColon, ":"); err != nil {
		return EdgePattern{}, err
	}
	typ, err := p.expect(tokenIdent, "an edge type")
	if err != nil {
		return EdgePattern{}, err
	}
	pat.Type = strings.ToLower(typ.text)
	if _, err := p.expect(tokenRBracket, "]"); err != nil {
		return EdgePattern{}, err
	}
	if _, err := p.expect(tokenArrow, "->"); err != nil {
		return EdgePattern{}, err
	}
	return pat, nil
}

func (p *parser) parseOrExpr() (Expr, error) {
	left, err := p.parseAndExpr()
	if err != nil {
		return nil, err
	}
	for p.acceptKeyword("OR") {
		right, err := p.parseAndExpr()
		if err != nil {
			return nil, err
		}
		left = &LogicalExpr{Op: "OR", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAndExpr() (Expr, error) {
	left, err := p.parsePrimaryExpr()
	if err != nil {
		return nil, err
	}
	for p.acceptKeyword("AND") {
		right, err := p.parsePrimaryExpr()
		if err != nil {
			return nil, err
		}
		left = &LogicalExpr{Op: "AND", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parsePrimaryExpr() (Expr, error) {
	if _, ok := p.accept(tokenLParen); ok {
		expr, err := p.parseOrExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokenRParen, ")"); err != nil {
			return nil, err
		}
		return expr, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Expr, error) {
	path, err := p.parsePath()
	if err != nil {
		return nil, err
	}
	opTok := p.next()
	var op compareOp
	switch {
	case opTok.kind == tokenEq:
		op = opEq
	case opTok.kind == tokenNeq:
		op = opNeq
	case opTok.kind == tokenLt:
		op = opLt
	case opTok.kind == tokenLte:
		op = opLte
	case opTok.kind == tokenGt:
		op = opGt
	case opTok.kind == tokenGte:
		op = opGte
	case opTok.kind == tokenKeyword && opTok.text == "CONTAINS":
		op = opContains
	default:
		return nil, p.errorAt(opTok, "expected a comparison operator")
	}
	lit, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}
	return &CompareExpr{Op: op, Path: path, Value: lit}, nil
}

func (p *parser) parseLiteral() (Literal, error) {
	tok := p.next()
	switch tok.kind {
	case tokenString:
		return Literal{Str: tok.text}, nil
	case tokenNumber:
		n, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return Literal{}, p.errorAt(tok, "invalid number")
		}
		return Literal{Num: n, IsNumber: true}, nil
	default:
		return Literal{}, p.errorAt(tok, "expected a string or number literal")
	}
}

func (p *parser) parsePath() (PropertyPath, error) {
	alias, err := p.expect(tokenIdent, "an alias")
	if err != nil {
		return PropertyPath{}, err
	}
	path := PropertyPath{Alias: alias.text}
	for {
		if _, ok := p.accept(tokenDot); !ok {
			break
		}
		seg := p.next()
		if seg.kind != tokenIdent && seg.kind != tokenKeyword {
			return PropertyPath{}, p.errorAt(seg, "expected a property name after .")
		}
		path.Segments = append(path.Segments, strings.ToLower(seg.text))
	}
	if len(path.Segments) == 0 {
		return PropertyPath{}, p.errorAt(p.peek(), "expected a property path like alias.name")
	}
	return path, nil
}

func (p *parser) parseReturnField() (ReturnField, error) {
	tok := p.peek()
	if tok.kind == tokenKeyword {
		switch AggregateFunc(tok.text) {
		case AggCount, AggAvg, AggSum, AggMin, AggMax:
			agg := AggregateFunc(tok.text)
			p.next()
			if _, err := p.expect(tokenLParen, "( after "+tok.text); err != nil {
				return ReturnField{}, err
			}
			path, err := p.parsePath()
			if err != nil {
				return ReturnField{}, err
			}
			if _, err := p.expect(tokenRParen, ")"); err != nil {
				return ReturnField{}, err
			}
			return ReturnField{Path: path, Agg: agg}, nil
		}
	}
	path, err := p.parsePath()
	if err != nil {
		return ReturnField{}, err
	}
	return ReturnField{Path: path}, nil
}

func (p *parser) parseTimestamp() (time.Time, error) {
	tok, err := p.expect(tokenString, "a quoted timestamp")
	if err != nil {
		return time.Time{}, err
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if ts, parseErr := time.Parse(layout, tok.text); parseErr == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, p.errorAt(tok, "invalid timestamp (want RFC 3339 or YYYY-MM-DD)")
}

// validate catches references to aliases the pattern never bound, so
// executor lookups cannot fail silently.
func (p *parser) validate(q *Query) error {
	known := map[string]bool{}
	for _, pat := range q.Patterns {
		known[pat.Alias] = true
	}
	for _, edge := range q.Edges {
		if edge.Alias != "" {
			known[edge.Alias] = true
		}
	}
	check := func(path PropertyPath) error {
		if !known[path.Alias] {
			return errors.Newf(errors.QuerySyntax, "unknown alias %q (not bound in MATCH)", path.Alias)
		}
		return nil
	}
	var walkExpr func(Expr) error
	walkExpr = func(e Expr) error {
		switch v := e.(type) {
		case *LogicalExpr:
			if err := walkExpr(v.Left); err != nil {
				return err
			}
			return walkExpr(v.Right)
		case *CompareExpr:
			return check(v.Path)
		}
		return nil
	}
	if q.Where != nil {
		if err := walkExpr(q.Where); err != nil {
			return err
		}
	}
	for _, f := range q.Return {
		if err := check(f.Path); err != nil {
			return err
		}
	}
	for _, g := range q.GroupBy {
		if err := check(g); err != nil {
			return err
		}
	}
	hasAgg := false
	for _, f := range q.Return {
		if f.Agg != AggNone {
			hasAgg = true
		}
	}
	if len(q.GroupBy) > 0 && !hasAgg {
		return errors.New(errors.QuerySyntax, "GROUP BY requires at least one aggregate in RETURN")
	}
	return nil
}

func fieldLabel(f ReturnField) string {
	if f.Agg != AggNone {
		return string(f.Agg) + "(" + f.Path.String() + ")"
	}
	return f.Path.String()
}
