// Copyright 2025 The Page List Bot Authors
// SPDX-License-Identifier: Apache-2.0

package ast

import (
	"github.com/pagelistbot/engine/pkg/intorinf"
)

// Parse turns source text into an expression tree. Leading and trailing
// whitespace is permitted; anything left over after a complete expression
// is a TrailingInput error.
func Parse(src string) (Expr, error) {
	p := &parser{lex: &lexer{src: src}}
	if perr := p.advance(); perr != nil {
		return nil, perr
	}
	expr, perr := p.parseLevel1()
	if perr != nil {
		return nil, perr
	}
	if p.tok.kind != tokEOF {
		return nil, &ParseError{Span: p.tok.span, Kind: TrailingInput}
	}
	return expr, nil
}

type parser struct {
	lex *lexer
	tok token
}

func (p *parser) advance() *ParseError {
	tok, perr := p.lex.next()
	if perr != nil {
		return perr
	}
	p.tok = tok
	return nil
}

func (p *parser) expect(kind tokenKind) (token, *ParseError) {
	if p.tok.kind != kind {
		return token{}, &ParseError{Span: p.tok.span, Kind: ExpectedToken, Detail: kind.String()}
	}
	tok := p.tok
	if perr := p.advance(); perr != nil {
		return token{}, perr
	}
	return tok, nil
}

// parseLevel1 parses `+` and `-`, the lowest-precedence level.
func (p *parser) parseLevel1() (Expr, *ParseError) {
	left, perr := p.parseLevel2()
	if perr != nil {
		return nil, perr
	}
	for p.tok.kind == tokPlus || p.tok.kind == tokMinus {
		op := p.tok.kind
		if perr := p.advance(); perr != nil {
			return nil, perr
		}
		right, perr := p.parseLevel2()
		if perr != nil {
			return nil, perr
		}
		span := Span{left.Span().Start, right.Span().End}
		if op == tokPlus {
			left = &Add{span: span, Left: left, Right: right}
		} else {
			left = &Sub{span: span, Left: left, Right: right}
		}
	}
	return left, nil
}

// parseLevel2 parses `^`.
func (p *parser) parseLevel2() (Expr, *ParseError) {
	left, perr := p.parseLevel3()
	if perr != nil {
		return nil, perr
	}
	for p.tok.kind == tokCaret {
		if perr := p.advance(); perr != nil {
			return nil, perr
		}
		right, perr := p.parseLevel3()
		if perr != nil {
			return nil, perr
		}
		left = &Xor{span: Span{left.Span().Start, right.Span().End}, Left: left, Right: right}
	}
	return left, nil
}

// parseLevel3 parses `&`.
func (p *parser) parseLevel3() (Expr, *ParseError) {
	left, perr := p.parseLevel4()
	if perr != nil {
		return nil, perr
	}
	for p.tok.kind == tokAmp {
		if perr := p.advance(); perr != nil {
			return nil, perr
		}
		right, perr := p.parseLevel4()
		if perr != nil {
			return nil, perr
		}
		left = &And{span: Span{left.Span().Start, right.Span().End}, Left: left, Right: right}
	}
	return left, nil
}

// parseLevel4 parses the primary forms.
func (p *parser) parseLevel4() (Expr, *ParseError) {
	switch p.tok.kind {
	case tokLParen:
		start := p.tok.span.Start
		if perr := p.advance(); perr != nil {
			return nil, perr
		}
		inner, perr := p.parseLevel1()
		if perr != nil {
			return nil, perr
		}
		rparen, perr := p.expect(tokRParen)
		if perr != nil {
			return nil, perr
		}
		return &Paren{span: Span{start, rparen.span.End}, Inner: inner}, nil
	case tokString:
		return p.parseBarePage()
	case tokName:
		return p.parseOperator()
	}
	return nil, &ParseError{Span: p.tok.span, Kind: ExpectedToken, Detail: "expression"}
}

// parseBarePage parses the `"a", "b", ...` page-literal form.
func (p *parser) parseBarePage() (Expr, *ParseError) {
	start := p.tok.span.Start
	titles, end, perr := p.parseStringList()
	if perr != nil {
		return nil, perr
	}
	return &Page{span: Span{start, end}, Titles: titles}, nil
}

// parseStringList parses one or more comma-separated string literals,
// starting at the current token. Returns the end offset of the last
// literal.
func (p *parser) parseStringList() ([]StringLit, int, *ParseError) {
	first, perr := p.expect(tokString)
	if perr != nil {
		return nil, 0, perr
	}
	titles := []StringLit{{span: first.span, Value: first.text}}
	end := first.span.End
	for p.tok.kind == tokComma {
		if perr := p.advance(); perr != nil {
			return nil, 0, perr
		}
		lit, perr := p.expect(tokString)
		if perr != nil {
			return nil, 0, perr
		}
		titles = append(titles, StringLit{span: lit.span, Value: lit.text})
		end = lit.span.End
	}
	return titles, end, nil
}

func (p *parser) parseOperator() (Expr, *ParseError) {
	name := p.tok
	if perr := p.advance(); perr != nil {
		return nil, perr
	}
	switch name.text {
	case "page":
		if _, perr := p.expect(tokLParen); perr != nil {
			return nil, perr
		}
		titles, _, perr := p.parseStringList()
		if perr != nil {
			return nil, perr
		}
		rparen, perr := p.expect(tokRParen)
		if perr != nil {
			return nil, perr
		}
		return &Page{span: Span{name.span.Start, rparen.span.End}, Titles: titles}, nil
	case "link", "linkto", "embed", "incat", "prefix":
		child, rparen, perr := p.parseOperatorBody()
		if perr != nil {
			return nil, perr
		}
		attrs, end, perr := p.parseAttributes(rparen.span.End)
		if perr != nil {
			return nil, perr
		}
		span := Span{name.span.Start, end}
		switch name.text {
		case "link":
			return &Link{span: span, Child: child, Attrs: attrs}, nil
		case "linkto":
			return &LinkTo{span: span, Child: child, Attrs: attrs}, nil
		case "embed":
			return &Embed{span: span, Child: child, Attrs: attrs}, nil
		case "incat":
			return &InCat{span: span, Child: child, Attrs: attrs}, nil
		default:
			return &Prefix{span: span, Child: child, Attrs: attrs}, nil
		}
	case "toggle":
		child, rparen, perr := p.parseOperatorBody()
		if perr != nil {
			return nil, perr
		}
		// toggle accepts no attributes; a trailing `.` becomes a
		// TrailingInput or ExpectedToken error further up.
		return &Toggle{span: Span{name.span.Start, rparen.span.End}, Child: child}, nil
	}
	return nil, &ParseError{Span: name.span, Kind: UnknownOperator}
}

func (p *parser) parseOperatorBody() (Expr, token, *ParseError) {
	if _, perr := p.expect(tokLParen); perr != nil {
		return nil, token{}, perr
	}
	child, perr := p.parseLevel1()
	if perr != nil {
		return nil, token{}, perr
	}
	rparen, perr := p.expect(tokRParen)
	if perr != nil {
		return nil, token{}, perr
	}
	return child, rparen, nil
}

// parseAttributes parses zero or more `.modifier` suffixes. It returns the
// end offset of the construct: the last attribute's end, or bodyEnd when
// there are none.
func (p *parser) parseAttributes(bodyEnd int) ([]Attribute, int, *ParseError) {
	var attrs []Attribute
	end := bodyEnd
	for p.tok.kind == tokDot {
		dot := p.tok
		if perr := p.advance(); perr != nil {
			return nil, 0, perr
		}
		attr, perr := p.parseAttribute(dot.span.Start)
		if perr != nil {
			return nil, 0, perr
		}
		attrs = append(attrs, attr)
		end = attr.span.End
	}
	return attrs, end, nil
}

func (p *parser) parseAttribute(start int) (Attribute, *ParseError) {
	name, perr := p.expect(tokName)
	if perr != nil {
		return Attribute{}, perr
	}
	switch name.text {
	case "limit", "depth":
		kind := AttrLimit
		if name.text == "depth" {
			kind = AttrDepth
		}
		if _, perr := p.expect(tokLParen); perr != nil {
			return Attribute{}, perr
		}
		val, perr := p.parseIntOrInf()
		if perr != nil {
			return Attribute{}, perr
		}
		rparen, perr := p.expect(tokRParen)
		if perr != nil {
			return Attribute{}, perr
		}
		return Attribute{span: Span{start, rparen.span.End}, Kind: kind, Value: val}, nil
	case "ns":
		if _, perr := p.expect(tokLParen); perr != nil {
			return Attribute{}, perr
		}
		var namespaces []int
		v, perr := p.parseInt()
		if perr != nil {
			return Attribute{}, perr
		}
		namespaces = append(namespaces, v)
		for p.tok.kind == tokComma {
			if perr := p.advance(); perr != nil {
				return Attribute{}, perr
			}
			v, perr := p.parseInt()
			if perr != nil {
				return Attribute{}, perr
			}
			namespaces = append(namespaces, v)
		}
		rparen, perr := p.expect(tokRParen)
		if perr != nil {
			return Attribute{}, perr
		}
		return Attribute{span: Span{start, rparen.span.End}, Kind: AttrNs, Namespaces: namespaces}, nil
	case "resolve", "noredir", "onlyredir", "direct":
		var kind AttrKind
		switch name.text {
		case "resolve":
			kind = AttrResolve
		case "noredir":
			kind = AttrNoRedir
		case "onlyredir":
			kind = AttrOnlyRedir
		default:
			kind = AttrDirect
		}
		end := name.span.End
		// bare flags may be written with an empty argument list
		if p.tok.kind == tokLParen {
			if perr := p.advance(); perr != nil {
				return Attribute{}, perr
			}
			rparen, perr := p.expect(tokRParen)
			if perr != nil {
				return Attribute{}, perr
			}
			end = rparen.span.End
		}
		return Attribute{span: Span{start, end}, Kind: kind}, nil
	}
	return Attribute{}, &ParseError{Span: name.span, Kind: ExpectedToken, Detail: "modifier"}
}

// parseIntOrInf parses an unsigned integer or the keyword `inf`. An
// optional `+` is tolerated; a minus sign is a BadInteger — limits and
// depths are never negative, and the signed form belongs to `ns` alone.
func (p *parser) parseIntOrInf() (intorinf.IntOrInf, *ParseError) {
	if p.tok.kind == tokName && p.tok.text == "inf" {
		if perr := p.advance(); perr != nil {
			return intorinf.IntOrInf{}, perr
		}
		return intorinf.Inf, nil
	}
	if p.tok.kind == tokMinus {
		return intorinf.IntOrInf{}, &ParseError{Span: p.tok.span, Kind: BadInteger}
	}
	if p.tok.kind == tokPlus {
		if perr := p.advance(); perr != nil {
			return intorinf.IntOrInf{}, perr
		}
	}
	tok, perr := p.expect(tokInt)
	if perr != nil {
		return intorinf.IntOrInf{}, perr
	}
	return intorinf.Finite(tok.num), nil
}

// parseInt parses a possibly-signed decimal integer; only the `ns`
// attribute uses it, since namespace ids may be negative.
func (p *parser) parseInt() (int, *ParseError) {
	neg := false
	if p.tok.kind == tokMinus {
		neg = true
		if perr := p.advance(); perr != nil {
			return 0, perr
		}
	}
	tok, perr := p.expect(tokInt)
	if perr != nil {
		if neg {
			perr.Kind = BadInteger
		}
		return 0, perr
	}
	if neg {
		return -tok.num, nil
	}
	return tok.num, nil
}
