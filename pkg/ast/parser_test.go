// Copyright 2025 The Page List Bot Authors
// SPDX-License-Identifier: Apache-2.0

package ast_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagelistbot/engine/pkg/ast"
)

// sexpr renders a tree in a compact comparable form.
func sexpr(e ast.Expr) string {
	switch e := e.(type) {
	case *ast.And:
		return fmt.Sprintf("(and %s %s)", sexpr(e.Left), sexpr(e.Right))
	case *ast.Add:
		return fmt.Sprintf("(add %s %s)", sexpr(e.Left), sexpr(e.Right))
	case *ast.Sub:
		return fmt.Sprintf("(sub %s %s)", sexpr(e.Left), sexpr(e.Right))
	case *ast.Xor:
		return fmt.Sprintf("(xor %s %s)", sexpr(e.Left), sexpr(e.Right))
	case *ast.Paren:
		return fmt.Sprintf("(paren %s)", sexpr(e.Inner))
	case *ast.Page:
		vals := make([]string, len(e.Titles))
		for i, t := range e.Titles {
			vals[i] = fmt.Sprintf("%q", t.Value)
		}
		return fmt.Sprintf("(page %s)", strings.Join(vals, " "))
	case *ast.Link:
		return fmt.Sprintf("(link %s%s)", sexpr(e.Child), attrsExpr(e.Attrs))
	case *ast.LinkTo:
		return fmt.Sprintf("(linkto %s%s)", sexpr(e.Child), attrsExpr(e.Attrs))
	case *ast.Embed:
		return fmt.Sprintf("(embed %s%s)", sexpr(e.Child), attrsExpr(e.Attrs))
	case *ast.InCat:
		return fmt.Sprintf("(incat %s%s)", sexpr(e.Child), attrsExpr(e.Attrs))
	case *ast.Prefix:
		return fmt.Sprintf("(prefix %s%s)", sexpr(e.Child), attrsExpr(e.Attrs))
	case *ast.Toggle:
		return fmt.Sprintf("(toggle %s)", sexpr(e.Child))
	}
	return "?"
}

func attrsExpr(attrs []ast.Attribute) string {
	var sb strings.Builder
	for _, a := range attrs {
		switch a.Kind {
		case ast.AttrLimit, ast.AttrDepth:
			fmt.Fprintf(&sb, " .%s(%s)", a.Kind, a.Value)
		case ast.AttrNs:
			ns := make([]string, len(a.Namespaces))
			for i, n := range a.Namespaces {
				ns[i] = fmt.Sprint(n)
			}
			fmt.Fprintf(&sb, " .ns(%s)", strings.Join(ns, ","))
		default:
			fmt.Fprintf(&sb, " .%s", a.Kind)
		}
	}
	return sb.String()
}

func TestParse(t *testing.T) {
	for _, tt := range []struct {
		src  string
		want string
	}{
		{`"A"`, `(page "A")`},
		{`"A","B" , "C"`, `(page "A" "B" "C")`},
		{`page("A", "B")`, `(page "A" "B")`},
		{`PAGE("A")`, `(page "A")`},
		// precedence cascade: + - lowest, then ^, then &
		{`"A" + "B" & "C"`, `(add (page "A") (and (page "B") (page "C")))`},
		{`"A" & "B" ^ "C"`, `(xor (and (page "A") (page "B")) (page "C"))`},
		{`"A" ^ "B" - "C"`, `(sub (xor (page "A") (page "B")) (page "C"))`},
		{`"A" - "B" + "C"`, `(add (sub (page "A") (page "B")) (page "C"))`},
		{`("A" + "B") & "C"`, `(and (paren (add (page "A") (page "B"))) (page "C"))`},
		{`link("X")`, `(link (page "X"))`},
		{`LinkTo ( "X" )`, `(linkto (page "X"))`},
		{`link("X").ns(0,1).limit(30)`, `(link (page "X") .ns(0,1) .limit(30))`},
		{`link("X").limit(inf)`, `(link (page "X") .limit(inf))`},
		{`link("X").limit(+5)`, `(link (page "X") .limit(5))`},
		{`link("X").limit(INF)`, `(link (page "X") .limit(inf))`},
		{`linkto("X").noredir.direct()`, `(linkto (page "X") .noredir .direct)`},
		{`incat("C").depth(2).ns(-2,14)`, `(incat (page "C") .depth(2) .ns(-2,14))`},
		{`prefix("User:Foo").onlyredir`, `(prefix (page "User:Foo") .onlyredir)`},
		{`embed("T").resolve()`, `(embed (page "T") .resolve)`},
		{`toggle(incat("C"))`, `(toggle (incat (page "C")))`},
		{`link(linkto("X") + "Y").limit(5)`, `(link (add (linkto (page "X")) (page "Y")) .limit(5))`},
		// string escapes
		{`"a\"b"`, `(page "a\"b")`},
		{`"a\\b"`, `(page "a\\b")`},
		{`"a\u0041b"`, `(page "aAb")`},
		{`"tab\there"`, `(page "tab\there")`},
		{"\"one \\\n  two\"", `(page "one two")`},
	} {
		got, err := ast.Parse(tt.src)
		require.NoError(t, err, tt.src)
		assert.Equal(t, tt.want, sexpr(got), tt.src)
	}
}

func TestParseErrors(t *testing.T) {
	for _, tt := range []struct {
		src  string
		kind ast.ParseErrorKind
	}{
		{``, ast.ExpectedToken},
		{`"A" +`, ast.ExpectedToken},
		{`link("X"`, ast.ExpectedToken},
		{`link "X")`, ast.ExpectedToken},
		{`"A" "B"`, ast.TrailingInput},
		{`"A" , `, ast.ExpectedToken},
		{`"A" ) `, ast.TrailingInput},
		{`frob("X")`, ast.UnknownOperator},
		{`"unterminated`, ast.UnterminatedString},
		{`"bad escape \q"`, ast.ExpectedToken},
		{`link("X").limit(x)`, ast.ExpectedToken},
		{`link("X").limit(-)`, ast.BadInteger},
		{`link("X").limit(-5)`, ast.BadInteger},
		{`incat("C").depth(-3)`, ast.BadInteger},
		{`link("X").wibble(3)`, ast.ExpectedToken},
		{`toggle("X").limit(3)`, ast.TrailingInput},
	} {
		_, err := ast.Parse(tt.src)
		require.Error(t, err, tt.src)
		var perr *ast.ParseError
		require.ErrorAs(t, err, &perr, tt.src)
		assert.Equal(t, tt.kind, perr.Kind, tt.src)
	}
}

func TestParseSpans(t *testing.T) {
	src := `"A" + link("B").limit(2)`
	got, err := ast.Parse(src)
	require.NoError(t, err)

	add, ok := got.(*ast.Add)
	require.True(t, ok)
	assert.Equal(t, ast.Span{Start: 0, End: len(src)}, add.Span())
	assert.Equal(t, `"A"`, add.Left.Span().Slice(src))
	assert.Equal(t, `link("B").limit(2)`, add.Right.Span().Slice(src))

	link, ok := add.Right.(*ast.Link)
	require.True(t, ok)
	require.Len(t, link.Attrs, 1)
	assert.Equal(t, `.limit(2)`, link.Attrs[0].Span().Slice(src))
	assert.Equal(t, `"B"`, link.Child.Span().Slice(src))
}

func TestParseErrorSpanPointsAtOffender(t *testing.T) {
	src := `"A" ^ frobnicate("B")`
	_, err := ast.Parse(src)
	var perr *ast.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ast.UnknownOperator, perr.Kind)
	assert.Equal(t, "frobnicate", perr.Span.Slice(src))
}
