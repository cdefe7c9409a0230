// Copyright 2025 The Page List Bot Authors
// SPDX-License-Identifier: Apache-2.0

// Package solver evaluates parsed expressions against a DataProvider.
//
// Every AST node compiles to a lazy stream of three-way items. Warnings
// interleave with pages; the first fatal error fuses the whole pipeline
// through the CutOnError wrapper at the top. Building a plan performs no
// remote work: queries open as the plan is pulled.
package solver

import (
	"context"

	"github.com/tidwall/btree"
	"go.uber.org/multierr"

	"github.com/pagelistbot/engine/pkg/ast"
	"github.com/pagelistbot/engine/pkg/intorinf"
	"github.com/pagelistbot/engine/pkg/provider"
)

// Solver compiles expressions into streaming plans and drives them.
type Solver struct {
	p provider.DataProvider
	// defaultLimit bounds each query operator that carries no limit
	// attribute of its own. limit(inf) suppresses the bound.
	defaultLimit intorinf.IntOrInf
}

// New returns a solver reading from p.
func New(p provider.DataProvider, defaultLimit intorinf.IntOrInf) *Solver {
	return &Solver{p: p, defaultLimit: defaultLimit}
}

// Answer is the outcome of a completed evaluation: the result titles in
// ascending order, plus every warning the pipeline surfaced.
type Answer struct {
	Titles   []provider.Title
	Warnings []error
}

// Check validates every operator's attribute list across the whole
// tree, reporting all semantic errors at once rather than stopping at
// the first. Compile stops at the first; Check exists so task runs can
// show a task author everything that is wrong with the expression.
func Check(expr ast.Expr) error {
	var errs error
	walk(expr, func(e ast.Expr) {
		var err error
		switch e := e.(type) {
		case *ast.Link:
			_, _, err = linksConfigFromAttrs(e.Attrs)
		case *ast.LinkTo:
			_, _, err = backlinksConfigFromAttrs(e.Attrs)
		case *ast.Embed:
			_, _, err = embedsConfigFromAttrs(e.Attrs)
		case *ast.InCat:
			_, _, _, err = categoryMembersConfigFromAttrs(e.Attrs)
		case *ast.Prefix:
			_, _, err = prefixConfigFromAttrs(e.Attrs)
		}
		errs = multierr.Append(errs, err)
	})
	return errs
}

func walk(expr ast.Expr, visit func(ast.Expr)) {
	visit(expr)
	switch e := expr.(type) {
	case *ast.And:
		walk(e.Left, visit)
		walk(e.Right, visit)
	case *ast.Add:
		walk(e.Left, visit)
		walk(e.Right, visit)
	case *ast.Sub:
		walk(e.Left, visit)
		walk(e.Right, visit)
	case *ast.Xor:
		walk(e.Left, visit)
		walk(e.Right, visit)
	case *ast.Paren:
		walk(e.Inner, visit)
	case *ast.Link:
		walk(e.Child, visit)
	case *ast.LinkTo:
		walk(e.Child, visit)
	case *ast.Embed:
		walk(e.Child, visit)
	case *ast.InCat:
		walk(e.Child, visit)
	case *ast.Prefix:
		walk(e.Child, visit)
	case *ast.Toggle:
		walk(e.Child, visit)
	}
}

// Compile turns an expression into a pull-ready stream with fuse
// semantics. Attribute resolution happens here; a semantic error means
// nothing was or will be queried.
func (s *Solver) Compile(expr ast.Expr) (provider.Stream, error) {
	inner, err := s.compile(expr)
	if err != nil {
		return nil, err
	}
	return &cutStream{src: inner}, nil
}

// Solve compiles and drains an expression. Cancelling ctx aborts the
// evaluation along with any in-flight remote call.
func (s *Solver) Solve(ctx context.Context, expr ast.Expr) (*Answer, error) {
	stream, err := s.Compile(expr)
	if err != nil {
		return nil, err
	}
	titles := btree.NewBTreeG[provider.Title](provider.Title.Less)
	answer := &Answer{}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		it, ok := stream.Next(ctx)
		if !ok {
			break
		}
		switch {
		case it.Fatal != nil:
			return nil, it.Fatal
		case it.Warning != nil:
			answer.Warnings = append(answer.Warnings, it.Warning)
		case it.Info.Title != nil:
			titles.Set(*it.Info.Title)
		}
	}
	titles.Scan(func(t provider.Title) bool {
		answer.Titles = append(answer.Titles, t)
		return true
	})
	return answer, nil
}

func (s *Solver) compile(expr ast.Expr) (provider.Stream, error) {
	switch e := expr.(type) {
	case *ast.Paren:
		return s.compile(e.Inner)
	case *ast.Page:
		titles := make([]string, len(e.Titles))
		for i, lit := range e.Titles {
			titles[i] = lit.Value
		}
		return &pageInfoStream{p: s.p, titles: titles, span: e.Span()}, nil
	case *ast.And:
		return s.compileSetOp(e.Left, e.Right, opIntersection)
	case *ast.Add:
		return s.compileSetOp(e.Left, e.Right, opUnion)
	case *ast.Sub:
		return s.compileSetOp(e.Left, e.Right, opDifference)
	case *ast.Xor:
		return s.compileSetOp(e.Left, e.Right, opSymmetricDifference)
	case *ast.Link:
		cfg, limit, err := linksConfigFromAttrs(e.Attrs)
		if err != nil {
			return nil, err
		}
		open := func(ctx context.Context, t provider.Title) provider.Stream {
			return s.p.Links(ctx, t, cfg)
		}
		return s.compileQuery(e.Child, open, limit, e.Span())
	case *ast.LinkTo:
		cfg, limit, err := backlinksConfigFromAttrs(e.Attrs)
		if err != nil {
			return nil, err
		}
		open := func(ctx context.Context, t provider.Title) provider.Stream {
			return s.p.Backlinks(ctx, t, cfg)
		}
		return s.compileQuery(e.Child, open, limit, e.Span())
	case *ast.Embed:
		cfg, limit, err := embedsConfigFromAttrs(e.Attrs)
		if err != nil {
			return nil, err
		}
		open := func(ctx context.Context, t provider.Title) provider.Stream {
			return s.p.Embeds(ctx, t, cfg)
		}
		return s.compileQuery(e.Child, open, limit, e.Span())
	case *ast.Prefix:
		cfg, limit, err := prefixConfigFromAttrs(e.Attrs)
		if err != nil {
			return nil, err
		}
		open := func(ctx context.Context, t provider.Title) provider.Stream {
			return s.p.Prefix(ctx, t, cfg)
		}
		return s.compileQuery(e.Child, open, limit, e.Span())
	case *ast.InCat:
		cfg, limit, depth, err := categoryMembersConfigFromAttrs(e.Attrs)
		if err != nil {
			return nil, err
		}
		child, err := s.compile(e.Child)
		if err != nil {
			return nil, err
		}
		var st provider.Stream = &categoryStream{
			src:      child,
			p:        s.p,
			cfg:      *cfg,
			maxDepth: depth,
			span:     e.Span(),
		}
		return s.bound(st, limit, e.Span()), nil
	case *ast.Toggle:
		child, err := s.compile(e.Child)
		if err != nil {
			return nil, err
		}
		return &toggleStream{src: child, span: e.Span()}, nil
	}
	// the parser produces no other node kinds
	panic("solver: unknown expression node")
}

func (s *Solver) compileSetOp(left, right ast.Expr, kind setOpKind) (provider.Stream, error) {
	l, err := s.compile(left)
	if err != nil {
		return nil, err
	}
	r, err := s.compile(right)
	if err != nil {
		return nil, err
	}
	return &setOpStream{left: l, right: r, kind: kind}, nil
}

func (s *Solver) compileQuery(child ast.Expr, open func(context.Context, provider.Title) provider.Stream, limit *intorinf.IntOrInf, span ast.Span) (provider.Stream, error) {
	src, err := s.compile(child)
	if err != nil {
		return nil, err
	}
	var st provider.Stream = &queryStream{src: src, open: open, span: span}
	return s.bound(st, limit, span), nil
}

// bound wraps a query stream in Unique, then Counted. The counted
// wrapper sits outside so the limit counts distinct pages; an infinite
// limit (explicit or inherited) suppresses it entirely.
func (s *Solver) bound(st provider.Stream, limit *intorinf.IntOrInf, span ast.Span) provider.Stream {
	effective := s.defaultLimit
	if limit != nil {
		effective = *limit
	}
	st = &uniqueStream{src: st, span: span}
	if effective.IsInf() {
		return st
	}
	return &countedStream{src: st, limit: effective.Int(), span: span}
}
