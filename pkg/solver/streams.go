// Copyright 2025 The Page List Bot Authors
// SPDX-License-Identifier: Apache-2.0

package solver

import (
	"context"

	"github.com/pagelistbot/engine/pkg/ast"
	"github.com/pagelistbot/engine/pkg/provider"
)

// wrapItem attaches the operator's span to a provider-level warning or
// error. Solver-originated items already carry spans and pass through
// unchanged elsewhere.
func wrapItem(it provider.Item, span ast.Span) provider.Item {
	switch {
	case it.Fatal != nil:
		return provider.Err(&RuntimeError{Span: span, Err: it.Fatal})
	case it.Warning != nil:
		return provider.Warn(&ProviderWarning{Span: span, Warn: it.Warning})
	}
	return it
}

// pageInfoStream surfaces a page-literal lookup. The provider stream is
// opened on first pull so that building a plan performs no remote work.
type pageInfoStream struct {
	p      provider.DataProvider
	titles []string
	span   ast.Span

	inner provider.Stream
}

func (s *pageInfoStream) Next(ctx context.Context) (provider.Item, bool) {
	if s.inner == nil {
		s.inner = s.p.PageInfoRaw(ctx, s.titles)
	}
	it, ok := s.inner.Next(ctx)
	if !ok {
		return provider.Item{}, false
	}
	return wrapItem(it, s.span), true
}

// queryStream expands each page from the child into one paginated remote
// query, concatenating the results. open is a closure over the provider
// and the operator's resolved config.
type queryStream struct {
	src  provider.Stream
	open func(ctx context.Context, t provider.Title) provider.Stream
	span ast.Span

	cur provider.Stream
}

func (s *queryStream) Next(ctx context.Context) (provider.Item, bool) {
	for {
		if s.cur != nil {
			it, ok := s.cur.Next(ctx)
			if ok {
				return wrapItem(it, s.span), true
			}
			s.cur = nil
		}
		it, ok := s.src.Next(ctx)
		if !ok {
			return provider.Item{}, false
		}
		if !it.IsOk() {
			return it, true
		}
		if it.Info.Title == nil {
			return provider.Err(&RuntimeError{Span: s.span, Err: ErrMissingTitle}), true
		}
		s.cur = s.open(ctx, *it.Info.Title)
	}
}

// uniqueStream suppresses pages whose title has been yielded before.
// First occurrence wins; warnings and errors pass through uncounted.
type uniqueStream struct {
	src  provider.Stream
	span ast.Span

	yielded map[provider.Title]bool
}

func (s *uniqueStream) Next(ctx context.Context) (provider.Item, bool) {
	if s.yielded == nil {
		s.yielded = map[provider.Title]bool{}
	}
	for {
		it, ok := s.src.Next(ctx)
		if !ok {
			return provider.Item{}, false
		}
		if !it.IsOk() {
			return it, true
		}
		if it.Info.Title == nil {
			return provider.Err(&RuntimeError{Span: s.span, Err: ErrMissingTitle}), true
		}
		if s.yielded[*it.Info.Title] {
			continue
		}
		s.yielded[*it.Info.Title] = true
		return it, true
	}
}

// countedStream caps the number of successful items. On the (limit+1)th
// page it emits one ResultLimitExceeded warning and terminates.
type countedStream struct {
	src   provider.Stream
	limit int
	span  ast.Span

	count int
	done  bool
}

func (s *countedStream) Next(ctx context.Context) (provider.Item, bool) {
	if s.done {
		return provider.Item{}, false
	}
	for {
		it, ok := s.src.Next(ctx)
		if !ok {
			s.done = true
			return provider.Item{}, false
		}
		if !it.IsOk() {
			return it, true
		}
		s.count++
		if s.count > s.limit {
			s.done = true
			return provider.Warn(&ResultLimitExceeded{Span: s.span, Limit: s.limit}), true
		}
		return it, true
	}
}

// cutStream fuses on the first error: the error is yielded, then the
// stream produces nothing further.
type cutStream struct {
	src  provider.Stream
	done bool
}

func (s *cutStream) Next(ctx context.Context) (provider.Item, bool) {
	if s.done {
		return provider.Item{}, false
	}
	it, ok := s.src.Next(ctx)
	if !ok {
		s.done = true
		return provider.Item{}, false
	}
	if it.Fatal != nil {
		s.done = true
	}
	return it, true
}

// toggleStream swaps every page with its associated counterpart and
// drops results that land in a virtual namespace. No page has an
// associated page there, so a swapped title below zero denotes a page
// that cannot exist.
type toggleStream struct {
	src  provider.Stream
	span ast.Span
}

func (s *toggleStream) Next(ctx context.Context) (provider.Item, bool) {
	for {
		it, ok := s.src.Next(ctx)
		if !ok {
			return provider.Item{}, false
		}
		if !it.IsOk() {
			return it, true
		}
		swapped := it.Info.Swapped()
		if swapped.Title == nil {
			return provider.Err(&RuntimeError{Span: s.span, Err: ErrMissingTitle}), true
		}
		if swapped.Title.IsVirtual() {
			continue
		}
		return provider.Ok(swapped), true
	}
}
