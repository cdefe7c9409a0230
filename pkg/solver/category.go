// Copyright 2025 The Page List Bot Authors
// SPDX-License-Identifier: Apache-2.0

package solver

import (
	"context"
	"sort"

	"github.com/pagelistbot/engine/pkg/ast"
	"github.com/pagelistbot/engine/pkg/intorinf"
	"github.com/pagelistbot/engine/pkg/provider"
)

// categoryStream walks category trees breadth-first. For every page from
// the child it expands membership layer by layer: one batched remote call
// per depth step asking for the members of the whole frontier.
//
// While the walker is below its depth bound, the namespace filter sent to
// the remote is augmented with the category namespace so subcategories
// flow back even when the caller's filter excludes them; whether a member
// is emitted is always decided against the caller's own filter. Within a
// layer items keep provider order; parents precede children across
// layers.
type categoryStream struct {
	src      provider.Stream
	p        provider.DataProvider
	cfg      provider.CategoryMembersConfig
	maxDepth intorinf.IntOrInf
	span     ast.Span

	walking     bool
	depth       int
	visited     map[provider.Title]bool
	frontier    []provider.Title
	newFrontier []provider.Title
	layer       provider.Stream
}

func (s *categoryStream) belowDepthBound() bool {
	return intorinf.Finite(s.depth).Cmp(s.maxDepth) < 0
}

func (s *categoryStream) admits(t provider.Title) bool {
	return s.cfg.Namespace == nil || s.cfg.Namespace[t.Namespace]
}

func (s *categoryStream) Next(ctx context.Context) (provider.Item, bool) {
	for {
		if s.layer != nil {
			it, ok := s.layer.Next(ctx)
			if ok {
				if !it.IsOk() {
					return wrapItem(it, s.span), true
				}
				t := it.Info.Title
				if t == nil {
					return provider.Err(&RuntimeError{Span: s.span, Err: ErrMissingTitle}), true
				}
				if t.IsCategory() && !s.visited[*t] && s.belowDepthBound() {
					s.visited[*t] = true
					s.newFrontier = append(s.newFrontier, *t)
				}
				if s.admits(*t) {
					return it, true
				}
				continue
			}
			// layer exhausted, descend
			s.layer = nil
			s.frontier = s.newFrontier
			s.newFrontier = nil
			s.depth++
		}

		if s.walking && len(s.frontier) > 0 {
			layerCfg := s.cfg.Clone()
			if s.belowDepthBound() && layerCfg.Namespace != nil {
				layerCfg.Namespace[provider.NamespaceCategory] = true
			}
			batch := s.frontier
			s.frontier = nil
			sort.Slice(batch, func(i, j int) bool { return batch[i].Less(batch[j]) })
			s.layer = s.p.CategoryMembers(ctx, batch, &layerCfg)
			continue
		}
		s.walking = false

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
		root := *it.Info.Title
		s.walking = true
		s.depth = 0
		s.visited = map[provider.Title]bool{root: true}
		s.frontier = []provider.Title{root}
		s.newFrontier = nil
	}
}
