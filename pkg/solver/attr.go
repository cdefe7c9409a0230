// Copyright 2025 The Page List Bot Authors
// SPDX-License-Identifier: Apache-2.0

package solver

import (
	"github.com/pagelistbot/engine/pkg/ast"
	"github.com/pagelistbot/engine/pkg/intorinf"
	"github.com/pagelistbot/engine/pkg/provider"
)

// attrFold tracks which attribute kinds have been consumed while folding
// an operator's attribute list, so duplicates and conflicts report both
// spans involved.
type attrFold struct {
	seen map[ast.AttrKind]ast.Span
}

func newAttrFold() attrFold {
	return attrFold{seen: map[ast.AttrKind]ast.Span{}}
}

func (f attrFold) take(a ast.Attribute) error {
	if first, ok := f.seen[a.Kind]; ok {
		return &DuplicateAttributeError{Here: a.Span(), FirstSeen: first}
	}
	f.seen[a.Kind] = a.Span()
	return nil
}

func (f attrFold) takeRedirFilter(a ast.Attribute) error {
	conflicting := ast.AttrOnlyRedir
	if a.Kind == ast.AttrOnlyRedir {
		conflicting = ast.AttrNoRedir
	}
	if other, ok := f.seen[conflicting]; ok {
		return &ConflictAttributeError{Here: a.Span(), Other: other}
	}
	return f.take(a)
}

func namespaceSet(ids []int) map[int]bool {
	ns := make(map[int]bool, len(ids))
	for _, id := range ids {
		ns[id] = true
	}
	return ns
}

// linksConfigFromAttrs folds a link operator's attributes.
func linksConfigFromAttrs(attrs []ast.Attribute) (*provider.LinksConfig, *intorinf.IntOrInf, error) {
	cfg := &provider.LinksConfig{}
	var limit *intorinf.IntOrInf
	fold := newAttrFold()
	for _, a := range attrs {
		switch a.Kind {
		case ast.AttrLimit:
			if err := fold.take(a); err != nil {
				return nil, nil, err
			}
			v := a.Value
			limit = &v
		case ast.AttrResolve:
			if err := fold.take(a); err != nil {
				return nil, nil, err
			}
			cfg.Resolve = true
		case ast.AttrNs:
			if err := fold.take(a); err != nil {
				return nil, nil, err
			}
			cfg.Namespace = namespaceSet(a.Namespaces)
		default:
			return nil, nil, &InvalidAttributeError{Here: a.Span()}
		}
	}
	return cfg, limit, nil
}

// backlinksConfigFromAttrs folds a linkto operator's attributes.
func backlinksConfigFromAttrs(attrs []ast.Attribute) (*provider.BackLinksConfig, *intorinf.IntOrInf, error) {
	cfg := &provider.BackLinksConfig{}
	var limit *intorinf.IntOrInf
	fold := newAttrFold()
	for _, a := range attrs {
		switch a.Kind {
		case ast.AttrLimit:
			if err := fold.take(a); err != nil {
				return nil, nil, err
			}
			v := a.Value
			limit = &v
		case ast.AttrResolve:
			if err := fold.take(a); err != nil {
				return nil, nil, err
			}
			cfg.Resolve = true
		case ast.AttrNs:
			if err := fold.take(a); err != nil {
				return nil, nil, err
			}
			cfg.Namespace = namespaceSet(a.Namespaces)
		case ast.AttrNoRedir:
			if err := fold.takeRedirFilter(a); err != nil {
				return nil, nil, err
			}
			cfg.Filter = provider.RedirectNone
		case ast.AttrOnlyRedir:
			if err := fold.takeRedirFilter(a); err != nil {
				return nil, nil, err
			}
			cfg.Filter = provider.RedirectOnly
		case ast.AttrDirect:
			if err := fold.take(a); err != nil {
				return nil, nil, err
			}
			cfg.Direct = true
		default:
			return nil, nil, &InvalidAttributeError{Here: a.Span()}
		}
	}
	return cfg, limit, nil
}

// embedsConfigFromAttrs folds an embed operator's attributes.
func embedsConfigFromAttrs(attrs []ast.Attribute) (*provider.EmbedsConfig, *intorinf.IntOrInf, error) {
	cfg := &provider.EmbedsConfig{}
	var limit *intorinf.IntOrInf
	fold := newAttrFold()
	for _, a := range attrs {
		switch a.Kind {
		case ast.AttrLimit:
			if err := fold.take(a); err != nil {
				return nil, nil, err
			}
			v := a.Value
			limit = &v
		case ast.AttrResolve:
			if err := fold.take(a); err != nil {
				return nil, nil, err
			}
			cfg.Resolve = true
		case ast.AttrNs:
			if err := fold.take(a); err != nil {
				return nil, nil, err
			}
			cfg.Namespace = namespaceSet(a.Namespaces)
		case ast.AttrNoRedir:
			if err := fold.takeRedirFilter(a); err != nil {
				return nil, nil, err
			}
			cfg.Filter = provider.RedirectNone
		case ast.AttrOnlyRedir:
			if err := fold.takeRedirFilter(a); err != nil {
				return nil, nil, err
			}
			cfg.Filter = provider.RedirectOnly
		default:
			return nil, nil, &InvalidAttributeError{Here: a.Span()}
		}
	}
	return cfg, limit, nil
}

// categoryMembersConfigFromAttrs folds an incat operator's attributes,
// additionally returning the recursion depth (default 0, no recursion).
func categoryMembersConfigFromAttrs(attrs []ast.Attribute) (*provider.CategoryMembersConfig, *intorinf.IntOrInf, intorinf.IntOrInf, error) {
	cfg := &provider.CategoryMembersConfig{}
	var limit *intorinf.IntOrInf
	depth := intorinf.Finite(0)
	fold := newAttrFold()
	for _, a := range attrs {
		switch a.Kind {
		case ast.AttrLimit:
			if err := fold.take(a); err != nil {
				return nil, nil, depth, err
			}
			v := a.Value
			limit = &v
		case ast.AttrResolve:
			if err := fold.take(a); err != nil {
				return nil, nil, depth, err
			}
			cfg.Resolve = true
		case ast.AttrNs:
			if err := fold.take(a); err != nil {
				return nil, nil, depth, err
			}
			cfg.Namespace = namespaceSet(a.Namespaces)
		case ast.AttrDepth:
			if err := fold.take(a); err != nil {
				return nil, nil, depth, err
			}
			depth = a.Value
		default:
			return nil, nil, depth, &InvalidAttributeError{Here: a.Span()}
		}
	}
	return cfg, limit, depth, nil
}

// prefixConfigFromAttrs folds a prefix operator's attributes. `resolve`
// is accepted and ignored: the prefix query has no redirect resolution on
// the wire, and rejecting it would break existing task pages.
func prefixConfigFromAttrs(attrs []ast.Attribute) (*provider.PrefixConfig, *intorinf.IntOrInf, error) {
	cfg := &provider.PrefixConfig{}
	var limit *intorinf.IntOrInf
	fold := newAttrFold()
	for _, a := range attrs {
		switch a.Kind {
		case ast.AttrResolve:
			if err := fold.take(a); err != nil {
				return nil, nil, err
			}
			cfg.Resolve = true
		case ast.AttrLimit:
			if err := fold.take(a); err != nil {
				return nil, nil, err
			}
			v := a.Value
			limit = &v
		case ast.AttrNs:
			if err := fold.take(a); err != nil {
				return nil, nil, err
			}
			cfg.Namespace = namespaceSet(a.Namespaces)
		case ast.AttrNoRedir:
			if err := fold.takeRedirFilter(a); err != nil {
				return nil, nil, err
			}
			cfg.Filter = provider.RedirectNone
		case ast.AttrOnlyRedir:
			if err := fold.takeRedirFilter(a); err != nil {
				return nil, nil, err
			}
			cfg.Filter = provider.RedirectOnly
		default:
			return nil, nil, &InvalidAttributeError{Here: a.Span()}
		}
	}
	return cfg, limit, nil
}
