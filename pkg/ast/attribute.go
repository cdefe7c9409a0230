// Copyright 2025 The Page List Bot Authors
// SPDX-License-Identifier: Apache-2.0

package ast

import "github.com/pagelistbot/engine/pkg/intorinf"

// AttrKind enumerates the modifier attributes that can follow a query
// operator. The set is closed; which kinds an operator accepts is decided
// by the attribute resolver, not the parser.
type AttrKind int

const (
	AttrLimit AttrKind = iota
	AttrNs
	AttrDepth
	AttrResolve
	AttrNoRedir
	AttrOnlyRedir
	AttrDirect
)

func (k AttrKind) String() string {
	switch k {
	case AttrLimit:
		return "limit"
	case AttrNs:
		return "ns"
	case AttrDepth:
		return "depth"
	case AttrResolve:
		return "resolve"
	case AttrNoRedir:
		return "noredir"
	case AttrOnlyRedir:
		return "onlyredir"
	case AttrDirect:
		return "direct"
	}
	return "unknown"
}

// Attribute is one `.modifier` written after a query operator.
// Value is set for limit and depth, Namespaces for ns; the bare flags
// carry no payload.
type Attribute struct {
	span       Span
	Kind       AttrKind
	Value      intorinf.IntOrInf
	Namespaces []int
}

func (a Attribute) Span() Span { return a.span }
