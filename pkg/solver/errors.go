// Copyright 2025 The Page List Bot Authors
// SPDX-License-Identifier: Apache-2.0

package solver

import (
	"errors"
	"fmt"

	"github.com/pagelistbot/engine/pkg/ast"
)

// ErrMissingTitle reports a page item that carries no title. Successful
// provider paths never produce one; seeing this means the provider broke
// its contract.
var ErrMissingTitle = errors.New("page information carries no title")

// DuplicateAttributeError: the same attribute kind appears twice on one
// operator.
type DuplicateAttributeError struct {
	Here      ast.Span
	FirstSeen ast.Span
}

func (e *DuplicateAttributeError) Error() string {
	return fmt.Sprintf("duplicate attribute at %s, first seen at %s", e.Here, e.FirstSeen)
}

// ConflictAttributeError: two mutually exclusive attributes appear on one
// operator (noredir with onlyredir).
type ConflictAttributeError struct {
	Here  ast.Span
	Other ast.Span
}

func (e *ConflictAttributeError) Error() string {
	return fmt.Sprintf("conflicting attribute at %s, conflicts with %s", e.Here, e.Other)
}

// InvalidAttributeError: the attribute is not legal for the host
// operator.
type InvalidAttributeError struct {
	Here ast.Span
}

func (e *InvalidAttributeError) Error() string {
	return fmt.Sprintf("invalid attribute at %s", e.Here)
}

// RuntimeError wraps a provider failure, or a title-parse failure during
// streaming, with the span of the operator it happened under. It fuses
// the evaluation.
type RuntimeError struct {
	Span ast.Span
	Err  error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error at %s: %v", e.Span, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// ResultLimitExceeded is the warning emitted when a counted stream
// truncates its output.
type ResultLimitExceeded struct {
	Span  ast.Span
	Limit int
}

func (e *ResultLimitExceeded) Error() string {
	return fmt.Sprintf("result limit %d exceeded at %s, output is truncated", e.Limit, e.Span)
}

// ProviderWarning wraps a recoverable provider warning with the span of
// the operator it happened under.
type ProviderWarning struct {
	Span ast.Span
	Warn error
}

func (e *ProviderWarning) Error() string {
	return fmt.Sprintf("warning at %s: %v", e.Span, e.Warn)
}

func (e *ProviderWarning) Unwrap() error { return e.Warn }
