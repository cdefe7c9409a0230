// Copyright 2025 The Page List Bot Authors
// SPDX-License-Identifier: Apache-2.0

// Package intorinf provides a small non-negative-integer-or-infinity
// scalar used for result limits and recursion depths.
package intorinf

import (
	"fmt"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// IntOrInf is either a finite non-negative integer or infinity.
// The zero value is Finite(0).
type IntOrInf struct {
	inf bool
	val int
}

// Inf is the infinite value.
var Inf = IntOrInf{inf: true}

// Finite returns a finite value. Negative inputs saturate to Inf, matching
// the JSON decoding convention below.
func Finite(v int) IntOrInf {
	if v < 0 {
		return Inf
	}
	return IntOrInf{val: v}
}

// IsInf reports whether the value is infinite.
func (n IntOrInf) IsInf() bool { return n.inf }

// Int returns the finite value. It panics on Inf; callers check IsInf first.
func (n IntOrInf) Int() int {
	if n.inf {
		panic("intorinf: Int called on Inf")
	}
	return n.val
}

// Cmp compares two values. Inf is greater than every finite value.
func (n IntOrInf) Cmp(other IntOrInf) int {
	switch {
	case n.inf && other.inf:
		return 0
	case n.inf:
		return 1
	case other.inf:
		return -1
	case n.val < other.val:
		return -1
	case n.val > other.val:
		return 1
	}
	return 0
}

// Add returns the saturating sum of the two values.
func (n IntOrInf) Add(other IntOrInf) IntOrInf {
	if n.inf || other.inf {
		return Inf
	}
	return Finite(n.val + other.val)
}

func (n IntOrInf) String() string {
	if n.inf {
		return "inf"
	}
	return strconv.Itoa(n.val)
}

// Parse reads a decimal integer or the keyword "inf" (ASCII
// case-insensitive).
func Parse(s string) (IntOrInf, error) {
	if strings.EqualFold(s, "inf") {
		return Inf, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return IntOrInf{}, fmt.Errorf("intorinf: %q is neither an integer nor \"inf\"", s)
	}
	return Finite(v), nil
}

// UnmarshalJSON accepts a number or the string "inf". Negative numbers
// decode to Inf, the convention the on-wiki task pages rely on.
func (n *IntOrInf) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if len(trimmed) > 1 && trimmed[0] == '"' {
		var s string
		if err := jsoniter.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := Parse(s)
		if err != nil {
			return err
		}
		*n = v
		return nil
	}
	var v int
	if err := jsoniter.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = Finite(v)
	return nil
}

// MarshalJSON renders finite values as numbers and Inf as "inf".
func (n IntOrInf) MarshalJSON() ([]byte, error) {
	if n.inf {
		return []byte(`"inf"`), nil
	}
	return []byte(strconv.Itoa(n.val)), nil
}
