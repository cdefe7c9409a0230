// Copyright 2025 The Page List Bot Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import "context"

// Item is a three-way result: a page, a recoverable warning, or a fatal
// error. Exactly one of the three is set; constructors enforce that.
// Warnings interleave with pages and never stop iteration; an error fuses
// the enclosing pipeline.
type Item struct {
	Info    PageInfo
	Warning error
	Fatal   error
}

// Ok wraps a page.
func Ok(info PageInfo) Item { return Item{Info: info} }

// Warn wraps a recoverable warning.
func Warn(err error) Item { return Item{Warning: err} }

// Err wraps a fatal error.
func Err(err error) Item { return Item{Fatal: err} }

// IsOk reports whether the item carries a page.
func (it Item) IsOk() bool { return it.Warning == nil && it.Fatal == nil }

// Stream is a lazy pull-based sequence of Items. Next returns false when
// the sequence is exhausted; after that every call returns false.
//
// Streams must be safe to abandon at any point: dropping a stream without
// draining it leaks nothing, and cancelling ctx aborts any in-flight
// remote call.
type Stream interface {
	Next(ctx context.Context) (Item, bool)
}

// SliceStream replays a fixed item list; handy for adapters and tests.
type SliceStream struct {
	items []Item
	pos   int
}

func NewSliceStream(items ...Item) *SliceStream {
	return &SliceStream{items: items}
}

func (s *SliceStream) Next(context.Context) (Item, bool) {
	if s.pos >= len(s.items) {
		return Item{}, false
	}
	it := s.items[s.pos]
	s.pos++
	return it, true
}

// Drain pulls a stream to exhaustion, returning everything it yielded.
func Drain(ctx context.Context, s Stream) []Item {
	var items []Item
	for {
		it, ok := s.Next(ctx)
		if !ok {
			return items
		}
		items = append(items, it)
	}
}
