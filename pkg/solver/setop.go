// Copyright 2025 The Page List Bot Authors
// SPDX-License-Identifier: Apache-2.0

package solver

import (
	"context"

	"github.com/sourcegraph/conc"
	"github.com/tidwall/btree"

	"github.com/pagelistbot/engine/pkg/provider"
)

type setOpKind int

const (
	opIntersection setOpKind = iota
	opUnion
	opDifference
	opSymmetricDifference
)

// setOpStream evaluates a binary set operator eagerly: both operands are
// polled concurrently into title-ordered sets, warnings and errors
// propagate as soon as a side produces them, and once both sides close
// cleanly the set-algebra result is emitted in ascending title order.
type setOpStream struct {
	left, right provider.Stream
	kind        setOpKind

	started bool
	queue   []provider.Item
}

func pageInfoLess(a, b provider.PageInfo) bool { return a.Compare(b) < 0 }

func (s *setOpStream) Next(ctx context.Context) (provider.Item, bool) {
	if !s.started {
		s.started = true
		s.materialize(ctx)
	}
	if len(s.queue) == 0 {
		return provider.Item{}, false
	}
	it := s.queue[0]
	s.queue = s.queue[1:]
	return it, true
}

type taggedItem struct {
	item  provider.Item
	right bool
}

// materialize drains both operands concurrently. The first fatal error
// cancels the other side; the remaining items are discarded unseen.
func (s *setOpStream) materialize(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := make(chan taggedItem)
	var wg conc.WaitGroup
	drain := func(src provider.Stream, right bool) func() {
		return func() {
			for {
				it, ok := src.Next(cctx)
				if !ok {
					return
				}
				select {
				case ch <- taggedItem{item: it, right: right}:
				case <-cctx.Done():
					return
				}
			}
		}
	}
	wg.Go(drain(s.left, false))
	wg.Go(drain(s.right, true))
	go func() {
		wg.Wait()
		close(ch)
	}()

	left := btree.NewBTreeG[provider.PageInfo](pageInfoLess)
	right := btree.NewBTreeG[provider.PageInfo](pageInfoLess)
	var fatal *provider.Item
	for ti := range ch {
		if fatal != nil {
			continue // fused; let the pollers wind down
		}
		switch {
		case ti.item.Fatal != nil:
			it := ti.item
			fatal = &it
			cancel()
		case ti.item.Warning != nil:
			s.queue = append(s.queue, ti.item)
		case ti.right:
			right.Set(ti.item.Info)
		default:
			left.Set(ti.item.Info)
		}
	}
	if fatal != nil {
		s.queue = append(s.queue, *fatal)
		return
	}
	s.emit(left, right)
}

func (s *setOpStream) emit(left, right *btree.BTreeG[provider.PageInfo]) {
	has := func(set *btree.BTreeG[provider.PageInfo], info provider.PageInfo) bool {
		_, ok := set.Get(info)
		return ok
	}
	switch s.kind {
	case opIntersection:
		left.Scan(func(info provider.PageInfo) bool {
			if has(right, info) {
				s.queue = append(s.queue, provider.Ok(info))
			}
			return true
		})
	case opUnion:
		merged := btree.NewBTreeG[provider.PageInfo](pageInfoLess)
		left.Scan(func(info provider.PageInfo) bool { merged.Set(info); return true })
		right.Scan(func(info provider.PageInfo) bool {
			if !has(merged, info) {
				merged.Set(info)
			}
			return true
		})
		merged.Scan(func(info provider.PageInfo) bool {
			s.queue = append(s.queue, provider.Ok(info))
			return true
		})
	case opDifference:
		left.Scan(func(info provider.PageInfo) bool {
			if !has(right, info) {
				s.queue = append(s.queue, provider.Ok(info))
			}
			return true
		})
	case opSymmetricDifference:
		merged := btree.NewBTreeG[provider.PageInfo](pageInfoLess)
		left.Scan(func(info provider.PageInfo) bool {
			if !has(right, info) {
				merged.Set(info)
			}
			return true
		})
		right.Scan(func(info provider.PageInfo) bool {
			if !has(left, info) {
				merged.Set(info)
			}
			return true
		})
		merged.Scan(func(info provider.PageInfo) bool {
			s.queue = append(s.queue, provider.Ok(info))
			return true
		})
	}
}
