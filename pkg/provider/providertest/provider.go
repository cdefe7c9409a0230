// Copyright 2025 The Page List Bot Authors
// SPDX-License-Identifier: Apache-2.0

// Package providertest supplies a deterministic in-memory DataProvider
// for evaluator and scheduler tests: fixed result sets per query kind,
// scriptable warnings and failures, and a call log for asserting which
// remote queries an evaluation opened.
package providertest

import (
	"context"
	"sync"

	"github.com/pagelistbot/engine/pkg/provider"
)

// Provider implements provider.DataProvider from in-memory tables.
// Result slices are yielded in insertion order, standing in for provider
// order. The zero value is usable; tables may be populated directly.
type Provider struct {
	// Codec parses raw titles for PageInfoRaw. Required only when
	// PageInfoRaw is exercised.
	Codec *provider.Codec

	// Pages backs PageInfo lookups. Titles not present are reported as
	// non-existing pages.
	Pages map[provider.Title]provider.PageInfo

	// Per-kind result tables, keyed by the queried title.
	LinksTable     map[provider.Title][]provider.Item
	BacklinksTable map[provider.Title][]provider.Item
	EmbedsTable    map[provider.Title][]provider.Item
	PrefixTable    map[provider.Title][]provider.Item

	// MembersTable backs CategoryMembers, keyed by category. The
	// namespace filter of the config is applied the way the remote
	// would apply it.
	MembersTable map[provider.Title][]provider.PageInfo

	mu sync.Mutex
	// CategoryCalls records each CategoryMembers batch, in order.
	CategoryCalls [][]provider.Title
	// QueryCalls records every simple-query title, keyed by kind
	// ("links", "backlinks", "embeds", "prefix").
	QueryCalls map[string][]provider.Title
}

var _ provider.DataProvider = (*Provider)(nil)

// Page is a convenience constructor for an existing, non-redirect page
// with a known associated counterpart.
func Page(t provider.Title) provider.PageInfo {
	info := provider.PageInfo{
		Title:    provider.Ptr(t),
		Exists:   provider.Ptr(true),
		Redirect: provider.Ptr(false),
	}
	if assoc, ok := t.Associated(); ok {
		info.AssocTitle = provider.Ptr(assoc)
		info.AssocExists = provider.Ptr(true)
		info.AssocRedirect = provider.Ptr(false)
	}
	return info
}

// Add registers a page for PageInfo lookups.
func (p *Provider) Add(info provider.PageInfo) {
	if p.Pages == nil {
		p.Pages = map[provider.Title]provider.PageInfo{}
	}
	p.Pages[*info.Title] = info
}

func (p *Provider) record(kind string, t provider.Title) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.QueryCalls == nil {
		p.QueryCalls = map[string][]provider.Title{}
	}
	p.QueryCalls[kind] = append(p.QueryCalls[kind], t)
}

func (p *Provider) PageInfo(_ context.Context, titles []provider.Title) provider.Stream {
	items := make([]provider.Item, 0, len(titles))
	for _, t := range titles {
		if info, ok := p.Pages[t]; ok {
			items = append(items, provider.Ok(info))
			continue
		}
		items = append(items, provider.Ok(provider.PageInfo{
			Title:  provider.Ptr(t),
			Exists: provider.Ptr(false),
		}))
	}
	return provider.NewSliceStream(items...)
}

func (p *Provider) PageInfoRaw(ctx context.Context, raw []string) provider.Stream {
	items := make([]provider.Item, 0, len(raw))
	for _, r := range raw {
		t, err := p.Codec.ParseTitle(r)
		if err != nil {
			items = append(items, provider.Err(err))
			continue
		}
		st := p.PageInfo(ctx, []provider.Title{t})
		it, _ := st.Next(ctx)
		items = append(items, it)
	}
	return provider.NewSliceStream(items...)
}

func (p *Provider) Links(_ context.Context, t provider.Title, _ *provider.LinksConfig) provider.Stream {
	p.record("links", t)
	return provider.NewSliceStream(p.LinksTable[t]...)
}

func (p *Provider) Backlinks(_ context.Context, t provider.Title, _ *provider.BackLinksConfig) provider.Stream {
	p.record("backlinks", t)
	return provider.NewSliceStream(p.BacklinksTable[t]...)
}

func (p *Provider) Embeds(_ context.Context, t provider.Title, _ *provider.EmbedsConfig) provider.Stream {
	p.record("embeds", t)
	return provider.NewSliceStream(p.EmbedsTable[t]...)
}

func (p *Provider) CategoryMembers(_ context.Context, titles []provider.Title, cfg *provider.CategoryMembersConfig) provider.Stream {
	p.mu.Lock()
	p.CategoryCalls = append(p.CategoryCalls, append([]provider.Title(nil), titles...))
	p.mu.Unlock()

	var items []provider.Item
	for _, cat := range titles {
		for _, member := range p.MembersTable[cat] {
			if cfg.Namespace != nil && member.Title != nil && !cfg.Namespace[member.Title.Namespace] {
				continue
			}
			items = append(items, provider.Ok(member))
		}
	}
	return provider.NewSliceStream(items...)
}

func (p *Provider) Prefix(_ context.Context, t provider.Title, _ *provider.PrefixConfig) provider.Stream {
	p.record("prefix", t)
	return provider.NewSliceStream(p.PrefixTable[t]...)
}
