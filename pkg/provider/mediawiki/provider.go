// Copyright 2025 The Page List Bot Authors
// SPDX-License-Identifier: Apache-2.0

package mediawiki

import (
	"context"
	"fmt"
	"sort"

	"github.com/pagelistbot/engine/pkg/provider"
)

// inProps asks prop=info for the associated-page fields the evaluator
// consumes.
const inProps = "associatedpage|subjectid|talkid"

// batch sizes for titles= lookups; the apihighlimits right raises the
// server-side cap.
const (
	batchDefault    = 50
	batchHighLimits = 500
)

// Provider implements provider.DataProvider over one wiki's Action API.
type Provider struct {
	client     *Client
	codec      *provider.Codec
	highLimits bool
}

var _ provider.DataProvider = (*Provider)(nil)

// Option adjusts a Provider.
type Option func(*Provider)

// WithHighLimits widens page-info batches to the apihighlimits cap.
func WithHighLimits(on bool) Option {
	return func(p *Provider) { p.highLimits = on }
}

// New returns a provider reading through client with titles
// canonicalized by codec.
func New(client *Client, codec *provider.Codec, opts ...Option) *Provider {
	p := &Provider{client: client, codec: codec}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// pageStream drives one paginated generator query. Every response page
// contributes its warnings, then its items; the continuation map is
// opaque and carried verbatim into the next request. Zero-item pages
// with a non-empty continuation (miser mode) keep the stream going.
// A request-level failure surfaces as one Err item and ends the stream.
type pageStream struct {
	p      *Provider
	params map[string]string
	admit  func(provider.Title) bool

	cont map[string]string
	buf  []provider.Item
	pos  int
	done bool
}

func (s *pageStream) Next(ctx context.Context) (provider.Item, bool) {
	for {
		if s.pos < len(s.buf) {
			it := s.buf[s.pos]
			s.pos++
			return it, true
		}
		if s.done {
			return provider.Item{}, false
		}

		params := make(map[string]string, len(s.params)+len(s.cont))
		for k, v := range s.params {
			params[k] = v
		}
		for k, v := range s.cont {
			params[k] = v
		}
		var resp queryResponse
		if err := s.p.client.Get(ctx, params, &resp); err != nil {
			s.done = true
			return provider.Err(err), true
		}

		s.buf = warningItems(&resp)
		s.pos = 0
		for _, item := range resp.Query.Pages {
			info, err := pageInfoFromItem(s.p.codec, item)
			if err != nil {
				s.buf = append(s.buf, provider.Err(err))
				continue
			}
			if s.admit != nil && !s.admit(*info.Title) {
				continue
			}
			s.buf = append(s.buf, provider.Ok(info))
		}

		s.cont = resp.Continue
		if len(s.cont) == 0 {
			s.done = true
		}
	}
}

// concatStream chains sub-streams, opening each lazily.
type concatStream struct {
	open []func(ctx context.Context) provider.Stream
	idx  int
	cur  provider.Stream
}

func (s *concatStream) Next(ctx context.Context) (provider.Item, bool) {
	for {
		if s.cur == nil {
			if s.idx >= len(s.open) {
				return provider.Item{}, false
			}
			s.cur = s.open[s.idx](ctx)
			s.idx++
		}
		it, ok := s.cur.Next(ctx)
		if ok {
			return it, true
		}
		s.cur = nil
	}
}

func (p *Provider) batchSize() int {
	if p.highLimits {
		return batchHighLimits
	}
	return batchDefault
}

func namespaceFilter(ns map[int]bool) func(provider.Title) bool {
	if ns == nil {
		return nil
	}
	return func(t provider.Title) bool { return ns[t.Namespace] }
}

func sortedNamespaces(ns map[int]bool) []int {
	out := make([]int, 0, len(ns))
	for id := range ns {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// PageInfo looks up canonical titles in server-capped batches.
func (p *Provider) PageInfo(ctx context.Context, titles []provider.Title) provider.Stream {
	size := p.batchSize()
	var open []func(ctx context.Context) provider.Stream
	for start := 0; start < len(titles); start += size {
		end := start + size
		if end > len(titles) {
			end = len(titles)
		}
		chunk := titles[start:end]
		open = append(open, func(context.Context) provider.Stream {
			joined := ""
			for i, t := range chunk {
				if i > 0 {
					joined += "|"
				}
				joined += p.codec.Pretty(t)
			}
			return &pageStream{p: p, params: map[string]string{
				"action": "query",
				"prop":   "info",
				"inprop": inProps,
				"titles": joined,
			}}
		})
	}
	return &concatStream{open: open}
}

// PageInfoRaw canonicalizes raw page names first; a name that does not
// parse surfaces as an Err item ahead of the lookups.
func (p *Provider) PageInfoRaw(ctx context.Context, raw []string) provider.Stream {
	var bad []provider.Item
	titles := make([]provider.Title, 0, len(raw))
	for _, r := range raw {
		t, err := p.codec.ParseTitle(r)
		if err != nil {
			bad = append(bad, provider.Err(err))
			continue
		}
		titles = append(titles, t)
	}
	lookup := p.PageInfo(ctx, titles)
	if len(bad) == 0 {
		return lookup
	}
	return &concatStream{open: []func(context.Context) provider.Stream{
		func(context.Context) provider.Stream { return provider.NewSliceStream(bad...) },
		func(context.Context) provider.Stream { return lookup },
	}}
}

// Links streams `generator=links` keyed by t.
func (p *Provider) Links(_ context.Context, t provider.Title, cfg *provider.LinksConfig) provider.Stream {
	params := map[string]string{
		"action":    "query",
		"prop":      "info",
		"inprop":    inProps,
		"generator": "links",
		"gpllimit":  "max",
		"titles":    p.codec.Pretty(t),
	}
	if cfg.Namespace != nil {
		params["gplnamespace"] = JoinInts(sortedNamespaces(cfg.Namespace))
	}
	if cfg.Resolve {
		params["redirects"] = "1"
	}
	return &pageStream{p: p, params: params}
}

// Backlinks streams `generator=backlinks` keyed by t. Unless the query
// is direct, backlinks through redirects are traced (`gblredirect`).
func (p *Provider) Backlinks(_ context.Context, t provider.Title, cfg *provider.BackLinksConfig) provider.Stream {
	params := map[string]string{
		"action":         "query",
		"prop":           "info",
		"inprop":         inProps,
		"generator":      "backlinks",
		"gbllimit":       "max",
		"gbltitle":       p.codec.Pretty(t),
		"gblfilterredir": cfg.Filter.String(),
	}
	if cfg.Namespace != nil {
		params["gblnamespace"] = JoinInts(sortedNamespaces(cfg.Namespace))
	}
	if !cfg.Direct {
		params["gblredirect"] = "1"
	}
	if cfg.Resolve {
		params["redirects"] = "1"
	}
	return &pageStream{p: p, params: params}
}

// Embeds streams `generator=embeddedin` keyed by t.
func (p *Provider) Embeds(_ context.Context, t provider.Title, cfg *provider.EmbedsConfig) provider.Stream {
	params := map[string]string{
		"action":         "query",
		"prop":           "info",
		"inprop":         inProps,
		"generator":      "embeddedin",
		"geilimit":       "max",
		"geititle":       p.codec.Pretty(t),
		"geifilterredir": cfg.Filter.String(),
	}
	if cfg.Namespace != nil {
		params["geinamespace"] = JoinInts(sortedNamespaces(cfg.Namespace))
	}
	if cfg.Resolve {
		params["redirects"] = "1"
	}
	return &pageStream{p: p, params: params}
}

// CategoryMembers streams `generator=categorymembers` for a batch of
// categories, one generator query per category, concatenated in batch
// order.
func (p *Provider) CategoryMembers(_ context.Context, titles []provider.Title, cfg *provider.CategoryMembersConfig) provider.Stream {
	open := make([]func(ctx context.Context) provider.Stream, 0, len(titles))
	for _, t := range titles {
		t := t
		open = append(open, func(context.Context) provider.Stream {
			params := map[string]string{
				"action":    "query",
				"prop":      "info",
				"inprop":    inProps,
				"generator": "categorymembers",
				"gcmlimit":  "max",
				"gcmtitle":  p.codec.Pretty(t),
			}
			if cfg.Namespace != nil {
				params["gcmnamespace"] = JoinInts(sortedNamespaces(cfg.Namespace))
				params["gcmtype"] = categoryMemberTypes(cfg.Namespace)
			}
			if cfg.Resolve {
				params["redirects"] = "1"
			}
			return &pageStream{p: p, params: params}
		})
	}
	return &concatStream{open: open}
}

// categoryMemberTypes derives the `gcmtype` value from a namespace
// filter: files and subcategories are separate member types on the wire.
func categoryMemberTypes(ns map[int]bool) string {
	var types string
	add := func(t string) {
		if types != "" {
			types += "|"
		}
		types += t
	}
	for id := range ns {
		if id != provider.NamespaceFile && id != provider.NamespaceCategory {
			add("page")
			break
		}
	}
	if ns[provider.NamespaceFile] {
		add("file")
	}
	if ns[provider.NamespaceCategory] {
		add("subcat")
	}
	return types
}

// Prefix streams `generator=allpages` with gapprefix fed from the
// title's dbkey. The namespace filter, if any, applies to the results;
// the query itself is confined to the title's own namespace. Resolve is
// ignored: the allpages generator has no redirect resolution.
func (p *Provider) Prefix(_ context.Context, t provider.Title, cfg *provider.PrefixConfig) provider.Stream {
	params := map[string]string{
		"action":         "query",
		"prop":           "info",
		"inprop":         inProps,
		"generator":      "allpages",
		"gaplimit":       "max",
		"gapprefix":      t.DBKey,
		"gapnamespace":   fmt.Sprint(t.Namespace),
		"gapfilterredir": cfg.Filter.String(),
	}
	return &pageStream{p: p, params: params, admit: namespaceFilter(cfg.Namespace)}
}
