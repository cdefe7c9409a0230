// Copyright 2025 The Page List Bot Authors
// SPDX-License-Identifier: Apache-2.0

package mediawiki

import (
	"fmt"
	"sort"

	"github.com/pagelistbot/engine/pkg/provider"
)

// queryResponse is the slice of an `action=query` response the provider
// reads: the page list with associated-page info, the continuation map,
// and any module warnings.
type queryResponse struct {
	BatchComplete bool                         `json:"batchcomplete"`
	Continue      map[string]string            `json:"continue"`
	Warnings      map[string]map[string]string `json:"warnings"`
	Query         queryBody                    `json:"query"`
}

type queryBody struct {
	Pages []pageItem `json:"pages"`
}

type pageItem struct {
	NS       int    `json:"ns"`
	Title    string `json:"title"`
	Missing  bool   `json:"missing"`
	Redirect bool   `json:"redirect"`

	AssociatedPage string `json:"associatedpage"`
	TalkID         *int64 `json:"talkid"`
	SubjectID      *int64 `json:"subjectid"`
}

// moduleWarning is a warning the remote attached to one query module.
type moduleWarning struct {
	Module string
	Text   string
}

func (w *moduleWarning) Error() string {
	return fmt.Sprintf("module %s: %s", w.Module, w.Text)
}

// pageInfoFromItem converts one response page into a PageInfo. A title
// that fails to canonicalize is an error, never silently dropped.
func pageInfoFromItem(codec *provider.Codec, item pageItem) (provider.PageInfo, error) {
	t, err := codec.ParseTitle(item.Title)
	if err != nil {
		return provider.PageInfo{}, err
	}
	info := provider.PageInfo{
		Title:    provider.Ptr(t),
		Exists:   provider.Ptr(!item.Missing),
		Redirect: provider.Ptr(item.Redirect),
	}
	if item.AssociatedPage != "" {
		assoc, err := codec.ParseTitle(item.AssociatedPage)
		if err != nil {
			return provider.PageInfo{}, err
		}
		info.AssocTitle = provider.Ptr(assoc)
		info.AssocExists = provider.Ptr(item.TalkID != nil || item.SubjectID != nil)
	}
	return info, nil
}

// warningItems converts the response's warning map into Warn items, in
// stable module order across a page.
func warningItems(resp *queryResponse) []provider.Item {
	modules := make([]string, 0, len(resp.Warnings))
	for module := range resp.Warnings {
		modules = append(modules, module)
	}
	sort.Strings(modules)
	var items []provider.Item
	for _, module := range modules {
		body := resp.Warnings[module]
		keys := make([]string, 0, len(body))
		for k := range body {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			items = append(items, provider.Warn(&moduleWarning{Module: module, Text: body[k]}))
		}
	}
	return items
}
