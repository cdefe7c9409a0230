// Copyright 2025 The Page List Bot Authors
// SPDX-License-Identifier: Apache-2.0

package provider_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagelistbot/engine/pkg/provider"
)

func testSiteInfo() *provider.SiteInfo {
	return &provider.SiteInfo{
		General: provider.GeneralInfo{Case: "first-letter"},
		Namespaces: map[string]provider.NamespaceInfo{
			"-2": {ID: -2, Name: "Media", Canonical: "Media"},
			"-1": {ID: -1, Name: "Special", Canonical: "Special"},
			"0":  {ID: 0, Name: ""},
			"1":  {ID: 1, Name: "Talk", Canonical: "Talk"},
			"2":  {ID: 2, Name: "User", Canonical: "User"},
			"3":  {ID: 3, Name: "User talk", Canonical: "User talk"},
			"6":  {ID: 6, Name: "File", Canonical: "File"},
			"14": {ID: 14, Name: "Category", Canonical: "Category"},
		},
		NamespaceAliases: []provider.NamespaceAlias{
			{ID: 6, Alias: "Image"},
		},
	}
}

func newTestCodec(t *testing.T) *provider.Codec {
	t.Helper()
	c, err := provider.NewCodec(testSiteInfo())
	require.NoError(t, err)
	return c
}

func TestParseTitle(t *testing.T) {
	c := newTestCodec(t)
	for _, tt := range []struct {
		raw  string
		want provider.Title
	}{
		{"Main Page", provider.Title{Namespace: 0, DBKey: "Main_Page"}},
		{"main page", provider.Title{Namespace: 0, DBKey: "Main_page"}},
		{"  spaced   out  ", provider.Title{Namespace: 0, DBKey: "Spaced_out"}},
		{"Talk:Foo", provider.Title{Namespace: 1, DBKey: "Foo"}},
		{"talk: foo", provider.Title{Namespace: 1, DBKey: "Foo"}},
		{"User_talk:Foo Bar", provider.Title{Namespace: 3, DBKey: "Foo_Bar"}},
		{"Image:X.png", provider.Title{Namespace: 6, DBKey: "X.png"}},
		{":Category:Cats", provider.Title{Namespace: 14, DBKey: "Cats"}},
		{"Special:Watchlist", provider.Title{Namespace: -1, DBKey: "Watchlist"}},
		// an unknown prefix is part of the page name
		{"Nonexistent:Foo", provider.Title{Namespace: 0, DBKey: "Nonexistent:Foo"}},
	} {
		got, err := c.ParseTitle(tt.raw)
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestParseTitleRejects(t *testing.T) {
	c := newTestCodec(t)
	for _, raw := range []string{"", "   ", "_", "Talk:", "a|b", "a[b]", "a#b"} {
		_, err := c.ParseTitle(raw)
		require.Error(t, err, raw)
		var bad *provider.ErrBadTitle
		assert.ErrorAs(t, err, &bad, raw)
	}
}

func TestPretty(t *testing.T) {
	c := newTestCodec(t)
	assert.Equal(t, "Main Page", c.Pretty(provider.Title{Namespace: 0, DBKey: "Main_Page"}))
	assert.Equal(t, "User talk:Foo Bar", c.Pretty(provider.Title{Namespace: 3, DBKey: "Foo_Bar"}))
	assert.Equal(t, "Category:Cats", c.Pretty(provider.Title{Namespace: 14, DBKey: "Cats"}))
}

func TestAssociated(t *testing.T) {
	subject := provider.Title{Namespace: 0, DBKey: "Foo"}
	talk, ok := subject.Associated()
	require.True(t, ok)
	assert.Equal(t, provider.Title{Namespace: 1, DBKey: "Foo"}, talk)

	back, ok := talk.Associated()
	require.True(t, ok)
	assert.Equal(t, subject, back)

	_, ok = provider.Title{Namespace: -1, DBKey: "Watchlist"}.Associated()
	assert.False(t, ok)
}

func TestTitleOrdering(t *testing.T) {
	a := provider.Title{Namespace: 0, DBKey: "B"}
	b := provider.Title{Namespace: 1, DBKey: "A"}
	c := provider.Title{Namespace: 1, DBKey: "B"}
	assert.True(t, a.Less(b))
	assert.True(t, b.Less(c))
	assert.Equal(t, 0, a.Compare(a))
}
