// Copyright 2025 The Page List Bot Authors
// SPDX-License-Identifier: Apache-2.0

package providertest

import "github.com/pagelistbot/engine/pkg/provider"

// SiteInfo returns a small English-wiki-shaped namespace table.
func SiteInfo() *provider.SiteInfo {
	return &provider.SiteInfo{
		General: provider.GeneralInfo{Case: "first-letter", SiteName: "Testwiki"},
		Namespaces: map[string]provider.NamespaceInfo{
			"-2": {ID: -2, Name: "Media", Canonical: "Media"},
			"-1": {ID: -1, Name: "Special", Canonical: "Special"},
			"0":  {ID: 0, Name: ""},
			"1":  {ID: 1, Name: "Talk", Canonical: "Talk"},
			"2":  {ID: 2, Name: "User", Canonical: "User"},
			"3":  {ID: 3, Name: "User talk", Canonical: "User talk"},
			"4":  {ID: 4, Name: "Project", Canonical: "Project"},
			"5":  {ID: 5, Name: "Project talk", Canonical: "Project talk"},
			"6":  {ID: 6, Name: "File", Canonical: "File"},
			"7":  {ID: 7, Name: "File talk", Canonical: "File talk"},
			"10": {ID: 10, Name: "Template", Canonical: "Template"},
			"11": {ID: 11, Name: "Template talk", Canonical: "Template talk"},
			"14": {ID: 14, Name: "Category", Canonical: "Category"},
			"15": {ID: 15, Name: "Category talk", Canonical: "Category talk"},
		},
		NamespaceAliases: []provider.NamespaceAlias{
			{ID: 6, Alias: "Image"},
			{ID: 4, Alias: "WP"},
		},
	}
}

// Codec returns a codec over SiteInfo. It panics on failure; the table
// above is static.
func Codec() *provider.Codec {
	c, err := provider.NewCodec(SiteInfo())
	if err != nil {
		panic(err)
	}
	return c
}
