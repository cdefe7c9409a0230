// Copyright 2025 The Page List Bot Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Codec normalizes raw page names into canonical Titles and renders them
// back, using the namespace table of one site. A codec is immutable and
// safe for concurrent use; the refresher swaps in a fresh codec when site
// metadata changes.
type Codec struct {
	byName      map[string]int
	localName   map[int]string
	firstLetter map[int]bool
}

// ErrBadTitle is returned when a raw string cannot denote a page.
type ErrBadTitle struct {
	Raw    string
	Reason string
}

func (e *ErrBadTitle) Error() string {
	return fmt.Sprintf("bad title %q: %s", e.Raw, e.Reason)
}

// titleIllegal are the bytes MediaWiki never allows in a title.
const titleIllegal = "#<>[]{}|"

// NewCodec builds a codec from site metadata. Localized names, canonical
// names, and aliases all resolve; lookups are case-insensitive with
// underscores and spaces interchangeable.
func NewCodec(si *SiteInfo) (*Codec, error) {
	if len(si.Namespaces) == 0 {
		return nil, fmt.Errorf("codec: site info carries no namespaces")
	}
	c := &Codec{
		byName:      map[string]int{},
		localName:   map[int]string{},
		firstLetter: map[int]bool{},
	}
	for _, ns := range si.Namespaces {
		c.localName[ns.ID] = ns.Name
		caseMode := ns.Case
		if caseMode == "" {
			caseMode = si.General.Case
		}
		c.firstLetter[ns.ID] = caseMode != "case-sensitive"
		if ns.Name != "" || ns.ID == NamespaceMain {
			c.byName[nsKey(ns.Name)] = ns.ID
		}
		if ns.Canonical != "" {
			c.byName[nsKey(ns.Canonical)] = ns.ID
		}
	}
	for _, alias := range si.NamespaceAliases {
		c.byName[nsKey(alias.Alias)] = alias.ID
	}
	return c, nil
}

func nsKey(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), "_", " "))
}

// ParseTitle canonicalizes a raw page name: underscores become spaces,
// whitespace collapses, a single leading colon is stripped, the namespace
// prefix resolves against the site's table, and the first letter of the
// key upper-cases on first-letter sites.
func (c *Codec) ParseTitle(raw string) (Title, error) {
	s := strings.ReplaceAll(raw, "_", " ")
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimPrefix(s, ":")
	s = strings.TrimSpace(s)
	if s == "" {
		return Title{}, &ErrBadTitle{Raw: raw, Reason: "empty"}
	}
	if strings.ContainsAny(s, titleIllegal) {
		return Title{}, &ErrBadTitle{Raw: raw, Reason: "illegal character"}
	}

	ns := NamespaceMain
	rest := s
	if i := strings.Index(s, ":"); i >= 0 {
		if id, ok := c.byName[nsKey(s[:i])]; ok {
			ns = id
			rest = strings.TrimSpace(s[i+1:])
			if rest == "" {
				return Title{}, &ErrBadTitle{Raw: raw, Reason: "empty page name"}
			}
		}
	}

	dbkey := strings.ReplaceAll(rest, " ", "_")
	if c.firstLetter[ns] {
		dbkey = upperFirst(dbkey)
	}
	return Title{Namespace: ns, DBKey: dbkey}, nil
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	up := unicode.ToUpper(r)
	if up == r {
		return s
	}
	return string(up) + s[size:]
}

// Pretty renders a title in display form: localized namespace prefix and
// spaces instead of underscores.
func (c *Codec) Pretty(t Title) string {
	text := strings.ReplaceAll(t.DBKey, "_", " ")
	name, ok := c.localName[t.Namespace]
	if !ok || name == "" {
		return text
	}
	return name + ":" + text
}

// NamespaceName returns the localized name of a namespace, if known.
func (c *Codec) NamespaceName(id int) (string, bool) {
	name, ok := c.localName[id]
	return name, ok
}
