// Copyright 2025 The Page List Bot Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"sync"

	"github.com/pagelistbot/engine/pkg/intorinf"
	"github.com/pagelistbot/engine/pkg/provider"
	"github.com/pagelistbot/engine/pkg/provider/mediawiki"
)

// Site is the shared per-host API record: the client, the site metadata
// it was built against, and the account's rights. Readers take cheap
// snapshots; only the refresher writes: a rebuild swaps the record
// wholesale, and a successful validation refreshes the metadata and
// rights in place.
type Site struct {
	mu sync.RWMutex

	client        *mediawiki.Client
	siteInfo      *provider.SiteInfo
	codec         *provider.Codec
	hasBot        bool
	hasHighLimits bool
}

// SiteSnapshot is an immutable view of the record; everything reachable
// from it is safe to use for the length of one execution.
type SiteSnapshot struct {
	Client        *mediawiki.Client
	SiteInfo      *provider.SiteInfo
	Codec         *provider.Codec
	HasBot        bool
	HasHighLimits bool
}

// NewSite returns a record holding the initial client and metadata.
func NewSite(client *mediawiki.Client, si *provider.SiteInfo, codec *provider.Codec) *Site {
	return &Site{client: client, siteInfo: si, codec: codec}
}

// Snapshot returns the current record.
func (s *Site) Snapshot() SiteSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SiteSnapshot{
		Client:        s.client,
		SiteInfo:      s.siteInfo,
		Codec:         s.codec,
		HasBot:        s.hasBot,
		HasHighLimits: s.hasHighLimits,
	}
}

// Update replaces the record. The refresher is the only caller.
func (s *Site) Update(snap SiteSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = snap.Client
	s.siteInfo = snap.SiteInfo
	s.codec = snap.Codec
	s.hasBot = snap.HasBot
	s.hasHighLimits = snap.HasHighLimits
}

// SetRights updates only the account-rights flags, for validation runs
// that keep the existing client.
func (s *Site) SetRights(hasBot, hasHighLimits bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasBot = hasBot
	s.hasHighLimits = hasHighLimits
}

// SetSiteInfo updates the metadata and codec under the existing client.
func (s *Site) SetSiteInfo(si *provider.SiteInfo, codec *provider.Codec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.siteInfo = si
	s.codec = codec
}

// GlobalConfig is the shared host-level configuration the finder
// refreshes from the wiki every cycle.
type GlobalConfig struct {
	mu sync.RWMutex

	active     bool
	taskDir    string
	header     string
	denyNS     map[int]bool
	timeout    uint64
	queryLimit intorinf.IntOrInf
}

// GlobalSnapshot is an immutable view of the host configuration.
type GlobalSnapshot struct {
	Active     bool
	TaskDir    string
	Header     string
	DenyNS     map[int]bool
	Timeout    uint64
	QueryLimit intorinf.IntOrInf
}

// Snapshot returns the current configuration.
func (g *GlobalConfig) Snapshot() GlobalSnapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return GlobalSnapshot{
		Active:     g.active,
		TaskDir:    g.taskDir,
		Header:     g.header,
		DenyNS:     g.denyNS,
		Timeout:    g.timeout,
		QueryLimit: g.queryLimit,
	}
}

// Apply installs a freshly fetched runner configuration.
func (g *GlobalConfig) Apply(cfg *RunnerConfig) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = cfg.Active
	g.taskDir = cfg.TaskDir
	g.header = cfg.Header
	g.denyNS = cfg.DenyNS
	g.timeout = cfg.Default.TimeoutSecs
	g.queryLimit = cfg.Default.QueryLimit
}

// Deactivate drops the global active flag. The finder calls this when
// it cannot fetch configuration, erring on the safe side.
func (g *GlobalConfig) Deactivate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = false
}
