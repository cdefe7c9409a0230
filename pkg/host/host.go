// Copyright 2025 The Page List Bot Authors
// SPDX-License-Identifier: Apache-2.0

// Package host runs the scheduler fabric of one wiki: the task finder
// discovering task definitions on the wiki, the API refresher keeping
// the shared client healthy, and one task runner per discovered task.
//
// Every actor is a single goroutine reacting to a command channel and a
// cron wake. Commands carry one-shot receipts and are acknowledged with
// nil or a typed refusal; no command kills its actor. Shared state (the
// site record, the global configuration, the task map) sits behind
// reader-writer locks with writers confined to the finder's and
// refresher's write phases.
package host

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/pagelistbot/engine/pkg/provider"
	"github.com/pagelistbot/engine/pkg/provider/mediawiki"
)

// Settings configures one host.
type Settings struct {
	// ConfigPage is the title of the on-wiki JSON configuration page.
	ConfigPage string
	// PreferBot flags output edits as bot edits when the account has
	// the right.
	PreferBot bool
	// BuildClient rebuilds the API client when validation fails.
	BuildClient ClientBuilder
	// Writer delivers rendered output pages. Defaults to DiscardWriter.
	Writer PageWriter
	// ProviderFor builds the evaluator's data provider from a site
	// snapshot. Defaults to the Action API provider; tests substitute
	// fakes.
	ProviderFor func(SiteSnapshot) provider.DataProvider
	// Logger receives actor lifecycle and execution events.
	Logger zerolog.Logger
}

// Host owns the fabric of one wiki.
type Host struct {
	site      *Site
	global    *GlobalConfig
	tasks     *taskMap
	finder    *Finder
	refresher *Refresher
	log       zerolog.Logger
}

// New starts a host over an already-built site record: the finder comes
// up immediately and discovers tasks on its first cycle.
func New(site *Site, settings Settings) *Host {
	if settings.Writer == nil {
		settings.Writer = DiscardWriter{}
	}
	if settings.ProviderFor == nil {
		settings.ProviderFor = func(snap SiteSnapshot) provider.DataProvider {
			return mediawiki.New(snap.Client, snap.Codec, mediawiki.WithHighLimits(snap.HasHighLimits))
		}
	}
	h := &Host{
		site:   site,
		global: &GlobalConfig{},
		tasks:  newTaskMap(),
		log:    settings.Logger,
	}
	deps := taskDeps{
		site:        site,
		global:      h.global,
		writer:      settings.Writer,
		preferBot:   settings.PreferBot,
		providerFor: settings.ProviderFor,
		log:         settings.Logger,
	}
	h.finder = newFinder(finderDeps{
		site:       site,
		global:     h.global,
		tasks:      h.tasks,
		configPage: settings.ConfigPage,
		spawn: func(pageID uint64, desc TaskDescription, revid uint64) *TaskRunner {
			return newTaskRunner(pageID, desc, revid, deps)
		},
		log: settings.Logger,
	})
	h.refresher = newRefresher(site, settings.BuildClient, settings.Logger)
	return h
}

// Finder returns the discovery actor.
func (h *Host) Finder() *Finder { return h.finder }

// Refresher returns the refresh actor.
func (h *Host) Refresher() *Refresher { return h.refresher }

// TaskIDs lists the page ids of the running tasks.
func (h *Host) TaskIDs() []uint64 { return h.tasks.ids() }

// Task returns the runner for one task page id.
func (h *Host) Task(id uint64) (*TaskRunner, bool) {
	entry, ok := h.tasks.get(id)
	if !ok {
		return nil, false
	}
	return entry.runner, true
}

// Shutdown stops every actor: finder and refresher first so nothing
// respawns, then all task runners in parallel. Each polite shutdown is
// bounded by the receipt window; an actor that does not confirm is
// abandoned with a logged warning, and the shutdown still counts as
// delivered.
func (h *Host) Shutdown(context.Context) {
	if err := h.finder.Shutdown(); err != nil {
		h.log.Warn().Err(err).Msg("finder shutdown not confirmed")
	}
	if err := h.refresher.Shutdown(); err != nil {
		h.log.Warn().Err(err).Msg("refresher shutdown not confirmed")
	}
	p := pool.New().WithMaxGoroutines(finderFanOut)
	for _, id := range h.tasks.ids() {
		id := id
		entry, ok := h.tasks.get(id)
		if !ok {
			continue
		}
		p.Go(func() {
			if err := entry.runner.Shutdown(); err != nil {
				h.log.Warn().Uint64("task", id).Err(err).Msg("task shutdown not confirmed")
			}
			h.tasks.delete(id)
		})
	}
	p.Wait()
	h.log.Info().Msg("host stopped")
}
