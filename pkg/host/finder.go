// Copyright 2025 The Page List Bot Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/pagelistbot/engine/pkg/provider/mediawiki"
)

// finderCron wakes the discovery cycle every ten minutes.
const finderCron = "0 */10 * * * * *"

// finderFanOut caps how many task actors the finder talks to at once
// during a cycle.
const finderFanOut = 8

var (
	// ErrMalformedResponse: the response decoded but misses the fields
	// discovery needs.
	ErrMalformedResponse = errors.New("the API response is malformed")
	// ErrNotJSONPage: the page exists but does not carry the JSON
	// content model. A wikitext page containing valid JSON is still
	// refused.
	ErrNotJSONPage = errors.New("the page does not have a JSON content model")
)

// taskMap owns the running task actors, keyed by task page id. The
// finder writes it; status readers only read.
type taskMap struct {
	mu    sync.RWMutex
	tasks map[uint64]*taskEntry
}

type taskEntry struct {
	runner    *TaskRunner
	latestRev uint64
}

func newTaskMap() *taskMap {
	return &taskMap{tasks: map[uint64]*taskEntry{}}
}

func (m *taskMap) get(id uint64) (*taskEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.tasks[id]
	return e, ok
}

func (m *taskMap) ids() []uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]uint64, 0, len(m.tasks))
	for id := range m.tasks {
		out = append(out, id)
	}
	return out
}

func (m *taskMap) put(id uint64, e *taskEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[id] = e
}

func (m *taskMap) delete(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, id)
}

func (m *taskMap) setLatestRev(id, rev uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.tasks[id]; ok {
		e.latestRev = rev
	}
}

// revisionsResponse is the content-fetch slice of a revisions query.
type revisionsResponse struct {
	Query struct {
		Pages []struct {
			PageID    uint64 `json:"pageid"`
			Missing   bool   `json:"missing"`
			Revisions []struct {
				RevID uint64 `json:"revid"`
				Slots struct {
					Main struct {
						ContentModel  string `json:"contentmodel"`
						ContentFormat string `json:"contentformat"`
						Content       string `json:"content"`
					} `json:"main"`
				} `json:"slots"`
			} `json:"revisions"`
		} `json:"pages"`
	} `json:"query"`
}

// fetchJSONPage fetches a page's top revision, requires the JSON content
// model, and decodes the content into out. selector picks the page
// ("titles" or "pageids").
func fetchJSONPage(ctx context.Context, client *mediawiki.Client, selector map[string]string, out any) (uint64, error) {
	params := map[string]string{
		"action":  "query",
		"prop":    "revisions",
		"rvslots": "main",
		"rvprop":  "content|contentmodel|ids",
	}
	for k, v := range selector {
		params[k] = v
	}
	var resp revisionsResponse
	if err := client.Get(ctx, params, &resp); err != nil {
		return 0, err
	}
	if len(resp.Query.Pages) == 0 || resp.Query.Pages[0].Missing || len(resp.Query.Pages[0].Revisions) == 0 {
		return 0, ErrMalformedResponse
	}
	rev := resp.Query.Pages[0].Revisions[0]
	if rev.Slots.Main.ContentModel != "json" || rev.Slots.Main.ContentFormat != "application/json" {
		return 0, ErrNotJSONPage
	}
	if err := jsoniter.Unmarshal([]byte(rev.Slots.Main.Content), out); err != nil {
		return 0, err
	}
	return rev.RevID, nil
}

// prefixIndexResponse is the task-listing slice of an allpages query.
type prefixIndexResponse struct {
	Continue map[string]string `json:"continue"`
	Query    struct {
		Pages []struct {
			PageID       uint64 `json:"pageid"`
			LastRevID    uint64 `json:"lastrevid"`
			ContentModel string `json:"contentmodel"`
		} `json:"pages"`
	} `json:"query"`
}

// listTaskPages enumerates the non-redirect JSON subpages under the task
// prefix, returning page id → last revision id.
func listTaskPages(ctx context.Context, site SiteSnapshot, taskDir string) (map[uint64]uint64, error) {
	root, err := site.Codec.ParseTitle(taskDir)
	if err != nil {
		return nil, err
	}
	base := map[string]string{
		"action":         "query",
		"prop":           "info",
		"generator":      "allpages",
		"gapprefix":      root.DBKey,
		"gapnamespace":   fmt.Sprint(root.Namespace),
		"gaplimit":       "max",
		"gapfilterredir": "nonredirects",
	}
	cont := map[string]string{}
	found := map[uint64]uint64{}
	for {
		params := make(map[string]string, len(base)+len(cont))
		for k, v := range base {
			params[k] = v
		}
		for k, v := range cont {
			params[k] = v
		}
		var resp prefixIndexResponse
		if err := site.Client.Get(ctx, params, &resp); err != nil {
			return nil, err
		}
		for _, page := range resp.Query.Pages {
			if page.ContentModel != "json" {
				continue
			}
			if page.PageID == 0 || page.LastRevID == 0 {
				return nil, ErrMalformedResponse
			}
			found[page.PageID] = page.LastRevID
		}
		cont = resp.Continue
		if len(cont) == 0 {
			return found, nil
		}
	}
}

// finderExec is one discovery cycle.
type finderExec struct {
	site       SiteSnapshot
	global     *GlobalConfig
	tasks      *taskMap
	configPage string
	spawn      func(pageID uint64, desc TaskDescription, revid uint64) *TaskRunner
	log        zerolog.Logger
}

func (e *finderExec) run(ctx context.Context) *FinderSummary {
	var cfg RunnerConfig
	if _, err := fetchJSONPage(ctx, e.site.Client, map[string]string{"titles": e.configPage}, &cfg); err != nil {
		// cannot see the config page: be conservative and stop all
		// task execution until the next cycle
		e.global.Deactivate()
		e.log.Warn().Err(err).Msg("global configuration fetch failed")
		return &FinderSummary{Kind: FinderGlobalConfigFailed, Err: err.Error()}
	}
	e.global.Apply(&cfg)

	found, err := listTaskPages(ctx, e.site, cfg.TaskDir)
	if err != nil {
		e.global.Deactivate()
		e.log.Warn().Err(err).Msg("task listing failed")
		return &FinderSummary{Kind: FinderTaskListFailed, Err: err.Error()}
	}

	changes := map[uint64]TaskChange{}
	var changesMu sync.Mutex
	record := func(id uint64, c TaskChange) {
		changesMu.Lock()
		defer changesMu.Unlock()
		changes[id] = c
	}
	for _, id := range e.tasks.ids() {
		record(id, TaskNoChange)
	}

	p := pool.New().WithMaxGoroutines(finderFanOut)

	// drop tasks whose page is gone
	for _, id := range e.tasks.ids() {
		if _, ok := found[id]; ok {
			continue
		}
		id := id
		p.Go(func() {
			e.dropTask(id)
			record(id, TaskKilled)
		})
	}

	// update tasks with a strictly newer revision; dispatch new ones
	for id, rev := range found {
		id, rev := id, rev
		entry, running := e.tasks.get(id)
		switch {
		case running && rev > entry.latestRev:
			p.Go(func() { record(id, e.updateTask(ctx, id, entry)) })
		case !running:
			p.Go(func() { record(id, e.createTask(ctx, id)) })
		}
	}
	p.Wait()

	return &FinderSummary{Kind: FinderSuccess, Changes: changes}
}

// dropTask shuts a task down politely; if the actor does not confirm
// within the receipt window it is abandoned to the garbage collector.
func (e *finderExec) dropTask(id uint64) {
	entry, ok := e.tasks.get(id)
	if !ok {
		return
	}
	e.log.Info().Uint64("task", id).Msg("will drop running task")
	if err := entry.runner.Shutdown(); err != nil {
		e.log.Warn().Uint64("task", id).Err(err).Msg("task did not confirm shutdown")
	}
	e.tasks.delete(id)
}

// createTask fetches a newly discovered task page and spawns its runner.
func (e *finderExec) createTask(ctx context.Context, id uint64) TaskChange {
	var desc TaskDescription
	revid, err := fetchJSONPage(ctx, e.site.Client, map[string]string{"pageids": fmt.Sprint(id)}, &desc)
	if err != nil {
		e.log.Warn().Uint64("task", id).Err(err).Msg("task creation skipped")
		return TaskSkipped
	}
	runner := e.spawn(id, desc, revid)
	e.tasks.put(id, &taskEntry{runner: runner, latestRev: revid})
	return TaskCreated
}

// updateTask delivers a fresh description to a running task. A refusal
// for not being newer still counts as updated; a runner that cannot be
// reached is dropped and respawned with the new description.
func (e *finderExec) updateTask(ctx context.Context, id uint64, entry *taskEntry) TaskChange {
	e.log.Info().Uint64("task", id).Msg("will update running task")
	var desc TaskDescription
	revid, err := fetchJSONPage(ctx, e.site.Client, map[string]string{"pageids": fmt.Sprint(id)}, &desc)
	if err != nil {
		e.log.Warn().Uint64("task", id).Err(err).Msg("cannot fetch task description")
		e.dropTask(id)
		return TaskKilled
	}

	err = entry.runner.Update(desc, revid)
	var notNewer *NotNewerError
	switch {
	case err == nil:
		e.tasks.setLatestRev(id, revid)
		return TaskUpdated
	case errors.As(err, &notNewer):
		// someone raced us to a newer revision; record it and move on
		e.tasks.setLatestRev(id, notNewer.NewerRevID)
		return TaskUpdated
	}

	// unreachable or shutting down: restart with the new description
	e.log.Warn().Uint64("task", id).Err(err).Msg("task did not acknowledge update, restarting")
	e.dropTask(id)
	runner := e.spawn(id, desc, revid)
	e.tasks.put(id, &taskEntry{runner: runner, latestRev: revid})
	return TaskRestarted
}

type finderCommandKind int

const (
	finderCmdShutdown finderCommandKind = iota
	finderCmdAbort
	finderCmdRunNow
	finderCmdQuery
)

type finderCommand struct {
	kind    finderCommandKind
	receipt chan error
	status  chan FinderStatus
}

// Finder is the discovery actor.
type Finder struct {
	cmds chan finderCommand
	done chan struct{}
}

type finderDeps struct {
	site       *Site
	global     *GlobalConfig
	tasks      *taskMap
	configPage string
	spawn      func(pageID uint64, desc TaskDescription, revid uint64) *TaskRunner
	log        zerolog.Logger
}

func newFinder(deps finderDeps) *Finder {
	f := &Finder{
		cmds: make(chan finderCommand),
		done: make(chan struct{}),
	}
	go f.loop(deps)
	return f
}

func (f *Finder) loop(deps finderDeps) {
	log := deps.log.With().Str("actor", "finder").Logger()
	sched, _ := ParseSchedule(finderCron)
	log.Info().Msg("finder started")

	var (
		state     = RunStateNoRun
		summary   *FinderSummary
		lastRun   time.Time
		runCancel context.CancelFunc
		runDone   chan *FinderSummary
	)
	next := func() time.Duration {
		n, ok := sched.Next(time.Now())
		if !ok {
			return sleepForever
		}
		return time.Until(n)
	}
	// the first cycle runs immediately so tasks come up without waiting
	// out the cron period
	timer := time.NewTimer(0)
	defer timer.Stop()

	stopRun := func() {
		if runCancel != nil {
			runCancel()
			runCancel = nil
		}
		runDone = nil
	}

	for {
		select {
		case <-timer.C:
			timer.Reset(next())
			if runDone != nil {
				continue
			}
			exec := &finderExec{
				site:       deps.site.Snapshot(),
				global:     deps.global,
				tasks:      deps.tasks,
				configPage: deps.configPage,
				spawn:      deps.spawn,
				log:        log,
			}
			var runCtx context.Context
			runCtx, runCancel = context.WithCancel(context.Background())
			done := make(chan *FinderSummary, 1)
			runDone = done
			state = RunStateRunning
			lastRun = time.Now()
			go func() {
				done <- exec.run(runCtx)
			}()

		case s := <-runDone:
			summary = s
			state = RunStateFinished
			stopRun()

		case cmd := <-f.cmds:
			switch cmd.kind {
			case finderCmdShutdown:
				stopRun()
				cmd.receipt <- nil
				close(f.done)
				log.Info().Msg("finder stopped")
				return
			case finderCmdAbort:
				if runDone == nil {
					cmd.receipt <- ErrNotRunning
					continue
				}
				stopRun()
				state = RunStateAborted
				summary = nil
				cmd.receipt <- nil
			case finderCmdRunNow:
				if runDone != nil {
					cmd.receipt <- ErrAlreadyRunning
					continue
				}
				timer.Reset(0)
				cmd.receipt <- nil
			case finderCmdQuery:
				cmd.status <- FinderStatus{
					LastRunTime: lastRun,
					State:       state,
					Summary:     summary,
				}
			}
		}
	}
}

func (f *Finder) send(cmd finderCommand) error {
	select {
	case <-f.done:
		return ErrIsShuttingDown
	default:
	}
	select {
	case f.cmds <- cmd:
	case <-f.done:
		return ErrIsShuttingDown
	case <-time.After(receiptTimeout):
		return ErrHungUp
	}
	select {
	case err := <-cmd.receipt:
		return err
	case <-time.After(receiptTimeout):
		return ErrHungUp
	}
}

// Shutdown stops the finder. Running discovery is cancelled.
func (f *Finder) Shutdown() error {
	return f.send(finderCommand{kind: finderCmdShutdown, receipt: make(chan error, 1)})
}

// Abort cancels a running discovery cycle.
func (f *Finder) Abort() error {
	return f.send(finderCommand{kind: finderCmdAbort, receipt: make(chan error, 1)})
}

// RunNow triggers a discovery cycle immediately.
func (f *Finder) RunNow() error {
	return f.send(finderCommand{kind: finderCmdRunNow, receipt: make(chan error, 1)})
}

// Status reads the finder's status snapshot.
func (f *Finder) Status() (FinderStatus, error) {
	cmd := finderCommand{kind: finderCmdQuery, status: make(chan FinderStatus, 1)}
	select {
	case <-f.done:
		return FinderStatus{}, ErrIsShuttingDown
	default:
	}
	select {
	case f.cmds <- cmd:
	case <-f.done:
		return FinderStatus{}, ErrIsShuttingDown
	case <-time.After(receiptTimeout):
		return FinderStatus{}, ErrHungUp
	}
	select {
	case st := <-cmd.status:
		return st, nil
	case <-time.After(receiptTimeout):
		return FinderStatus{}, ErrHungUp
	}
}
