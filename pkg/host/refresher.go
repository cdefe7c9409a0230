// Copyright 2025 The Page List Bot Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pagelistbot/engine/pkg/provider"
	"github.com/pagelistbot/engine/pkg/provider/mediawiki"
)

// refresherCron wakes the refresher at the top of every hour.
const refresherCron = "0 0 * * * * *"

// userInfoResponse is the slice of a userinfo query the refresher reads.
type userInfoResponse struct {
	Query struct {
		UserInfo struct {
			ID     uint64   `json:"id"`
			Name   string   `json:"name"`
			Anon   bool     `json:"anon"`
			Rights []string `json:"rights"`
		} `json:"userinfo"`
	} `json:"query"`
}

// siteInfoResponse is the slice of a siteinfo query the refresher reads.
type siteInfoResponse struct {
	Query provider.SiteInfo `json:"query"`
}

func fetchSiteInfo(ctx context.Context, client *mediawiki.Client) (*provider.SiteInfo, error) {
	var resp siteInfoResponse
	err := client.Get(ctx, map[string]string{
		"action": "query",
		"meta":   "siteinfo",
		"siprop": "general|namespaces|namespacealiases",
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp.Query, nil
}

func fetchUserRights(ctx context.Context, client *mediawiki.Client) (hasBot, hasHighLimits bool, err error) {
	var resp userInfoResponse
	err = client.Get(ctx, map[string]string{
		"action": "query",
		"meta":   "userinfo",
		"uiprop": "rights",
	}, &resp)
	if err != nil {
		return false, false, err
	}
	for _, right := range resp.Query.UserInfo.Rights {
		switch right {
		case "bot":
			hasBot = true
		case "apihighlimits":
			hasHighLimits = true
		}
	}
	return hasBot, hasHighLimits, nil
}

// ClientBuilder rebuilds the API client from scratch, credentials
// included. Credential handling lives with the collaborator providing
// this.
type ClientBuilder func(ctx context.Context) (*mediawiki.Client, error)

// refresherExec is one refresh run: validate the cached client with a
// lightweight round-trip, or rebuild it wholesale.
type refresherExec struct {
	site  *Site
	build ClientBuilder
	log   zerolog.Logger
}

func (e *refresherExec) run(ctx context.Context) *RefresherSummary {
	snap := e.site.Snapshot()

	// validation round-trips are independent; run them together
	var (
		si              *provider.SiteInfo
		hasBot, hasHigh bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		si, err = fetchSiteInfo(gctx, snap.Client)
		return err
	})
	g.Go(func() error {
		var err error
		hasBot, hasHigh, err = fetchUserRights(gctx, snap.Client)
		return err
	})
	valErr := g.Wait()
	if valErr == nil {
		codec, err := provider.NewCodec(si)
		if err != nil {
			e.log.Warn().Err(err).Msg("fetched site info is unusable")
			return &RefresherSummary{Outcome: RefresherNewSiteInfoFailed, Err: err.Error()}
		}
		e.site.SetSiteInfo(si, codec)
		e.site.SetRights(hasBot, hasHigh)
		return &RefresherSummary{Outcome: RefresherValidated}
	}

	// the cached client failed validation; rebuild. The prior client is
	// retained until the replacement fully checks out.
	e.log.Info().Err(valErr).Msg("client validation failed, rebuilding")
	client, err := e.build(ctx)
	if err != nil {
		return &RefresherSummary{Outcome: RefresherNewClientFailed, Err: err.Error()}
	}
	si, err = fetchSiteInfo(ctx, client)
	if err != nil {
		return &RefresherSummary{Outcome: RefresherNewSiteInfoFailed, Err: err.Error()}
	}
	codec, err := provider.NewCodec(si)
	if err != nil {
		return &RefresherSummary{Outcome: RefresherNewSiteInfoFailed, Err: err.Error()}
	}
	hasBot, hasHigh, err = fetchUserRights(ctx, client)
	if err != nil {
		return &RefresherSummary{Outcome: RefresherNewUserInfoFailed, Err: err.Error()}
	}
	e.site.Update(SiteSnapshot{
		Client:        client,
		SiteInfo:      si,
		Codec:         codec,
		HasBot:        hasBot,
		HasHighLimits: hasHigh,
	})
	return &RefresherSummary{Outcome: RefresherRefreshed}
}

type refresherCommandKind int

const (
	refresherCmdShutdown refresherCommandKind = iota
	refresherCmdAbort
	refresherCmdRunNow
	refresherCmdQuery
)

type refresherCommand struct {
	kind    refresherCommandKind
	receipt chan error
	status  chan RefresherStatus
}

// Refresher is the credential/siteinfo refresh actor.
type Refresher struct {
	cmds chan refresherCommand
	done chan struct{}
}

func newRefresher(site *Site, build ClientBuilder, log zerolog.Logger) *Refresher {
	r := &Refresher{
		cmds: make(chan refresherCommand),
		done: make(chan struct{}),
	}
	go r.loop(site, build, log)
	return r
}

func (r *Refresher) loop(site *Site, build ClientBuilder, log zerolog.Logger) {
	log = log.With().Str("actor", "refresher").Logger()
	sched, _ := ParseSchedule(refresherCron)
	log.Info().Msg("refresher started")

	var (
		state     = RunStateNoRun
		summary   *RefresherSummary
		lastRun   time.Time
		runCancel context.CancelFunc
		runDone   chan *RefresherSummary
	)
	next := func() time.Duration {
		n, ok := sched.Next(time.Now())
		if !ok {
			return sleepForever
		}
		return time.Until(n)
	}
	timer := time.NewTimer(next())
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
			exec := &refresherExec{site: site, build: build, log: log}
			var runCtx context.Context
			runCtx, runCancel = context.WithCancel(context.Background())
			done := make(chan *RefresherSummary, 1)
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

		case cmd := <-r.cmds:
			switch cmd.kind {
			case refresherCmdShutdown:
				stopRun()
				cmd.receipt <- nil
				close(r.done)
				log.Info().Msg("refresher stopped")
				return
			case refresherCmdAbort:
				if runDone == nil {
					cmd.receipt <- ErrNotRunning
					continue
				}
				stopRun()
				state = RunStateAborted
				summary = nil
				cmd.receipt <- nil
			case refresherCmdRunNow:
				if runDone != nil {
					cmd.receipt <- ErrAlreadyRunning
					continue
				}
				timer.Reset(0)
				cmd.receipt <- nil
			case refresherCmdQuery:
				cmd.status <- RefresherStatus{
					LastRunTime: lastRun,
					State:       state,
					Summary:     summary,
				}
			}
		}
	}
}

func (r *Refresher) send(cmd refresherCommand) error {
	select {
	case <-r.done:
		return ErrIsShuttingDown
	default:
	}
	select {
	case r.cmds <- cmd:
	case <-r.done:
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

// Shutdown stops the refresher.
func (r *Refresher) Shutdown() error {
	return r.send(refresherCommand{kind: refresherCmdShutdown, receipt: make(chan error, 1)})
}

// Abort cancels a running refresh.
func (r *Refresher) Abort() error {
	return r.send(refresherCommand{kind: refresherCmdAbort, receipt: make(chan error, 1)})
}

// RunNow triggers a refresh immediately.
func (r *Refresher) RunNow() error {
	return r.send(refresherCommand{kind: refresherCmdRunNow, receipt: make(chan error, 1)})
}

// Status reads the refresher's status snapshot.
func (r *Refresher) Status() (RefresherStatus, error) {
	cmd := refresherCommand{kind: refresherCmdQuery, status: make(chan RefresherStatus, 1)}
	select {
	case <-r.done:
		return RefresherStatus{}, ErrIsShuttingDown
	default:
	}
	select {
	case r.cmds <- cmd:
	case <-r.done:
		return RefresherStatus{}, ErrIsShuttingDown
	case <-time.After(receiptTimeout):
		return RefresherStatus{}, ErrHungUp
	}
	select {
	case st := <-cmd.status:
		return st, nil
	case <-time.After(receiptTimeout):
		return RefresherStatus{}, ErrHungUp
	}
}
