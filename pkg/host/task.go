// Copyright 2025 The Page List Bot Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/pagelistbot/engine/pkg/provider"
)

// receiptTimeout bounds how long a caller waits for an actor to
// acknowledge a command before treating it as hung up.
const receiptTimeout = 2 * time.Second

// sleepForever stands in for "no next wake": inactive tasks and broken
// cron patterns park until a command arrives.
const sleepForever = 365 * 24 * time.Hour

type taskCommandKind int

const (
	taskCmdShutdown taskCommandKind = iota
	taskCmdUpdate
	taskCmdAbort
	taskCmdRunNow
	taskCmdQuery
)

type taskCommand struct {
	kind    taskCommandKind
	desc    *TaskDescription
	revid   uint64
	receipt chan error
	status  chan TaskStatus
}

// taskDeps bundles what a task runner needs from its host.
type taskDeps struct {
	site        *Site
	global      *GlobalConfig
	writer      PageWriter
	preferBot   bool
	providerFor func(SiteSnapshot) provider.DataProvider
	log         zerolog.Logger
}

// TaskRunner is the per-task actor: one goroutine reacting to its
// command channel and a cron wake derived from the task's own
// description.
type TaskRunner struct {
	pageID uint64
	cmds   chan taskCommand
	done   chan struct{}
}

// newTaskRunner spawns the actor.
func newTaskRunner(pageID uint64, desc TaskDescription, revid uint64, deps taskDeps) *TaskRunner {
	r := &TaskRunner{
		pageID: pageID,
		cmds:   make(chan taskCommand),
		done:   make(chan struct{}),
	}
	go r.loop(desc, revid, deps)
	return r
}

// PageID returns the id of the task subpage this runner executes.
func (r *TaskRunner) PageID() uint64 { return r.pageID }

func (r *TaskRunner) loop(desc TaskDescription, revid uint64, deps taskDeps) {
	log := deps.log.With().Uint64("task", r.pageID).Logger()
	log.Info().Str("cron", desc.Cron).Msg("task runner started")

	var (
		state     = RunStateNoRun
		summary   *TaskRunSummary
		lastRun   time.Time
		runCancel context.CancelFunc
		runDone   chan *TaskRunSummary
	)
	timer := time.NewTimer(nextWake(&desc, log))
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
			timer.Reset(nextWake(&desc, log))
			global := deps.global.Snapshot()
			if !global.Active || !desc.Active || runDone != nil {
				continue
			}
			site := deps.site.Snapshot()
			exec := &taskExec{
				pageID:      r.pageID,
				desc:        desc,
				global:      global,
				site:        site,
				writer:      deps.writer,
				preferBot:   deps.preferBot,
				providerFor: deps.providerFor,
				log:         log,
			}
			timeout := time.Duration(desc.Timeout(global.Timeout)) * time.Second
			var runCtx context.Context
			runCtx, runCancel = context.WithTimeout(context.Background(), timeout)
			done := make(chan *TaskRunSummary, 1)
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
			case taskCmdShutdown:
				stopRun()
				cmd.receipt <- nil
				close(r.done)
				log.Info().Msg("task runner stopped")
				return
			case taskCmdAbort:
				if runDone == nil {
					cmd.receipt <- ErrNotRunning
					continue
				}
				stopRun()
				state = RunStateAborted
				summary = nil
				cmd.receipt <- nil
			case taskCmdRunNow:
				if runDone != nil {
					cmd.receipt <- ErrAlreadyRunning
					continue
				}
				timer.Reset(0)
				cmd.receipt <- nil
			case taskCmdUpdate:
				if cmd.revid <= revid {
					cmd.receipt <- &NotNewerError{NewerRevID: revid}
					continue
				}
				desc = *cmd.desc
				revid = cmd.revid
				timer.Reset(nextWake(&desc, log))
				log.Info().Uint64("revid", revid).Msg("task configuration updated")
				cmd.receipt <- nil
			case taskCmdQuery:
				cmd.status <- TaskStatus{
					RevID:       revid,
					Description: desc,
					LastRunTime: lastRun,
					State:       state,
					Summary:     summary,
				}
			}
		}
	}
}

// nextWake computes the sleep until the task's next cron activation.
func nextWake(desc *TaskDescription, log zerolog.Logger) time.Duration {
	if !desc.Active {
		return sleepForever
	}
	sched, err := ParseSchedule(desc.Cron)
	if err != nil {
		log.Warn().Err(err).Msg("invalid cron, task sleeps indefinitely")
		return sleepForever
	}
	next, ok := sched.Next(time.Now())
	if !ok {
		return sleepForever
	}
	d := time.Until(next)
	if d < 0 {
		d = 0
	}
	return d
}

// send delivers a command and waits for its receipt under the receipt
// window.
func (r *TaskRunner) send(cmd taskCommand) error {
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

// Shutdown stops the actor, aborting any running evaluation.
func (r *TaskRunner) Shutdown() error {
	return r.send(taskCommand{kind: taskCmdShutdown, receipt: make(chan error, 1)})
}

// Abort cancels a running evaluation, returning the runner to sleep.
func (r *TaskRunner) Abort() error {
	return r.send(taskCommand{kind: taskCmdAbort, receipt: make(chan error, 1)})
}

// RunNow wakes the runner immediately.
func (r *TaskRunner) RunNow() error {
	return r.send(taskCommand{kind: taskCmdRunNow, receipt: make(chan error, 1)})
}

// Update installs a newer task description. Revisions that are not
// strictly newer are refused with NotNewerError.
func (r *TaskRunner) Update(desc TaskDescription, revid uint64) error {
	return r.send(taskCommand{
		kind:    taskCmdUpdate,
		desc:    &desc,
		revid:   revid,
		receipt: make(chan error, 1),
	})
}

// Status reads the runner's status snapshot.
func (r *TaskRunner) Status() (TaskStatus, error) {
	cmd := taskCommand{kind: taskCmdQuery, status: make(chan TaskStatus, 1)}
	select {
	case <-r.done:
		return TaskStatus{}, ErrIsShuttingDown
	default:
	}
	select {
	case r.cmds <- cmd:
	case <-r.done:
		return TaskStatus{}, ErrIsShuttingDown
	case <-time.After(receiptTimeout):
		return TaskStatus{}, ErrHungUp
	}
	select {
	case st := <-cmd.status:
		return st, nil
	case <-time.After(receiptTimeout):
		return TaskStatus{}, ErrHungUp
	}
}
