// Copyright 2025 The Page List Bot Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"errors"
	"fmt"
	"time"
)

// Typed refusals returned on command receipts. They never kill the actor
// that issued them.
var (
	ErrIsShuttingDown = errors.New("is shutting down")
	ErrNotRunning     = errors.New("not running")
	ErrAlreadyRunning = errors.New("already running")
	// ErrHungUp: the actor went away, or did not acknowledge within the
	// receipt window.
	ErrHungUp = errors.New("receiver hung up")
)

// NotNewerError rejects a task-config update whose revision is not
// strictly newer than what the task already runs.
type NotNewerError struct {
	NewerRevID uint64
}

func (e *NotNewerError) Error() string {
	return fmt.Sprintf("task description not newer than revision %d", e.NewerRevID)
}

// RunState is the coarse last-run state every actor reports.
type RunState int

const (
	// RunStateNoRun: never ran since the actor started.
	RunStateNoRun RunState = iota
	// RunStateRunning: an execution is in flight.
	RunStateRunning
	// RunStateAborted: the last execution was forcefully aborted.
	RunStateAborted
	// RunStateFinished: the last execution completed; see the summary.
	RunStateFinished
)

func (s RunState) String() string {
	switch s {
	case RunStateNoRun:
		return "no run"
	case RunStateRunning:
		return "running"
	case RunStateAborted:
		return "aborted"
	case RunStateFinished:
		return "finished"
	}
	return "unknown"
}

// TaskChange classifies what the finder did to one task during a
// discovery cycle.
type TaskChange int

const (
	TaskNoChange TaskChange = iota
	TaskCreated
	TaskUpdated
	TaskKilled
	TaskRestarted
	TaskSkipped
)

func (c TaskChange) String() string {
	switch c {
	case TaskNoChange:
		return "no change"
	case TaskCreated:
		return "created"
	case TaskUpdated:
		return "updated"
	case TaskKilled:
		return "killed"
	case TaskRestarted:
		return "restarted"
	case TaskSkipped:
		return "skipped"
	}
	return "unknown"
}

// FinderSummaryKind discriminates a finder run's outcome.
type FinderSummaryKind int

const (
	FinderSuccess FinderSummaryKind = iota
	FinderGlobalConfigFailed
	FinderTaskListFailed
)

// FinderSummary is the outcome of one discovery cycle.
type FinderSummary struct {
	Kind FinderSummaryKind
	// Err carries the failure message for the failed kinds.
	Err string
	// Changes maps page id to what happened, for FinderSuccess.
	Changes map[uint64]TaskChange
}

// FinderStatus is the finder's status snapshot.
type FinderStatus struct {
	LastRunTime time.Time
	State       RunState
	Summary     *FinderSummary
}

// RefresherOutcome is the result of one credential/siteinfo refresh.
type RefresherOutcome int

const (
	RefresherValidated RefresherOutcome = iota
	RefresherRefreshed
	RefresherNewClientFailed
	RefresherNewSiteInfoFailed
	RefresherNewUserInfoFailed
)

func (o RefresherOutcome) String() string {
	switch o {
	case RefresherValidated:
		return "validated"
	case RefresherRefreshed:
		return "refreshed"
	case RefresherNewClientFailed:
		return "new client failed"
	case RefresherNewSiteInfoFailed:
		return "new site info failed"
	case RefresherNewUserInfoFailed:
		return "new user info failed"
	}
	return "unknown"
}

// RefresherSummary is the outcome of one refresher run.
type RefresherSummary struct {
	Outcome RefresherOutcome
	Err     string
}

// RefresherStatus is the refresher's status snapshot.
type RefresherStatus struct {
	LastRunTime time.Time
	State       RunState
	Summary     *RefresherSummary
}

// TaskOutcome discriminates a task run's result.
type TaskOutcome int

const (
	// TaskDone: evaluation and output writing completed.
	TaskDone TaskOutcome = iota
	// TaskParseFailed: the expression did not parse or resolve; nothing
	// was evaluated.
	TaskParseFailed
	// TaskRuntimeFailed: the evaluation fused on a runtime error.
	TaskRuntimeFailed
	// TaskTimeout: the evaluation exceeded its budget; partial results
	// were discarded.
	TaskTimeout
)

func (o TaskOutcome) String() string {
	switch o {
	case TaskDone:
		return "done"
	case TaskParseFailed:
		return "parse failed"
	case TaskRuntimeFailed:
		return "runtime failed"
	case TaskTimeout:
		return "timeout"
	}
	return "unknown"
}

// TaskRunSummary is the outcome of one task execution.
type TaskRunSummary struct {
	Outcome TaskOutcome
	// Msgs carries parse/semantic diagnostics or the runtime error.
	Msgs []string
	// ResultCount is the number of titles produced on TaskDone.
	ResultCount int
	// Warnings carries evaluation warnings on TaskDone.
	Warnings []string
}

// TaskStatus is one task runner's status snapshot.
type TaskStatus struct {
	RevID       uint64
	Description TaskDescription
	LastRunTime time.Time
	State       RunState
	Summary     *TaskRunSummary
}
