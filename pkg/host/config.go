// Copyright 2025 The Page List Bot Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/pagelistbot/engine/pkg/intorinf"
)

// The on-wiki configuration pages are written by hand, so every field
// accepts the spelling aliases the original pages used. Decoding goes
// through a raw field map instead of struct tags; jsoniter has no alias
// support.

type rawFields map[string]jsoniter.RawMessage

func (m rawFields) pick(out any, keys ...string) (bool, error) {
	for _, k := range keys {
		raw, ok := m[k]
		if !ok {
			continue
		}
		if err := jsoniter.Unmarshal(raw, out); err != nil {
			return false, fmt.Errorf("field %q: %w", k, err)
		}
		return true, nil
	}
	return false, nil
}

// RunnerConfig is the host's on-wiki configuration page.
type RunnerConfig struct {
	// Active is the emergency kill switch: false stops every task.
	Active bool
	// TaskDir is the title prefix under which task subpages live.
	TaskDir string
	// Header is the template transcluded at the top of output pages.
	Header string
	// DenyNS lists namespaces output pages must never land in.
	DenyNS map[int]bool
	// Default carries the task configuration applied when a task does
	// not override it.
	Default TaskConfig
}

func (c *RunnerConfig) UnmarshalJSON(data []byte) error {
	var m rawFields
	if err := jsoniter.Unmarshal(data, &m); err != nil {
		return err
	}
	if _, err := m.pick(&c.Active, "active", "activate", "activated", "enable", "enabled", "on"); err != nil {
		return err
	}
	ok, err := m.pick(&c.TaskDir, "task_dir", "taskdir", "dir", "prefix")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("runner config: task directory is mandatory")
	}
	if _, err := m.pick(&c.Header, "header", "resultheader", "result_header"); err != nil {
		return err
	}
	var deny []int
	if _, err := m.pick(&deny, "deny_ns", "denyns"); err != nil {
		return err
	}
	c.DenyNS = map[int]bool{}
	for _, ns := range deny {
		c.DenyNS[ns] = true
	}
	ok, err = m.pick(&c.Default, "default_task_config", "default")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("runner config: default task config is mandatory")
	}
	return nil
}

// TaskConfig is the per-task execution budget.
type TaskConfig struct {
	// TimeoutSecs bounds one evaluation; expiry discards partials.
	TimeoutSecs uint64
	// QueryLimit is the default result bound handed to the solver.
	QueryLimit intorinf.IntOrInf
}

func (c *TaskConfig) UnmarshalJSON(data []byte) error {
	var m rawFields
	if err := jsoniter.Unmarshal(data, &m); err != nil {
		return err
	}
	if _, err := m.pick(&c.TimeoutSecs, "timeout", "time"); err != nil {
		return err
	}
	if _, err := m.pick(&c.QueryLimit, "query_limit", "querylimit", "limit"); err != nil {
		return err
	}
	return nil
}

// OptionalTaskConfig overrides fields of the host default per task.
type OptionalTaskConfig struct {
	TimeoutSecs *uint64
	QueryLimit  *intorinf.IntOrInf
}

func (c *OptionalTaskConfig) UnmarshalJSON(data []byte) error {
	var m rawFields
	if err := jsoniter.Unmarshal(data, &m); err != nil {
		return err
	}
	if _, err := m.pick(&c.TimeoutSecs, "timeout", "time"); err != nil {
		return err
	}
	if _, err := m.pick(&c.QueryLimit, "query_limit", "querylimit", "limit"); err != nil {
		return err
	}
	return nil
}

// TaskDescription is one task subpage.
type TaskDescription struct {
	// Active is the per-task kill switch.
	Active bool
	// Description is free text for humans.
	Description string
	// Expr is the query expression source.
	Expr string
	// Cron is the seven-field schedule.
	Cron string
	// Eager makes output pages overwrite even on failed or empty runs.
	Eager bool
	// Config optionally overrides the host defaults.
	Config *OptionalTaskConfig
	// Output maps output page titles to their formats.
	Output map[string]OutputFormat
}

func (d *TaskDescription) UnmarshalJSON(data []byte) error {
	var m rawFields
	if err := jsoniter.Unmarshal(data, &m); err != nil {
		return err
	}
	if _, err := m.pick(&d.Active, "active", "activate", "activated", "enable", "enabled"); err != nil {
		return err
	}
	if _, err := m.pick(&d.Description, "description", "desc"); err != nil {
		return err
	}
	ok, err := m.pick(&d.Expr, "expr", "query", "expression")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("task description: expression is mandatory")
	}
	ok, err = m.pick(&d.Cron, "cron", "schedule")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("task description: cron is mandatory")
	}
	if _, err := m.pick(&d.Eager, "eager"); err != nil {
		return err
	}
	if _, err := m.pick(&d.Config, "config"); err != nil {
		return err
	}
	if _, err := m.pick(&d.Output, "output"); err != nil {
		return err
	}
	return nil
}

// Timeout resolves the task's effective timeout against the host
// default.
func (d *TaskDescription) Timeout(def uint64) uint64 {
	if d.Config != nil && d.Config.TimeoutSecs != nil {
		return *d.Config.TimeoutSecs
	}
	return def
}

// QueryLimit resolves the task's effective default query limit against
// the host default.
func (d *TaskDescription) QueryLimit(def intorinf.IntOrInf) intorinf.IntOrInf {
	if d.Config != nil && d.Config.QueryLimit != nil {
		return *d.Config.QueryLimit
	}
	return def
}

// OutputFormat describes one output page of a task.
type OutputFormat struct {
	// Eager overrides the task-level eager flag for this page.
	Eager *bool
	// Fail is written when the query fails.
	Fail string
	// Empty is written when the query yields zero results.
	Empty string
	// Success formats a non-empty result list.
	Success OutputFormatSuccess
}

func (f *OutputFormat) UnmarshalJSON(data []byte) error {
	var m rawFields
	if err := jsoniter.Unmarshal(data, &m); err != nil {
		return err
	}
	if _, err := m.pick(&f.Eager, "eager"); err != nil {
		return err
	}
	if _, err := m.pick(&f.Fail, "fail", "failure", "error"); err != nil {
		return err
	}
	if _, err := m.pick(&f.Empty, "empty", "zero", "none"); err != nil {
		return err
	}
	if _, err := m.pick(&f.Success, "success", "format"); err != nil {
		return err
	}
	return nil
}

// OutputFormatSuccess is the item-list template of a successful run.
type OutputFormatSuccess struct {
	Before  string
	Item    string
	Between string
	After   string
}

func (f *OutputFormatSuccess) UnmarshalJSON(data []byte) error {
	var m rawFields
	if err := jsoniter.Unmarshal(data, &m); err != nil {
		return err
	}
	if _, err := m.pick(&f.Before, "before", "start", "begin", "head", "prepend"); err != nil {
		return err
	}
	if _, err := m.pick(&f.Item, "item"); err != nil {
		return err
	}
	if _, err := m.pick(&f.Between, "between", "inside"); err != nil {
		return err
	}
	if _, err := m.pick(&f.After, "after", "end", "finish", "tail", "append"); err != nil {
		return err
	}
	return nil
}
