// Copyright 2025 The Page List Bot Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/pagelistbot/engine/pkg/ast"
	"github.com/pagelistbot/engine/pkg/host/template"
	"github.com/pagelistbot/engine/pkg/provider"
	"github.com/pagelistbot/engine/pkg/solver"
)

// taskExec is one task execution: parse, evaluate under the timeout,
// publish output pages.
type taskExec struct {
	pageID      uint64
	desc        TaskDescription
	global      GlobalSnapshot
	site        SiteSnapshot
	writer      PageWriter
	preferBot   bool
	providerFor func(SiteSnapshot) provider.DataProvider
	log         zerolog.Logger
}

func (e *taskExec) run(ctx context.Context) *TaskRunSummary {
	expr, err := ast.Parse(e.desc.Expr)
	if err != nil {
		e.log.Warn().Err(err).Msg("expression does not parse")
		return &TaskRunSummary{Outcome: TaskParseFailed, Msgs: []string{err.Error()}}
	}
	// semantic failures share the cannot-parse outcome; Check reports
	// every attribute error on the page, not just the first
	if err := solver.Check(expr); err != nil {
		e.log.Warn().Err(err).Msg("expression does not resolve")
		msgs := make([]string, 0, len(multierr.Errors(err)))
		for _, diag := range multierr.Errors(err) {
			msgs = append(msgs, diag.Error())
		}
		return &TaskRunSummary{Outcome: TaskParseFailed, Msgs: msgs}
	}

	s := solver.New(e.providerFor(e.site), e.desc.QueryLimit(e.global.QueryLimit))
	answer, err := s.Solve(ctx, expr)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// partial results are discarded with the evaluation
			e.log.Warn().Msg("evaluation timed out")
			return &TaskRunSummary{Outcome: TaskTimeout}
		}
		e.log.Warn().Err(err).Msg("evaluation failed")
		e.publish(ctx, nil, err.Error())
		return &TaskRunSummary{Outcome: TaskRuntimeFailed, Msgs: []string{err.Error()}}
	}

	summary := &TaskRunSummary{Outcome: TaskDone, ResultCount: len(answer.Titles)}
	for _, w := range answer.Warnings {
		summary.Warnings = append(summary.Warnings, w.Error())
	}
	e.publish(ctx, answer, "")
	return summary
}

// publish renders and writes every output page of the task. answer is
// nil when the run failed; then only eager outputs are touched, with
// their failure template.
func (e *taskExec) publish(ctx context.Context, answer *solver.Answer, failMsg string) {
	if len(e.desc.Output) == 0 {
		return
	}
	titles := make([]string, 0, len(e.desc.Output))
	for t := range e.desc.Output {
		titles = append(titles, t)
	}
	sort.Strings(titles)

	base := map[rune]string{
		't': time.Now().UTC().Format(time.RFC3339),
		'e': failMsg,
	}
	if answer != nil {
		base['n'] = fmt.Sprint(len(answer.Titles))
	}

	bot := e.preferBot && e.site.HasBot
	for _, name := range titles {
		format := e.desc.Output[name]
		target, err := e.site.Codec.ParseTitle(name)
		if err != nil {
			e.log.Warn().Str("output", name).Err(err).Msg("bad output title")
			continue
		}
		if e.global.DenyNS[target.Namespace] {
			e.log.Warn().Str("output", name).Msg("output namespace is denied")
			continue
		}
		eager := e.desc.Eager
		if format.Eager != nil {
			eager = *format.Eager
		}

		var body string
		switch {
		case answer == nil:
			if !eager {
				// header-only refresh is the collaborator's business;
				// leave the page alone
				continue
			}
			body = template.Apply(format.Fail, base)
		case len(answer.Titles) == 0:
			if !eager {
				continue
			}
			body = template.Apply(format.Empty, base)
		default:
			body = e.renderList(answer, format.Success, base)
		}

		text := body
		if e.global.Header != "" {
			text = template.Apply(e.global.Header, base) + "\n" + body
		}
		if err := e.writer.WritePage(ctx, target, text, bot); err != nil {
			e.log.Warn().Str("output", name).Err(err).Msg("output write failed")
		}
	}
}

// renderList expands the success template over the result titles. The
// per-item context binds p to the pretty title, d to the dbkey, and s to
// the namespace id.
func (e *taskExec) renderList(answer *solver.Answer, format OutputFormatSuccess, base map[rune]string) string {
	var sb strings.Builder
	sb.WriteString(template.Apply(format.Before, base))
	for i, t := range answer.Titles {
		if i > 0 {
			sb.WriteString(template.Apply(format.Between, base))
		}
		itemCtx := map[rune]string{
			'p': e.site.Codec.Pretty(t),
			'd': t.DBKey,
			's': fmt.Sprint(t.Namespace),
		}
		for k, v := range base {
			itemCtx[k] = v
		}
		sb.WriteString(template.Apply(format.Item, itemCtx))
	}
	sb.WriteString(template.Apply(format.After, base))
	return sb.String()
}
