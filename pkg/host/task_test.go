// Copyright 2025 The Page List Bot Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pagelistbot/engine/pkg/intorinf"
	"github.com/pagelistbot/engine/pkg/provider"
	"github.com/pagelistbot/engine/pkg/provider/providertest"
)

// recordingWriter captures every page write.
type recordingWriter struct {
	mu     sync.Mutex
	writes map[string]string
	bot    bool
}

func (w *recordingWriter) WritePage(_ context.Context, title provider.Title, text string, bot bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.writes == nil {
		w.writes = map[string]string{}
	}
	w.writes[title.DBKey] = text
	w.bot = bot
	return nil
}

func (w *recordingWriter) get(dbkey string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	text, ok := w.writes[dbkey]
	return text, ok
}

// blockingProvider parks every stream until its context dies.
type blockingProvider struct{}

type blockingStream struct{}

func (blockingStream) Next(ctx context.Context) (provider.Item, bool) {
	<-ctx.Done()
	return provider.Err(ctx.Err()), true
}

func (blockingProvider) PageInfo(context.Context, []provider.Title) provider.Stream {
	return blockingStream{}
}
func (blockingProvider) PageInfoRaw(context.Context, []string) provider.Stream {
	return blockingStream{}
}
func (blockingProvider) Links(context.Context, provider.Title, *provider.LinksConfig) provider.Stream {
	return blockingStream{}
}
func (blockingProvider) Backlinks(context.Context, provider.Title, *provider.BackLinksConfig) provider.Stream {
	return blockingStream{}
}
func (blockingProvider) Embeds(context.Context, provider.Title, *provider.EmbedsConfig) provider.Stream {
	return blockingStream{}
}
func (blockingProvider) CategoryMembers(context.Context, []provider.Title, *provider.CategoryMembersConfig) provider.Stream {
	return blockingStream{}
}
func (blockingProvider) Prefix(context.Context, provider.Title, *provider.PrefixConfig) provider.Stream {
	return blockingStream{}
}

func activeGlobal() *GlobalConfig {
	g := &GlobalConfig{}
	g.Apply(&RunnerConfig{
		Active:  true,
		TaskDir: "Project:PLB/Tasks/",
		Header:  "",
		DenyNS:  map[int]bool{2: true},
		Default: TaskConfig{TimeoutSecs: 30, QueryLimit: intorinf.Inf},
	})
	return g
}

func testDeps(p provider.DataProvider, w PageWriter) taskDeps {
	if w == nil {
		w = DiscardWriter{}
	}
	return taskDeps{
		site:        NewSite(nil, providertest.SiteInfo(), providertest.Codec()),
		global:      activeGlobal(),
		writer:      w,
		providerFor: func(SiteSnapshot) provider.DataProvider { return p },
		log:         zerolog.Nop(),
	}
}

func inactiveDesc() TaskDescription {
	return TaskDescription{
		Active: false,
		Expr:   `"A"`,
		Cron:   "0 0 0 1 1 * 2099",
	}
}

func TestTaskRunnerUpdateMonotonicity(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := newTaskRunner(1, inactiveDesc(), 10, testDeps(&providertest.Provider{Codec: providertest.Codec()}, nil))
	defer func() { require.NoError(t, r.Shutdown()) }()

	// same revision is refused
	err := r.Update(inactiveDesc(), 10)
	var notNewer *NotNewerError
	require.ErrorAs(t, err, &notNewer)
	assert.Equal(t, uint64(10), notNewer.NewerRevID)

	// older revision is refused
	err = r.Update(inactiveDesc(), 9)
	require.ErrorAs(t, err, &notNewer)

	// strictly newer is accepted
	require.NoError(t, r.Update(inactiveDesc(), 11))
	st, err := r.Status()
	require.NoError(t, err)
	assert.Equal(t, uint64(11), st.RevID)

	// and the same revision is now refused with the new high-water mark
	err = r.Update(inactiveDesc(), 11)
	require.ErrorAs(t, err, &notNewer)
	assert.Equal(t, uint64(11), notNewer.NewerRevID)
}

func TestTaskRunnerRefusals(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := newTaskRunner(2, inactiveDesc(), 1, testDeps(&providertest.Provider{Codec: providertest.Codec()}, nil))

	assert.ErrorIs(t, r.Abort(), ErrNotRunning)

	st, err := r.Status()
	require.NoError(t, err)
	assert.Equal(t, RunStateNoRun, st.State)

	require.NoError(t, r.Shutdown())
	assert.ErrorIs(t, r.Abort(), ErrIsShuttingDown)
	assert.ErrorIs(t, r.RunNow(), ErrIsShuttingDown)
	_, err = r.Status()
	assert.ErrorIs(t, err, ErrIsShuttingDown)
}

func TestTaskRunnerExecutesAndPublishes(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := &providertest.Provider{Codec: providertest.Codec()}
	p.Add(providertest.Page(provider.Title{Namespace: 0, DBKey: "A"}))
	p.Add(providertest.Page(provider.Title{Namespace: 0, DBKey: "B"}))
	w := &recordingWriter{}

	desc := TaskDescription{
		Active: true,
		Expr:   `"A", "B"`,
		Cron:   "0 0 0 1 1 * 2099",
		Output: map[string]OutputFormat{
			"Project:Reports/All": {
				Success: OutputFormatSuccess{Before: "<", Item: "[[$p]]", Between: "|", After: ">"},
			},
			// denied namespace must never be written
			"User:Nope": {
				Success: OutputFormatSuccess{Item: "x"},
			},
		},
	}
	r := newTaskRunner(3, desc, 1, testDeps(p, w))
	defer func() { require.NoError(t, r.Shutdown()) }()

	require.NoError(t, r.RunNow())
	require.Eventually(t, func() bool {
		st, err := r.Status()
		return err == nil && st.State == RunStateFinished
	}, 3*time.Second, 10*time.Millisecond)

	st, err := r.Status()
	require.NoError(t, err)
	require.NotNil(t, st.Summary)
	assert.Equal(t, TaskDone, st.Summary.Outcome)
	assert.Equal(t, 2, st.Summary.ResultCount)

	text, ok := w.get("Reports/All")
	require.True(t, ok)
	assert.Equal(t, "<[[A]]|[[B]]>", text)
	_, ok = w.get("Nope")
	assert.False(t, ok)
}

func TestTaskRunnerParseFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	desc := TaskDescription{
		Active: true,
		Expr:   `link("A"`,
		Cron:   "0 0 0 1 1 * 2099",
	}
	r := newTaskRunner(4, desc, 1, testDeps(&providertest.Provider{Codec: providertest.Codec()}, nil))
	defer func() { require.NoError(t, r.Shutdown()) }()

	require.NoError(t, r.RunNow())
	require.Eventually(t, func() bool {
		st, err := r.Status()
		return err == nil && st.State == RunStateFinished
	}, 3*time.Second, 10*time.Millisecond)

	st, err := r.Status()
	require.NoError(t, err)
	require.NotNil(t, st.Summary)
	assert.Equal(t, TaskParseFailed, st.Summary.Outcome)
	assert.NotEmpty(t, st.Summary.Msgs)
}

func TestTaskRunnerTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	timeout := uint64(1)
	desc := TaskDescription{
		Active: true,
		Expr:   `"A"`,
		Cron:   "0 0 0 1 1 * 2099",
		Config: &OptionalTaskConfig{TimeoutSecs: &timeout},
	}
	r := newTaskRunner(5, desc, 1, testDeps(blockingProvider{}, nil))
	defer func() { require.NoError(t, r.Shutdown()) }()

	require.NoError(t, r.RunNow())
	require.Eventually(t, func() bool {
		st, err := r.Status()
		return err == nil && st.State == RunStateFinished
	}, 5*time.Second, 20*time.Millisecond)

	st, err := r.Status()
	require.NoError(t, err)
	require.NotNil(t, st.Summary)
	assert.Equal(t, TaskTimeout, st.Summary.Outcome)
}

func TestTaskRunnerAbortWhileRunning(t *testing.T) {
	defer goleak.VerifyNone(t)

	desc := TaskDescription{
		Active: true,
		Expr:   `"A"`,
		Cron:   "0 0 0 1 1 * 2099",
	}
	r := newTaskRunner(6, desc, 1, testDeps(blockingProvider{}, nil))
	defer func() { require.NoError(t, r.Shutdown()) }()

	require.NoError(t, r.RunNow())
	require.Eventually(t, func() bool {
		st, err := r.Status()
		return err == nil && st.State == RunStateRunning
	}, 3*time.Second, 10*time.Millisecond)

	// a second RunNow while running is refused
	assert.ErrorIs(t, r.RunNow(), ErrAlreadyRunning)

	require.NoError(t, r.Abort())
	st, err := r.Status()
	require.NoError(t, err)
	assert.Equal(t, RunStateAborted, st.State)
	assert.Nil(t, st.Summary)
}

func TestTaskRunnerInactiveGlobalSkipsRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	deps := testDeps(&providertest.Provider{Codec: providertest.Codec()}, nil)
	deps.global.Deactivate()

	desc := TaskDescription{
		Active: true,
		Expr:   `"A"`,
		Cron:   "0 0 0 1 1 * 2099",
	}
	r := newTaskRunner(7, desc, 1, deps)
	defer func() { require.NoError(t, r.Shutdown()) }()

	require.NoError(t, r.RunNow())
	time.Sleep(200 * time.Millisecond)
	st, err := r.Status()
	require.NoError(t, err)
	assert.Equal(t, RunStateNoRun, st.State)
}
