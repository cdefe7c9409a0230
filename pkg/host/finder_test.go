// Copyright 2025 The Page List Bot Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"testing"

	"github.com/jarcoal/httpmock"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pagelistbot/engine/pkg/provider"
	"github.com/pagelistbot/engine/pkg/provider/mediawiki"
	"github.com/pagelistbot/engine/pkg/provider/providertest"
)

const testEndpoint = "https://wiki.example.org/w/api.php"

// fakeWiki scripts the API surface one discovery cycle touches.
type fakeWiki struct {
	mu sync.Mutex
	// config is the host configuration page content; nil scripts a
	// fetch failure.
	config *RunnerConfig
	// tasks maps page id to (revid, description JSON).
	tasks map[uint64]fakeTaskPage
}

type fakeTaskPage struct {
	revid uint64
	desc  TaskDescription
}

func revisionsBody(revid uint64, content any) string {
	raw, err := jsoniter.Marshal(content)
	if err != nil {
		panic(err)
	}
	body, err := jsoniter.Marshal(map[string]any{
		"query": map[string]any{
			"pages": []any{map[string]any{
				"pageid": 1,
				"revisions": []any{map[string]any{
					"revid": revid,
					"slots": map[string]any{"main": map[string]any{
						"contentmodel":  "json",
						"contentformat": "application/json",
						"content":       string(raw),
					}},
				}},
			}},
		},
	})
	if err != nil {
		panic(err)
	}
	return string(body)
}

func (w *fakeWiki) configBody() map[string]any {
	return map[string]any{
		"enabled": w.config.Active,
		"prefix":  w.config.TaskDir,
		"header":  w.config.Header,
		"default": map[string]any{"timeout": w.config.Default.TimeoutSecs},
	}
}

func (w *fakeWiki) taskDescBody(d TaskDescription) map[string]any {
	return map[string]any{
		"active":   d.Active,
		"query":    d.Expr,
		"schedule": d.Cron,
	}
}

func (w *fakeWiki) respond(req *http.Request) (*http.Response, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	q := req.URL.Query()
	switch {
	case q.Get("titles") != "":
		if w.config == nil {
			return httpmock.NewStringResponse(http.StatusOK,
				`{"error":{"code":"internal_api_error","info":"backend unavailable"}}`), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, revisionsBody(1, w.configBody())), nil
	case q.Get("generator") == "allpages":
		pages := []any{}
		for id, page := range w.tasks {
			pages = append(pages, map[string]any{
				"pageid":       id,
				"lastrevid":    page.revid,
				"contentmodel": "json",
			})
		}
		// a wikitext subpage is never a task
		pages = append(pages, map[string]any{
			"pageid": 999, "lastrevid": 1, "contentmodel": "wikitext",
		})
		body, _ := jsoniter.Marshal(map[string]any{
			"query": map[string]any{"pages": pages},
		})
		return httpmock.NewStringResponse(http.StatusOK, string(body)), nil
	case q.Get("pageids") != "":
		id, err := strconv.ParseUint(q.Get("pageids"), 10, 64)
		if err != nil {
			panic(err)
		}
		page, ok := w.tasks[id]
		if !ok {
			return httpmock.NewStringResponse(http.StatusOK,
				`{"query":{"pages":[{"missing":true}]}}`), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, revisionsBody(page.revid, w.taskDescBody(page.desc))), nil
	}
	return httpmock.NewStringResponse(http.StatusBadRequest, `{}`), nil
}

func newFinderFixture(t *testing.T, wiki *fakeWiki) (*finderExec, *taskMap, *GlobalConfig, *Site) {
	t.Helper()
	httpClient := &http.Client{}
	httpmock.ActivateNonDefault(httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	httpmock.RegisterResponder(http.MethodGet, testEndpoint, wiki.respond)

	client := mediawiki.NewClient(testEndpoint, mediawiki.WithHTTPClient(httpClient))
	site := NewSite(client, providertest.SiteInfo(), providertest.Codec())
	global := &GlobalConfig{}
	tasks := newTaskMap()

	deps := taskDeps{
		site:        site,
		global:      global,
		writer:      DiscardWriter{},
		providerFor: func(SiteSnapshot) provider.DataProvider { return &providertest.Provider{Codec: providertest.Codec()} },
		log:         zerolog.Nop(),
	}
	exec := &finderExec{
		site:       site.Snapshot(),
		global:     global,
		tasks:      tasks,
		configPage: "Project:PLB/config",
		spawn: func(pageID uint64, desc TaskDescription, revid uint64) *TaskRunner {
			return newTaskRunner(pageID, desc, revid, deps)
		},
		log: zerolog.Nop(),
	}
	return exec, tasks, global, site
}

func idleTask(expr string) TaskDescription {
	return TaskDescription{Active: false, Expr: expr, Cron: "0 0 0 1 1 * 2099"}
}

func shutdownAll(t *testing.T, tasks *taskMap) {
	t.Helper()
	for _, id := range tasks.ids() {
		entry, ok := tasks.get(id)
		require.True(t, ok)
		require.NoError(t, entry.runner.Shutdown())
	}
}

func TestFinderCreatesDiscoveredTasks(t *testing.T) {
	defer goleak.VerifyNone(t)

	wiki := &fakeWiki{
		config: &RunnerConfig{Active: true, TaskDir: "Project:PLB/Tasks/", Default: TaskConfig{TimeoutSecs: 30}},
		tasks: map[uint64]fakeTaskPage{
			11: {revid: 5, desc: idleTask(`"A"`)},
			12: {revid: 9, desc: idleTask(`"B"`)},
		},
	}
	exec, tasks, global, _ := newFinderFixture(t, wiki)
	defer shutdownAll(t, tasks)

	summary := exec.run(context.Background())
	require.Equal(t, FinderSuccess, summary.Kind)
	assert.Equal(t, map[uint64]TaskChange{11: TaskCreated, 12: TaskCreated}, summary.Changes)
	assert.True(t, global.Snapshot().Active)
	assert.ElementsMatch(t, []uint64{11, 12}, tasks.ids())

	// a second cycle with nothing changed reports NoChange
	summary = exec.run(context.Background())
	require.Equal(t, FinderSuccess, summary.Kind)
	assert.Equal(t, map[uint64]TaskChange{11: TaskNoChange, 12: TaskNoChange}, summary.Changes)
}

func TestFinderUpdatesNewerRevisions(t *testing.T) {
	defer goleak.VerifyNone(t)

	wiki := &fakeWiki{
		config: &RunnerConfig{Active: true, TaskDir: "Project:PLB/Tasks/", Default: TaskConfig{TimeoutSecs: 30}},
		tasks:  map[uint64]fakeTaskPage{11: {revid: 5, desc: idleTask(`"A"`)}},
	}
	exec, tasks, _, _ := newFinderFixture(t, wiki)
	defer shutdownAll(t, tasks)

	require.Equal(t, FinderSuccess, exec.run(context.Background()).Kind)

	wiki.mu.Lock()
	wiki.tasks[11] = fakeTaskPage{revid: 6, desc: idleTask(`"A2"`)}
	wiki.mu.Unlock()

	summary := exec.run(context.Background())
	require.Equal(t, FinderSuccess, summary.Kind)
	assert.Equal(t, map[uint64]TaskChange{11: TaskUpdated}, summary.Changes)

	entry, ok := tasks.get(11)
	require.True(t, ok)
	assert.Equal(t, uint64(6), entry.latestRev)
	st, err := entry.runner.Status()
	require.NoError(t, err)
	assert.Equal(t, `"A2"`, st.Description.Expr)
}

func TestFinderKillsVanishedTasks(t *testing.T) {
	defer goleak.VerifyNone(t)

	wiki := &fakeWiki{
		config: &RunnerConfig{Active: true, TaskDir: "Project:PLB/Tasks/", Default: TaskConfig{TimeoutSecs: 30}},
		tasks: map[uint64]fakeTaskPage{
			11: {revid: 5, desc: idleTask(`"A"`)},
			12: {revid: 9, desc: idleTask(`"B"`)},
		},
	}
	exec, tasks, _, _ := newFinderFixture(t, wiki)
	defer shutdownAll(t, tasks)

	require.Equal(t, FinderSuccess, exec.run(context.Background()).Kind)

	wiki.mu.Lock()
	delete(wiki.tasks, 12)
	wiki.mu.Unlock()

	summary := exec.run(context.Background())
	require.Equal(t, FinderSuccess, summary.Kind)
	assert.Equal(t, map[uint64]TaskChange{11: TaskNoChange, 12: TaskKilled}, summary.Changes)
	assert.ElementsMatch(t, []uint64{11}, tasks.ids())
}

func TestFinderConfigFailureDeactivates(t *testing.T) {
	defer goleak.VerifyNone(t)

	wiki := &fakeWiki{config: nil}
	exec, tasks, global, _ := newFinderFixture(t, wiki)
	defer shutdownAll(t, tasks)

	// start from an active host; the failed cycle must deactivate it
	global.Apply(&RunnerConfig{Active: true, TaskDir: "X/"})

	summary := exec.run(context.Background())
	assert.Equal(t, FinderGlobalConfigFailed, summary.Kind)
	assert.NotEmpty(t, summary.Err)
	assert.False(t, global.Snapshot().Active)
}

func TestFinderActorLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	wiki := &fakeWiki{
		config: &RunnerConfig{Active: true, TaskDir: "Project:PLB/Tasks/", Default: TaskConfig{TimeoutSecs: 30}},
		tasks:  map[uint64]fakeTaskPage{},
	}
	exec, tasks, _, _ := newFinderFixture(t, wiki)
	_ = exec

	httpClient := &http.Client{}
	httpmock.ActivateNonDefault(httpClient)
	httpmock.RegisterResponder(http.MethodGet, testEndpoint, wiki.respond)
	client := mediawiki.NewClient(testEndpoint, mediawiki.WithHTTPClient(httpClient))
	site := NewSite(client, providertest.SiteInfo(), providertest.Codec())

	f := newFinder(finderDeps{
		site:       site,
		global:     &GlobalConfig{},
		tasks:      tasks,
		configPage: "Project:PLB/config",
		spawn: func(pageID uint64, desc TaskDescription, revid uint64) *TaskRunner {
			t.Errorf("no tasks should spawn")
			return nil
		},
		log: zerolog.Nop(),
	})
	require.NoError(t, f.Shutdown())
	assert.ErrorIs(t, f.RunNow(), ErrIsShuttingDown)
	_, err := f.Status()
	assert.ErrorIs(t, err, ErrIsShuttingDown)
}
