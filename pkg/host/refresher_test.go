// Copyright 2025 The Page List Bot Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagelistbot/engine/pkg/provider/mediawiki"
	"github.com/pagelistbot/engine/pkg/provider/providertest"
)

func metaResponder(rights []string) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		switch req.URL.Query().Get("meta") {
		case "siteinfo":
			body, _ := jsoniter.Marshal(map[string]any{
				"query": providertest.SiteInfo(),
			})
			return httpmock.NewStringResponse(http.StatusOK, string(body)), nil
		case "userinfo":
			body, _ := jsoniter.Marshal(map[string]any{
				"query": map[string]any{"userinfo": map[string]any{
					"id": 7, "name": "ListBot", "rights": rights,
				}},
			})
			return httpmock.NewStringResponse(http.StatusOK, string(body)), nil
		}
		return httpmock.NewStringResponse(http.StatusBadRequest, `{}`), nil
	}
}

func TestRefresherValidates(t *testing.T) {
	httpClient := &http.Client{}
	httpmock.ActivateNonDefault(httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	httpmock.RegisterResponder(http.MethodGet, testEndpoint,
		metaResponder([]string{"read", "bot", "apihighlimits"}))

	client := mediawiki.NewClient(testEndpoint, mediawiki.WithHTTPClient(httpClient))
	site := NewSite(client, providertest.SiteInfo(), providertest.Codec())

	exec := &refresherExec{
		site: site,
		build: func(context.Context) (*mediawiki.Client, error) {
			t.Error("validation must not rebuild the client")
			return nil, errors.New("unreachable")
		},
		log: zerolog.Nop(),
	}
	summary := exec.run(context.Background())
	assert.Equal(t, RefresherValidated, summary.Outcome)

	snap := site.Snapshot()
	assert.True(t, snap.HasBot)
	assert.True(t, snap.HasHighLimits)
	assert.Same(t, client, snap.Client)
}

func TestRefresherRebuildsOnFailure(t *testing.T) {
	const freshEndpoint = "https://wiki.example.org/w/fresh.php"

	httpClient := &http.Client{}
	httpmock.ActivateNonDefault(httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	// the cached client's endpoint is broken, the rebuilt one works
	httpmock.RegisterResponder(http.MethodGet, testEndpoint,
		httpmock.NewStringResponder(http.StatusBadGateway, "down"))
	httpmock.RegisterResponder(http.MethodGet, freshEndpoint,
		metaResponder([]string{"read", "bot"}))

	stale := mediawiki.NewClient(testEndpoint, mediawiki.WithHTTPClient(httpClient))
	fresh := mediawiki.NewClient(freshEndpoint, mediawiki.WithHTTPClient(httpClient))
	site := NewSite(stale, providertest.SiteInfo(), providertest.Codec())

	exec := &refresherExec{
		site:  site,
		build: func(context.Context) (*mediawiki.Client, error) { return fresh, nil },
		log:   zerolog.Nop(),
	}
	summary := exec.run(context.Background())
	assert.Equal(t, RefresherRefreshed, summary.Outcome)

	snap := site.Snapshot()
	assert.Same(t, fresh, snap.Client)
	assert.True(t, snap.HasBot)
	assert.False(t, snap.HasHighLimits)
}

func TestRefresherKeepsPriorClientWhenRebuildFails(t *testing.T) {
	httpClient := &http.Client{}
	httpmock.ActivateNonDefault(httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	httpmock.RegisterResponder(http.MethodGet, testEndpoint,
		httpmock.NewStringResponder(http.StatusBadGateway, "down"))

	stale := mediawiki.NewClient(testEndpoint, mediawiki.WithHTTPClient(httpClient))
	site := NewSite(stale, providertest.SiteInfo(), providertest.Codec())

	exec := &refresherExec{
		site:  site,
		build: func(context.Context) (*mediawiki.Client, error) { return nil, errors.New("login refused") },
		log:   zerolog.Nop(),
	}
	summary := exec.run(context.Background())
	require.Equal(t, RefresherNewClientFailed, summary.Outcome)
	assert.Equal(t, "login refused", summary.Err)

	// the prior connection is retained on refresh failure
	assert.Same(t, stale, site.Snapshot().Client)
}
