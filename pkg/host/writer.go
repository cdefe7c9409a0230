// Copyright 2025 The Page List Bot Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"context"

	"github.com/pagelistbot/engine/pkg/provider"
)

// PageWriter is the outbound capability task runs publish through.
// Rendering happens here; delivery belongs to the collaborator behind
// this interface.
type PageWriter interface {
	// WritePage replaces the content of title. bot asks for the edit to
	// be flagged as a bot edit.
	WritePage(ctx context.Context, title provider.Title, text string, bot bool) error
}

// DiscardWriter drops every write; hosts run with it when no output
// delivery is wired up.
type DiscardWriter struct{}

func (DiscardWriter) WritePage(context.Context, provider.Title, string, bool) error {
	return nil
}
