// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fulltext supplies whole-document text for full-text summaries.
// The plain backend reads every page with the PDF reader; the markitdown
// backend pipes the file through a markitdown container and returns
// Markdown.
package fulltext

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pdiddy/literature-manager/internal/container"
	"github.com/pdiddy/literature-manager/internal/pdfdoc"
	"github.com/pdiddy/literature-manager/pkg/types"
)

// Source returns the whole text of a document.
type Source interface {
	Text(ctx context.Context, path string) (string, error)
}

// Plain extracts text from every page.
type Plain struct {
	Reader pdfdoc.Reader
}

// Text implements Source.
func (p Plain) Text(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := p.Reader.Text(path, 0)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("no extractable text in %s", path)
	}
	return text, nil
}

// detectRuntime is swapped in tests.
var detectRuntime = container.Detect

// New returns the source for backend. When markitdown is requested but no
// runtime or image is available it logs a warning and falls back to Plain.
func New(ctx context.Context, backend types.FulltextBackend, reader pdfdoc.Reader, logger *slog.Logger) Source {
	plain := Plain{Reader: reader}
	if backend != types.FulltextMarkitdown {
		return plain
	}
	if logger == nil {
		logger = slog.Default()
	}
	rt, err := detectRuntime(ctx)
	if err != nil {
		logger.Warn("markitdown unavailable, using plain text", "error", err)
		return plain
	}
	md, err := NewMarkitdown(ctx, rt)
	if err != nil {
		logger.Warn("markitdown unavailable, using plain text", "error", err)
		return plain
	}
	logger.Debug("full text via markitdown", "runtime", rt.Name())
	return md
}
