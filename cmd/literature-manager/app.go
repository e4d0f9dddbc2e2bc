// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/literature-manager/internal/catalog"
	"github.com/pdiddy/literature-manager/internal/console"
	"github.com/pdiddy/literature-manager/internal/doi"
	"github.com/pdiddy/literature-manager/internal/extract"
	"github.com/pdiddy/literature-manager/internal/fulltext"
	"github.com/pdiddy/literature-manager/internal/llm"
	"github.com/pdiddy/literature-manager/internal/pdfdoc"
	"github.com/pdiddy/literature-manager/internal/pipeline"
	"github.com/pdiddy/literature-manager/internal/taxonomy"
	"github.com/pdiddy/literature-manager/internal/zotero"
	"github.com/pdiddy/literature-manager/pkg/types"
)

// app bundles the collaborators a command needs. Close releases the
// catalog and flushes console output.
type app struct {
	Config    types.Config
	Out       *console.Writer
	Logger    *slog.Logger
	Taxonomy  *taxonomy.Taxonomy
	Processor *pipeline.Processor
	Catalog   *catalog.Store
	Zotero    *zotero.Client
}

func (a *app) Close() {
	if a.Catalog != nil {
		if err := a.Catalog.Close(); err != nil {
			a.Logger.Warn("closing catalog", "error", err)
		}
	}
	_ = a.Out.Flush()
}

// newApp loads configuration and the taxonomy and assembles the pipeline.
// The catalog and the Zotero mirror are attached when available; a
// catalog that cannot be opened is a warning, not an error.
func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	noColor, _ := cmd.Flags().GetBool("no-color")
	a := &app{
		Config: cfg,
		Out:    console.New(cmd.OutOrStdout(), noColor || os.Getenv("NO_COLOR") != ""),
		Logger: slog.Default(),
	}
	l := cfg.Library.Layout()

	tx, err := taxonomy.Load(l.Taxonomy)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no taxonomy at %s (run `literature-manager init`): %w", l.Taxonomy, err)
		}
		return nil, err
	}
	a.Taxonomy = tx

	reader := pdfdoc.New()
	deps := extract.Deps{
		Reader:   reader,
		Resolver: doi.NewClient(cfg.HTTP),
		Taxonomy: tx,
		Logger:   a.Logger,
	}
	if svc := newLLM(cfg, a.Logger); svc != nil {
		deps.LLM = svc
	}
	if cfg.Extraction.FulltextSummary {
		deps.Fulltext = fulltext.New(ctx, cfg.Extraction.FulltextBackend, reader, a.Logger)
	}
	ex := extract.New(cfg.Extraction, cfg.Filing.TopicConfidence, deps)

	a.Processor = pipeline.New(cfg, ex, a.Out, a.Logger)

	if store, err := catalog.Open(l.Catalog); err != nil {
		a.Logger.Warn("catalog unavailable", "path", l.Catalog, "error", err)
	} else {
		a.Catalog = store
		a.Processor.Catalog = store
	}

	if cfg.Zotero.Enabled {
		zc, err := zotero.NewClient(cfg.Zotero, cfg.HTTP, a.Logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Zotero = zc
		a.Processor.Mirror = zc
	}
	return a, nil
}

// newLLM returns nil when no API key is configured; extraction steps that
// need the model then stop the batch.
func newLLM(cfg types.Config, logger *slog.Logger) *llm.Service {
	client, err := llm.NewClaude(cfg.AI)
	if err != nil {
		logger.Debug("LLM disabled", "error", err)
		return nil
	}
	svc := llm.NewService(client, cfg.Extraction.LLMMaxChars)
	svc.AbstractMaxChars = cfg.Extraction.AbstractMaxChars
	return svc
}
