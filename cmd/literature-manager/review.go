// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/pdiddy/literature-manager/internal/review"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review papers waiting in recent/ and file them by topic",
	Long: `Review steps through the papers filed to recent/ for lack of confidence,
oldest first. For each one, accept the suggested topics (a), choose topics
by slug (c), skip (s) or quit (q). Filing moves the paper to
by-topic/<slug>/, links it under any further topics, updates the index and
logs RECLASSIFIED.`,
	RunE: runReview,
}

func init() {
	rootCmd.AddCommand(reviewCmd)
}

func runReview(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	p := a.Processor
	r := &review.Reviewer{
		Layout:   p.Layout,
		Index:    p.Index,
		Journal:  p.Journal,
		Filing:   p.Filing,
		Taxonomy: a.Taxonomy,
	}
	if a.Catalog != nil {
		r.Catalog = a.Catalog
	}

	pending, err := r.Pending()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Fprintln(a.Out, "✓ Nothing to review")
		return nil
	}

	final, err := tea.NewProgram(review.NewModel(r, pending, a.Taxonomy), tea.WithContext(cmd.Context())).Run()
	if err != nil {
		return fmt.Errorf("running review: %w", err)
	}
	if m, ok := final.(review.Model); ok {
		t := m.Tally()
		fmt.Fprintf(a.Out, "✓ Reviewed: %d filed, %d skipped, %d remaining\n", t.Filed, t.Skipped, len(pending)-t.Filed-t.Skipped)
	}
	return nil
}
