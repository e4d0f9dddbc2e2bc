// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/literature-manager/internal/zotero"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Mirror indexed papers to Zotero",
	Long: `Sync sends every indexed paper without a Zotero item key to Zotero:
existing items (matched by DOI) gain the paper's topic tags and
collections, new items are created with metadata, a summary note and the
PDF attached. Nothing in Zotero is ever deleted. --force re-sends papers
that already have a key.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().Bool("force", false, "also sync papers that already have a Zotero item key")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.Zotero == nil {
		return fmt.Errorf("zotero is not enabled (set zotero.enabled with an API key and user id): %w", zotero.ErrNotConfigured)
	}

	force, _ := cmd.Flags().GetBool("force")
	res, err := a.Processor.Sync(cmd.Context(), force, func(err error) bool {
		return errors.Is(err, zotero.ErrAuth)
	})
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		return fmt.Errorf("%d paper(s) failed to sync", res.Failed)
	}
	return nil
}
