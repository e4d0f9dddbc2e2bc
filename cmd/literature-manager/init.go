// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/literature-manager/internal/taxonomy"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the library directories and a starter taxonomy",
	Long: `Init creates inbox/, by-topic/, recent/, unknowables/ and corrupted/
under the library root and writes a starter topics.yml when none exists.
Edit topics.yml to match your field before filing papers.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	l := cfg.Library.Layout()

	for _, dir := range l.Dirs() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		fmt.Fprintln(w, "  ", l.Rel(dir))
	}

	if _, err := os.Stat(l.Taxonomy); err == nil {
		fmt.Fprintf(w, "Keeping existing taxonomy %s\n", l.Rel(l.Taxonomy))
	} else if errors.Is(err, os.ErrNotExist) {
		data, err := taxonomy.Marshal(taxonomy.Starter())
		if err != nil {
			return err
		}
		if err := os.WriteFile(l.Taxonomy, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", l.Taxonomy, err)
		}
		fmt.Fprintf(w, "Wrote starter taxonomy %s\n", l.Rel(l.Taxonomy))
	} else {
		return err
	}

	fmt.Fprintln(w, "Library initialized.")
	return nil
}
