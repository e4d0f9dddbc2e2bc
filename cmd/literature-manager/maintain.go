// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Move files older than the retention period from recent/ to unknowables/",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		_, err = a.Processor.Cleanup(cmd.Context())
		return err
	},
}

var validateIndexCmd = &cobra.Command{
	Use:   "validate-index",
	Short: "Repair index paths that no longer point at their file",
	Long: `Validate-index hashes every PDF under by-topic/ and recent/ and repoints
index entries whose file has moved. Entries whose file exists nowhere are
reported; --prune removes them.`,
	RunE: runValidateIndex,
}

func init() {
	validateIndexCmd.Flags().Bool("prune", false, "remove entries whose file is missing everywhere")

	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(validateIndexCmd)
}

func runValidateIndex(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	prune, _ := cmd.Flags().GetBool("prune")
	rep, err := a.Processor.ValidateIndex(cmd.Context(), prune)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.Out, "ℹ Scanned %d file(s)\n", rep.Scanned)
	hashes := make([]string, 0, len(rep.Repaired))
	for h := range rep.Repaired {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)
	for _, h := range hashes {
		fmt.Fprintf(a.Out, "✓ Repaired %s → %s\n", h[:min(12, len(h))], rep.Repaired[h])
	}
	for _, h := range rep.Missing {
		verb := "Missing"
		if rep.Pruned {
			verb = "Pruned"
		}
		fmt.Fprintf(a.Out, "⚠ %s %s\n", verb, h[:min(12, len(h))])
	}
	if len(rep.Repaired) == 0 && len(rep.Missing) == 0 {
		fmt.Fprintln(a.Out, "✓ Index is consistent")
	}
	if len(rep.Missing) > 0 && !rep.Pruned {
		return fmt.Errorf("%d index entr(ies) point at missing files (rerun with --prune to remove)", len(rep.Missing))
	}
	return nil
}
