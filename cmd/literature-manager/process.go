// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/literature-manager/internal/index"
	"github.com/pdiddy/literature-manager/internal/pipeline"
)

var processCmd = &cobra.Command{
	Use:   "process [files...]",
	Short: "File every PDF in the inbox, or the named files",
	Long: `Process runs each PDF through the pipeline: readability check, duplicate
check, metadata extraction (DOI lookup, embedded metadata, LLM parsing in
the configured order), topic classification, naming and filing. Papers
filed with low confidence go to recent/ for review; papers nobody can
identify go to unknowables/.

With --dry-run nothing is moved, written or mirrored; the decisions are
printed instead.`,
	RunE: runProcess,
}

func init() {
	processCmd.Flags().Bool("dry-run", false, "show what would happen without moving files or writing the index")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	a.Processor.DryRun = dryRun

	if !dryRun {
		lock, err := index.AcquireLock(a.Processor.Layout.Lock)
		if err != nil {
			return err
		}
		defer lock.Release()
	}

	var result pipeline.BatchResult
	if len(args) > 0 {
		result = a.Processor.ProcessFiles(ctx, args)
	} else {
		result, err = a.Processor.ProcessInbox(ctx)
		if err != nil {
			return err
		}
	}
	if result.HasFailures() {
		return fmt.Errorf("%d file(s) failed processing", result.Errors)
	}
	return nil
}
