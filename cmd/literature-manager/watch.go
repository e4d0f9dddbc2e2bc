// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"github.com/spf13/cobra"

	"github.com/pdiddy/literature-manager/internal/pipeline"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Process the inbox, then keep filing new PDFs as they arrive",
	Long: `Watch takes the library lock, processes whatever is already in the inbox,
then waits for new PDFs. A new file is processed once its size has stayed
the same for watch.stable_seconds. The recent/ retention sweep runs every
watch.sweep_interval. Stop with Ctrl+C.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	w := &pipeline.Watcher{Processor: a.Processor, Config: a.Config.Watch}
	return w.Run(ctx)
}
