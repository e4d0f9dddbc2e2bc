// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/pdiddy/literature-manager/internal/bibliography"
	"github.com/pdiddy/literature-manager/internal/index"
	"github.com/pdiddy/literature-manager/pkg/types"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write indexed papers as a CSL-YAML bibliography",
	Long: `Export writes every indexed paper, or only those filed under --topic, as
CSL-YAML for use with Pandoc (--bibliography) and reference managers.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().String("topic", "", "only papers filed under this topic slug")
	exportCmd.Flags().StringP("output", "o", "", "write to file instead of stdout")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	recs, err := index.Open(cfg.Library.Layout().Index).Load()
	if err != nil {
		return err
	}
	topic, _ := cmd.Flags().GetString("topic")
	selected := selectRecords(recs, topic)

	var w io.Writer = cmd.OutOrStdout()
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
		defer f.Close()
		w = f
	}
	if err := bibliography.Write(w, selected); err != nil {
		return fmt.Errorf("writing bibliography: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d paper(s)\n", len(selected))
	return nil
}

func selectRecords(recs index.Records, topic string) []*types.PaperRecord {
	var out []*types.PaperRecord
	for _, r := range recs {
		if topic == "" || slices.Contains(r.Topics, topic) {
			out = append(out, r)
		}
	}
	return out
}
