// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/literature-manager/internal/catalog"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show library statistics",
	Long: `Stats syncs the SQLite catalog from the index and prints totals and
counts by topic, year, extraction method and location. --yaml prints the
same numbers as YAML.`,
	RunE: runStats,
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the SQLite catalog of indexed papers",
}

var catalogRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the catalog from the index",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		n, err := syncCatalog(cmd.Context(), a)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "✓ Catalog rebuilt with %d record(s)\n", n)
		return nil
	},
}

func init() {
	statsCmd.Flags().Bool("yaml", false, "print statistics as YAML")

	catalogCmd.AddCommand(catalogRebuildCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(catalogCmd)
}

// syncCatalog replaces the catalog contents with the current index.
func syncCatalog(ctx context.Context, a *app) (int, error) {
	if a.Catalog == nil {
		return 0, errors.New("catalog unavailable")
	}
	recs, err := a.Processor.Index.Load()
	if err != nil {
		return 0, err
	}
	return a.Catalog.Rebuild(ctx, recs)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := syncCatalog(ctx, a); err != nil {
		return err
	}
	st, err := a.Catalog.Stats(ctx)
	if err != nil {
		return err
	}

	if asYAML, _ := cmd.Flags().GetBool("yaml"); asYAML {
		enc := yaml.NewEncoder(a.Out)
		enc.SetIndent(2)
		if err := enc.Encode(st); err != nil {
			return err
		}
		return enc.Close()
	}
	writeStats(a.Out, st, a.Processor.Layout.Rel(a.Processor.Layout.Recent))
	return nil
}

func writeStats(w io.Writer, st catalog.Stats, recentDir string) {
	fmt.Fprintln(w, "Library Statistics")
	fmt.Fprintln(w, strings.Repeat("=", 40))
	fmt.Fprintf(w, "Total papers:      %d\n", st.Total)
	fmt.Fprintf(w, "With DOI:          %d\n", st.WithDOI)
	fmt.Fprintf(w, "Mirrored to Zotero: %d\n", st.Mirrored)

	section := func(title string, counts []catalog.Count) {
		if len(counts) == 0 {
			return
		}
		fmt.Fprintf(w, "\n%s:\n", title)
		for _, c := range counts {
			key := c.Key
			if key == "" {
				key = "(none)"
			}
			fmt.Fprintf(w, "  %-30s %d\n", key, c.Count)
		}
	}
	section("By location", st.ByLocation)
	section("By topic", st.ByTopic)
	section("By year", st.ByYear)
	section("By method", st.ByMethod)

	recent := catalog.Location(recentDir + "/")
	for _, c := range st.ByLocation {
		if c.Key == recent && c.Count > 0 {
			fmt.Fprintf(w, "\n⚠ %d paper(s) awaiting review (run `literature-manager review`)\n", c.Count)
		}
	}
}
