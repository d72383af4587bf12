package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/amishk599/synopsis/internal/browse"
	"github.com/amishk599/synopsis/internal/catalog"
	"github.com/amishk599/synopsis/internal/filter"
	"github.com/amishk599/synopsis/internal/sink"
	"github.com/amishk599/synopsis/internal/source"
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse enriched summaries interactively (TUI)",
	Long:  "Shows the season year picker, then a split-pane view of enriched and pending records for that year.",
	RunE:  runBrowse,
}

func init() {
	rootCmd.AddCommand(browseCmd)
}

func runBrowse(cmd *cobra.Command, args []string) error {
	if !shouldColorize(os.Stdout) {
		fmt.Fprintln(os.Stderr, "browse needs an interactive terminal; use `synopsis stats` instead")
		os.Exit(1)
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	meta, err := source.NewSQLiteStore(cfg.Source.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open metadata store: %v\n", err)
		os.Exit(1)
	}
	defer meta.Close()

	// Log output before the alt-screen starts corrupts the display.
	silentLogger := slog.New(slog.NewTextHandler(io.Discard, nil))
	results, err := sink.Open(cfg.Sink, "", silentLogger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open sink: %v\n", err)
		os.Exit(1)
	}
	defer results.Close()

	ctx := context.Background()
	cat, err := catalog.New(ctx, meta, results,
		filter.NewRecordFilter(cfg.Source.ExcludeGenres, cfg.Source.TitleExcludeKeywords))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read results: %v\n", err)
		os.Exit(1)
	}
	years, err := cat.Years(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read metadata: %v\n", err)
		os.Exit(1)
	}
	if len(years) == 0 {
		fmt.Println("Metadata store is empty. Run `synopsis load` first.")
		return nil
	}

	runBrowseLoop(cat, years)
	return nil
}

func runBrowseLoop(cat *catalog.Catalog, years []catalog.YearStats) {
	for {
		choice, err := browse.RunYearPicker(years)
		if err != nil {
			fmt.Printf("Picker error: %v\n", err)
			return
		}
		if choice < 0 {
			return
		}
		year := years[choice].Year

		enriched, pending, err := browse.RunLoader(year, cat.Year)
		if err != nil {
			fmt.Printf("Error loading %d: %v\n", year, err)
			continue
		}

		wantQuit, err := browse.RunBrowseTUI(year, enriched, pending)
		if err != nil {
			fmt.Printf("TUI error: %v\n", err)
		}
		if wantQuit {
			return
		}
	}
}
