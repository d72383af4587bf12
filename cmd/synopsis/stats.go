package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/amishk599/synopsis/internal/catalog"
	"github.com/amishk599/synopsis/internal/filter"
	"github.com/amishk599/synopsis/internal/sink"
	"github.com/amishk599/synopsis/internal/source"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show enrichment progress per season year",
	Long:  "Reads the metadata store and the configured sink and prints metadata, eligible, enriched and pending counts per year.",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := setupLogger(debug)

	meta, err := source.NewSQLiteStore(cfg.Source.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open metadata store: %v\n", err)
		os.Exit(1)
	}
	defer meta.Close()

	results, err := sink.Open(cfg.Sink, "", logger)
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
	fmt.Println(renderStats(years, cat.Results(), shouldColorize(os.Stdout)))
	return nil
}

func renderStats(years []catalog.YearStats, results int, colorize bool) string {
	tw := table.NewWriter()
	if colorize {
		tw.SetStyle(table.StyleRounded)
	} else {
		tw.SetStyle(table.StyleLight)
	}

	tw.AppendHeader(table.Row{"Year", "Records", "Eligible", "Enriched", "Pending", "Done"})
	for _, y := range years {
		tw.AppendRow(statsRow(strconv.Itoa(y.Year), y))
	}
	totals := catalog.Totals(years)
	tw.AppendFooter(statsRow("Total", totals))

	cols := make([]table.ColumnConfig, 0, 5)
	for i := 2; i <= 6; i++ {
		cc := table.ColumnConfig{Number: i, Align: text.AlignRight, AlignFooter: text.AlignRight}
		if colorize && i == 5 {
			cc.Colors = text.Colors{text.FgYellow}
		}
		cols = append(cols, cc)
	}
	tw.SetColumnConfigs(cols)

	out := tw.Render()
	if orphans := results - totals.Enriched; orphans > 0 {
		out += fmt.Sprintf("\n%s stored results have no matching metadata row.", humanize.Comma(int64(orphans)))
	}
	return out
}

func statsRow(label string, y catalog.YearStats) table.Row {
	done := "-"
	if y.Eligible > 0 {
		done = fmt.Sprintf("%.0f%%", 100*float64(y.Eligible-y.Pending)/float64(y.Eligible))
	}
	return table.Row{
		label,
		humanize.Comma(int64(y.Total)),
		humanize.Comma(int64(y.Eligible)),
		humanize.Comma(int64(y.Enriched)),
		humanize.Comma(int64(y.Pending)),
		done,
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
