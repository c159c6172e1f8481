// Package main prints a leaderboard page as a table.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"memecoin-calls/internal/app"
	"memecoin-calls/internal/config"
	"memecoin-calls/internal/leaderboard"
	"memecoin-calls/internal/logging"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to YAML config file")
	page := flag.Int("page", 1, "Page number (1-based)")
	limit := flag.Int("limit", 0, "Page size (5-100, default from config)")
	sortBy := flag.String("sort-by", "", "accuracyRate | successfulCalls | totalCalls")
	asJSON := flag.Bool("json", false, "Print JSON instead of a table")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	// Migrations are the server's job.
	cfg.Storage.Migrate = false
	stores, err := app.OpenStores(ctx, cfg.Storage, cfg.HTTP.PublicBaseURL, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open stores: %v\n", err)
		os.Exit(1)
	}
	defer stores.Close()

	agg := leaderboard.NewAggregator(leaderboard.Options{
		Calls:        stores.Calls,
		DefaultLimit: cfg.Leaderboard.DefaultLimit,
		Logger:       logger,
	})

	result, err := agg.Leaderboard(ctx, leaderboard.Query{Page: *page, Limit: *limit, SortBy: *sortBy})
	if err != nil {
		fmt.Fprintf(os.Stderr, "leaderboard: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			fmt.Fprintf(os.Stderr, "encode: %v\n", err)
			os.Exit(1)
		}
		return
	}
	printPage(os.Stdout, result)
}

// printPage renders one page as a table followed by a paging footer.
func printPage(w io.Writer, p *leaderboard.Page) {
	table := tablewriter.NewWriter(w)
	table.Header("Rank", "User", "Calls", "Hits", "Accuracy", "Avg TTH", "Avg Mult", "Avg MCap", "Score")

	for _, e := range p.Items {
		table.Append(
			strconv.Itoa(e.Rank),
			e.UserID,
			strconv.Itoa(e.TotalCalls),
			strconv.Itoa(e.SuccessfulCalls),
			fmt.Sprintf("%.1f%%", e.AccuracyRate*100),
			optional(e.AverageTimeToHitRatio, "%.2f"),
			optional(e.AverageMultiplier, "%.2fx"),
			optional(e.AverageMarketCapAtCallTime, "$%.0f"),
			fmt.Sprintf("%.4f", e.AdjustedScore),
		)
	}
	table.Render()

	pages := (p.Total + p.Limit - 1) / p.Limit
	if pages < 1 {
		pages = 1
	}
	fmt.Fprintf(w, "page %d/%d, %d users\n", p.Page, pages, p.Total)
}

func optional(v *float64, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}
