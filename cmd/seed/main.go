// Seed tool for loading tournament players into a SpiritX store.
//
// Usage:
//   go run ./cmd/seed -csv sample_data.csv
//   go run ./cmd/seed -csv updated.csv -update
//   go run ./cmd/seed -admin alice
//
// The store is chosen the same way as the server, from SPIRITX_* variables.
// -admin promotes an existing user, which the API never does.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/opensource-finance/spiritx/internal/csvload"
	"github.com/opensource-finance/spiritx/internal/domain"
	"github.com/opensource-finance/spiritx/internal/repository"
	"github.com/opensource-finance/spiritx/internal/valuation"
)

func main() {
	csvPath := flag.String("csv", "", "Path to a players CSV file")
	update := flag.Bool("update", false, "Overwrite players that already exist")
	dryRun := flag.Bool("dry-run", false, "Parse and value the CSV without writing")
	admin := flag.String("admin", "", "Username to promote to admin")
	flag.Parse()

	if *csvPath == "" && *admin == "" {
		fmt.Println("Usage: seed -csv <file> [-update] [-dry-run] | -admin <username>")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg, err := domain.LoadConfig(os.LookupEnv)
	if err != nil {
		fmt.Printf("ERROR: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var records []csvload.Record
	if *csvPath != "" {
		records, err = parse(*csvPath)
		if err != nil {
			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
		if *dryRun {
			printRecords(records)
			return
		}
	}

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		fmt.Printf("ERROR: failed to open %s store: %v\n", cfg.Repository.Driver, err)
		os.Exit(1)
	}
	defer repo.Close()

	if len(records) > 0 {
		result, err := csvload.Import(ctx, repo, records, csvload.Options{UpdateExisting: *update})
		if err != nil {
			fmt.Printf("ERROR: import failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Added: %d, Updated: %d, Skipped: %d, Failed: %d\n",
			result.Added, result.Updated, result.Skipped, result.Failed)
		for _, msg := range result.Errors {
			fmt.Printf("  - %s\n", msg)
		}
	}

	if *admin != "" {
		if err := repo.SetAdmin(ctx, *admin, true); err != nil {
			fmt.Printf("ERROR: failed to promote %s: %v\n", *admin, err)
			os.Exit(1)
		}
		fmt.Printf("✓ %s is now an admin\n", *admin)
	}
}

func parse(path string) ([]csvload.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV: %w", err)
	}
	defer f.Close()

	records, report, err := csvload.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	fmt.Printf("✓ Read %d players from %s (skipped %d, failed %d)\n",
		len(records), path, report.Skipped, report.Failed)
	for _, msg := range report.Errors {
		fmt.Printf("  - %s\n", msg)
	}
	return records, nil
}

func printRecords(records []csvload.Record) {
	for _, rec := range records {
		d := valuation.Compute(rec.Stats)
		fmt.Printf("  %-30s %-14s Rs. %s\n",
			rec.Name, domain.CanonicalCategory(rec.Category), humanize.Comma(d.PlayerValue))
	}
}
