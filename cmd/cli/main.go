package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-tracker-web/internal/cachestore"
	"github.com/dvloznov/finance-tracker-web/internal/config"
	"github.com/dvloznov/finance-tracker-web/internal/domain"
	"github.com/dvloznov/finance-tracker-web/internal/export"
	infraBQ "github.com/dvloznov/finance-tracker-web/internal/infra/bigquery"
	"github.com/dvloznov/finance-tracker-web/internal/logger"
	"github.com/dvloznov/finance-tracker-web/internal/notify"
	"github.com/dvloznov/finance-tracker-web/internal/transport"
	"github.com/dvloznov/finance-tracker-web/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := logger.NewWithLevel(cfg.Log.Level)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "list":
		runList(cfg, log)
	case "totals":
		runTotals(cfg, log)
	case "add":
		runAdd(cfg, log)
	case "edit":
		runEdit(cfg, log)
	case "delete":
		runDelete(cfg, log)
	case "export":
		runExport(cfg, log)
	case "archive":
		runArchive(cfg, log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Finance Tracker CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  list      Show one page of transactions")
	fmt.Println("  totals    Show income, outcome and balance over all transactions")
	fmt.Println("  add       Create a transaction")
	fmt.Println("  edit      Update a transaction by ID")
	fmt.Println("  delete    Delete a transaction by ID")
	fmt.Println("  export    Upload a CSV or JSON snapshot to GCS")
	fmt.Println("  archive   Append a snapshot to the BigQuery archive table")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// newStore builds a cache store over the API. Without a scheduler the store
// refetches settled keys itself.
func newStore(cfg *config.Config, log zerolog.Logger) *cachestore.Store {
	client := transport.NewClient(cfg.API.BaseURL, log,
		transport.WithTimeout(cfg.API.Timeout),
		transport.WithNotifier(notify.NewLog(log)),
	)
	return cachestore.New(client, log, cachestore.Options{
		StaleTime:      cfg.Cache.StaleTime,
		GCTime:         cfg.Cache.GCTime,
		RefetchRetries: cfg.Cache.RefetchMaxRetries,
	})
}

func newFormatter(cfg *config.Config, log zerolog.Logger) *web.Formatter {
	f, err := web.NewFormatter(cfg.View.Locale, cfg.View.Currency)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid locale or currency")
	}
	return f
}

func commandContext(log zerolog.Logger, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	return logger.WithContext(ctx, log), cancel
}

func runList(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	page := fs.Int("page", 1, "Page number, starting at 1")
	perPage := fs.Int("per-page", cfg.View.PageSize, "Transactions per page")
	fs.Parse(os.Args[2:])

	if *page < 1 || *perPage < 1 {
		log.Fatal().Msg("Error: --page and --per-page must be positive")
	}

	ctx, cancel := commandContext(log, time.Minute)
	defer cancel()

	store := newStore(cfg, log)
	defer store.Close()
	format := newFormatter(cfg, log)

	result, err := store.ListPaginated(ctx, (*page-1)**perPage, *perPage)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list transactions")
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tPRICE\tCATEGORY\tDATE")
	for _, tx := range result.Data {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", tx.ID, tx.Title, format.Price(tx), tx.Category, format.Date(tx.Date))
	}
	w.Flush()

	totals := domain.ComputeTotals(result.Data)
	fmt.Printf("\nPage %d: %d of %d transactions, page total %s\n",
		*page, len(result.Data), result.Total, format.Decimal(totals.Total))
	if result.HasMore {
		fmt.Printf("Next: cli list -page %d -per-page %d\n", *page+1, *perPage)
	}
}

func runTotals(cfg *config.Config, log zerolog.Logger) {
	ctx, cancel := commandContext(log, time.Minute)
	defer cancel()

	store := newStore(cfg, log)
	defer store.Close()
	format := newFormatter(cfg, log)

	all, err := store.ListAll(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load transactions")
	}
	totals := domain.ComputeTotals(all.Data)

	fmt.Printf("Income:  %s\n", format.Decimal(totals.TotalIncome))
	fmt.Printf("Outcome: %s\n", format.Decimal(totals.TotalOutcome))
	fmt.Printf("Total:   %s\n", format.Decimal(totals.Total))
	fmt.Printf("(%d transactions)\n", all.Total)
}

// inputFlags registers the transaction fields on fs. The returned func
// parses them without validating.
func inputFlags(fs *flag.FlagSet) func() (domain.TransactionInput, error) {
	title := fs.String("title", "", "Transaction title")
	price := fs.Float64("price", 0, "Price, always positive")
	kind := fs.String("type", string(domain.TransactionTypeOutcome), "INCOME or OUTCOME")
	category := fs.String("category", "", "Category")
	date := fs.String("date", "", "Date in YYYY-MM-DD format (default today)")

	return func() (domain.TransactionInput, error) {
		in := domain.TransactionInput{
			Title:    *title,
			Price:    *price,
			Type:     domain.TransactionType(strings.ToUpper(*kind)),
			Category: *category,
			Date:     time.Now().UTC(),
		}
		if *date != "" {
			d, err := time.Parse("2006-01-02", *date)
			if err != nil {
				return in, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", *date, err)
			}
			in.Date = d
		}
		return in, nil
	}
}

func runAdd(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	input := inputFlags(fs)
	fs.Parse(os.Args[2:])

	in, err := input()
	if err == nil {
		err = in.Validate()
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Error: invalid transaction")
	}

	ctx, cancel := commandContext(log, time.Minute)
	defer cancel()

	store := newStore(cfg, log)
	defer store.Close()

	tx, err := store.Create(ctx, in)
	if err != nil {
		log.Fatal().Err(err).Msg("Create failed")
	}
	fmt.Printf("Created transaction %s.\n", tx.ID)
}

func runEdit(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("edit", flag.ExitOnError)
	id := fs.String("id", "", "Transaction ID to update")
	input := inputFlags(fs)
	fs.Parse(os.Args[2:])

	if *id == "" {
		log.Fatal().Msg("Error: --id is required")
	}

	ctx, cancel := commandContext(log, time.Minute)
	defer cancel()

	store := newStore(cfg, log)
	defer store.Close()

	in, err := input()
	if err != nil {
		log.Fatal().Err(err).Msg("Error: invalid transaction")
	}

	// Unset flags keep the current values.
	current, err := store.GetByID(ctx, *id)
	if err != nil {
		log.Fatal().Err(err).Str("id", *id).Msg("Failed to load transaction")
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	merged := current.Input()
	if set["title"] {
		merged.Title = in.Title
	}
	if set["price"] {
		merged.Price = in.Price
	}
	if set["type"] {
		merged.Type = in.Type
	}
	if set["category"] {
		merged.Category = in.Category
	}
	if set["date"] {
		merged.Date = in.Date
	}
	if err := merged.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Error: invalid transaction")
	}

	if _, err := store.Update(ctx, *id, merged); err != nil {
		log.Fatal().Err(err).Msg("Update failed")
	}
	fmt.Printf("Updated transaction %s.\n", *id)
}

func runDelete(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	id := fs.String("id", "", "Transaction ID to delete")
	fs.Parse(os.Args[2:])

	if *id == "" {
		log.Fatal().Msg("Error: --id is required")
	}

	ctx, cancel := commandContext(log, time.Minute)
	defer cancel()

	store := newStore(cfg, log)
	defer store.Close()

	if err := store.Delete(ctx, *id); err != nil {
		log.Fatal().Err(err).Msg("Delete failed")
	}
	fmt.Printf("Deleted transaction %s.\n", *id)
}

func runExport(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	bucket := fs.String("bucket", cfg.Export.GCSBucket, "GCS bucket name (or set GCS_BUCKET env)")
	prefix := fs.String("prefix", "exports", "Object name prefix")
	formatName := fs.String("format", string(export.FormatCSV), "csv or json")
	verify := fs.Bool("verify", false, "Read the object back and check its rows")
	fs.Parse(os.Args[2:])

	if *bucket == "" {
		log.Fatal().Msg("Error: --bucket is required")
	}
	format, err := export.ParseFormat(*formatName)
	if err != nil {
		log.Fatal().Err(err).Msg("Error: invalid --format")
	}

	ctx, cancel := commandContext(log, 5*time.Minute)
	defer cancel()

	store := newStore(cfg, log)
	defer store.Close()

	writer, err := export.NewGCSWriter(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage client")
	}
	defer writer.Close()

	exporter := export.NewExporter(store, writer, *bucket, *prefix, cfg.View.PageSize, log)
	res, err := exporter.Export(ctx, format)
	if err != nil {
		log.Fatal().Err(err).Msg("Export failed")
	}
	fmt.Printf("Exported %d transactions to %s\n", res.Rows, res.URI)

	if *verify {
		if err := exporter.Verify(ctx, writer, res, format); err != nil {
			log.Fatal().Err(err).Msg("Export verification failed")
		}
		fmt.Println("Verified.")
	}
}

func runArchive(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("archive", flag.ExitOnError)
	projectID := fs.String("project", cfg.BigQuery.ProjectID, "BigQuery project ID (or set BQ_PROJECT_ID env)")
	dataset := fs.String("dataset", cfg.BigQuery.Dataset, "BigQuery dataset")
	table := fs.String("table", cfg.BigQuery.Table, "BigQuery table")
	verify := fs.Bool("verify", false, "Read the snapshot back and check its rows")
	fs.Parse(os.Args[2:])

	if *projectID == "" {
		log.Fatal().Msg("Error: --project is required")
	}

	ctx, cancel := commandContext(log, 5*time.Minute)
	defer cancel()

	repo, err := infraBQ.NewBigQueryArchiveRepository(ctx, *projectID, *dataset, *table)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create archive repository")
	}
	defer repo.Close()

	if err := repo.EnsureTable(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare archive table")
	}

	store := newStore(cfg, log)
	defer store.Close()

	archiver := infraBQ.NewArchiver(store, repo, cfg.View.Currency, log)
	snapshotID, n, err := archiver.Archive(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Archive failed")
	}
	fmt.Printf("Archived %d transactions as snapshot %s.\n", n, snapshotID)

	if *verify {
		if err := archiver.Verify(ctx, snapshotID, n); err != nil {
			log.Fatal().Err(err).Msg("Archive verification failed")
		}
		fmt.Println("Verified.")
	}
}
