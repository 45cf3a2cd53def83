package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/dvloznov/finance-tracker-web/internal/cachestore"
	"github.com/dvloznov/finance-tracker-web/internal/config"
	"github.com/dvloznov/finance-tracker-web/internal/logger"
	"github.com/dvloznov/finance-tracker-web/internal/notify"
	"github.com/dvloznov/finance-tracker-web/internal/notionsync"
	"github.com/dvloznov/finance-tracker-web/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := logger.NewWithLevel(cfg.Log.Level)

	notionToken := flag.String("notion-token", cfg.Notion.Token, "Notion API token (or set NOTION_TOKEN env)")
	notionDBID := flag.String("notion-db-id", cfg.Notion.DatabaseID, "Notion database ID (or set NOTION_DB_ID env)")
	apiURL := flag.String("api", cfg.API.BaseURL, "Transactions API base URL")
	dryRun := flag.Bool("dry-run", false, "Dry run mode - preview changes without syncing")
	flag.Parse()

	if *notionToken == "" {
		log.Fatal().Msg("Error: --notion-token is required")
	}
	if *notionDBID == "" {
		log.Fatal().Msg("Error: --notion-db-id is required")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	log.Info().
		Str("api", *apiURL).
		Bool("dry_run", *dryRun).
		Msg("Starting Notion sync")

	client := transport.NewClient(*apiURL, log,
		transport.WithTimeout(cfg.API.Timeout),
		transport.WithNotifier(notify.NewLog(log)),
	)
	store := cachestore.New(client, log, cachestore.Options{
		StaleTime: cfg.Cache.StaleTime,
		GCTime:    cfg.Cache.GCTime,
	})
	defer store.Close()

	notionClient := notionsync.NewNotionClient(*notionToken, *notionDBID, cfg.View.Currency)

	res, err := notionsync.SyncTransactions(ctx, store, notionClient, *dryRun)
	if err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}

	if *dryRun {
		fmt.Println("Dry run: no changes were written.")
	}
	fmt.Printf("Created: %d, Updated: %d, Deleted: %d, Skipped: %d\n",
		res.Created, res.Updated, res.Deleted, res.Skipped)
}
