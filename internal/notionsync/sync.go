package notionsync

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/finance-tracker-web/internal/domain"
	"github.com/dvloznov/finance-tracker-web/internal/logger"
)

const (
	// BatchSize defines the number of transactions to process in a single batch
	BatchSize = 100
)

// Result counts what a sync did, or would do in a dry run.
type Result struct {
	Created int
	Updated int
	Deleted int
	Skipped int
}

// SyncTransactions mirrors the confirmed transaction list into a Notion
// database. Pages are matched through their "Transaction ID" property:
// missing transactions are created, changed ones updated, and pages with no
// matching transaction archived. Rows under a temporary id are not mirrored.
func SyncTransactions(ctx context.Context, source Source, notionClient NotionService, dryRun bool) (Result, error) {
	log := logger.FromContext(ctx)
	var res Result

	log.Info().
		Bool("dry_run", dryRun).
		Msg("Starting transaction sync to Notion")

	page, err := source.ListAll(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to list transactions: %w", err)
	}

	var transactions []domain.Transaction
	valid := make(map[string]bool, len(page.Data))
	for _, tx := range page.Data {
		if domain.IsTemporaryID(tx.ID) {
			continue
		}
		transactions = append(transactions, tx)
		valid[tx.ID] = true
	}

	log.Info().Int("transaction_count", len(transactions)).Msg("Retrieved transactions")

	notionPages, err := queryAllNotionPages(ctx, notionClient)
	if err != nil {
		return res, fmt.Errorf("failed to query Notion pages: %w", err)
	}

	log.Info().Int("notion_page_count", len(notionPages)).Msg("Retrieved existing Notion pages")

	existing := make(map[string]notionapi.Page, len(notionPages))
	for _, p := range notionPages {
		txID := extractTransactionID(p)

		// Pages without an id, duplicates, and deleted transactions go.
		_, dup := existing[txID]
		if txID != "" && valid[txID] && !dup {
			existing[txID] = p
			continue
		}

		if dryRun {
			log.Info().
				Str("transaction_id", txID).
				Str("page_id", string(p.ID)).
				Msg("[DRY RUN] Would delete stale Notion page")
			res.Deleted++
			continue
		}
		if err := notionClient.ArchivePage(ctx, string(p.ID)); err != nil {
			log.Warn().
				Err(err).
				Str("transaction_id", txID).
				Str("page_id", string(p.ID)).
				Msg("Failed to delete stale Notion page")
			continue
		}
		res.Deleted++
	}

	for i := 0; i < len(transactions); i += BatchSize {
		end := min(i+BatchSize, len(transactions))
		log.Debug().
			Int("batch_start", i).
			Int("batch_end", end).
			Msg("Processing batch")

		for _, tx := range transactions[i:end] {
			p, found := existing[tx.ID]
			if found && pageMatches(p, tx) {
				res.Skipped++
				continue
			}

			if dryRun {
				if found {
					log.Info().Str("transaction_id", tx.ID).Msg("[DRY RUN] Would update existing Notion page")
					res.Updated++
				} else {
					log.Info().Str("transaction_id", tx.ID).Msg("[DRY RUN] Would create new Notion page")
					res.Created++
				}
				continue
			}

			if found {
				if _, err := notionClient.UpdatePage(ctx, string(p.ID), tx); err != nil {
					log.Warn().
						Err(err).
						Str("transaction_id", tx.ID).
						Str("page_id", string(p.ID)).
						Msg("Failed to update Notion page")
					continue
				}
				res.Updated++
				continue
			}

			created, err := notionClient.CreatePage(ctx, tx)
			if err != nil {
				log.Warn().
					Err(err).
					Str("transaction_id", tx.ID).
					Msg("Failed to create Notion page")
				continue
			}
			log.Debug().
				Str("transaction_id", tx.ID).
				Str("page_id", string(created.ID)).
				Msg("Created Notion page")
			res.Created++
		}
	}

	log.Info().
		Int("deleted", res.Deleted).
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("skipped", res.Skipped).
		Int("total", len(transactions)).
		Msg("Transaction sync completed")

	return res, nil
}

// queryAllNotionPages follows the cursor until every page is read.
func queryAllNotionPages(ctx context.Context, notionClient NotionService) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		resp, err := notionClient.QueryPages(ctx, cursor)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}
