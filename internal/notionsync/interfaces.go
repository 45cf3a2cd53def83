package notionsync

import (
	"context"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/finance-tracker-web/internal/domain"
)

// NotionService is the transactions database as the sync sees it.
type NotionService interface {
	// QueryPages returns one page of rows starting at cursor.
	QueryPages(ctx context.Context, cursor notionapi.Cursor) (*notionapi.DatabaseQueryResponse, error)

	CreatePage(ctx context.Context, tx domain.Transaction) (*notionapi.Page, error)
	UpdatePage(ctx context.Context, pageID string, tx domain.Transaction) (*notionapi.Page, error)
	ArchivePage(ctx context.Context, pageID string) error
}

// Source provides the unpaginated transaction list to mirror.
type Source interface {
	ListAll(ctx context.Context) (domain.Page, error)
}
