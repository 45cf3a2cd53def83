package notionsync

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/finance-tracker-web/internal/domain"
)

// queryPageSize is the largest page the Notion API returns.
const queryPageSize = 100

// NotionClient mirrors transactions into one Notion database. Every page it
// writes carries the client's currency.
type NotionClient struct {
	client     *notionapi.Client
	databaseID notionapi.DatabaseID
	currency   string
}

// NewNotionClient creates a client for the database behind databaseID.
// Options are passed through to the SDK client.
func NewNotionClient(token, databaseID, currency string, opts ...notionapi.ClientOption) *NotionClient {
	return &NotionClient{
		client:     notionapi.NewClient(notionapi.Token(token), opts...),
		databaseID: notionapi.DatabaseID(databaseID),
		currency:   currency,
	}
}

// QueryPages returns one page of database rows starting at cursor.
func (n *NotionClient) QueryPages(ctx context.Context, cursor notionapi.Cursor) (*notionapi.DatabaseQueryResponse, error) {
	req := &notionapi.DatabaseQueryRequest{
		PageSize:    queryPageSize,
		StartCursor: cursor,
	}
	resp, err := n.client.Database.Query(ctx, n.databaseID, req)
	if err != nil {
		return nil, fmt.Errorf("QueryPages: database %s: %w", n.databaseID, err)
	}
	return resp, nil
}

// CreatePage adds a row for tx.
func (n *NotionClient) CreatePage(ctx context.Context, tx domain.Transaction) (*notionapi.Page, error) {
	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: n.databaseID,
		},
		Properties: TransactionToNotionProperties(tx, n.currency),
	}

	page, err := n.client.Page.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("CreatePage: transaction %s: %w", tx.ID, err)
	}
	return page, nil
}

// UpdatePage rewrites the row at pageID from tx.
func (n *NotionClient) UpdatePage(ctx context.Context, pageID string, tx domain.Transaction) (*notionapi.Page, error) {
	req := &notionapi.PageUpdateRequest{
		Properties: TransactionToNotionProperties(tx, n.currency),
	}

	page, err := n.client.Page.Update(ctx, notionapi.PageID(pageID), req)
	if err != nil {
		return nil, fmt.Errorf("UpdatePage: page %s, transaction %s: %w", pageID, tx.ID, err)
	}
	return page, nil
}

// ArchivePage removes a row. Notion keeps archived pages in its trash.
func (n *NotionClient) ArchivePage(ctx context.Context, pageID string) error {
	req := &notionapi.PageUpdateRequest{
		Archived: true,
	}

	if _, err := n.client.Page.Update(ctx, notionapi.PageID(pageID), req); err != nil {
		return fmt.Errorf("ArchivePage: page %s: %w", pageID, err)
	}
	return nil
}
