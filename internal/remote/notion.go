package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/jomei/notionapi"
	"github.com/shopspring/decimal"

	"github.com/aman124598/upi-tracker/internal/domain"
)

// notionPageAPI is the slice of the Notion SDK the provider needs.
// Narrowed to an interface so tests can stub the HTTP client away.
type notionPageAPI interface {
	CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)
	UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error)
	QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	ArchivePage(ctx context.Context, pageID string) error
}

type notionClient struct {
	client *notionapi.Client
}

func (n *notionClient) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(databaseID),
		},
		Properties: properties,
	}
	page, err := n.client.Page.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("CreatePage: %w", err)
	}
	return page, nil
}

func (n *notionClient) UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error) {
	page, err := n.client.Page.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{
		Properties: properties,
	})
	if err != nil {
		return nil, fmt.Errorf("UpdatePage: %w", err)
	}
	return page, nil
}

func (n *notionClient) QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	resp, err := n.client.Database.Query(ctx, notionapi.DatabaseID(databaseID), req)
	if err != nil {
		return nil, fmt.Errorf("QueryDatabase: %w", err)
	}
	return resp, nil
}

// ArchivePage archives a page; Notion has no hard delete over the API.
func (n *notionClient) ArchivePage(ctx context.Context, pageID string) error {
	_, err := n.client.Page.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{
		Archived: true,
	})
	if err != nil {
		return fmt.Errorf("ArchivePage: %w", err)
	}
	return nil
}

// Notion is a Provider backed by one Notion database. Pages are keyed by
// the "Record ID" title property; every operation resolves ids against the
// full page set, so the database is assumed to stay personal-scale.
type Notion struct {
	api        notionPageAPI
	databaseID string
}

// NewNotion creates a provider over the database with the given id,
// authenticating with the integration token.
func NewNotion(token, databaseID string) *Notion {
	return &Notion{
		api:        &notionClient{client: notionapi.NewClient(notionapi.Token(token))},
		databaseID: databaseID,
	}
}

// Get implements Provider.
func (n *Notion) Get(ctx context.Context, id string) (*domain.TransactionRecord, error) {
	page, err := n.findPage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("Get %s: %w", id, err)
	}
	if page == nil {
		return nil, fmt.Errorf("Get %s: %w", id, ErrNotFound)
	}
	rec, err := recordFromPage(*page)
	if err != nil {
		return nil, fmt.Errorf("Get %s: %w", id, err)
	}
	return rec, nil
}

// List implements Provider. Pages that no longer parse as records are
// skipped rather than failing the whole listing.
func (n *Notion) List(ctx context.Context) ([]*domain.TransactionRecord, error) {
	pages, err := n.queryAllPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}

	out := make([]*domain.TransactionRecord, 0, len(pages))
	for _, page := range pages {
		rec, err := recordFromPage(page)
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Put implements Provider: update the existing page for the record id, or
// create one when none exists.
func (n *Notion) Put(ctx context.Context, rec *domain.TransactionRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("Put: record id is required")
	}

	page, err := n.findPage(ctx, rec.ID)
	if err != nil {
		return fmt.Errorf("Put %s: %w", rec.ID, err)
	}

	props := recordToProperties(rec)
	if page != nil {
		if _, err := n.api.UpdatePage(ctx, string(page.ID), props); err != nil {
			return fmt.Errorf("Put %s: %w", rec.ID, err)
		}
		return nil
	}
	if _, err := n.api.CreatePage(ctx, n.databaseID, props); err != nil {
		return fmt.Errorf("Put %s: %w", rec.ID, err)
	}
	return nil
}

// Delete implements Provider. A missing page means the deletion already
// happened remotely, which is fine.
func (n *Notion) Delete(ctx context.Context, id string) error {
	page, err := n.findPage(ctx, id)
	if err != nil {
		return fmt.Errorf("Delete %s: %w", id, err)
	}
	if page == nil {
		return nil
	}
	if err := n.api.ArchivePage(ctx, string(page.ID)); err != nil {
		return fmt.Errorf("Delete %s: %w", id, err)
	}
	return nil
}

// Subscribe implements Provider. The Notion API has no change feed.
func (n *Notion) Subscribe(fn func(Event)) (func(), error) {
	return nil, ErrSubscribeUnsupported
}

func (n *Notion) findPage(ctx context.Context, id string) (*notionapi.Page, error) {
	pages, err := n.queryAllPages(ctx)
	if err != nil {
		return nil, err
	}
	for i := range pages {
		if extractRecordID(pages[i]) == id {
			return &pages[i], nil
		}
	}
	return nil, nil
}

// queryAllPages pulls the whole database, following pagination.
func (n *Notion) queryAllPages(ctx context.Context) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			PageSize: 100,
		}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := n.api.QueryDatabase(ctx, n.databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}

// recordToProperties maps a record onto the database's property schema.
// The amount travels as a Notion number, so it is rounded back to two
// decimal places when read.
func recordToProperties(rec *domain.TransactionRecord) notionapi.Properties {
	props := notionapi.Properties{
		"Record ID": notionapi.TitleProperty{
			Title: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{Content: rec.ID},
				},
			},
		},
		"Merchant": notionapi.RichTextProperty{
			RichText: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{Content: rec.Merchant},
				},
			},
		},
		"Amount": notionapi.NumberProperty{
			Number: rec.Amount.InexactFloat64(),
		},
		"Category": notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(rec.Category)},
		},
		"Origin": notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(rec.Origin)},
		},
		"Capture Method": notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(rec.CaptureMethod)},
		},
		"Occurred At": notionapi.DateProperty{
			Date: &notionapi.DateObject{
				Start: func() *notionapi.Date {
					d := notionapi.Date(rec.OccurredAt)
					return &d
				}(),
			},
		},
		"Created At": notionapi.DateProperty{
			Date: &notionapi.DateObject{
				Start: func() *notionapi.Date {
					d := notionapi.Date(rec.CreatedAt)
					return &d
				}(),
			},
		},
	}

	if rec.ExternalRef != "" {
		props["External Ref"] = notionapi.RichTextProperty{
			RichText: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{Content: rec.ExternalRef},
				},
			},
		}
	}
	if rec.RawText != "" {
		props["Raw Text"] = notionapi.RichTextProperty{
			RichText: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{Content: rec.RawText},
				},
			},
		}
	}
	if rec.SyncedAt != nil {
		props["Synced At"] = notionapi.DateProperty{
			Date: &notionapi.DateObject{
				Start: (*notionapi.Date)(rec.SyncedAt),
			},
		}
	}

	return props
}

// recordFromPage rebuilds a record from a page's properties.
func recordFromPage(page notionapi.Page) (*domain.TransactionRecord, error) {
	id := extractRecordID(page)
	if id == "" {
		return nil, fmt.Errorf("recordFromPage: page %s has no record id", page.ID)
	}

	rec := &domain.TransactionRecord{
		ID:            id,
		Merchant:      extractRichText(page, "Merchant"),
		Category:      domain.Category(extractSelect(page, "Category")),
		Origin:        domain.Origin(extractSelect(page, "Origin")),
		CaptureMethod: domain.CaptureMethod(extractSelect(page, "Capture Method")),
		ExternalRef:   extractRichText(page, "External Ref"),
		RawText:       extractRichText(page, "Raw Text"),
	}

	if prop, ok := page.Properties["Amount"]; ok {
		if num, ok := prop.(*notionapi.NumberProperty); ok {
			rec.Amount = decimal.NewFromFloat(num.Number).Round(2)
		}
	}
	if t, ok := extractDate(page, "Occurred At"); ok {
		rec.OccurredAt = t
	}
	if t, ok := extractDate(page, "Created At"); ok {
		rec.CreatedAt = t
	}
	if t, ok := extractDate(page, "Synced At"); ok {
		rec.SyncedAt = &t
	}

	if rec.Merchant == "" {
		rec.Merchant = domain.UnknownMerchant
	}
	if !rec.Amount.IsPositive() {
		return nil, fmt.Errorf("recordFromPage: page %s has no positive amount", page.ID)
	}
	return rec, nil
}

func extractRecordID(page notionapi.Page) string {
	if prop, ok := page.Properties["Record ID"]; ok {
		if title, ok := prop.(*notionapi.TitleProperty); ok {
			if len(title.Title) > 0 {
				return title.Title[0].PlainText
			}
		}
	}
	return ""
}

func extractRichText(page notionapi.Page, name string) string {
	if prop, ok := page.Properties[name]; ok {
		if richText, ok := prop.(*notionapi.RichTextProperty); ok {
			if len(richText.RichText) > 0 {
				return richText.RichText[0].PlainText
			}
		}
	}
	return ""
}

func extractSelect(page notionapi.Page, name string) string {
	if prop, ok := page.Properties[name]; ok {
		if sel, ok := prop.(*notionapi.SelectProperty); ok {
			return sel.Select.Name
		}
	}
	return ""
}

func extractDate(page notionapi.Page, name string) (time.Time, bool) {
	if prop, ok := page.Properties[name]; ok {
		if date, ok := prop.(*notionapi.DateProperty); ok {
			if date.Date != nil && date.Date.Start != nil {
				return time.Time(*date.Date.Start), true
			}
		}
	}
	return time.Time{}, false
}

var _ Provider = (*Notion)(nil)
