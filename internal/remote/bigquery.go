package remote

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"

	"github.com/aman124598/upi-tracker/internal/domain"
)

// recordRow is the BigQuery row shape for a transaction record.
// amount is NUMERIC so values round-trip exactly.
type recordRow struct {
	RecordID      string                 `bigquery:"record_id"`      // REQUIRED STRING
	Amount        *big.Rat               `bigquery:"amount"`         // REQUIRED NUMERIC
	Merchant      string                 `bigquery:"merchant"`       // REQUIRED STRING
	Category      string                 `bigquery:"category"`       // REQUIRED STRING
	OccurredTS    time.Time              `bigquery:"occurred_ts"`    // REQUIRED TIMESTAMP
	Origin        string                 `bigquery:"origin"`         // REQUIRED STRING
	CaptureMethod string                 `bigquery:"capture_method"` // REQUIRED STRING
	ExternalRef   string                 `bigquery:"external_ref"`   // NULLABLE STRING
	RawText       string                 `bigquery:"raw_text"`       // NULLABLE STRING
	CreatedTS     time.Time              `bigquery:"created_ts"`     // REQUIRED TIMESTAMP
	SyncedTS      bigquery.NullTimestamp `bigquery:"synced_ts"`      // NULLABLE TIMESTAMP
}

const recordColumns = `
	record_id,
	amount,
	merchant,
	category,
	occurred_ts,
	origin,
	capture_method,
	external_ref,
	raw_text,
	created_ts,
	synced_ts`

// BigQuery is a Provider backed by one BigQuery table. Writes go through
// DML jobs rather than the streaming inserter so that upserts and deletes
// apply immediately and idempotently.
type BigQuery struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	tableID   string
}

// NewBigQuery creates a provider over projectID.datasetID.tableID using
// application default credentials.
func NewBigQuery(ctx context.Context, projectID, datasetID, tableID string) (*BigQuery, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQuery: bigquery client: %w", err)
	}
	return &BigQuery{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
		tableID:   tableID,
	}, nil
}

// Close releases the underlying client.
func (b *BigQuery) Close() error {
	return b.client.Close()
}

func (b *BigQuery) tableRef() string {
	return "`" + b.projectID + "." + b.datasetID + "." + b.tableID + "`"
}

// Get implements Provider.
func (b *BigQuery) Get(ctx context.Context, id string) (*domain.TransactionRecord, error) {
	q := b.client.Query(`
		SELECT` + recordColumns + `
		FROM ` + b.tableRef() + `
		WHERE record_id = @record_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "record_id", Value: id},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("Get %s: query read: %w", id, err)
	}

	var row recordRow
	if err := it.Next(&row); err == iterator.Done {
		return nil, fmt.Errorf("Get %s: %w", id, ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("Get %s: iterating: %w", id, err)
	}
	return recordFromRow(&row), nil
}

// List implements Provider.
func (b *BigQuery) List(ctx context.Context) ([]*domain.TransactionRecord, error) {
	q := b.client.Query(`
		SELECT` + recordColumns + `
		FROM ` + b.tableRef() + `
		ORDER BY occurred_ts DESC, record_id
	`)

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("List: query read: %w", err)
	}

	var out []*domain.TransactionRecord
	for {
		var row recordRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("List: iterating: %w", err)
		}
		out = append(out, recordFromRow(&row))
	}
	return out, nil
}

// Put implements Provider as a MERGE keyed on record_id.
func (b *BigQuery) Put(ctx context.Context, rec *domain.TransactionRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("Put: record id is required")
	}
	row := recordToRow(rec)

	q := b.client.Query(`
		MERGE ` + b.tableRef() + ` t
		USING (SELECT @record_id AS record_id) s
		ON t.record_id = s.record_id
		WHEN MATCHED THEN UPDATE SET
			amount = @amount,
			merchant = @merchant,
			category = @category,
			occurred_ts = @occurred_ts,
			origin = @origin,
			capture_method = @capture_method,
			external_ref = @external_ref,
			raw_text = @raw_text,
			created_ts = @created_ts,
			synced_ts = @synced_ts
		WHEN NOT MATCHED THEN INSERT (` + recordColumns + `
		) VALUES (
			@record_id, @amount, @merchant, @category, @occurred_ts,
			@origin, @capture_method, @external_ref, @raw_text,
			@created_ts, @synced_ts
		)
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "record_id", Value: row.RecordID},
		{Name: "amount", Value: row.Amount},
		{Name: "merchant", Value: row.Merchant},
		{Name: "category", Value: row.Category},
		{Name: "occurred_ts", Value: row.OccurredTS},
		{Name: "origin", Value: row.Origin},
		{Name: "capture_method", Value: row.CaptureMethod},
		{Name: "external_ref", Value: row.ExternalRef},
		{Name: "raw_text", Value: row.RawText},
		{Name: "created_ts", Value: row.CreatedTS},
		{Name: "synced_ts", Value: row.SyncedTS},
	}

	if err := b.runDML(ctx, q); err != nil {
		return fmt.Errorf("Put %s: %w", rec.ID, err)
	}
	return nil
}

// Delete implements Provider. Deleting an absent row is a no-op DML job.
func (b *BigQuery) Delete(ctx context.Context, id string) error {
	q := b.client.Query(`
		DELETE FROM ` + b.tableRef() + `
		WHERE record_id = @record_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "record_id", Value: id},
	}

	if err := b.runDML(ctx, q); err != nil {
		return fmt.Errorf("Delete %s: %w", id, err)
	}
	return nil
}

// Subscribe implements Provider. BigQuery has no change feed.
func (b *BigQuery) Subscribe(fn func(Event)) (func(), error) {
	return nil, ErrSubscribeUnsupported
}

func (b *BigQuery) runDML(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("run query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("wait for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job failed: %w", err)
	}
	return nil
}

func recordToRow(rec *domain.TransactionRecord) *recordRow {
	row := &recordRow{
		RecordID:      rec.ID,
		Amount:        rec.Amount.Rat(),
		Merchant:      rec.Merchant,
		Category:      string(rec.Category),
		OccurredTS:    rec.OccurredAt,
		Origin:        string(rec.Origin),
		CaptureMethod: string(rec.CaptureMethod),
		ExternalRef:   rec.ExternalRef,
		RawText:       rec.RawText,
		CreatedTS:     rec.CreatedAt,
	}
	if rec.SyncedAt != nil {
		row.SyncedTS = bigquery.NullTimestamp{Timestamp: *rec.SyncedAt, Valid: true}
	}
	return row
}

func recordFromRow(row *recordRow) *domain.TransactionRecord {
	rec := &domain.TransactionRecord{
		ID:            row.RecordID,
		Amount:        decimal.NewFromBigRat(row.Amount, 2),
		Merchant:      row.Merchant,
		Category:      domain.Category(row.Category),
		OccurredAt:    row.OccurredTS,
		Origin:        domain.Origin(row.Origin),
		CaptureMethod: domain.CaptureMethod(row.CaptureMethod),
		ExternalRef:   row.ExternalRef,
		RawText:       row.RawText,
		CreatedAt:     row.CreatedTS,
	}
	if row.SyncedTS.Valid {
		t := row.SyncedTS.Timestamp
		rec.SyncedAt = &t
	}
	return rec
}

var _ Provider = (*BigQuery)(nil)
