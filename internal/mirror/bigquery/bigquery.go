// Package bigquery mirrors transactions into a BigQuery table for analytics.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/wa-finance/internal/domain"
	"google.golang.org/api/googleapi"
)

// TransactionRow is the BigQuery representation of a WhatsApp transaction.
type TransactionRow struct {
	MessageID string `bigquery:"message_id"` // REQUIRED
	WaID      string `bigquery:"wa_id"`      // REQUIRED

	ContactName bigquery.NullString `bigquery:"contact_name"` // NULLABLE

	Type     string `bigquery:"type"`     // Débito | Crédito
	Category string `bigquery:"category"` // REQUIRED

	Amount          *big.Rat   `bigquery:"amount"`           // REQUIRED NUMERIC
	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED

	RawText bigquery.NullString `bigquery:"raw_text"` // NULLABLE

	IngestedTS time.Time `bigquery:"ingested_ts"` // REQUIRED
}

// NewRow maps a domain transaction to a table row.
func NewRow(tx *domain.Transaction, ingestedAt time.Time) *TransactionRow {
	return &TransactionRow{
		MessageID:       tx.MessageID,
		WaID:            tx.SenderID,
		ContactName:     nullString(tx.SenderName),
		Type:            string(tx.Type),
		Category:        tx.Category,
		Amount:          tx.Amount.Rat(),
		TransactionDate: tx.Date,
		RawText:         nullString(tx.RawText),
		IngestedTS:      ingestedAt.UTC(),
	}
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

// rowInserter is the subset of *bigquery.Inserter used here.
type rowInserter interface {
	Put(ctx context.Context, src interface{}) error
}

// Mirror streams one row per transaction. The message id is used as the
// insert id so retried inserts are deduplicated by BigQuery.
type Mirror struct {
	client   *bigquery.Client
	table    *bigquery.Table
	inserter rowInserter
	now      func() time.Time
}

// New creates a BigQuery client and targets project.dataset.table.
func New(ctx context.Context, projectID, datasetID, tableID string) (*Mirror, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("bigquery.New: create client: %w", err)
	}
	table := client.DatasetInProject(projectID, datasetID).Table(tableID)
	return &Mirror{
		client:   client,
		table:    table,
		inserter: table.Inserter(),
		now:      time.Now,
	}, nil
}

// Close closes the BigQuery client connection.
func (m *Mirror) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

// AppendTransaction inserts tx as one row.
func (m *Mirror) AppendTransaction(ctx context.Context, tx *domain.Transaction) error {
	saver := &bigquery.StructSaver{
		Struct:   NewRow(tx, m.now()),
		InsertID: tx.MessageID,
	}
	if err := m.inserter.Put(ctx, saver); err != nil {
		return fmt.Errorf("bigquery.AppendTransaction: inserting row: %w", err)
	}
	return nil
}

// Schema returns the table schema inferred from TransactionRow.
func Schema() (bigquery.Schema, error) {
	schema, err := bigquery.InferSchema(TransactionRow{})
	if err != nil {
		return nil, fmt.Errorf("Schema: infer: %w", err)
	}
	return schema, nil
}

// EnsureTable creates the mirror table, partitioned by transaction date, when
// it does not exist yet. It reports whether the table was created.
func (m *Mirror) EnsureTable(ctx context.Context) (bool, error) {
	_, err := m.table.Metadata(ctx)
	if err == nil {
		return false, nil
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusNotFound {
		return false, fmt.Errorf("EnsureTable: read metadata: %w", err)
	}

	schema, err := Schema()
	if err != nil {
		return false, err
	}
	meta := &bigquery.TableMetadata{
		Schema: schema,
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: "transaction_date",
		},
		Clustering: &bigquery.Clustering{Fields: []string{"wa_id"}},
	}
	if err := m.table.Create(ctx, meta); err != nil {
		return false, fmt.Errorf("EnsureTable: create: %w", err)
	}
	return true, nil
}
