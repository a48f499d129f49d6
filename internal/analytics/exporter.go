package analytics

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/rcallanan/studio-ledger/internal/domain"
)

const (
	transactionsTable = "transactions"
	personsTable      = "person_snapshots"
	dateFormat        = "2006-01-02"
)

// Exporter ships rows into one BigQuery dataset. It holds no connection; a
// client is created per call, matching the short-lived CLI usage pattern.
type Exporter struct {
	projectID string
	datasetID string
}

// NewExporter creates an Exporter for the given project and dataset.
func NewExporter(projectID, datasetID string) *Exporter {
	return &Exporter{projectID: projectID, datasetID: datasetID}
}

// Export inserts a batch of transactions into the warehouse.
func (e *Exporter) Export(ctx context.Context, txs []*domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	client, err := bigquery.NewClient(ctx, e.projectID)
	if err != nil {
		return fmt.Errorf("Export: bigquery client: %w", err)
	}
	defer client.Close()

	rows := make([]*TransactionRow, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, RowFromTransaction(tx))
	}

	table := client.DatasetInProject(e.projectID, e.datasetID).Table(transactionsTable)
	if err := table.Inserter().Put(ctx, rows); err != nil {
		return fmt.Errorf("Export: inserting rows: %w", err)
	}
	return nil
}

// SnapshotPersons inserts point-in-time LTV snapshots for the given persons.
func (e *Exporter) SnapshotPersons(ctx context.Context, persons []*domain.Person) error {
	if len(persons) == 0 {
		return nil
	}

	client, err := bigquery.NewClient(ctx, e.projectID)
	if err != nil {
		return fmt.Errorf("SnapshotPersons: bigquery client: %w", err)
	}
	defer client.Close()

	now := time.Now().UTC()
	rows := make([]*PersonRow, 0, len(persons))
	for _, p := range persons {
		rows = append(rows, RowFromPerson(p, now))
	}

	table := client.DatasetInProject(e.projectID, e.datasetID).Table(personsTable)
	if err := table.Inserter().Put(ctx, rows); err != nil {
		return fmt.Errorf("SnapshotPersons: inserting rows: %w", err)
	}
	return nil
}

// QueryTransactionsByDateRange reads exported transactions back within the
// given business-date range, ordered by transaction date.
func (e *Exporter) QueryTransactionsByDateRange(ctx context.Context, startDate, endDate time.Time) ([]*TransactionRow, error) {
	client, err := bigquery.NewClient(ctx, e.projectID)
	if err != nil {
		return nil, fmt.Errorf("QueryTransactionsByDateRange: bigquery client: %w", err)
	}
	defer client.Close()

	q := client.Query(fmt.Sprintf(`
		SELECT
			t.transaction_id,
			t.external_id,
			t.provider,
			t.transaction_date,
			t.amount_minor,
			t.currency,
			t.status,
			t.confidence,
			t.person_id,
			t.person_name,
			t.product_type,
			t.description,
			t.reference,
			t.ingested_ts
		FROM %s.%s t
		WHERE t.transaction_date >= @start_date
		  AND t.transaction_date <= @end_date
		ORDER BY t.transaction_date, t.ingested_ts
	`, e.datasetID, transactionsTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "start_date", Value: startDate.Format(dateFormat)},
		{Name: "end_date", Value: endDate.Format(dateFormat)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryTransactionsByDateRange: query read: %w", err)
	}

	var rows []*TransactionRow
	for {
		var r TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryTransactionsByDateRange: iterate: %w", err)
		}
		rows = append(rows, &r)
	}
	return rows, nil
}
