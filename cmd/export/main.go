// Command export ships the full ledger to BigQuery: all transactions plus a
// point-in-time LTV snapshot of every person.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/rcallanan/studio-ledger/internal/analytics"
	"github.com/rcallanan/studio-ledger/internal/logger"
	"github.com/rcallanan/studio-ledger/internal/store/sqlite"
)

func main() {
	var (
		dbPath    = flag.String("db", "studio-ledger.db", "SQLite database path")
		bqProject = flag.String("bq-project", os.Getenv("BQ_PROJECT"), "BigQuery project (or set BQ_PROJECT env)")
		bqDataset = flag.String("bq-dataset", "studio_ledger", "BigQuery dataset")
	)
	flag.Parse()

	log := logger.New()

	if *bqProject == "" {
		log.Fatal().Msg("BigQuery project is required")
	}

	ctx := context.Background()

	st, err := sqlite.Open(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer st.Close()

	transactions, err := st.ListTransactions(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list transactions")
	}
	persons, err := st.ListPersons(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list persons")
	}

	exporter := analytics.NewExporter(*bqProject, *bqDataset)

	if err := exporter.Export(ctx, transactions); err != nil {
		log.Fatal().Err(err).Msg("Transaction export failed")
	}
	if err := exporter.SnapshotPersons(ctx, persons); err != nil {
		log.Fatal().Err(err).Msg("Person snapshot export failed")
	}

	log.Info().
		Int("transactions", len(transactions)).
		Int("persons", len(persons)).
		Str("dataset", *bqDataset).
		Msg("Export complete")
}
