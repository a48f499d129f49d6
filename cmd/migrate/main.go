// Command migrate creates or upgrades the SQLite schema.
package main

import (
	"flag"

	"github.com/rcallanan/studio-ledger/internal/logger"
	"github.com/rcallanan/studio-ledger/internal/store/sqlite"
)

func main() {
	dbPath := flag.String("db", "studio-ledger.db", "SQLite database path")
	flag.Parse()

	log := logger.New()

	st, err := sqlite.Open(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Str("db", *dbPath).Msg("Migration failed")
	}
	defer st.Close()

	log.Info().Str("db", *dbPath).Msg("Schema is up to date")
}
