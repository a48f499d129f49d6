// Command recalc recomputes lifetime-value totals for every person, or for a
// single person when -person is given. Run it after changing classifier
// keywords or after bulk manual-queue resolutions.
package main

import (
	"context"
	"flag"

	"github.com/rcallanan/studio-ledger/internal/logger"
	"github.com/rcallanan/studio-ledger/internal/ltv"
	"github.com/rcallanan/studio-ledger/internal/store/sqlite"
)

func main() {
	var (
		dbPath     = flag.String("db", "studio-ledger.db", "SQLite database path")
		personID   = flag.String("person", "", "Recompute a single person id")
		classifier = flag.String("classifier", "", "Product classifier keyword overrides (JSON file)")
	)
	flag.Parse()

	log := logger.New()
	ctx := context.Background()

	st, err := sqlite.Open(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer st.Close()

	var productClassifier *ltv.Classifier
	if *classifier != "" {
		productClassifier, err = ltv.NewClassifierFromFile(*classifier)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load product classifier")
		}
	}

	aggregator := ltv.NewAggregator(st, st, st, productClassifier, log)

	if *personID != "" {
		totals, err := aggregator.Recompute(ctx, *personID)
		if err != nil {
			log.Fatal().Err(err).Str("person_id", *personID).Msg("Recompute failed")
		}
		log.Info().
			Str("person_id", *personID).
			Int64("ltv_all_minor", totals.AllMinor).
			Msg("Recomputed lifetime value")
		return
	}

	persons, err := st.ListPersons(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list persons")
	}

	ids := make([]string, 0, len(persons))
	for _, p := range persons {
		ids = append(ids, p.ID)
	}

	failures := aggregator.RecomputeMany(ctx, ids)
	log.Info().
		Int("persons", len(ids)).
		Int("failures", failures).
		Msg("Recompute complete")
}
