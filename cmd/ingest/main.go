// Command ingest reconciles a JSON file of provider payloads into the ledger.
// The file may hold one object or an array of objects; "-" reads stdin.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"os"

	"github.com/rcallanan/studio-ledger/internal/domain"
	"github.com/rcallanan/studio-ledger/internal/logger"
	"github.com/rcallanan/studio-ledger/internal/ltv"
	"github.com/rcallanan/studio-ledger/internal/match"
	"github.com/rcallanan/studio-ledger/internal/normalize"
	"github.com/rcallanan/studio-ledger/internal/reconcile"
	"github.com/rcallanan/studio-ledger/internal/store/sqlite"
)

func main() {
	var (
		dbPath   = flag.String("db", "studio-ledger.db", "SQLite database path")
		provider = flag.String("provider", "manual", "Payload provider: stripe, glofox, starling or manual")
		input    = flag.String("input", "-", "JSON payload file, or - for stdin")
	)
	flag.Parse()

	log := logger.New()
	ctx := context.Background()

	payloads, err := readPayloads(*input)
	if err != nil {
		log.Fatal().Err(err).Str("input", *input).Msg("Failed to read payloads")
	}
	if len(payloads) == 0 {
		log.Fatal().Str("input", *input).Msg("No payloads found")
	}

	st, err := sqlite.Open(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer st.Close()

	prov := parseProvider(*provider)
	batch := make([]*domain.NormalizedTransaction, 0, len(payloads))
	for _, payload := range payloads {
		normalized := normalize.MapProviderPayload(prov, payload)
		batch = append(batch, &normalized)
	}

	aggregator := ltv.NewAggregator(st, st, st, nil, log)
	reconciler := reconcile.New(st, match.NewMatcher(st), aggregator, log)

	summary, err := reconciler.Reconcile(ctx, batch)
	if err != nil {
		log.Fatal().Err(err).Msg("Reconcile failed")
	}

	log.Info().
		Str("provider", string(prov)).
		Int("added", summary.Added).
		Int("total", summary.Total).
		Int("matched", summary.Matched).
		Int("queued", summary.Queued).
		Msg("Batch reconciled")
}

func readPayloads(path string) ([]map[string]any, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}

	var list []map[string]any
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var single map[string]any
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, err
	}
	return []map[string]any{single}, nil
}

func parseProvider(name string) domain.Provider {
	switch name {
	case "stripe":
		return domain.ProviderStripe
	case "glofox":
		return domain.ProviderGlofox
	case "starling":
		return domain.ProviderStarling
	default:
		return domain.ProviderManual
	}
}
