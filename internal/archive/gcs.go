// Package archive writes raw provider payloads to Google Cloud Storage so
// every normalization decision can be audited against the bytes the provider
// actually sent.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/rcallanan/studio-ledger/internal/domain"
)

// GCSArchiver uploads one JSON object per transaction. Objects are keyed by
// provider and external id so re-deliveries overwrite rather than duplicate.
// It assumes Application Default Credentials are configured.
type GCSArchiver struct {
	bucket string
	prefix string
}

// NewGCSArchiver creates an archiver writing into the given bucket. An empty
// prefix stores objects at the bucket root.
func NewGCSArchiver(bucket, prefix string) *GCSArchiver {
	return &GCSArchiver{bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// Archive uploads the transaction's raw payload. Transactions without a raw
// payload are skipped.
func (a *GCSArchiver) Archive(ctx context.Context, tx *domain.Transaction) error {
	if len(tx.Raw) == 0 {
		return nil
	}

	data, err := json.Marshal(tx.Raw)
	if err != nil {
		return fmt.Errorf("Archive: encode payload %s: %w", tx.ExternalID, err)
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("Archive: create storage client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	obj := client.Bucket(a.bucket).Object(a.objectName(tx))
	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("Archive: write object %s: %w", tx.ExternalID, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("Archive: finalize upload %s: %w", tx.ExternalID, err)
	}
	return nil
}

func (a *GCSArchiver) objectName(tx *domain.Transaction) string {
	name := fmt.Sprintf("%s/%s.json", strings.ToLower(string(tx.Provider)), tx.ExternalID)
	if a.prefix != "" {
		name = a.prefix + "/" + name
	}
	return name
}
