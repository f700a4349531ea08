package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	dbpkg "github.com/snackmasta/sakan-munazam/internal/db"
)

// SQLiteStore appends decisions to the access_events table through the
// single-writer worker, keeping audit writes off the authorization path's
// critical section.
type SQLiteStore struct {
	writer *dbpkg.Worker
}

func NewSQLiteStore(writer *dbpkg.Worker) *SQLiteStore {
	return &SQLiteStore{writer: writer}
}

func (s *SQLiteStore) Record(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.DecidedAt.IsZero() {
		rec.DecidedAt = time.Now().UTC()
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO access_events(
  id, device_id, credential, source_addr, decision, reason, decided_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?);
`,
			rec.ID, rec.DeviceID, rec.Credential, rec.SourceAddr,
			rec.Decision, rec.Reason, rec.DecidedAt.UTC().UnixMilli(),
		); err != nil {
			return fmt.Errorf("audit insert: %w", err)
		}
		return nil
	})
}
