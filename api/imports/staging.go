package imports

import (
	"context"
	"time"

	"DebtPortfolioSaas/internal/config"
)

// StagedRow is one source row captured for a job: its 1-based position in
// the file (after empty-row removal), the mapped projection under the
// confirmed mapping, and the untouched original row for audit and fallback.
type StagedRow struct {
	RowNumber  int               `json:"row_number"`
	MappedData map[string]string `json:"mapped_data"`
	RawData    map[string]string `json:"raw_data"`
}

// StagedRowStore is the slice of the relational store the staging writer
// needs. The pgx implementation lives in store.go.
type StagedRowStore interface {
	InsertStagedRows(ctx context.Context, jobID, stagingTable string, mapping map[string]string, rows []StagedRow) error
}

// stagingTableName is the logical staging-area name recorded on every row.
// Staged data is tied to the job through this convention, which is why a
// failed job is re-uploaded rather than retried in place.
func stagingTableName(importType string) string {
	return "import_staging_" + importType
}

// BuildStagedRows projects parsed rows through the confirmed mapping.
// MappedData only carries target fields that have a mapping and whose source
// column actually exists in the row; blank cells are kept as empty strings.
func BuildStagedRows(mapping map[string]string, sheet *SheetData) []StagedRow {
	rows := make([]StagedRow, 0, len(sheet.Rows))
	for i, src := range sheet.Rows {
		mapped := make(map[string]string, len(mapping))
		for field, header := range mapping {
			if header == "" {
				continue
			}
			if val, ok := src[header]; ok {
				mapped[field] = val
			}
		}
		raw := make(map[string]string, len(src))
		for k, v := range src {
			raw[k] = v
		}
		rows = append(rows, StagedRow{
			RowNumber:  i + 1,
			MappedData: mapped,
			RawData:    raw,
		})
	}
	return rows
}

// StagingWriter bulk-writes staged rows for a job. A failed batch fails the
// whole staging operation; nothing is silently dropped.
type StagingWriter struct {
	store     StagedRowStore
	batchSize int
	timeout   time.Duration
}

func NewStagingWriter(store StagedRowStore) *StagingWriter {
	return &StagingWriter{
		store:     store,
		batchSize: config.StagedRowsBatchSize,
		timeout:   config.StagingTimeout,
	}
}

// Write stages all rows for the job within the staging deadline. The
// deadline is a cooperative signal: a batch insert already in flight when
// the deadline fires may still land in the backend after the job is marked
// failed. That stale write is harmless: the job is terminal and its staged
// rows are only ever read by a job that reached "uploaded".
func (w *StagingWriter) Write(ctx context.Context, jobID, importType string, mapping map[string]string, rows []StagedRow) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	table := stagingTableName(importType)
	for start := 0; start < len(rows); start += w.batchSize {
		end := start + w.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := w.writeBatch(ctx, jobID, table, mapping, rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (w *StagingWriter) writeBatch(ctx context.Context, jobID, table string, mapping map[string]string, batch []StagedRow) error {
	done := make(chan error, 1)
	go func() {
		done <- w.store.InsertStagedRows(ctx, jobID, table, mapping, batch)
	}()
	select {
	case err := <-done:
		if err != nil {
			return &StagingError{Err: err, Timeout: ctx.Err() == context.DeadlineExceeded}
		}
		return nil
	case <-ctx.Done():
		return &StagingError{Err: ctx.Err(), Timeout: ctx.Err() == context.DeadlineExceeded}
	}
}
