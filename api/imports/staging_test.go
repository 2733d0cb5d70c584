package imports

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStagedRowStore struct {
	batches [][]StagedRow
	tables  []string
	err     error
	delay   time.Duration
}

func (f *fakeStagedRowStore) InsertStagedRows(ctx context.Context, jobID, stagingTable string, mapping map[string]string, rows []StagedRow) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.err != nil {
		return f.err
	}
	batch := make([]StagedRow, len(rows))
	copy(batch, rows)
	f.batches = append(f.batches, batch)
	f.tables = append(f.tables, stagingTable)
	return nil
}

func TestBuildStagedRowsProjection(t *testing.T) {
	sheet := &SheetData{
		Headers: []string{"Acct#", "SSN", "Extra"},
		Rows: []map[string]string{
			{"Acct#": "ACC-1", "SSN": "123-45-6789", "Extra": "x"},
			{"Acct#": "ACC-2", "SSN": "", "Extra": "y"},
		},
	}
	mapping := map[string]string{
		"account_number": "Acct#",
		"ssn":            "SSN",
		"dob":            "DOB", // header not present in the file
		"notes":          "",
	}

	rows := BuildStagedRows(mapping, sheet)
	require.Len(t, rows, 2)

	assert.Equal(t, 1, rows[0].RowNumber)
	assert.Equal(t, 2, rows[1].RowNumber)

	// Mapped projection carries only fields whose source column exists
	assert.Equal(t, map[string]string{"account_number": "ACC-1", "ssn": "123-45-6789"}, rows[0].MappedData)
	assert.Equal(t, map[string]string{"account_number": "ACC-2", "ssn": ""}, rows[1].MappedData)

	// Raw data is the untouched source row
	assert.Equal(t, "x", rows[0].RawData["Extra"])
}

func TestStagingWriterBatches(t *testing.T) {
	store := &fakeStagedRowStore{}
	w := &StagingWriter{store: store, batchSize: 2, timeout: time.Second}

	rows := []StagedRow{
		{RowNumber: 1}, {RowNumber: 2}, {RowNumber: 3}, {RowNumber: 4}, {RowNumber: 5},
	}
	err := w.Write(context.Background(), "job-1", "accounts", nil, rows)
	require.NoError(t, err)

	require.Len(t, store.batches, 3)
	assert.Len(t, store.batches[0], 2)
	assert.Len(t, store.batches[1], 2)
	assert.Len(t, store.batches[2], 1)
	assert.Equal(t, "import_staging_accounts", store.tables[0])
}

func TestStagingWriterBatchFailure(t *testing.T) {
	store := &fakeStagedRowStore{err: errors.New("copy failed")}
	w := &StagingWriter{store: store, batchSize: 10, timeout: time.Second}

	err := w.Write(context.Background(), "job-1", "accounts", nil, []StagedRow{{RowNumber: 1}})
	require.Error(t, err)

	var se *StagingError
	require.ErrorAs(t, err, &se)
	assert.False(t, se.Timeout)
	assert.Contains(t, se.Error(), "copy failed")
}

func TestStagingWriterTimeout(t *testing.T) {
	store := &fakeStagedRowStore{delay: 500 * time.Millisecond}
	w := &StagingWriter{store: store, batchSize: 10, timeout: 50 * time.Millisecond}

	err := w.Write(context.Background(), "job-1", "accounts", nil, []StagedRow{{RowNumber: 1}})
	require.Error(t, err)

	var se *StagingError
	require.ErrorAs(t, err, &se)
	assert.True(t, se.Timeout)
	assert.ErrorIs(t, se.Err, context.DeadlineExceeded)
}

func TestStagingTableName(t *testing.T) {
	assert.Equal(t, "import_staging_accounts", stagingTableName("accounts"))
}
