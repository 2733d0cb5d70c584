package config

import "time"

// Default application timezone
const DefaultTimeZone = "America/New_York"

// Import pipeline limits
const (
	// MaxImportFileBytes is the largest upload accepted by the import API.
	MaxImportFileBytes = 32 << 20

	// StagedRowsBatchSize is the number of staged rows written per copy batch.
	StagedRowsBatchSize = 1000

	// StagingTimeout bounds a full staging write for one job.
	StagingTimeout = 60 * time.Second

	// MaterializePageSize is the number of staged rows fetched per page
	// while converting them into Person and DebtAccount records.
	MaterializePageSize = 100

	// MaterializeRowCap is the maximum number of staged rows materialized
	// for a single job in one run.
	MaterializeRowCap = 500
)

// Staged row retention
const (
	// DefaultRetentionDays is how long staged rows of finished jobs are kept.
	DefaultRetentionDays = 90

	// DefaultRetentionSchedule runs the purge daily at 3 AM.
	DefaultRetentionSchedule = "0 3 * * *"
)
