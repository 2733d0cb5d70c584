package imports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"DebtPortfolioSaas/api/utils"
)

// Store is the pgx-backed relational store for the import pipeline. It
// implements StagedRowStore, MaterializeStore and JobCascadeStore; handlers
// receive it by injection instead of reaching for a package singleton.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ---- staged rows ----

func (s *Store) InsertStagedRows(ctx context.Context, jobID, stagingTable string, mapping map[string]string, rows []StagedRow) error {
	mappingJSON, err := json.Marshal(mapping)
	if err != nil {
		return err
	}
	copyRows := make([][]interface{}, 0, len(rows))
	for _, row := range rows {
		mappedJSON, err := json.Marshal(row.MappedData)
		if err != nil {
			return err
		}
		rawJSON, err := json.Marshal(row.RawData)
		if err != nil {
			return err
		}
		copyRows = append(copyRows, []interface{}{
			jobID, stagingTable, row.RowNumber, mappingJSON, mappedJSON, rawJSON,
		})
	}
	_, err = s.pool.CopyFrom(
		ctx,
		pgx.Identifier{"staged_rows"},
		[]string{"job_id", "staging_table", "row_number", "field_mapping", "mapped_data", "raw_data"},
		pgx.CopyFromRows(copyRows),
	)
	return err
}

func (s *Store) FetchStagedRows(ctx context.Context, jobID string, offset, limit int) ([]StagedRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT row_number, mapped_data, raw_data
		FROM staged_rows
		WHERE job_id = $1
		ORDER BY row_number
		OFFSET $2 LIMIT $3
	`, jobID, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]StagedRow, 0, limit)
	for rows.Next() {
		var sr StagedRow
		var mappedJSON, rawJSON []byte
		if err := rows.Scan(&sr.RowNumber, &mappedJSON, &rawJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(mappedJSON, &sr.MappedData); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(rawJSON, &sr.RawData); err != nil {
			return nil, err
		}
		out = append(out, sr)
	}
	return out, rows.Err()
}

func (s *Store) CountStagedRows(ctx context.Context, jobID string) (int, error) {
	return utils.CountTotal(ctx, s.pool,
		`SELECT COUNT(*) FROM staged_rows WHERE job_id = $1`, jobID)
}

func (s *Store) DeleteStagedRows(ctx context.Context, jobID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM staged_rows WHERE job_id = $1`, jobID)
	return err
}

// ---- persons and debt accounts ----

func (s *Store) FindPersonBySSN(ctx context.Context, ssn string) (string, bool, error) {
	var id string
	err := s.pool.QueryRow(ctx, `SELECT person_id FROM persons WHERE ssn = $1`, ssn).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (s *Store) CreatePerson(ctx context.Context, p Person) (string, error) {
	id := uuid.New().String()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO persons (person_id, ssn, first_name, last_name, dob, email, phone, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5,'')::date, $6, $7, now())
	`, id, p.SSN, p.FirstName, p.LastName, p.DOB, p.Email, p.Phone)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) CreateDebtAccount(ctx context.Context, a DebtAccount) (string, error) {
	id := uuid.New().String()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO debt_accounts
			(account_id, person_id, portfolio_id, import_job_id, account_number,
			 original_balance, current_balance, original_creditor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, now())
	`, id, a.PersonID, a.PortfolioID, a.ImportJobID, a.AccountNumber,
		a.OriginalBalance.String(), a.CurrentBalance.String(), a.OriginalCreditor)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) DeleteJobAccounts(ctx context.Context, jobID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		DELETE FROM debt_accounts WHERE import_job_id = $1 RETURNING person_id
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var personIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		personIDs = append(personIDs, id)
	}
	return personIDs, rows.Err()
}

func (s *Store) CountPersonReferences(ctx context.Context, personIDs []string) (map[string]int, error) {
	refs := make(map[string]int, len(personIDs))
	for _, q := range []string{
		`SELECT person_id, COUNT(*) FROM debt_accounts WHERE person_id = ANY($1) GROUP BY person_id`,
		`SELECT person_id, COUNT(*) FROM payments WHERE person_id = ANY($1) GROUP BY person_id`,
	} {
		rows, err := s.pool.Query(ctx, q, personIDs)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var id string
			var n int
			if err := rows.Scan(&id, &n); err != nil {
				rows.Close()
				return nil, err
			}
			refs[id] += n
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return refs, nil
}

func (s *Store) DeletePersons(ctx context.Context, personIDs []string) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM persons WHERE person_id = ANY($1)`, personIDs)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// ---- import jobs ----

func (s *Store) CreateJob(ctx context.Context, job *ImportJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	job.Status = StatusPending
	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now
	_, err := s.pool.Exec(ctx, `
		INSERT INTO import_jobs
			(id, user_id, file_name, file_size, file_type, import_type, portfolio_id,
			 template_id, status, progress, rows_materialized, storage_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8,''), $9, 0, 0, $10, $11, $11)
	`, job.ID, job.UserID, job.FileName, job.FileSize, job.FileType, job.ImportType,
		job.PortfolioID, job.TemplateID, job.Status, job.StorageKey, now)
	return err
}

func (s *Store) GetJob(ctx context.Context, jobID string) (*ImportJob, error) {
	var job ImportJob
	var templateID, errorMessage *string
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, file_name, file_size, file_type, import_type, portfolio_id,
		       template_id, status, progress, rows_materialized, error_message,
		       storage_key, created_at, updated_at
		FROM import_jobs WHERE id = $1
	`, jobID).Scan(&job.ID, &job.UserID, &job.FileName, &job.FileSize, &job.FileType,
		&job.ImportType, &job.PortfolioID, &templateID, &job.Status, &job.Progress,
		&job.RowsMaterialized, &errorMessage, &job.StorageKey, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	if templateID != nil {
		job.TemplateID = *templateID
	}
	if errorMessage != nil {
		job.ErrorMessage = *errorMessage
	}
	return &job, nil
}

// GetJobForUser loads a job and enforces ownership with no state mutation.
func (s *Store) GetJobForUser(ctx context.Context, jobID, userID string) (*ImportJob, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, ErrPermissionDenied
	}
	return job, nil
}

func (s *Store) ListJobs(ctx context.Context, userID string, limit, offset int) ([]ImportJob, int, error) {
	total, err := utils.CountTotal(ctx, s.pool,
		`SELECT COUNT(*) FROM import_jobs WHERE user_id = $1`, userID)
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, file_name, file_size, file_type, import_type, portfolio_id,
		       COALESCE(template_id::text,''), status, progress, rows_materialized,
		       COALESCE(error_message,''), storage_key, created_at, updated_at
		FROM import_jobs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	jobs := make([]ImportJob, 0, limit)
	for rows.Next() {
		var job ImportJob
		if err := rows.Scan(&job.ID, &job.UserID, &job.FileName, &job.FileSize, &job.FileType,
			&job.ImportType, &job.PortfolioID, &job.TemplateID, &job.Status, &job.Progress,
			&job.RowsMaterialized, &job.ErrorMessage, &job.StorageKey,
			&job.CreatedAt, &job.UpdatedAt); err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, job)
	}
	return jobs, total, rows.Err()
}

// UpdateJobStatus advances the lifecycle after checking the transition is
// legal. The optimistic WHERE guards against a concurrent status change.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID, status, errorMessage string) error {
	var current string
	err := s.pool.QueryRow(ctx, `SELECT status FROM import_jobs WHERE id = $1`, jobID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrJobNotFound
	}
	if err != nil {
		return err
	}
	if !CanTransition(current, status) {
		return fmt.Errorf("illegal job status transition %s -> %s", current, status)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE import_jobs
		SET status = $2, error_message = NULLIF($3,''), updated_at = now()
		WHERE id = $1 AND status = $4
	`, jobID, status, errorMessage, current)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s changed status concurrently", jobID)
	}
	return nil
}

func (s *Store) SetJobProgress(ctx context.Context, jobID string, progress int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE import_jobs SET progress = $2, updated_at = now() WHERE id = $1
	`, jobID, progress)
	return err
}

// SetJobMaterialization records how far materialization got so a run paused
// at the row cap can be resumed from the stored offset.
func (s *Store) SetJobMaterialization(ctx context.Context, jobID string, progress, rowsMaterialized int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE import_jobs
		SET progress = $2, rows_materialized = $3, updated_at = now()
		WHERE id = $1
	`, jobID, progress, rowsMaterialized)
	return err
}

func (s *Store) DeleteJob(ctx context.Context, jobID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM import_jobs WHERE id = $1`, jobID)
	return err
}

// ---- staged row retention ----

// PurgeExpiredStagedRows removes staged rows belonging to terminal jobs
// whose last update is older than the cutoff. Returns rows removed.
func (s *Store) PurgeExpiredStagedRows(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM staged_rows sr
		USING import_jobs j
		WHERE sr.job_id = j.id
		  AND j.status IN ($1, $2, $3)
		  AND j.updated_at < $4
	`, StatusCompleted, StatusFailed, StatusCancelled, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
