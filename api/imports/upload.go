package imports

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"DebtPortfolioSaas/api"
	"DebtPortfolioSaas/api/auth"
	"DebtPortfolioSaas/api/constants"
	"DebtPortfolioSaas/internal/config"
	"DebtPortfolioSaas/internal/logger"
)

// Target schema per import type. The matcher maps arbitrary file headers
// onto these canonical names.
var accountTargetFields = []string{
	"account_number",
	"ssn",
	"first_name",
	"last_name",
	"dob",
	"original_balance",
	"current_balance",
	"original_creditor",
	"charge_off_date",
	"address_line1",
	"city",
	"state",
	"zip",
	"email_primary",
	"phone_primary",
}

var accountRequiredFields = []string{"account_number", "ssn", "original_balance"}

func targetFieldsFor(importType string) []string {
	switch importType {
	case "accounts":
		return accountTargetFields
	}
	return nil
}

func requiredFieldsFor(importType string) []string {
	switch importType {
	case "accounts":
		return accountRequiredFields
	}
	return nil
}

// Helper: get file extension
func getFileExt(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// uploadStore is the slice of the relational store the upload handler needs.
type uploadStore interface {
	CreateJob(ctx context.Context, job *ImportJob) error
	GetTemplate(ctx context.Context, templateID, userID string) (*ImportTemplate, error)
}

// resolveUploadUser returns the user id for an upload request. Behind the
// portfolio access middleware the id is already on the context with the
// session validated; with direct wiring the form value is checked against
// the session store here.
func resolveUploadUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	if id := api.GetUserIDFromCtx(r.Context()); id != "" {
		return id, true
	}
	userID := r.FormValue("user_id")
	if userID == "" {
		api.RespondWithError(w, http.StatusBadRequest, constants.ErrUserIDRequired)
		return "", false
	}
	if auth.SessionForUser(userID) == nil {
		api.RespondWithError(w, http.StatusUnauthorized, constants.ErrInvalidSession)
		return "", false
	}
	return userID, true
}

// Handler: UploadImport accepts the multipart upload, stores the original
// file, creates the job, and returns the suggested field mapping. Every
// input, the template included, is validated before anything is persisted
// so a rejected request leaves no job row and no stored object behind.
// Nothing is staged until the mapping is confirmed through CommitImport.
func UploadImport(store uploadStore, objects ObjectStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Failed to parse multipart form")
			return
		}
		userID, ok := resolveUploadUser(w, r)
		if !ok {
			return
		}

		importType := r.FormValue("import_type")
		portfolioID := r.FormValue("portfolio_id")
		if importType == "" || portfolioID == "" {
			api.RespondWithError(w, http.StatusBadRequest, "import_type and portfolio_id are required")
			return
		}
		if targetFieldsFor(importType) == nil {
			api.RespondWithError(w, http.StatusBadRequest, "Unknown import_type: "+importType)
			return
		}
		if !api.IsPortfolioAllowed(ctx, portfolioID) {
			api.RespondWithError(w, http.StatusForbidden, constants.ErrPortfolioNotAllowed)
			return
		}

		var tmpl *ImportTemplate
		templateID := r.FormValue("template_id")
		if templateID != "" {
			t, err := store.GetTemplate(ctx, templateID, userID)
			if err != nil {
				api.RespondWithError(w, http.StatusBadRequest, constants.ErrTemplateNotFound)
				return
			}
			tmpl = t
		}

		file, fileHeader, err := r.FormFile("file")
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "No file uploaded")
			return
		}
		if fileHeader.Size > config.MaxImportFileBytes {
			file.Close()
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrFileTooLarge)
			return
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Failed to read file: "+fileHeader.Filename)
			return
		}

		ext := getFileExt(fileHeader.Filename)
		sheet, err := ParseSpreadsheet(data, ext)
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, "Invalid or empty file: "+err.Error())
			return
		}

		hash := sha256.Sum256(data)
		storageKey := buildImportFileKey(importType, hex.EncodeToString(hash[:]), ext)
		if _, err := objects.Upload(ctx, storageKey, data, detectContentType(data)); err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to store original file: "+err.Error())
			return
		}

		job := &ImportJob{
			UserID:      userID,
			FileName:    fileHeader.Filename,
			FileSize:    int64(len(data)),
			FileType:    ext,
			ImportType:  importType,
			PortfolioID: portfolioID,
			TemplateID:  templateID,
			StorageKey:  storageKey,
		}
		if err := store.CreateJob(ctx, job); err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to create import job: "+err.Error())
			return
		}

		suggestion := MatchFieldsDetailed(sheet.Headers, targetFieldsFor(importType))

		// A saved template may carry fields the new file no longer maps;
		// surface them so the user can choose merge or replace at commit.
		droppedFields := []string{}
		if tmpl != nil {
			droppedFields = DiffMappings(tmpl.FieldMapping, suggestion.Mapping)
		}

		actor := userID
		if session := auth.SessionForUser(userID); session != nil {
			actor = session.Email
		}
		logger.Audit(fmt.Sprintf("Import job %s created by %s (%s, %d rows, %d empty rows skipped)",
			job.ID, actor, job.FileName, len(sheet.Rows), sheet.SkippedEmptyRows))

		api.RespondWithPayload(w, true, "", map[string]interface{}{
			"job_id":            job.ID,
			"status":            job.Status,
			"headers":           sheet.Headers,
			"row_count":         len(sheet.Rows),
			"skipped_empty":     sheet.SkippedEmptyRows,
			"suggested_mapping": suggestion.Mapping,
			"match_scores":      suggestion.Scores,
			"dropped_fields":    droppedFields,
		})
	}
}

type commitRequest struct {
	UserID       string            `json:"user_id"`
	JobID        string            `json:"job_id"`
	FieldMapping map[string]string `json:"field_mapping"`
	Resolution   string            `json:"resolution,omitempty"`
}

// Handler: CommitImport confirms the mapping and kicks off the background
// continuation (staging + materialization). The HTTP response does not wait
// for the pipeline; the client polls job status.
func CommitImport(store *Store, runner *PipelineRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req commitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
			return
		}
		if auth.SessionForUser(req.UserID) == nil {
			api.RespondWithError(w, http.StatusUnauthorized, constants.ErrInvalidSession)
			return
		}
		if req.JobID == "" || len(req.FieldMapping) == 0 {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidJSONRequired)
			return
		}

		job, err := store.GetJobForUser(ctx, req.JobID, req.UserID)
		if err != nil {
			respondJobError(w, err)
			return
		}
		if job.Status != StatusPending {
			api.RespondWithError(w, http.StatusConflict, constants.FormatJobStatusConflict(job.Status))
			return
		}

		mapping := req.FieldMapping
		if job.TemplateID != "" {
			tmpl, err := store.GetTemplate(ctx, job.TemplateID, req.UserID)
			if err != nil {
				api.RespondWithError(w, http.StatusBadRequest, constants.ErrTemplateNotFound)
				return
			}
			if dropped := DiffMappings(tmpl.FieldMapping, mapping); len(dropped) > 0 {
				resolved, ok := ResolveMappings(tmpl.FieldMapping, mapping, req.Resolution)
				if !ok {
					// No silent default: nothing is written until the
					// user picks merge or replace.
					api.RespondWithPayload(w, false, constants.ErrMappingConflict, map[string]interface{}{
						"dropped_fields": dropped,
						"resolutions":    []string{ResolutionMerge, ResolutionReplace},
					})
					return
				}
				mapping = resolved
			}
		}

		if err := ValidateRequiredMapped(mapping, requiredFieldsFor(job.ImportType)); err != nil {
			var mErr *MappingError
			if errors.As(err, &mErr) {
				api.RespondWithError(w, http.StatusBadRequest, constants.FormatMissingRequiredField(mErr.Field))
				return
			}
			api.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}

		runner.Launch(job, mapping)
		api.RespondWithPayload(w, true, "", map[string]interface{}{
			"job_id": job.ID,
			"status": StatusProcessing,
		})
	}
}

func respondJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrJobNotFound):
		api.RespondWithError(w, http.StatusNotFound, constants.ErrJobNotFound)
	case errors.Is(err, ErrPermissionDenied):
		api.RespondWithError(w, http.StatusForbidden, constants.ErrJobAccessDenied)
	default:
		api.RespondWithError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
	}
}

// PipelineRunner owns the background continuation of a committed job. Each
// job runs as one goroutine; the backing store is the only shared state and
// the sole arbiter of consistency across concurrent jobs. The active set
// keeps one job from being run and resumed at the same time.
type PipelineRunner struct {
	store        *Store
	objects      ObjectStore
	writer       *StagingWriter
	materializer *Materializer
	loadTimeout  time.Duration

	mu     sync.Mutex
	active map[string]bool
}

func NewPipelineRunner(store *Store, objects ObjectStore) *PipelineRunner {
	return &PipelineRunner{
		store:        store,
		objects:      objects,
		writer:       NewStagingWriter(store),
		materializer: NewMaterializer(store),
		loadTimeout:  config.StagingTimeout,
		active:       make(map[string]bool),
	}
}

func (p *PipelineRunner) begin(jobID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active[jobID] {
		return false
	}
	p.active[jobID] = true
	return true
}

func (p *PipelineRunner) end(jobID string) {
	p.mu.Lock()
	delete(p.active, jobID)
	p.mu.Unlock()
}

// Launch starts the pipeline for a committed job without awaiting it.
func (p *PipelineRunner) Launch(job *ImportJob, mapping map[string]string) {
	if !p.begin(job.ID) {
		return
	}
	go func() {
		defer p.end(job.ID)
		p.Run(context.Background(), job, mapping)
	}()
}

// Resume continues materialization of a job paused at the row cap, picking
// up from the offset persisted on the job row. Returns false when the job
// is already being worked on.
func (p *PipelineRunner) Resume(job *ImportJob) bool {
	if !p.begin(job.ID) {
		return false
	}
	go func() {
		defer p.end(job.ID)
		ctx := context.Background()
		total, err := p.store.CountStagedRows(ctx, job.ID)
		if err != nil {
			api.LogError("job %s: count staged rows: %v", job.ID, err)
			return
		}
		p.finishMaterialization(ctx, job, total)
	}()
	return true
}

func (p *PipelineRunner) fail(ctx context.Context, jobID, msg string) {
	if err := p.store.UpdateJobStatus(ctx, jobID, StatusFailed, msg); err != nil {
		api.LogError("job %s: record failure: %v", jobID, err)
	}
	logger.Audit(fmt.Sprintf("Import job %s failed: %s", jobID, msg))
}

// loadOriginalSheet re-reads the stored original file under the given
// deadline so a slow object store cannot hold a job in processing forever.
// Parsing is not cancellable mid-flight; the deadline is checked again once
// it finishes.
func loadOriginalSheet(ctx context.Context, objects ObjectStore, job *ImportJob, timeout time.Duration) (*SheetData, error) {
	loadCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	data, err := objects.Download(loadCtx, job.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("download original file: %w", err)
	}
	sheet, err := ParseSpreadsheet(data, job.FileType)
	if err != nil {
		return nil, err
	}
	if err := loadCtx.Err(); err != nil {
		return nil, fmt.Errorf("read original file: %w", err)
	}
	return sheet, nil
}

// Run drives the job through processing -> uploaded -> validating and into
// materialization, recording any terminal failure on the job row. No
// automatic retries: a failed job is re-uploaded by the user from the start.
func (p *PipelineRunner) Run(ctx context.Context, job *ImportJob, mapping map[string]string) {
	if err := p.store.UpdateJobStatus(ctx, job.ID, StatusProcessing, ""); err != nil {
		api.LogError("job %s: %v", job.ID, err)
		return
	}

	sheet, err := loadOriginalSheet(ctx, p.objects, job, p.loadTimeout)
	if err != nil {
		p.fail(ctx, job.ID, err.Error())
		return
	}

	rows := BuildStagedRows(mapping, sheet)
	if err := p.writer.Write(ctx, job.ID, job.ImportType, mapping, rows); err != nil {
		p.fail(ctx, job.ID, err.Error())
		return
	}
	if err := p.store.UpdateJobStatus(ctx, job.ID, StatusUploaded, ""); err != nil {
		api.LogError("job %s: %v", job.ID, err)
		return
	}
	_ = p.store.SetJobProgress(ctx, job.ID, 50)

	if err := p.store.UpdateJobStatus(ctx, job.ID, StatusValidating, ""); err != nil {
		api.LogError("job %s: %v", job.ID, err)
		return
	}
	p.finishMaterialization(ctx, job, len(rows))
}

// finishMaterialization runs the materializer from the job's stored offset
// and either completes the job or, when the row cap was hit, leaves it in
// validating with the new offset persisted so a resume call continues from
// the first unprocessed row.
func (p *PipelineRunner) finishMaterialization(ctx context.Context, job *ImportJob, totalRows int) {
	summary, err := p.materializer.Run(ctx, job.ID, job.PortfolioID, job.RowsMaterialized)
	if err != nil {
		p.fail(ctx, job.ID, "materialization: "+err.Error())
		return
	}

	materialized := job.RowsMaterialized + summary.RowsProcessed
	progress := 100
	if totalRows > 0 && materialized < totalRows {
		progress = materialized * 100 / totalRows
	}
	if err := p.store.SetJobMaterialization(ctx, job.ID, progress, materialized); err != nil {
		api.LogError("job %s: record materialized offset: %v", job.ID, err)
	}
	job.RowsMaterialized = materialized

	if summary.Capped {
		logger.Audit(fmt.Sprintf(
			"Import job %s paused at the row cap: %d of %d rows materialized, staged data kept for resume",
			job.ID, materialized, totalRows))
		return
	}

	if err := p.store.UpdateJobStatus(ctx, job.ID, StatusCompleted, rowErrorDigest(summary.RowErrors)); err != nil {
		api.LogError("job %s: %v", job.ID, err)
		return
	}
	logger.Audit(fmt.Sprintf(
		"Import job %s completed: %d processed, %d persons, %d accounts, %d skipped",
		job.ID, summary.RowsProcessed, summary.PersonsCreated, summary.AccountsCreated,
		summary.RowsSkipped))
}

const maxDigestRowErrors = 5

// rowErrorDigest compacts per-row materialization errors into the job's
// error_message column so a completed job still shows what it skipped.
func rowErrorDigest(errs []*MaterializationRowError) string {
	if len(errs) == 0 {
		return ""
	}
	parts := make([]string, 0, maxDigestRowErrors+1)
	for i, re := range errs {
		if i == maxDigestRowErrors {
			parts = append(parts, fmt.Sprintf("and %d more", len(errs)-maxDigestRowErrors))
			break
		}
		parts = append(parts, constants.FormatRowError(re.RowNumber, re.Reason))
	}
	return strings.Join(parts, "; ")
}
