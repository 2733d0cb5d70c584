package imports

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"DebtPortfolioSaas/api"
	"DebtPortfolioSaas/api/auth"
	"DebtPortfolioSaas/api/constants"
	"DebtPortfolioSaas/api/utils"
	"DebtPortfolioSaas/internal/logger"
)

// Handler: ListJobs returns the session user's import jobs, newest first
func ListJobsHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if auth.SessionForUser(userID) == nil {
			api.RespondWithError(w, http.StatusUnauthorized, constants.ErrInvalidSession)
			return
		}
		params, err := utils.ExtractPagination(r)
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		jobs, total, err := store.ListJobs(r.Context(), userID, params.Limit, params.Offset)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
			return
		}
		params.SetPaginationStats(total)
		api.RespondWithPayload(w, true, "", map[string]interface{}{
			"jobs":       jobs,
			"pagination": params,
		})
	}
}

// Handler: GetJob returns one job for status polling
func GetJobHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if auth.SessionForUser(userID) == nil {
			api.RespondWithError(w, http.StatusUnauthorized, constants.ErrInvalidSession)
			return
		}
		job, err := store.GetJobForUser(r.Context(), mux.Vars(r)["id"], userID)
		if err != nil {
			respondJobError(w, err)
			return
		}
		api.RespondWithPayload(w, true, "", job)
	}
}

// Handler: CancelJob cancels a job still in pending or processing
func CancelJobHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if auth.SessionForUser(userID) == nil {
			api.RespondWithError(w, http.StatusUnauthorized, constants.ErrInvalidSession)
			return
		}
		jobID := mux.Vars(r)["id"]
		job, err := store.GetJobForUser(r.Context(), jobID, userID)
		if err != nil {
			respondJobError(w, err)
			return
		}
		if !CanTransition(job.Status, StatusCancelled) {
			api.RespondWithError(w, http.StatusConflict, constants.FormatJobStatusConflict(job.Status))
			return
		}
		if err := store.UpdateJobStatus(r.Context(), jobID, StatusCancelled, ""); err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, constants.ErrDB+": "+err.Error())
			return
		}
		logger.Audit(fmt.Sprintf("Import job %s cancelled by user %s", jobID, userID))
		api.RespondWithResult(w, true, "")
	}
}

// Handler: ResumeJob continues materializing a job that paused at the row
// cap. Only a job sitting in validating with rows left to process can be
// resumed; anything else is a conflict.
func ResumeJobHandler(store *Store, runner *PipelineRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if auth.SessionForUser(userID) == nil {
			api.RespondWithError(w, http.StatusUnauthorized, constants.ErrInvalidSession)
			return
		}
		job, err := store.GetJobForUser(r.Context(), mux.Vars(r)["id"], userID)
		if err != nil {
			respondJobError(w, err)
			return
		}
		if job.Status != StatusValidating {
			api.RespondWithError(w, http.StatusConflict, constants.FormatJobStatusConflict(job.Status))
			return
		}
		if !runner.Resume(job) {
			api.RespondWithError(w, http.StatusConflict, "Import job is already being processed")
			return
		}
		logger.Audit(fmt.Sprintf("Import job %s resumed by user %s from row %d",
			job.ID, userID, job.RowsMaterialized+1))
		api.RespondWithPayload(w, true, "", map[string]interface{}{
			"job_id":            job.ID,
			"status":            job.Status,
			"rows_materialized": job.RowsMaterialized,
		})
	}
}

// Handler: DeleteJob removes a job and cascades to its derived records.
// Persons still referenced by other debt accounts or by payments survive.
func DeleteJobHandler(store *Store, objects ObjectStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := r.URL.Query().Get("user_id")
		if auth.SessionForUser(userID) == nil {
			api.RespondWithError(w, http.StatusUnauthorized, constants.ErrInvalidSession)
			return
		}
		jobID := mux.Vars(r)["id"]
		job, err := store.GetJobForUser(ctx, jobID, userID)
		if err != nil {
			respondJobError(w, err)
			return
		}
		res, err := CascadeDeleteJob(ctx, store, jobID)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, "Failed to delete job: "+err.Error())
			return
		}
		if job.StorageKey != "" {
			if err := objects.Remove(ctx, []string{job.StorageKey}); err != nil {
				// The job row is already gone; losing the orphan object is
				// recoverable by key convention, so log and move on.
				api.LogError("job %s: remove stored file: %v", jobID, err)
			}
		}
		logger.Audit(fmt.Sprintf("Import job %s deleted by %s: %d accounts, %d persons removed, %d persons preserved",
			jobID, userID, res.AccountsDeleted, res.PersonsDeleted, res.PersonsPreserved))
		api.RespondWithPayload(w, true, "", res)
	}
}
