package imports

import (
	"context"
	"time"
)

// ImportJob lifecycle statuses. A job only moves forward; cancellation is
// the one status reachable from more than one prior state.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusUploaded   = "uploaded"
	StatusValidating = "validating"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

var validTransitions = map[string][]string{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusUploaded, StatusFailed, StatusCancelled},
	StatusUploaded:   {StatusValidating, StatusFailed},
	StatusValidating: {StatusCompleted, StatusFailed},
}

// CanTransition reports whether the lifecycle allows moving from one status
// to another. Terminal statuses allow nothing.
func CanTransition(from, to string) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether a job can never change status again.
func IsTerminalStatus(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// ImportJob is one user-initiated file upload and its pipeline state.
type ImportJob struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	FileName     string    `json:"file_name"`
	FileSize     int64     `json:"file_size"`
	FileType     string    `json:"file_type"`
	ImportType   string    `json:"import_type"`
	PortfolioID  string    `json:"portfolio_id"`
	TemplateID   string    `json:"template_id,omitempty"`
	Status       string    `json:"status"`
	Progress     int       `json:"progress"`
	// RowsMaterialized is how far materialization got, persisted so a job
	// paused at the row cap resumes from this offset instead of row one.
	RowsMaterialized int       `json:"rows_materialized"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	StorageKey       string    `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// JobCascadeStore is the slice of the relational store job deletion needs.
// The primitives stay dumb so the orphan rule lives here, where it is
// testable: a Person survives as long as any remaining debt account or
// payment record still points at them.
type JobCascadeStore interface {
	DeleteJobAccounts(ctx context.Context, jobID string) ([]string, error)
	CountPersonReferences(ctx context.Context, personIDs []string) (map[string]int, error)
	DeletePersons(ctx context.Context, personIDs []string) (int, error)
	DeleteStagedRows(ctx context.Context, jobID string) error
	DeleteJob(ctx context.Context, jobID string) error
}

// CascadeResult reports what a job deletion removed and what it spared.
type CascadeResult struct {
	AccountsDeleted  int `json:"accounts_deleted"`
	PersonsDeleted   int `json:"persons_deleted"`
	PersonsPreserved int `json:"persons_preserved"`
}

// CascadeDeleteJob removes a job and everything derived from it: the job's
// debt accounts, then any Person those accounts referenced who is no longer
// referenced by any other account or by a payment, then the staged rows and
// the job itself.
func CascadeDeleteJob(ctx context.Context, store JobCascadeStore, jobID string) (*CascadeResult, error) {
	personIDs, err := store.DeleteJobAccounts(ctx, jobID)
	if err != nil {
		return nil, err
	}
	res := &CascadeResult{AccountsDeleted: len(personIDs)}

	unique := make([]string, 0, len(personIDs))
	seen := make(map[string]bool, len(personIDs))
	for _, id := range personIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}

	if len(unique) > 0 {
		refs, err := store.CountPersonReferences(ctx, unique)
		if err != nil {
			return nil, err
		}
		orphans := make([]string, 0, len(unique))
		for _, id := range unique {
			if refs[id] == 0 {
				orphans = append(orphans, id)
			} else {
				res.PersonsPreserved++
			}
		}
		if len(orphans) > 0 {
			deleted, err := store.DeletePersons(ctx, orphans)
			if err != nil {
				return nil, err
			}
			res.PersonsDeleted = deleted
		}
	}

	if err := store.DeleteStagedRows(ctx, jobID); err != nil {
		return nil, err
	}
	if err := store.DeleteJob(ctx, jobID); err != nil {
		return nil, err
	}
	return res, nil
}
