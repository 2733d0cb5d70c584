package imports

import (
	"context"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"DebtPortfolioSaas/internal/config"
)

// Person is a debtor de-duplicated across imports by SSN.
type Person struct {
	ID        string
	SSN       string
	FirstName string
	LastName  string
	DOB       string
	Email     string
	Phone     string
}

// DebtAccount links a Person to the portfolio the debt was imported into.
// ImportJobID is the back-reference that makes an import reversible.
type DebtAccount struct {
	ID              string
	PersonID        string
	PortfolioID     string
	ImportJobID     string
	AccountNumber   string
	OriginalBalance decimal.Decimal
	CurrentBalance  decimal.Decimal
	OriginalCreditor string
}

// MaterializeStore is the slice of the relational store the materializer
// pages staged rows from and writes domain records through.
type MaterializeStore interface {
	FetchStagedRows(ctx context.Context, jobID string, offset, limit int) ([]StagedRow, error)
	FindPersonBySSN(ctx context.Context, ssn string) (string, bool, error)
	CreatePerson(ctx context.Context, p Person) (string, error)
	CreateDebtAccount(ctx context.Context, a DebtAccount) (string, error)
}

// MaterializeSummary aggregates one materializer invocation. Row errors are
// recorded here, never raised.
type MaterializeSummary struct {
	RowsProcessed   int                        `json:"rows_processed"`
	PersonsCreated  int                        `json:"persons_created"`
	AccountsCreated int                        `json:"accounts_created"`
	RowsSkipped     int                        `json:"rows_skipped"`
	Capped          bool                       `json:"capped"`
	RowErrors       []*MaterializationRowError `json:"row_errors,omitempty"`
}

// Materializer turns staged rows into Person and DebtAccount records.
type Materializer struct {
	store    MaterializeStore
	pageSize int
	rowCap   int
}

func NewMaterializer(store MaterializeStore) *Materializer {
	return &Materializer{
		store:    store,
		pageSize: config.MaterializePageSize,
		rowCap:   config.MaterializeRowCap,
	}
}

var nonDigitPattern = regexp.MustCompile(`[^0-9]`)

// normalizeSSN keeps digits only; a valid natural key is exactly 9 digits.
func normalizeSSN(s string) string {
	digits := nonDigitPattern.ReplaceAllString(s, "")
	if len(digits) != 9 {
		return ""
	}
	return digits
}

// parseBalance accepts the formats collection files actually ship:
// "$1,234.56", "1234.56", " 1234 ".
func parseBalance(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// Run pages through the job's staged rows in row order, starting at
// startOffset, and materializes each one. Invalid rows are skipped with the
// error recorded; one bad row never blocks the rest. At most rowCap rows are
// handled per invocation. A capped run keeps its staged data intact, and the
// caller persists startOffset+RowsProcessed so the next invocation picks up
// exactly where this one stopped instead of re-creating the same accounts.
func (m *Materializer) Run(ctx context.Context, jobID, portfolioID string, startOffset int) (*MaterializeSummary, error) {
	summary := &MaterializeSummary{}
	offset := startOffset
	for {
		if summary.RowsProcessed >= m.rowCap {
			summary.Capped = true
			return summary, nil
		}
		limit := m.pageSize
		if remaining := m.rowCap - summary.RowsProcessed; remaining < limit {
			limit = remaining
		}
		page, err := m.store.FetchStagedRows(ctx, jobID, offset, limit)
		if err != nil {
			return summary, err
		}
		if len(page) == 0 {
			return summary, nil
		}
		for _, row := range page {
			summary.RowsProcessed++
			if err := m.materializeRow(ctx, jobID, portfolioID, row, summary); err != nil {
				return summary, err
			}
		}
		offset += len(page)
	}
}

func (m *Materializer) materializeRow(ctx context.Context, jobID, portfolioID string, row StagedRow, summary *MaterializeSummary) error {
	skip := func(reason string) {
		summary.RowsSkipped++
		summary.RowErrors = append(summary.RowErrors, &MaterializationRowError{
			RowNumber: row.RowNumber,
			Reason:    reason,
		})
	}

	data := row.MappedData
	ssn := normalizeSSN(data["ssn"])
	if ssn == "" {
		skip("missing or invalid ssn")
		return nil
	}
	accountNumber := strings.TrimSpace(data["account_number"])
	if accountNumber == "" {
		skip("missing account_number")
		return nil
	}
	originalBalance, ok := parseBalance(data["original_balance"])
	if !ok || !originalBalance.IsPositive() {
		skip("missing or non-positive original_balance")
		return nil
	}

	personID, found, err := m.store.FindPersonBySSN(ctx, ssn)
	if err != nil {
		return err
	}
	if !found {
		firstName := strings.TrimSpace(data["first_name"])
		lastName := strings.TrimSpace(data["last_name"])
		if firstName == "" || lastName == "" {
			skip("new person requires first_name and last_name")
			return nil
		}
		personID, err = m.store.CreatePerson(ctx, Person{
			SSN:       ssn,
			FirstName: firstName,
			LastName:  lastName,
			DOB:       strings.TrimSpace(data["dob"]),
			Email:     strings.TrimSpace(data[emailFieldBase]),
			Phone:     strings.TrimSpace(data[phoneFieldBase]),
		})
		if err != nil {
			// A row-level insert failure stays row-level
			skip("create person: " + err.Error())
			return nil
		}
		summary.PersonsCreated++
	}

	currentBalance, ok := parseBalance(data["current_balance"])
	if !ok {
		currentBalance = originalBalance
	}
	_, err = m.store.CreateDebtAccount(ctx, DebtAccount{
		PersonID:         personID,
		PortfolioID:      portfolioID,
		ImportJobID:      jobID,
		AccountNumber:    accountNumber,
		OriginalBalance:  originalBalance,
		CurrentBalance:   currentBalance,
		OriginalCreditor: strings.TrimSpace(data["original_creditor"]),
	})
	if err != nil {
		skip("create debt account: " + err.Error())
		return nil
	}
	summary.AccountsCreated++
	return nil
}
