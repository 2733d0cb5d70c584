package imports

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMaterializeStore struct {
	rows       []StagedRow
	personsBySSN map[string]string
	persons    []Person
	accounts   []DebtAccount
	fetchCalls [][2]int
	failSSNs   map[string]error
}

func newFakeMaterializeStore(rows []StagedRow) *fakeMaterializeStore {
	return &fakeMaterializeStore{
		rows:         rows,
		personsBySSN: make(map[string]string),
	}
}

func (f *fakeMaterializeStore) FetchStagedRows(ctx context.Context, jobID string, offset, limit int) ([]StagedRow, error) {
	f.fetchCalls = append(f.fetchCalls, [2]int{offset, limit})
	if offset >= len(f.rows) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.rows) {
		end = len(f.rows)
	}
	return f.rows[offset:end], nil
}

func (f *fakeMaterializeStore) FindPersonBySSN(ctx context.Context, ssn string) (string, bool, error) {
	id, ok := f.personsBySSN[ssn]
	return id, ok, nil
}

func (f *fakeMaterializeStore) CreatePerson(ctx context.Context, p Person) (string, error) {
	if err, ok := f.failSSNs[p.SSN]; ok {
		return "", err
	}
	id := fmt.Sprintf("person-%d", len(f.persons)+1)
	p.ID = id
	f.persons = append(f.persons, p)
	f.personsBySSN[p.SSN] = id
	return id, nil
}

func (f *fakeMaterializeStore) CreateDebtAccount(ctx context.Context, a DebtAccount) (string, error) {
	id := fmt.Sprintf("account-%d", len(f.accounts)+1)
	a.ID = id
	f.accounts = append(f.accounts, a)
	return id, nil
}

func accountRow(n int, ssn, acct, balance string) StagedRow {
	return StagedRow{
		RowNumber: n,
		MappedData: map[string]string{
			"ssn":              ssn,
			"account_number":   acct,
			"original_balance": balance,
			"first_name":       "Pat",
			"last_name":        "Doe",
		},
	}
}

func TestMaterializerCreatesPersonsAndAccounts(t *testing.T) {
	store := newFakeMaterializeStore([]StagedRow{
		accountRow(1, "123-45-6789", "ACC-1", "$1,200.50"),
		accountRow(2, "987654321", "ACC-2", "300"),
	})
	m := &Materializer{store: store, pageSize: 100, rowCap: 500}

	summary, err := m.Run(context.Background(), "job-1", "pf-1", 0)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.RowsProcessed)
	assert.Equal(t, 2, summary.PersonsCreated)
	assert.Equal(t, 2, summary.AccountsCreated)
	assert.Equal(t, 0, summary.RowsSkipped)
	assert.False(t, summary.Capped)

	require.Len(t, store.persons, 2)
	assert.Equal(t, "123456789", store.persons[0].SSN)

	require.Len(t, store.accounts, 2)
	assert.Equal(t, "pf-1", store.accounts[0].PortfolioID)
	assert.Equal(t, "job-1", store.accounts[0].ImportJobID)
	assert.True(t, store.accounts[0].OriginalBalance.Equal(decimal.RequireFromString("1200.50")))
	// No current_balance column: falls back to the original balance
	assert.True(t, store.accounts[0].CurrentBalance.Equal(decimal.RequireFromString("1200.50")))
}

func TestMaterializerReusesExistingPerson(t *testing.T) {
	store := newFakeMaterializeStore([]StagedRow{
		accountRow(1, "123456789", "ACC-1", "100"),
		accountRow(2, "123456789", "ACC-2", "200"),
	})
	m := &Materializer{store: store, pageSize: 100, rowCap: 500}

	summary, err := m.Run(context.Background(), "job-1", "pf-1", 0)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.PersonsCreated)
	assert.Equal(t, 2, summary.AccountsCreated)
	require.Len(t, store.accounts, 2)
	assert.Equal(t, store.accounts[0].PersonID, store.accounts[1].PersonID)
}

func TestMaterializerSkipsInvalidRows(t *testing.T) {
	rows := []StagedRow{
		accountRow(1, "12345", "ACC-1", "100"),       // bad ssn
		accountRow(2, "123456789", "", "100"),        // missing account number
		accountRow(3, "223456789", "ACC-3", "-5"),    // non-positive balance
		accountRow(4, "323456789", "ACC-4", "oops"),  // unparseable balance
		accountRow(5, "423456789", "ACC-5", "50.25"), // valid
	}
	noNames := accountRow(6, "523456789", "ACC-6", "10")
	noNames.MappedData["first_name"] = ""
	rows = append(rows, noNames)

	store := newFakeMaterializeStore(rows)
	m := &Materializer{store: store, pageSize: 100, rowCap: 500}

	summary, err := m.Run(context.Background(), "job-1", "pf-1", 0)
	require.NoError(t, err)

	assert.Equal(t, 6, summary.RowsProcessed)
	assert.Equal(t, 1, summary.AccountsCreated)
	assert.Equal(t, 5, summary.RowsSkipped)
	require.Len(t, summary.RowErrors, 5)
	assert.Equal(t, 1, summary.RowErrors[0].RowNumber)
	assert.Contains(t, summary.RowErrors[0].Reason, "ssn")
	assert.Contains(t, summary.RowErrors[4].Reason, "first_name")

	// Skipped rows created nothing
	require.Len(t, store.persons, 1)
	assert.Equal(t, "423456789", store.persons[0].SSN)
}

func TestMaterializerPersonInsertFailureStaysRowLevel(t *testing.T) {
	store := newFakeMaterializeStore([]StagedRow{
		accountRow(1, "123456789", "ACC-1", "100"),
		accountRow(2, "223456789", "ACC-2", "200"),
	})
	store.failSSNs = map[string]error{"123456789": fmt.Errorf("unique violation")}
	m := &Materializer{store: store, pageSize: 100, rowCap: 500}

	summary, err := m.Run(context.Background(), "job-1", "pf-1", 0)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.RowsSkipped)
	assert.Equal(t, 1, summary.AccountsCreated)
}

func TestMaterializerRowCap(t *testing.T) {
	rows := make([]StagedRow, 8)
	for i := range rows {
		rows[i] = accountRow(i+1, fmt.Sprintf("%09d", 100000000+i), fmt.Sprintf("ACC-%d", i+1), "10")
	}
	store := newFakeMaterializeStore(rows)
	m := &Materializer{store: store, pageSize: 2, rowCap: 5}

	summary, err := m.Run(context.Background(), "job-1", "pf-1", 0)
	require.NoError(t, err)

	assert.Equal(t, 5, summary.RowsProcessed)
	assert.True(t, summary.Capped)
	assert.Equal(t, 5, summary.AccountsCreated)

	// The final page is trimmed so the cap is never overshot
	assert.Equal(t, [2]int{4, 1}, store.fetchCalls[len(store.fetchCalls)-1])
}

func TestMaterializerResumesFromOffsetWithoutDuplicates(t *testing.T) {
	rows := make([]StagedRow, 8)
	for i := range rows {
		rows[i] = accountRow(i+1, fmt.Sprintf("%09d", 100000000+i), fmt.Sprintf("ACC-%d", i+1), "10")
	}
	store := newFakeMaterializeStore(rows)
	m := &Materializer{store: store, pageSize: 2, rowCap: 5}

	first, err := m.Run(context.Background(), "job-1", "pf-1", 0)
	require.NoError(t, err)
	require.True(t, first.Capped)
	assert.Equal(t, 5, first.AccountsCreated)

	// The second run starts at the persisted offset, so rows 1-5 are not
	// materialized twice and rows 6-8 are picked up.
	second, err := m.Run(context.Background(), "job-1", "pf-1", first.RowsProcessed)
	require.NoError(t, err)
	assert.False(t, second.Capped)
	assert.Equal(t, 3, second.RowsProcessed)
	assert.Equal(t, 3, second.AccountsCreated)

	require.Len(t, store.accounts, 8)
	seen := make(map[string]bool, len(store.accounts))
	for _, a := range store.accounts {
		assert.False(t, seen[a.AccountNumber], "account %s materialized twice", a.AccountNumber)
		seen[a.AccountNumber] = true
	}
}

func TestNormalizeSSN(t *testing.T) {
	assert.Equal(t, "123456789", normalizeSSN("123-45-6789"))
	assert.Equal(t, "123456789", normalizeSSN(" 123 45 6789 "))
	assert.Equal(t, "", normalizeSSN("12345678"))
	assert.Equal(t, "", normalizeSSN("1234567890"))
	assert.Equal(t, "", normalizeSSN(""))
}

func TestParseBalance(t *testing.T) {
	d, ok := parseBalance("$1,234.56")
	require.True(t, ok)
	assert.True(t, d.Equal(decimal.RequireFromString("1234.56")))

	d, ok = parseBalance(" 1234 ")
	require.True(t, ok)
	assert.True(t, d.Equal(decimal.NewFromInt(1234)))

	_, ok = parseBalance("")
	assert.False(t, ok)
	_, ok = parseBalance("n/a")
	assert.False(t, ok)
}
