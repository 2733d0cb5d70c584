package imports

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to string }{
		{StatusPending, StatusProcessing},
		{StatusPending, StatusCancelled},
		{StatusProcessing, StatusUploaded},
		{StatusProcessing, StatusFailed},
		{StatusProcessing, StatusCancelled},
		{StatusUploaded, StatusValidating},
		{StatusUploaded, StatusFailed},
		{StatusValidating, StatusCompleted},
		{StatusValidating, StatusFailed},
	}
	for _, tr := range allowed {
		assert.True(t, CanTransition(tr.from, tr.to), "%s -> %s", tr.from, tr.to)
	}

	denied := []struct{ from, to string }{
		{StatusPending, StatusUploaded},
		{StatusPending, StatusCompleted},
		{StatusPending, StatusFailed},
		{StatusUploaded, StatusCancelled},
		{StatusValidating, StatusCancelled},
		{StatusCompleted, StatusProcessing},
		{StatusFailed, StatusPending},
		{StatusCancelled, StatusProcessing},
		{StatusProcessing, StatusPending},
	}
	for _, tr := range denied {
		assert.False(t, CanTransition(tr.from, tr.to), "%s -> %s", tr.from, tr.to)
	}
}

func TestIsTerminalStatus(t *testing.T) {
	for _, s := range []string{StatusCompleted, StatusFailed, StatusCancelled} {
		assert.True(t, IsTerminalStatus(s), s)
	}
	for _, s := range []string{StatusPending, StatusProcessing, StatusUploaded, StatusValidating} {
		assert.False(t, IsTerminalStatus(s), s)
	}
}

type fakeCascadeStore struct {
	accountPersons []string
	refs           map[string]int

	deletedPersons []string
	stagedDeleted  bool
	jobDeleted     bool
	failAccounts   error
}

func (f *fakeCascadeStore) DeleteJobAccounts(ctx context.Context, jobID string) ([]string, error) {
	if f.failAccounts != nil {
		return nil, f.failAccounts
	}
	return f.accountPersons, nil
}

func (f *fakeCascadeStore) CountPersonReferences(ctx context.Context, personIDs []string) (map[string]int, error) {
	return f.refs, nil
}

func (f *fakeCascadeStore) DeletePersons(ctx context.Context, personIDs []string) (int, error) {
	f.deletedPersons = personIDs
	return len(personIDs), nil
}

func (f *fakeCascadeStore) DeleteStagedRows(ctx context.Context, jobID string) error {
	f.stagedDeleted = true
	return nil
}

func (f *fakeCascadeStore) DeleteJob(ctx context.Context, jobID string) error {
	f.jobDeleted = true
	return nil
}

func TestCascadeDeleteJobPreservesReferencedPersons(t *testing.T) {
	// Three accounts over two persons; p1 still has a payment elsewhere
	store := &fakeCascadeStore{
		accountPersons: []string{"p1", "p2", "p1"},
		refs:           map[string]int{"p1": 1, "p2": 0},
	}

	res, err := CascadeDeleteJob(context.Background(), store, "job-1")
	require.NoError(t, err)

	assert.Equal(t, 3, res.AccountsDeleted)
	assert.Equal(t, 1, res.PersonsDeleted)
	assert.Equal(t, 1, res.PersonsPreserved)
	assert.Equal(t, []string{"p2"}, store.deletedPersons)
	assert.True(t, store.stagedDeleted)
	assert.True(t, store.jobDeleted)
}

func TestCascadeDeleteJobAllOrphans(t *testing.T) {
	store := &fakeCascadeStore{
		accountPersons: []string{"p1", "p2"},
		refs:           map[string]int{},
	}

	res, err := CascadeDeleteJob(context.Background(), store, "job-1")
	require.NoError(t, err)

	assert.Equal(t, 2, res.PersonsDeleted)
	assert.Equal(t, 0, res.PersonsPreserved)
	assert.ElementsMatch(t, []string{"p1", "p2"}, store.deletedPersons)
}

func TestCascadeDeleteJobNoAccounts(t *testing.T) {
	store := &fakeCascadeStore{}

	res, err := CascadeDeleteJob(context.Background(), store, "job-1")
	require.NoError(t, err)

	assert.Equal(t, 0, res.AccountsDeleted)
	assert.Equal(t, 0, res.PersonsDeleted)
	assert.Empty(t, store.deletedPersons)
	assert.True(t, store.jobDeleted)
}

func TestCascadeDeleteJobStopsOnError(t *testing.T) {
	store := &fakeCascadeStore{failAccounts: errors.New("db down")}

	_, err := CascadeDeleteJob(context.Background(), store, "job-1")
	require.Error(t, err)
	assert.False(t, store.jobDeleted)
}
