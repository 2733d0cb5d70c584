package imports

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DebtPortfolioSaas/api"
)

type fakeUploadStore struct {
	templates map[string]*ImportTemplate
	jobs      []*ImportJob
}

func (f *fakeUploadStore) CreateJob(ctx context.Context, job *ImportJob) error {
	job.ID = fmt.Sprintf("job-%d", len(f.jobs)+1)
	job.Status = StatusPending
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakeUploadStore) GetTemplate(ctx context.Context, templateID, userID string) (*ImportTemplate, error) {
	tmpl, ok := f.templates[templateID]
	if !ok {
		return nil, errTemplateNotFound
	}
	return tmpl, nil
}

type fakeObjectStore struct {
	files   map[string][]byte
	uploads []string
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{files: make(map[string][]byte)}
}

func (f *fakeObjectStore) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	f.uploads = append(f.uploads, key)
	f.files[key] = body
	return key, nil
}

func (f *fakeObjectStore) Download(ctx context.Context, key string) ([]byte, error) {
	b, ok := f.files[key]
	if !ok {
		return nil, fmt.Errorf("no stored object for key %s", key)
	}
	return b, nil
}

func (f *fakeObjectStore) Remove(ctx context.Context, keys []string) error {
	for _, k := range keys {
		delete(f.files, k)
	}
	return nil
}

// slowObjectStore never returns a download until the context expires.
type slowObjectStore struct{}

func (slowObjectStore) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	return key, nil
}

func (slowObjectStore) Download(ctx context.Context, key string) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (slowObjectStore) Remove(ctx context.Context, keys []string) error { return nil }

func multipartUploadRequest(t *testing.T, fields map[string]string, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/imports/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	ctx := api.WithUserID(req.Context(), "user-1")
	ctx = api.WithPortfolioIDs(ctx, []string{"pf-1"})
	return req.WithContext(ctx)
}

func TestUploadCreatesJobAndSuggestsMapping(t *testing.T) {
	store := &fakeUploadStore{}
	objects := newFakeObjectStore()
	handler := UploadImport(store, objects)

	req := multipartUploadRequest(t, map[string]string{
		"import_type":  "accounts",
		"portfolio_id": "pf-1",
	}, "accounts.csv", "Acct#,SSN\nACC-1,123456789\n")
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, store.jobs, 1)
	assert.Equal(t, StatusPending, store.jobs[0].Status)
	assert.Equal(t, "pf-1", store.jobs[0].PortfolioID)
	require.Len(t, objects.uploads, 1)
	assert.Equal(t, store.jobs[0].StorageKey, objects.uploads[0])
}

func TestUploadRejectsUnknownTemplateBeforeCreatingJob(t *testing.T) {
	store := &fakeUploadStore{}
	objects := newFakeObjectStore()
	handler := UploadImport(store, objects)

	req := multipartUploadRequest(t, map[string]string{
		"import_type":  "accounts",
		"portfolio_id": "pf-1",
		"template_id":  "no-such-template",
	}, "accounts.csv", "Acct#,SSN\nACC-1,123456789\n")
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	// A rejected upload must leave nothing behind: no pending job row and
	// no stored object.
	assert.Empty(t, store.jobs)
	assert.Empty(t, objects.uploads)
}

func TestUploadRejectsPortfolioOutsideAccessSet(t *testing.T) {
	store := &fakeUploadStore{}
	objects := newFakeObjectStore()
	handler := UploadImport(store, objects)

	req := multipartUploadRequest(t, map[string]string{
		"import_type":  "accounts",
		"portfolio_id": "pf-other",
	}, "accounts.csv", "Acct#,SSN\nACC-1,123456789\n")
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, store.jobs)
	assert.Empty(t, objects.uploads)
}

func TestLoadOriginalSheetReadsStoredFile(t *testing.T) {
	objects := newFakeObjectStore()
	objects.files["imports/accounts/abc.csv"] = []byte("Acct#,SSN\nACC-1,123456789\n")
	job := &ImportJob{StorageKey: "imports/accounts/abc.csv", FileType: ".csv"}

	sheet, err := loadOriginalSheet(context.Background(), objects, job, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []string{"Acct#", "SSN"}, sheet.Headers)
	require.Len(t, sheet.Rows, 1)
}

func TestLoadOriginalSheetDeadline(t *testing.T) {
	job := &ImportJob{StorageKey: "imports/accounts/abc.csv", FileType: ".csv"}

	_, err := loadOriginalSheet(context.Background(), slowObjectStore{}, job, 50*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
