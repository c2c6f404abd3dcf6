package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"scorebatch/internal/remote"
	"scorebatch/internal/settings"
	"scorebatch/internal/task"
)

// stubEngine answers every submission with an immediately completed job.
type stubEngine struct {
	mu      sync.Mutex
	deleted []string
	batches [][]string
	reports []remote.Report
}

func (e *stubEngine) Submit(_ context.Context, payload io.Reader, filename, _, _ string) (remote.SubmitResult, error) {
	io.Copy(io.Discard, payload)
	return remote.SubmitResult{JobID: "job-" + filename, SubmissionID: "sub-" + filename}, nil
}

func (e *stubEngine) Status(_ context.Context, jobID string) (remote.JobStatus, error) {
	return remote.JobStatus{ID: jobID, State: remote.StateCompleted, ResultURL: "/reports/" + jobID}, nil
}

func (e *stubEngine) ListReports(_ context.Context) ([]remote.Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]remote.Report(nil), e.reports...), nil
}

func (e *stubEngine) Delete(_ context.Context, jobID string) error {
	e.mu.Lock()
	e.deleted = append(e.deleted, jobID)
	e.mu.Unlock()
	return nil
}

func (e *stubEngine) BatchDelete(_ context.Context, jobIDs []string) error {
	e.mu.Lock()
	e.batches = append(e.batches, jobIDs)
	e.mu.Unlock()
	return nil
}

func newTestRouter(t *testing.T, engine *stubEngine) (*gin.Engine, *task.Manager, *settings.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	manager := task.NewManager(task.Options{
		DataDir:      dir,
		Engine:       engine,
		AutoRunDelay: time.Hour,
	})
	t.Cleanup(manager.Stop)

	store := settings.NewStore(filepath.Join(dir, "settings.json"))
	if err := store.Load(); err != nil {
		t.Fatalf("settings store: %v", err)
	}

	router := gin.New()
	NewAPI(manager, store).RegisterRoutes(router)
	return router, manager, store
}

func multipartFiles(t *testing.T, names ...string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for _, name := range names {
		part, err := w.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		part.Write([]byte("audio bytes for " + name))
	}
	w.Close()
	return body, w.FormDataContentType()
}

func doRequest(router *gin.Engine, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAddFilesQueuesTasks(t *testing.T) {
	router, manager, _ := newTestRouter(t, &stubEngine{})

	body, ct := multipartFiles(t, "reading.wav", "reading.wav")
	rec := doRequest(router, http.MethodPost, "/api/v1/queue/files", body, ct)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Tasks []struct {
			ID     string `json:"id"`
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"tasks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(resp.Tasks))
	}
	if resp.Tasks[0].Name != "reading.wav" || resp.Tasks[1].Name != "reading_01.wav" {
		t.Fatalf("names = %q, %q", resp.Tasks[0].Name, resp.Tasks[1].Name)
	}
	for _, tk := range resp.Tasks {
		if tk.Status != "idle" {
			t.Fatalf("status = %q, want idle", tk.Status)
		}
	}
	if got := len(manager.Snapshot()); got != 2 {
		t.Fatalf("queue length = %d, want 2", got)
	}
}

func TestAddFilesRejectsEmptyBatch(t *testing.T) {
	router, _, _ := newTestRouter(t, &stubEngine{})

	body, ct := multipartFiles(t)
	rec := doRequest(router, http.MethodPost, "/api/v1/queue/files", body, ct)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestListQueue(t *testing.T) {
	router, _, _ := newTestRouter(t, &stubEngine{})

	body, ct := multipartFiles(t, "a.wav", "b.wav")
	doRequest(router, http.MethodPost, "/api/v1/queue/files", body, ct)

	rec := doRequest(router, http.MethodGet, "/api/v1/queue", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Tasks []struct {
			Name string `json:"name"`
		} `json:"tasks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Tasks) != 2 || resp.Tasks[0].Name != "a.wav" || resp.Tasks[1].Name != "b.wav" {
		t.Fatalf("unexpected listing: %+v", resp.Tasks)
	}
}

func TestRemoveTask(t *testing.T) {
	router, manager, _ := newTestRouter(t, &stubEngine{})

	body, ct := multipartFiles(t, "a.wav")
	doRequest(router, http.MethodPost, "/api/v1/queue/files", body, ct)
	id := manager.Snapshot()[0].ID

	rec := doRequest(router, http.MethodDelete, "/api/v1/queue/"+id, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := len(manager.Snapshot()); got != 0 {
		t.Fatalf("queue length = %d, want 0", got)
	}
}

func TestRemoveTaskNotFound(t *testing.T) {
	router, _, _ := newTestRouter(t, &stubEngine{})

	rec := doRequest(router, http.MethodDelete, "/api/v1/queue/nope", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestClearQueue(t *testing.T) {
	router, manager, _ := newTestRouter(t, &stubEngine{})

	body, ct := multipartFiles(t, "a.wav", "b.wav", "c.wav")
	doRequest(router, http.MethodPost, "/api/v1/queue/files", body, ct)

	rec := doRequest(router, http.MethodDelete, "/api/v1/queue", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Removed int `json:"removed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Removed != 3 {
		t.Fatalf("removed = %d, want 3", resp.Removed)
	}
	if got := len(manager.Snapshot()); got != 0 {
		t.Fatalf("queue length = %d, want 0", got)
	}
}

func TestRunNowAccepted(t *testing.T) {
	router, manager, _ := newTestRouter(t, &stubEngine{})

	body, ct := multipartFiles(t, "a.wav")
	doRequest(router, http.MethodPost, "/api/v1/queue/files", body, ct)

	rec := doRequest(router, http.MethodPost, "/api/v1/queue/run", nil, "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		snap := manager.Snapshot()
		if len(snap) == 1 && snap[0].Status == task.StatusDone {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("task never completed: %+v", snap)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHistory(t *testing.T) {
	engine := &stubEngine{reports: []remote.Report{
		{ID: "job-1", URL: "/reports/job-1", Name: "old.wav", Timestamp: 1700000000},
	}}
	router, _, _ := newTestRouter(t, engine)

	rec := doRequest(router, http.MethodGet, "/api/v1/history", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "old.wav") {
		t.Fatalf("history missing report: %s", rec.Body.String())
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	router, _, store := newTestRouter(t, &stubEngine{})

	rec := doRequest(router, http.MethodGet, "/api/v1/settings", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	update := `{"reference_text":"the quick brown fox","max_concurrent_uploads":5}`
	rec = doRequest(router, http.MethodPut, "/api/v1/settings", strings.NewReader(update), "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	got := store.Get()
	if got.ReferenceText != "the quick brown fox" || got.MaxConcurrentUploads != 5 {
		t.Fatalf("settings not applied: %+v", got)
	}
}

func TestSettingsUpdateNormalizesConcurrency(t *testing.T) {
	router, _, store := newTestRouter(t, &stubEngine{})

	update := `{"reference_text":"","max_concurrent_uploads":0}`
	rec := doRequest(router, http.MethodPut, "/api/v1/settings", strings.NewReader(update), "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := store.Get().MaxConcurrentUploads; got != settings.DefaultMaxConcurrentUploads {
		t.Fatalf("concurrency = %d, want %d", got, settings.DefaultMaxConcurrentUploads)
	}
}
