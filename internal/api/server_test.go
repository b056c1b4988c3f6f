package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sitedoc/internal/config"
	"sitedoc/internal/job"
	"sitedoc/pkg/types"
)

type fakeRunner struct {
	run func(ctx context.Context, j *job.Job) (*types.ConversionResult, error)
}

func (f *fakeRunner) Run(ctx context.Context, j *job.Job) (*types.ConversionResult, error) {
	if f.run != nil {
		return f.run(ctx, j)
	}
	return &types.ConversionResult{
		RootURL:   j.URL(),
		SaveMode:  types.SaveModeCombined,
		Document:  "# Done",
		Processed: 1,
		Total:     1,
	}, nil
}

func newTestServer(t *testing.T, runner job.Runner) (*Server, *job.Manager) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager := job.NewManager(runner, job.NewMemoryStore(), 2, context.Background(), logger)
	return NewServer(manager, config.Default(), logger), manager
}

func TestServerRoutes(t *testing.T) {
	server, _ := newTestServer(t, &fakeRunner{})

	assertRoute(t, server, http.MethodGet, "/health", http.StatusOK, "application/json")
	assertRoute(t, server, http.MethodGet, "/openapi.yaml", http.StatusOK, "application/yaml")
	assertRoute(t, server, http.MethodGet, "/docs", http.StatusOK, "text/html; charset=utf-8")
	assertRoute(t, server, http.MethodGet, "/api/jobs", http.StatusOK, "application/json")
}

func TestDocsPageLoadsSchema(t *testing.T) {
	server, _ := newTestServer(t, &fakeRunner{})
	req := httptest.NewRequest(http.MethodGet, "/docs", nil)
	rr := httptest.NewRecorder()
	server.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "/openapi.yaml") {
		t.Fatal("docs page does not reference the schema")
	}
}

func TestCreateJob(t *testing.T) {
	server, manager := newTestServer(t, &fakeRunner{})

	body := `{"url": "https://example.com/", "options": {"max_pages": 5, "save_mode": "combined"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(body))
	rr := httptest.NewRecorder()
	server.ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var snap job.Snapshot
	if err := json.Unmarshal(rr.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if snap.ID == "" {
		t.Fatal("missing job id")
	}
	if snap.URL != "https://example.com" {
		t.Fatalf("url = %q, want normalized", snap.URL)
	}
	if snap.Options.MaxPages != 5 {
		t.Fatalf("max pages = %d, want request override", snap.Options.MaxPages)
	}
	if snap.Options.MaxDepth != 1 {
		t.Fatalf("max depth = %d, want service default", snap.Options.MaxDepth)
	}

	waitJobDone(t, manager, snap.ID)
}

func TestCreateJobValidation(t *testing.T) {
	server, _ := newTestServer(t, &fakeRunner{})

	for name, body := range map[string]string{
		"not json":    "{",
		"missing url": `{"options": {}}`,
		"bad url":     `{"url": "   "}`,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(body))
			rr := httptest.NewRecorder()
			server.ServeHTTP(rr, req)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rr.Code)
			}
		})
	}
}

func TestGetJobDetail(t *testing.T) {
	server, manager := newTestServer(t, &fakeRunner{})

	j, err := manager.Submit(job.Request{URL: "https://example.com"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitJobDone(t, manager, j.ID())

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+j.ID(), nil)
	rr := httptest.NewRecorder()
	server.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var detail JobDetail
	if err := json.Unmarshal(rr.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if detail.Job.Status != types.StatusCompleted {
		t.Fatalf("status = %q", detail.Job.Status)
	}
	if detail.Result == nil || detail.Result.Document != "# Done" {
		t.Fatalf("result = %+v", detail.Result)
	}
}

func TestGetJobNotFound(t *testing.T) {
	server, _ := newTestServer(t, &fakeRunner{})
	req := httptest.NewRequest(http.MethodGet, "/api/jobs/nope", nil)
	rr := httptest.NewRecorder()
	server.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestCancelJob(t *testing.T) {
	release := make(chan struct{})
	runner := &fakeRunner{run: func(ctx context.Context, j *job.Job) (*types.ConversionResult, error) {
		<-release
		return &types.ConversionResult{Partial: j.CancelRequested()}, nil
	}}
	server, manager := newTestServer(t, runner)

	j, err := manager.Submit(job.Request{URL: "https://example.com"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/"+j.ID()+"/cancel", nil)
	rr := httptest.NewRecorder()
	server.ServeHTTP(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	close(release)
	waitJobDone(t, manager, j.ID())

	if result := j.Result(); result == nil || !result.Partial {
		t.Fatalf("runner did not observe the cancel: %+v", result)
	}

	// Cancelling a finished job conflicts.
	rr = httptest.NewRecorder()
	server.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/jobs/"+j.ID()+"/cancel", nil))
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rr.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	server, _ := newTestServer(t, &fakeRunner{})
	cases := []struct {
		method string
		path   string
	}{
		{http.MethodDelete, "/api/jobs"},
		{http.MethodPost, "/health"},
		{http.MethodPut, "/api/jobs/some-id"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		rr := httptest.NewRecorder()
		server.ServeHTTP(rr, req)
		if rr.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s %s: status = %d, want 405", tc.method, tc.path, rr.Code)
		}
	}
}

func TestMergeOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Convert.IncludeScreenshot = true
	base := cfg.DefaultOptions()
	no := false
	merged := mergeOptions(base, types.ConversionOptions{
		MaxPages:          3,
		IncludeImages:     &no,
		IncludeScreenshot: &no,
		SaveMode:          types.SaveModeSeparate,
		Title:             "  My Docs  ",
	})
	if merged.MaxPages != 3 {
		t.Fatalf("max pages = %d", merged.MaxPages)
	}
	if merged.MaxDepth != base.MaxDepth {
		t.Fatalf("max depth = %d, want base default", merged.MaxDepth)
	}
	if merged.IncludeImages == nil || *merged.IncludeImages {
		t.Fatal("include images override lost")
	}
	if merged.IncludeScreenshot == nil || *merged.IncludeScreenshot {
		t.Fatal("clients must be able to turn a default-on screenshot off")
	}
	if merged.SaveMode != types.SaveModeSeparate {
		t.Fatalf("save mode = %q", merged.SaveMode)
	}
	if merged.Title != "My Docs" {
		t.Fatalf("title = %q", merged.Title)
	}
}

func waitJobDone(t *testing.T, manager *job.Manager, id string) {
	t.Helper()
	j, ok := manager.Get(id)
	if !ok {
		t.Fatalf("job %s not registered", id)
	}
	events, cancel := j.Subscribe()
	defer cancel()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case evt, open := <-events:
			if !open || evt.Status.Terminal() {
				return
			}
		case <-deadline:
			t.Fatalf("job %s did not finish", id)
		}
	}
}

func assertRoute(t *testing.T, h http.Handler, method, path string, wantStatus int, wantContentType string) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != wantStatus {
		t.Fatalf("%s %s: expected status %d, got %d (body=%s)", method, path, wantStatus, rr.Code, rr.Body.String())
	}
	if wantContentType != "" {
		if got := rr.Header().Get("Content-Type"); got != wantContentType {
			t.Fatalf("%s %s: expected content-type %s, got %s", method, path, wantContentType, got)
		}
	}
	if rr.Body.Len() == 0 {
		t.Fatalf("%s %s: expected non-empty body", method, path)
	}
}
