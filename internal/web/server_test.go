package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/nao1215/csvanon/internal/anonymizer"
	"github.com/nao1215/csvanon/internal/config"
	"github.com/nao1215/csvanon/internal/database"
	"github.com/nao1215/csvanon/internal/log"
	"github.com/nao1215/csvanon/internal/metrics"
	"github.com/nao1215/csvanon/internal/model"
	"github.com/nao1215/csvanon/internal/pipeline"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// testConfig returns a configuration with private temp and artifact directories.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.NewConfig()
	cfg.TempDir = t.TempDir()
	cfg.ArtifactsDir = t.TempDir()
	return cfg
}

// fakeFactory returns a factory whose client writes both artifacts, or
// fails with message when it is not empty.
func fakeFactory(message string) anonymizer.Factory {
	return func(_ context.Context, settings anonymizer.Settings) (anonymizer.Client, error) {
		return anonymizer.ClientFunc(func(_ context.Context, ds anonymizer.Dataset) anonymizer.Result {
			if message != "" {
				return anonymizer.Failure(message, false)
			}
			pair := model.NewArtifactPair(settings.ArtifactsDir, ds.Name)
			if err := os.WriteFile(pair.SyntheticData, []byte("name\nBob\n"), 0600); err != nil {
				return anonymizer.Failure(err.Error(), false)
			}
			if err := os.WriteFile(pair.Report, []byte("<html>report</html>"), 0600); err != nil {
				return anonymizer.Failure(err.Error(), false)
			}
			return anonymizer.Success()
		}), nil
	}
}

// newTestServer creates a server backed by a real flow and a fake anonymizer.
func newTestServer(t *testing.T, cfg *config.Config, factory anonymizer.Factory, opts ...Option) *Server {
	t.Helper()

	flow := pipeline.NewFlow(cfg, factory, pipeline.WithFlowLogger(log.Discard()))
	opts = append([]Option{WithLogger(log.Discard()), WithVersion("v0.0.1")}, opts...)
	s, err := NewServer(cfg, flow, opts...)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return s
}

// multipartBody builds a request body with the file in the "file" field.
func multipartBody(t *testing.T, name string, content []byte) (*bytes.Buffer, string) {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("failed to write part: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}
	return &body, w.FormDataContentType()
}

// upload posts a file to path and returns the recorded response.
func upload(t *testing.T, s *Server, path, name string, content []byte) *httptest.ResponseRecorder {
	t.Helper()

	body, contentType := multipartBody(t, name, content)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

// get performs a GET request and returns the recorded response.
func get(s *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestIndex(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, testConfig(t), fakeFactory(""))
	rec := get(s, "/")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"Data Anonymization with GDPR Helpers",
		"Please upload a CSV file to start the anonymization process.",
		`name="file"`,
		`accept=".csv"`,
		"v0.0.1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected page to contain %q", want)
		}
	}
}

func TestUpload(t *testing.T) {
	t.Parallel()

	t.Run("successful upload offers downloads", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig(t)
		s := newTestServer(t, cfg, fakeFactory(""))
		rec := upload(t, s, "/upload", "people.csv", []byte("name,email\nAlice,alice@example.com\n"))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		body := rec.Body.String()
		for _, want := range []string{
			"You uploaded: people.csv",
			"Sample data:",
			"Alice,alice@example.com",
			"Anonymization process complete!",
			"Download links:",
			"/artifacts/people-synthetic_data.csv",
			"/artifacts/people-anonymization_report.html",
		} {
			if !strings.Contains(body, want) {
				t.Errorf("expected page to contain %q", want)
			}
		}

		entries, err := os.ReadDir(cfg.TempDir)
		if err != nil {
			t.Fatalf("failed to read temp dir: %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("expected temp dir to be empty, found %d entries", len(entries))
		}
	})

	t.Run("non csv file is rejected", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, testConfig(t), fakeFactory(""))
		rec := upload(t, s, "/upload", "people.txt", []byte("a,b\n"))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
		if !strings.Contains(rec.Body.String(), "Error: Please upload a CSV file.") {
			t.Error("expected validation message")
		}
		if strings.Contains(rec.Body.String(), "Download links:") {
			t.Error("expected no download links")
		}
	})

	t.Run("anonymization failure shows library message", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, testConfig(t), fakeFactory("quota exceeded"))
		rec := upload(t, s, "/upload", "people.csv", []byte("a,b\n"))

		if rec.Code != http.StatusBadGateway {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadGateway)
		}
		if !strings.Contains(rec.Body.String(), "An error occurred during anonymization: quota exceeded") {
			t.Error("expected anonymization message")
		}
	})

	t.Run("missing library is an integration error", func(t *testing.T) {
		t.Parallel()

		factory := func(context.Context, anonymizer.Settings) (anonymizer.Client, error) {
			return nil, anonymizer.ErrLibraryUnavailable
		}
		s := newTestServer(t, testConfig(t), factory)
		rec := upload(t, s, "/upload", "people.csv", []byte("a,b\n"))

		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
		}
		if !strings.Contains(rec.Body.String(), "library not found. Please install it.") {
			t.Error("expected integration message")
		}
	})

	t.Run("invalid utf-8 is a decode error", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, testConfig(t), fakeFactory(""))
		rec := upload(t, s, "/upload", "people.csv", []byte("caf\xe9,1\n"))

		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
		}
		if !strings.Contains(rec.Body.String(), "could not be previewed as UTF-8 text") {
			t.Error("expected decode message")
		}
	})

	t.Run("missing file field", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, testConfig(t), fakeFactory(""))
		req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(""))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
		if !strings.Contains(rec.Body.String(), "no file provided") {
			t.Error("expected missing file message")
		}
	})

	t.Run("oversized upload", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig(t)
		cfg.MaxUploadSize = 16
		s := newTestServer(t, cfg, fakeFactory(""))
		rec := upload(t, s, "/upload", "people.csv", bytes.Repeat([]byte("a"), multipartOverhead+64))

		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusRequestEntityTooLarge)
		}
	})
}

func TestAPIAnonymize(t *testing.T) {
	t.Parallel()

	t.Run("returns run with downloads", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, testConfig(t), fakeFactory(""))
		rec := upload(t, s, "/api/v1/anonymize", "people.csv", []byte("a,b\n1,2\n"))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
		}

		var got struct {
			FileName  string            `json:"file_name"`
			State     string            `json:"state"`
			Preview   string            `json:"preview"`
			Downloads map[string]string `json:"downloads"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if got.FileName != "people.csv" || got.State != "done" || got.Preview != "a,b\n1,2\n" {
			t.Errorf("unexpected run %+v", got)
		}
		if got.Downloads["report"] != "/artifacts/people-anonymization_report.html" {
			t.Errorf("unexpected downloads %v", got.Downloads)
		}
	})

	t.Run("returns failed run", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, testConfig(t), fakeFactory(""))
		rec := upload(t, s, "/api/v1/anonymize", "people.xlsx", []byte("a,b\n"))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}

		var got map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if got["error_kind"] != "validation" || got["error"] != "Error: Please upload a CSV file." {
			t.Errorf("unexpected run %v", got)
		}
		if _, ok := got["downloads"]; ok {
			t.Error("expected no downloads")
		}
	})
}

func TestArtifact(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	if err := os.WriteFile(filepath.Join(cfg.ArtifactsDir, "people-synthetic_data.csv"), []byte("name\nBob\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfg.ArtifactsDir, "people-anonymization_report.html"), []byte("<html></html>"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfg.ArtifactsDir, "secret.txt"), []byte("secret"), 0600); err != nil {
		t.Fatal(err)
	}

	collector := metrics.NewCollector(log.Discard(), "")
	s := newTestServer(t, cfg, fakeFactory(""), WithMetrics(collector))

	tests := []struct {
		name        string
		path        string
		wantStatus  int
		wantBody    string
		wantAttach  bool
		wantNoMatch bool
	}{
		{name: "download synthetic data", path: "/artifacts/people-synthetic_data.csv", wantStatus: http.StatusOK, wantBody: "name\nBob\n", wantAttach: true},
		{name: "view report inline", path: "/artifacts/people-anonymization_report.html?inline=1", wantStatus: http.StatusOK, wantBody: "<html></html>"},
		{name: "unknown artifact", path: "/artifacts/other-synthetic_data.csv", wantStatus: http.StatusNotFound},
		{name: "non artifact file", path: "/artifacts/secret.txt", wantStatus: http.StatusNotFound},
		{name: "suffix only", path: "/artifacts/-synthetic_data.csv", wantStatus: http.StatusNotFound},
		{name: "encoded traversal", path: "/artifacts/..%2Fpeople-synthetic_data.csv", wantStatus: http.StatusNotFound},
		{name: "hidden file", path: "/artifacts/.people-synthetic_data.csv", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := get(s, tt.path)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
			attached := strings.HasPrefix(rec.Header().Get("Content-Disposition"), "attachment")
			if rec.Code == http.StatusOK && attached != tt.wantAttach {
				t.Errorf("attachment = %v, want %v", attached, tt.wantAttach)
			}
		})
	}
}

func TestArtifactKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		wantKind string
		wantOK   bool
	}{
		{name: "data-synthetic_data.csv", wantKind: "synthetic_data", wantOK: true},
		{name: "data-anonymization_report.html", wantKind: "report", wantOK: true},
		{name: "data.csv", wantOK: false},
		{name: "", wantOK: false},
		{name: "../data-synthetic_data.csv", wantOK: false},
		{name: `..\data-synthetic_data.csv`, wantOK: false},
		{name: "-anonymization_report.html", wantOK: false},
	}

	for _, tt := range tests {
		kind, ok := artifactKind(tt.name)
		if ok != tt.wantOK || kind != tt.wantKind {
			t.Errorf("artifactKind(%q) = (%q, %v), want (%q, %v)", tt.name, kind, ok, tt.wantKind, tt.wantOK)
		}
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, testConfig(t), fakeFactory(""))
	rec := get(s, "/healthz")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var got map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got["status"] != "ok" || got["version"] != "v0.0.1" {
		t.Errorf("unexpected body %v", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("disabled without collector", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, testConfig(t), fakeFactory(""))
		if rec := get(s, "/metrics"); rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
		}
	})

	t.Run("counts runs", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig(t)
		collector := metrics.NewCollector(log.Discard(), "")
		flow := pipeline.NewFlow(cfg, fakeFactory(""),
			pipeline.WithFlowLogger(log.Discard()),
			pipeline.WithObserver(collector),
		)
		s, err := NewServer(cfg, flow, WithLogger(log.Discard()), WithMetrics(collector))
		if err != nil {
			t.Fatalf("NewServer() error = %v", err)
		}

		upload(t, s, "/upload", "people.csv", []byte("a,b\n"))
		upload(t, s, "/upload", "people.txt", []byte("a,b\n"))

		rec := get(s, "/metrics")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		body := rec.Body.String()
		for _, want := range []string{
			`csvanon_runs_total{outcome="succeeded"} 1`,
			`csvanon_runs_total{outcome="validation"} 1`,
			"csvanon_runs_in_flight 0",
		} {
			if !strings.Contains(body, want) {
				t.Errorf("expected metrics to contain %q", want)
			}
		}
	})
}

// fakeHistory is an in-memory HistoryStore.
type fakeHistory struct {
	runs []*model.Run
	err  error
}

func (h *fakeHistory) ListRuns(_ context.Context, limit int) ([]*model.Run, error) {
	if h.err != nil {
		return nil, h.err
	}
	if limit < len(h.runs) {
		return h.runs[:limit], nil
	}
	return h.runs, nil
}

func (h *fakeHistory) GetRun(_ context.Context, id string) (*model.Run, error) {
	for _, r := range h.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, database.ErrRunNotFound
}

func TestRuns(t *testing.T) {
	t.Parallel()

	first := model.NewRun(model.NewUploadedFile("a.csv", nil))
	second := model.NewRun(model.NewUploadedFile("b.csv", nil))
	history := &fakeHistory{runs: []*model.Run{first, second}}

	t.Run("disabled without history", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, testConfig(t), fakeFactory(""))
		for _, path := range []string{"/runs", "/runs/" + first.ID} {
			rec := get(s, path)
			if rec.Code != http.StatusNotFound {
				t.Errorf("%s: status = %d, want %d", path, rec.Code, http.StatusNotFound)
			}
			if !strings.Contains(rec.Body.String(), "run history is disabled") {
				t.Errorf("%s: expected disabled message", path)
			}
		}
	})

	t.Run("lists runs with limit", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, testConfig(t), fakeFactory(""), WithHistory(history))
		rec := get(s, "/runs?limit=1")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}

		var got struct {
			Runs []struct {
				ID string `json:"id"`
			} `json:"runs"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(got.Runs) != 1 || got.Runs[0].ID != first.ID {
			t.Errorf("unexpected runs %+v", got.Runs)
		}
	})

	t.Run("rejects invalid limit", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, testConfig(t), fakeFactory(""), WithHistory(history))
		for _, limit := range []string{"0", "-1", "abc"} {
			if rec := get(s, "/runs?limit="+limit); rec.Code != http.StatusBadRequest {
				t.Errorf("limit %q: status = %d, want %d", limit, rec.Code, http.StatusBadRequest)
			}
		}
	})

	t.Run("store failure", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, testConfig(t), fakeFactory(""), WithHistory(&fakeHistory{err: errors.New("disk full")}))
		if rec := get(s, "/runs"); rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
		}
	})

	t.Run("gets one run", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, testConfig(t), fakeFactory(""), WithHistory(history))
		rec := get(s, "/runs/"+second.ID)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		if !strings.Contains(rec.Body.String(), `"file_name":"b.csv"`) {
			t.Errorf("unexpected body %s", rec.Body.String())
		}

		if strings.Contains(rec.Body.String(), `"downloads"`) {
			t.Errorf("expected no downloads for a run without artifacts, got %s", rec.Body.String())
		}

		if rec := get(s, "/runs/unknown"); rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
		}
	})

	t.Run("completed run links its artifacts", func(t *testing.T) {
		t.Parallel()

		done := model.NewRun(model.NewUploadedFile("people.csv", nil))
		done.Artifacts = model.NewArtifactPair("artifacts", "people")
		s := newTestServer(t, testConfig(t), fakeFactory(""), WithHistory(&fakeHistory{runs: []*model.Run{done}}))

		rec := get(s, "/runs/"+done.ID)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		var got struct {
			Downloads map[string]string `json:"downloads"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		want := map[string]string{
			"synthetic_data": "/artifacts/people-synthetic_data.csv",
			"report":         "/artifacts/people-anonymization_report.html",
		}
		if diff := cmp.Diff(want, got.Downloads); diff != "" {
			t.Errorf("downloads mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestServe(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, testConfig(t), fakeFactory(""))
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Serve(ctx, ln)
	}()

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		cancel()
		t.Fatalf("GET /healthz error = %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(ShutdownTimeout + time.Second):
		t.Fatal("server did not shut down")
	}
}
