package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/csvanon/internal/config"
	"github.com/nao1215/csvanon/internal/model"
)

// errorResponse is the JSON body of every API error that is not a run.
type errorResponse struct {
	Error string `json:"error"`
}

// runResponse is the JSON body of an anonymize call.
type runResponse struct {
	*model.Run

	// Downloads maps artifact kinds to their download URLs.
	Downloads map[string]string `json:"downloads,omitempty"`
}

// pageData is passed to the HTML templates.
type pageData struct {
	Version          string
	Run              *model.Run
	Succeeded        bool
	Message          string
	SyntheticDataURL string
	ReportURL        string
}

// artifactURL returns the download path of an artifact file.
func artifactURL(path string) string {
	return "/artifacts/" + filepath.Base(path)
}

// statusFor maps a flow error to an HTTP status code.
func statusFor(err error) int {
	switch model.KindOf(err) {
	case model.KindValidation:
		return http.StatusBadRequest
	case model.KindDecode:
		return http.StatusUnprocessableEntity
	case model.KindIntegration:
		return http.StatusServiceUnavailable
	case model.KindAnonymization:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// readUpload reads the "file" form field into an UploadedFile.
// The request body is limited to MaxUploadSize plus multipart framing.
func (s *Server) readUpload(c *gin.Context) (model.UploadedFile, int, error) {
	if s.cfg.MaxUploadSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadSize+multipartOverhead)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return model.UploadedFile{}, http.StatusRequestEntityTooLarge,
				fmt.Errorf("upload exceeds %d bytes", s.cfg.MaxUploadSize)
		}
		return model.UploadedFile{}, http.StatusBadRequest, errors.New("no file provided")
	}

	f, err := fh.Open()
	if err != nil {
		return model.UploadedFile{}, http.StatusBadRequest, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return model.UploadedFile{}, http.StatusBadRequest, fmt.Errorf("failed to read upload: %w", err)
	}
	return model.NewUploadedFile(fh.Filename, content), http.StatusOK, nil
}

// handleIndex renders the upload form.
func (s *Server) handleIndex(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", pageData{Version: s.version})
}

// handleUpload runs the flow for a form upload and renders the result page.
func (s *Server) handleUpload(c *gin.Context) {
	upload, status, err := s.readUpload(c)
	if err != nil {
		c.HTML(status, "result.html", pageData{
			Version: s.version,
			Message: "Error: " + err.Error(),
		})
		return
	}

	run, err := s.execute(c, upload)
	data := pageData{
		Version: s.version,
		Run:     run,
	}
	if err != nil {
		data.Message = run.ErrorMessage
		c.HTML(statusFor(err), "result.html", data)
		return
	}

	data.Succeeded = true
	data.SyntheticDataURL = artifactURL(run.Artifacts.SyntheticData)
	data.ReportURL = artifactURL(run.Artifacts.Report)
	c.HTML(http.StatusOK, "result.html", data)
}

// handleAPIAnonymize runs the flow and returns the run as JSON.
func (s *Server) handleAPIAnonymize(c *gin.Context) {
	upload, status, err := s.readUpload(c)
	if err != nil {
		c.JSON(status, errorResponse{Error: err.Error()})
		return
	}

	run, err := s.execute(c, upload)
	resp := runResponse{Run: run}
	if err != nil {
		c.JSON(statusFor(err), resp)
		return
	}

	resp.Downloads = downloadsFor(run)
	c.JSON(http.StatusOK, resp)
}

// downloadsFor returns the download URLs of a run, or nil when the run
// has no verified artifacts.
func downloadsFor(run *model.Run) map[string]string {
	if run.Artifacts.IsZero() {
		return nil
	}
	return map[string]string{
		"synthetic_data": artifactURL(run.Artifacts.SyntheticData),
		"report":         artifactURL(run.Artifacts.Report),
	}
}

// execute runs the flow with the request context.
func (s *Server) execute(c *gin.Context, upload model.UploadedFile) (*model.Run, error) {
	if s.metrics != nil {
		done := s.metrics.TrackInFlight()
		defer done()
	}
	return s.flow.Execute(c.Request.Context(), upload)
}

// handleArtifact serves one artifact file from the artifacts directory.
// Only names ending in an artifact suffix are served. With ?inline=1 the
// file is shown in the browser instead of downloaded.
func (s *Server) handleArtifact(c *gin.Context) {
	name := c.Param("name")

	kind, ok := artifactKind(name)
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse{Error: "artifact not found"})
		return
	}

	path := filepath.Join(s.cfg.ArtifactsDir, name)
	missing, err := model.ArtifactPair{SyntheticData: path, Report: path}.Missing()
	if err != nil || len(missing) > 0 {
		c.JSON(http.StatusNotFound, errorResponse{Error: "artifact not found"})
		return
	}

	if s.metrics != nil {
		s.metrics.RecordDownload(kind)
	}
	if c.Query("inline") != "" {
		c.File(path)
		return
	}
	c.FileAttachment(path, name)
}

// artifactKind validates an artifact file name and returns its kind.
func artifactKind(name string) (string, bool) {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", false
	}
	switch {
	case strings.HasSuffix(name, model.SyntheticDataSuffix) && len(name) > len(model.SyntheticDataSuffix):
		return "synthetic_data", true
	case strings.HasSuffix(name, model.ReportSuffix) && len(name) > len(model.ReportSuffix):
		return "report", true
	default:
		return "", false
	}
}

// handleHealth reports liveness.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": s.version,
	})
}

// handleListRuns returns recent runs, newest first.
func (s *Server) handleListRuns(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: "run history is disabled"})
		return
	}

	limit := config.DefaultHistoryLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	runs, err := s.history.ListRuns(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list runs", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to read run history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// handleGetRun returns one run by ID.
func (s *Server) handleGetRun(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: "run history is disabled"})
		return
	}

	run, err := s.history.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: "run not found"})
		return
	}
	c.JSON(http.StatusOK, runResponse{Run: run, Downloads: downloadsFor(run)})
}
