package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/and161185/biasmeter/internal/alerting"
	"github.com/and161185/biasmeter/internal/analysis"
	"github.com/and161185/biasmeter/internal/export"
	"github.com/and161185/biasmeter/internal/monitor"
	"github.com/and161185/biasmeter/internal/timeseries"
	"github.com/and161185/biasmeter/model"
	"github.com/and161185/biasmeter/storage"
	"github.com/go-chi/chi/v5"
)

const (
	serviceName       = "biasmeter"
	serviceVersion    = "1.0.0"
	maxUploadSize     = 32 << 20
	maxIngestBatch    = 1000
	// a sealed batch of maxIngestBatch samples stays well under 256 bytes per sample
	maxIngestBody     = maxIngestBatch * 256
	defaultHistoryLen = 100
)

// StartRequest is the body of POST /api/monitor. Zero fields pick defaults.
type StartRequest struct {
	Profile          string `json:"profile"`
	Source           string `json:"source"`
	TimeRangeSeconds int    `json:"timeRangeSeconds"`
	MaxPoints        int    `json:"maxPoints"`
	Smoothing        *int   `json:"smoothing"`
	IntervalSeconds  int    `json:"intervalSeconds"`
}

// WindowRequest is the body of PUT /api/monitor/{id}/window.
type WindowRequest struct {
	TimeRangeSeconds int `json:"timeRangeSeconds"`
	MaxPoints        int `json:"maxPoints"`
}

// SmoothingRequest is the body of PUT /api/monitor/{id}/smoothing.
type SmoothingRequest struct {
	Level int `json:"level"`
}

// IngestResponse reports how many posted samples entered the window.
type IngestResponse struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

// HistoryResponse is the archived data of a session.
type HistoryResponse struct {
	Samples []model.Sample     `json:"samples"`
	Alerts  []model.AlertEvent `json:"alerts"`
}

// RealtimeMetrics is one reading of the shared live feed.
type RealtimeMetrics struct {
	Timestamp     int64   `json:"timestamp"`
	FairnessScore float64 `json:"fairnessScore"`
	BiasScore     float64 `json:"biasScore"`
	MaleRate      float64 `json:"maleRate"`
	FemaleRate    float64 `json:"femaleRate"`
}

type errorBody struct {
	Error      bool   `json:"error"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

func (srv *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		srv.logger.Errorf("encode response: %v", err)
	}
}

func (srv *Server) writeError(w http.ResponseWriter, status int, msg string) {
	srv.writeJSON(w, status, errorBody{Error: true, Message: msg})
}

// fail maps domain errors onto HTTP statuses.
func (srv *Server) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, monitor.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, monitor.ErrInvalidSample),
		errors.Is(err, monitor.ErrInvalidWindow),
		errors.Is(err, monitor.ErrInvalidSmoothing),
		errors.Is(err, monitor.ErrUnknownSource),
		errors.Is(err, alerting.ErrUnknownProfile),
		errors.Is(err, storage.ErrInvalidLimit):
		status = http.StatusBadRequest
	case errors.Is(err, monitor.ErrPaused), errors.Is(err, monitor.ErrStaleSample):
		status = http.StatusConflict
	case errors.Is(err, monitor.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		srv.logger.Errorf("request failed: %v", err)
		srv.writeError(w, status, "internal error")
		return
	}
	srv.writeError(w, status, err.Error())
}

func decodeJSON(r *http.Request, v any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil || mt != "application/json" {
			return errors.New("unsupported content type")
		}
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func (srv *Server) session(w http.ResponseWriter, r *http.Request) (*monitor.Session, bool) {
	sess, err := srv.Monitors.Get(chi.URLParam(r, "id"))
	if err != nil {
		srv.fail(w, err)
		return nil, false
	}
	return sess, true
}

// PingHandler checks the archive.
func (srv *Server) PingHandler(w http.ResponseWriter, r *http.Request) {
	if err := srv.Archive.Ping(r.Context()); err != nil {
		srv.logger.Errorf("archive ping: %v", err)
		http.Error(w, "archive unavailable", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HealthHandler reports the service status and whether the analysis service answers.
func (srv *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	analyzer := "UP"
	if err := srv.Analyzer.Health(r.Context()); err != nil {
		srv.logger.Debugf("analyzer health: %v", err)
		analyzer = "DOWN"
	}
	srv.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "UP",
		"service":   serviceName,
		"version":   serviceVersion,
		"message":   "Bias monitoring service is running",
		"analyzer":  analyzer,
		"timestamp": time.Now().UnixMilli(),
	})
}

// FormatHandler describes the CSV layout expected for an industry.
func (srv *Server) FormatHandler(w http.ResponseWriter, r *http.Request) {
	srv.writeJSON(w, http.StatusOK, analysis.Format(chi.URLParam(r, "industry")))
}

// AnalyzeHandler forwards a multipart CSV upload to the analysis service.
func (srv *Server) AnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		srv.writeError(w, http.StatusBadRequest, "invalid upload: "+err.Error())
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		srv.writeJSON(w, http.StatusBadRequest, errorBody{
			Error:      true,
			Message:    "No file selected",
			Suggestion: "Attach a CSV file in the \"file\" form field",
		})
		return
	}
	defer file.Close()

	industry := r.FormValue("industry")
	started := time.Now()
	res, err := srv.Analyzer.Analyze(r.Context(), analysis.Upload{
		Filename: hdr.Filename,
		Content:  file,
		Industry: industry,
	})
	if err != nil {
		var apiErr *analysis.APIError
		switch {
		case errors.Is(err, analysis.ErrNoFile):
			srv.writeError(w, http.StatusBadRequest, "No file selected")
		case errors.As(err, &apiErr):
			srv.writeJSON(w, apiErr.Status, errorBody{
				Error:      true,
				Message:    apiErr.Error(),
				Suggestion: "Check the file format for industry " + strconv.Quote(industry),
			})
		default:
			srv.logger.Errorf("analyze %s: %v", hdr.Filename, err)
			srv.writeJSON(w, http.StatusBadGateway, errorBody{
				Error:      true,
				Message:    "Analysis service unavailable",
				Suggestion: "Try again later",
			})
		}
		return
	}

	if res.FileName == "" {
		res.FileName = hdr.Filename
	}
	if res.FileSize == 0 {
		res.FileSize = hdr.Size
	}
	if res.Industry == "" {
		res.Industry = industry
	}
	if res.AnalysisTime == 0 {
		res.AnalysisTime = time.Since(started).Milliseconds()
	}
	srv.writeJSON(w, http.StatusOK, res)
}

// RealtimeMetricsHandler returns the next reading of the shared live walk.
func (srv *Server) RealtimeMetricsHandler(w http.ResponseWriter, r *http.Request) {
	s, err := srv.live.Next(r.Context())
	if err != nil {
		srv.fail(w, err)
		return
	}
	srv.writeJSON(w, http.StatusOK, RealtimeMetrics{
		Timestamp:     s.Timestamp.UnixMilli(),
		FairnessScore: s.Value,
		BiasScore:     s.BiasScore(),
		MaleRate:      s.MaleRate,
		FemaleRate:    s.FemaleRate,
	})
}

// StartHandler creates a monitoring session.
func (srv *Server) StartHandler(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			srv.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	sess, err := srv.Monitors.Start(r.Context(), monitor.StartOptions{
		Profile:   req.Profile,
		Source:    req.Source,
		Window:    window(req.TimeRangeSeconds, req.MaxPoints),
		Smoothing: req.Smoothing,
		Interval:  time.Duration(req.IntervalSeconds) * time.Second,
	})
	if err != nil {
		srv.fail(w, err)
		return
	}
	w.Header().Set("Location", "/api/monitor/"+sess.ID())
	srv.writeJSON(w, http.StatusCreated, sess.Snapshot())
}

func window(seconds, points int) timeseries.Window {
	return timeseries.Window{Duration: time.Duration(seconds) * time.Second, MaxSize: points}
}

// ListHandler describes every session.
func (srv *Server) ListHandler(w http.ResponseWriter, r *http.Request) {
	srv.writeJSON(w, http.StatusOK, srv.Monitors.List())
}

// SnapshotHandler returns the state of a session.
func (srv *Server) SnapshotHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := srv.session(w, r)
	if !ok {
		return
	}
	srv.writeJSON(w, http.StatusOK, sess.Snapshot())
}

// StopHandler stops a session and returns its final snapshot.
func (srv *Server) StopHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, err := srv.Monitors.Stop(r.Context(), id)
	if err != nil {
		srv.fail(w, err)
		return
	}
	srv.Hub.CloseSession(id)
	srv.Metrics.Forget(id)
	srv.writeJSON(w, http.StatusOK, snap)
}

// PauseHandler stops a session from accepting samples.
func (srv *Server) PauseHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := srv.session(w, r)
	if !ok {
		return
	}
	sess.Pause()
	srv.writeJSON(w, http.StatusOK, sess.Snapshot())
}

// ResumeHandler lets a paused session accept samples again.
func (srv *Server) ResumeHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := srv.session(w, r)
	if !ok {
		return
	}
	sess.Resume()
	srv.writeJSON(w, http.StatusOK, sess.Snapshot())
}

// ResetHandler clears the samples and alerts of a session.
func (srv *Server) ResetHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := srv.session(w, r)
	if !ok {
		return
	}
	sess.Reset()
	srv.writeJSON(w, http.StatusOK, sess.Snapshot())
}

// TestAlertHandler raises a test alert.
func (srv *Server) TestAlertHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := srv.session(w, r)
	if !ok {
		return
	}
	srv.writeJSON(w, http.StatusCreated, sess.TestAlert(r.Context()))
}

// WindowHandler changes the retention window of a session.
func (srv *Server) WindowHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := srv.session(w, r)
	if !ok {
		return
	}
	var req WindowRequest
	if err := decodeJSON(r, &req); err != nil {
		srv.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.TimeRangeSeconds == 0 && req.MaxPoints == 0 {
		srv.writeError(w, http.StatusBadRequest, "timeRangeSeconds or maxPoints is required")
		return
	}
	if err := sess.SetWindow(window(req.TimeRangeSeconds, req.MaxPoints)); err != nil {
		srv.fail(w, err)
		return
	}
	srv.writeJSON(w, http.StatusOK, sess.Snapshot())
}

// SmoothingHandler changes the smoothing level of a session.
func (srv *Server) SmoothingHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := srv.session(w, r)
	if !ok {
		return
	}
	var req SmoothingRequest
	if err := decodeJSON(r, &req); err != nil {
		srv.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := sess.SetSmoothing(req.Level); err != nil {
		srv.fail(w, err)
		return
	}
	srv.writeJSON(w, http.StatusOK, sess.Snapshot())
}

// ChartHandler returns the chart series of a session.
func (srv *Server) ChartHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := srv.session(w, r)
	if !ok {
		return
	}
	srv.writeJSON(w, http.StatusOK, sess.Chart())
}

// ExportHandler downloads the retained samples as CSV.
func (srv *Server) ExportHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := srv.session(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.CSVFilename(time.Now())))
	if err := export.WriteCSV(w, sess.Samples()); err != nil {
		srv.logger.Errorf("export session %s: %v", sess.ID(), err)
	}
}

// HistoryHandler returns the archived samples and alerts of a session.
// Archived data outlives the session, so the id is not checked against
// running sessions.
func (srv *Server) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit := defaultHistoryLen
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			srv.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	samples, err := srv.Archive.Samples(r.Context(), id, limit)
	if err != nil {
		srv.fail(w, err)
		return
	}
	alerts, err := srv.Archive.Alerts(r.Context(), id, limit)
	if err != nil {
		srv.fail(w, err)
		return
	}
	srv.writeJSON(w, http.StatusOK, HistoryResponse{Samples: samples, Alerts: alerts})
}

// StreamHandler upgrades to a websocket that receives the session events.
func (srv *Server) StreamHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := srv.session(w, r)
	if !ok {
		return
	}
	if err := srv.Hub.Serve(w, r, sess.ID()); err != nil {
		srv.logger.Debugf("stream %s: %v", sess.ID(), err)
	}
}

// IngestHandler feeds a batch of samples into a session. The batch is
// validated as a whole before any sample is ingested; samples older than
// the window are counted as rejected.
func (srv *Server) IngestHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := srv.session(w, r)
	if !ok {
		return
	}
	var batch []model.Sample
	if err := decodeJSON(r, &batch); err != nil {
		srv.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(batch) > maxIngestBatch {
		srv.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("at most %d samples per request", maxIngestBatch))
		return
	}
	for i, s := range batch {
		if s.Value < 0 || s.Value > 100 {
			srv.writeError(w, http.StatusBadRequest, fmt.Sprintf("sample %d: value %v outside 0..100", i, s.Value))
			return
		}
	}
	if sess.Paused() {
		srv.fail(w, monitor.ErrPaused)
		return
	}

	var resp IngestResponse
	for _, s := range batch {
		_, err := sess.Ingest(r.Context(), s)
		switch {
		case err == nil:
			resp.Accepted++
		case errors.Is(err, monitor.ErrStaleSample), errors.Is(err, monitor.ErrPaused):
			resp.Rejected++
		default:
			srv.fail(w, err)
			return
		}
	}
	srv.writeJSON(w, http.StatusOK, resp)
}
