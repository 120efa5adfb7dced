package web

// handlers.go contains the JSON API handlers. Request bodies carry
// rows, mappings, and options; long work happens in the importer
// service, and handlers only translate between HTTP and run ids.

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/contentful/apps-sub004/internal/importer"
	"github.com/contentful/apps-sub004/internal/schema"
)

// typeResponse is the JSON shape for an importable entity type.
type typeResponse struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	DisplayFieldID string          `json:"displayFieldId,omitempty"`
	Fields         []fieldResponse `json:"fields"`
}

type fieldResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Localized bool   `json:"localized"`
	Required  bool   `json:"required"`
}

type localeResponse struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	Default bool   `json:"default"`
}

// handleListTypes returns the importable entity types.
func (s *Server) handleListTypes(w http.ResponseWriter, r *http.Request) {
	catalog, err := s.service.Catalog(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	types := catalog.Types()
	resp := make([]typeResponse, 0, len(types))
	for _, t := range types {
		resp = append(resp, toTypeResponse(t))
	}
	writeJSON(w, resp)
}

// handleListLocales returns the known content locales.
func (s *Server) handleListLocales(w http.ResponseWriter, r *http.Request) {
	catalog, err := s.service.Catalog(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	locales := catalog.Locales()
	resp := make([]localeResponse, 0, len(locales))
	for _, l := range locales {
		resp = append(resp, localeResponse{Code: l.Code, Name: l.Name, Default: l.Default})
	}
	writeJSON(w, resp)
}

// handleRunQueueStatus returns the current state of the run limiter.
// Used for monitoring and to check if the system can accept more runs.
func (s *Server) handleRunQueueStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.service.LimiterStatus())
}

type autoMapRequest struct {
	Columns []string `json:"columns"`
}

type autoMapResponse struct {
	Mappings []importer.ColumnMapping `json:"mappings"`
	Unmapped []string                 `json:"unmapped,omitempty"`
}

// handleAutoMap proposes a column mapping for the submitted header row.
func (s *Server) handleAutoMap(w http.ResponseWriter, r *http.Request) {
	entityType, ok := s.entityType(w, r)
	if !ok {
		return
	}

	var req autoMapRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Columns) == 0 {
		writeError(w, http.StatusBadRequest, "no columns provided")
		return
	}

	mappings := importer.AutoMap(req.Columns, entityType)
	writeJSON(w, autoMapResponse{
		Mappings: mappings,
		Unmapped: importer.UnmappedColumns(mappings),
	})
}

// rowPayload is the wire form of one tabular record.
type rowPayload struct {
	RowIndex int               `json:"rowIndex"`
	Values   map[string]string `json:"values"`
}

type dryRunRequest struct {
	Rows     []rowPayload             `json:"rows"`
	Mappings []importer.ColumnMapping `json:"mappings"`
	Options  importer.Options         `json:"options"`
}

type runStartedResponse struct {
	RunID string `json:"runId"`
}

// handleDryRun starts an asynchronous validation pass over the
// submitted rows and returns its run id.
func (s *Server) handleDryRun(w http.ResponseWriter, r *http.Request) {
	typeID := chi.URLParam(r, "typeID")
	if typeID == "" {
		writeError(w, http.StatusBadRequest, "missing type ID")
		return
	}

	var req dryRunRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Rows) == 0 {
		writeError(w, http.StatusBadRequest, "no rows provided")
		return
	}
	if len(req.Rows) > s.cfg.Import.MaxRows {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("too many rows: %d exceeds limit of %d", len(req.Rows), s.cfg.Import.MaxRows))
		return
	}
	if len(req.Mappings) == 0 {
		writeError(w, http.StatusBadRequest, "no mappings provided")
		return
	}

	rows := make([]importer.ParsedRow, len(req.Rows))
	for i, rp := range req.Rows {
		idx := rp.RowIndex
		if idx == 0 {
			idx = i + 1
		}
		rows[i] = importer.ParsedRow{RowIndex: idx, RawValues: rp.Values}
	}

	opts := req.Options
	opts.TypeID = typeID

	runID, err := s.service.StartDryRun(r.Context(), rows, req.Mappings, opts)
	if err != nil {
		writeError(w, startErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, runStartedResponse{RunID: runID})
}

type executeRequest struct {
	DryRunID string `json:"dryRunId"`
}

// handleExecute starts writing the rows a completed dry run approved.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.DryRunID == "" {
		writeError(w, http.StatusBadRequest, "missing dryRunId")
		return
	}

	runID, err := s.service.StartExecution(r.Context(), req.DryRunID)
	if err != nil {
		writeError(w, startErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, runStartedResponse{RunID: runID})
}

// handleRunProgress reports run progress. Plain requests get a JSON
// snapshot; clients accepting text/event-stream get live updates until
// the run finishes.
func (s *Server) handleRunProgress(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "missing run ID")
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		s.streamProgress(w, r, runID)
		return
	}

	progress, err := s.service.GetProgress(runID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, progress)
}

// streamProgress pushes progress updates via Server-Sent Events.
func (s *Server) streamProgress(w http.ResponseWriter, r *http.Request, runID string) {
	progressCh, err := s.service.SubscribeProgress(runID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				// Channel closed - run finished
				fmt.Fprintf(w, "event: complete\ndata: {}\n\n")
				flusher.Flush()
				return
			}
			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// handleRunResult returns the final result of a finished run.
func (s *Server) handleRunResult(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "missing run ID")
		return
	}

	result, err := s.service.Result(runID)
	if err != nil {
		writeError(w, resultErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, result)
}

// handleCancelRun requests cooperative cancellation of a run.
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "missing run ID")
		return
	}

	if err := s.service.CancelRun(runID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"cancelled"}`))
}

// handleIssuesCSV exports a dry run's validation issues as CSV.
func (s *Server) handleIssuesCSV(w http.ResponseWriter, r *http.Request) {
	result, ok := s.finishedResult(w, r)
	if !ok {
		return
	}
	if result.Report == nil {
		writeError(w, http.StatusNotFound, "run has no dry-run report")
		return
	}

	sendCSVHeaders(w, "issues")
	if err := importer.WriteIssuesCSV(w, result.Report); err != nil {
		// Headers are already out; just log.
		slog.Error("issues csv export failed", "run_id", result.RunID, "error", err)
	}
}

// handleOutcomeCSV exports an execution run's outcome as CSV.
func (s *Server) handleOutcomeCSV(w http.ResponseWriter, r *http.Request) {
	result, ok := s.finishedResult(w, r)
	if !ok {
		return
	}
	if result.Outcome == nil {
		writeError(w, http.StatusNotFound, "run has no execution outcome")
		return
	}

	sendCSVHeaders(w, "outcome")
	if err := importer.WriteOutcomeCSV(w, result.Outcome); err != nil {
		slog.Error("outcome csv export failed", "run_id", result.RunID, "error", err)
	}
}

// finishedResult fetches the result for the run named in the URL,
// writing the error response itself when there is none to export.
func (s *Server) finishedResult(w http.ResponseWriter, r *http.Request) (*importer.RunResult, bool) {
	runID := chi.URLParam(r, "runID")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "missing run ID")
		return nil, false
	}

	result, err := s.service.Result(runID)
	if err != nil {
		writeError(w, resultErrorStatus(err), err.Error())
		return nil, false
	}
	return result, true
}

// entityType resolves the typeID URL parameter against the catalog,
// writing the error response itself on failure.
func (s *Server) entityType(w http.ResponseWriter, r *http.Request) (schema.EntityTypeSchema, bool) {
	typeID := chi.URLParam(r, "typeID")
	if typeID == "" {
		writeError(w, http.StatusBadRequest, "missing type ID")
		return schema.EntityTypeSchema{}, false
	}

	catalog, err := s.service.Catalog(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return schema.EntityTypeSchema{}, false
	}

	entityType, ok := catalog.Type(typeID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown entity type: "+typeID)
		return schema.EntityTypeSchema{}, false
	}
	return entityType, true
}

// decodeBody decodes a JSON request body, capping its size at the
// configured limit.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// sendCSVHeaders sets download headers with a timestamped filename.
func sendCSVHeaders(w http.ResponseWriter, kind string) {
	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("%s_%s.csv", kind, timestamp)
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
}

// startErrorStatus maps a run-start error to an HTTP status.
func startErrorStatus(err error) int {
	switch {
	case errors.Is(err, importer.ErrTooManyRuns):
		return http.StatusTooManyRequests
	case errors.Is(err, importer.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, importer.ErrRunInProgress):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// resultErrorStatus maps a result-fetch error to an HTTP status.
func resultErrorStatus(err error) int {
	if errors.Is(err, importer.ErrRunInProgress) {
		return http.StatusConflict
	}
	return http.StatusNotFound
}

func toTypeResponse(t schema.EntityTypeSchema) typeResponse {
	fields := make([]fieldResponse, 0, len(t.Fields))
	for _, f := range t.Fields {
		fields = append(fields, fieldResponse{
			ID:        f.ID,
			Name:      f.Name,
			Type:      f.Type.String(),
			Localized: f.Localized,
			Required:  f.Required,
		})
	}
	return typeResponse{
		ID:             t.ID,
		Name:           t.Name,
		DisplayFieldID: t.DisplayFieldID,
		Fields:         fields,
	}
}
