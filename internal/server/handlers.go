package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/branchpnl/pnl-dashboard/internal/converter"
	"github.com/branchpnl/pnl-dashboard/internal/dashboard"
	"github.com/branchpnl/pnl-dashboard/internal/export"
	"github.com/branchpnl/pnl-dashboard/internal/store"
	"github.com/branchpnl/pnl-dashboard/internal/types"
	"github.com/branchpnl/pnl-dashboard/internal/xlsxparser"
)

// =============================================================================
// HEALTH
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondOK(w, map[string]any{"status": "ok"})
}

// =============================================================================
// QUARTERS
// =============================================================================

func (s *Server) handleListQuarters(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListQuarters(r.Context())
	if err != nil {
		s.storeError(w, err)
		return
	}
	if list == nil {
		list = []types.QuarterSummary{}
	}
	respondOK(w, map[string]any{"quarters": list})
}

func (s *Server) handleGetQuarter(w http.ResponseWriter, r *http.Request) {
	q, ok := s.loadQuarter(w, r)
	if !ok {
		return
	}
	respondOK(w, q)
}

func (s *Server) handleDeleteQuarter(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")
	if err := s.store.DeleteQuarter(r.Context(), id); err != nil {
		s.storeError(w, err)
		return
	}
	s.logger.Info("quarter deleted", "quarter", id)
	respondOK(w, map[string]any{"success": true, "id": id})
}

// handleUpload accepts a multipart form with the workbook in "file" and the
// target period in "year" and "quarter".
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()

	if !xlsxparser.IsSupported(header.Filename) {
		respondError(w, http.StatusUnsupportedMediaType,
			fmt.Sprintf("unsupported file type %q: upload an .xlsx or .xls workbook", filepath.Ext(header.Filename)))
		return
	}

	year, err := strconv.Atoi(strings.TrimSpace(r.FormValue("year")))
	if err != nil {
		respondError(w, http.StatusBadRequest, "year must be a number")
		return
	}
	period, err := types.NewPeriod(year, r.FormValue("quarter"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		respondError(w, http.StatusBadRequest, "failed to read upload: "+err.Error())
		return
	}

	res := s.converter.Run(r.Context(), converter.Upload{
		FileName: filepath.Base(header.Filename),
		Data:     buf.Bytes(),
		Period:   period,
	})
	if res.Error != nil {
		status := uploadStatus(res.Error)
		if status == http.StatusInternalServerError {
			s.logger.Error("upload failed", "file", header.Filename, "error", res.Error)
		}
		respondError(w, status, res.Error.Error())
		return
	}

	warnings := make([]string, len(res.Warnings))
	for i, v := range res.Warnings {
		warnings[i] = v.Error()
	}
	status := http.StatusCreated
	if res.DryRun {
		status = http.StatusOK
	}
	respondJSON(w, status, map[string]any{
		"success":       true,
		"message":       res.Message,
		"id":            res.QuarterID,
		"label":         res.Label,
		"locationCount": res.LocationCount,
		"warnings":      warnings,
	})
}

// =============================================================================
// BRANCHES
// =============================================================================

func (s *Server) handleBranches(w http.ResponseWriter, r *http.Request) {
	q, ok := s.loadQuarter(w, r)
	if !ok {
		return
	}
	states, err := s.store.LoadBranchStates(r.Context(), q.ID)
	if err != nil {
		s.storeError(w, err)
		return
	}
	saved, err := s.loadColumnVisibility(r)
	if err != nil {
		s.storeError(w, err)
		return
	}

	query := parseQuery(r.URL.Query())
	rows := dashboard.Apply(q, states, query)
	if rows == nil {
		rows = []dashboard.Row{}
	}
	respondOK(w, map[string]any{
		"quarter":   types.QuarterSummary{ID: q.ID, Label: q.Label, LocationCount: q.LocationCount, UploadedAt: q.UploadedAt},
		"branches":  rows,
		"totals":    dashboard.Summarize(q, states, rows),
		"columns":   dashboard.VisibleColumns(q, saved),
		"companies": dashboard.Companies(q),
		"names":     dashboard.BranchNames(q),
	})
}

func (s *Server) handleSaveState(w http.ResponseWriter, r *http.Request) {
	q, ok := s.loadQuarter(w, r)
	if !ok {
		return
	}
	name := pathVar(r, "name")

	var patch types.BranchState
	if err := decodeJSON(r, &patch); err != nil {
		respondError(w, http.StatusBadRequest, "invalid branch state: "+err.Error())
		return
	}

	state, err := s.store.SaveBranchState(r.Context(), q.ID, name, patch)
	if err != nil {
		s.storeError(w, err)
		return
	}
	respondOK(w, state)
}

// =============================================================================
// EXPORT
// =============================================================================

// handleExport writes the filtered, sorted view of a quarter as a download.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	q, ok := s.loadQuarter(w, r)
	if !ok {
		return
	}
	params := r.URL.Query()
	format, err := export.ParseFormat(params.Get("format"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	states, err := s.store.LoadBranchStates(r.Context(), q.ID)
	if err != nil {
		s.storeError(w, err)
		return
	}

	rows := dashboard.Apply(q, states, parseQuery(params))
	opts := export.DefaultOptions()
	opts.Columns = splitList(params.Get("columns"))
	table := export.Build(q, dashboard.Branches(rows), states, opts)

	var buf bytes.Buffer
	if err := export.Write(&buf, format, table, opts); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(q.ID, format)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// =============================================================================
// CONFIG DOCUMENTS
// =============================================================================

func (s *Server) handleGetDirectory(w http.ResponseWriter, r *http.Request) {
	dir, err := s.store.LoadDirectory(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		dir, err = types.Directory{Companies: map[string]string{}, BranchIDs: map[string]string{}}, nil
	}
	if err != nil {
		s.storeError(w, err)
		return
	}
	respondOK(w, dir)
}

func (s *Server) handlePutDirectory(w http.ResponseWriter, r *http.Request) {
	var dir types.Directory
	if err := decodeJSON(r, &dir); err != nil {
		respondError(w, http.StatusBadRequest, "invalid directory: "+err.Error())
		return
	}
	if dir.Companies == nil {
		dir.Companies = map[string]string{}
	}
	if dir.BranchIDs == nil {
		dir.BranchIDs = map[string]string{}
	}
	if err := s.store.SaveDirectory(r.Context(), dir); err != nil {
		s.storeError(w, err)
		return
	}
	respondOK(w, dir)
}

func (s *Server) handleGetColumns(w http.ResponseWriter, r *http.Request) {
	cols, err := s.loadColumnVisibility(r)
	if err != nil {
		s.storeError(w, err)
		return
	}
	respondOK(w, cols)
}

func (s *Server) handlePutColumns(w http.ResponseWriter, r *http.Request) {
	var cols map[string]bool
	if err := decodeJSON(r, &cols); err != nil {
		respondError(w, http.StatusBadRequest, "invalid column visibility: "+err.Error())
		return
	}
	if err := s.store.SaveColumnVisibility(r.Context(), cols); err != nil {
		s.storeError(w, err)
		return
	}
	respondOK(w, cols)
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Server) loadQuarter(w http.ResponseWriter, r *http.Request) (*types.Quarter, bool) {
	q, err := s.store.LoadQuarter(r.Context(), pathVar(r, "id"))
	if err != nil {
		s.storeError(w, err)
		return nil, false
	}
	return q, true
}

func (s *Server) loadColumnVisibility(r *http.Request) (map[string]bool, error) {
	cols, err := s.store.LoadColumnVisibility(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		return map[string]bool{}, nil
	}
	return cols, err
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	s.logger.Error("store request failed", "error", err)
	respondError(w, http.StatusInternalServerError, "storage error")
}

func uploadStatus(err error) int {
	switch converter.ErrorType(err) {
	case "period":
		return http.StatusBadRequest
	case "format":
		return http.StatusUnsupportedMediaType
	case "read", "parse", "validation":
		return http.StatusUnprocessableEntity
	case "skipped":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// pathVar returns a decoded route variable. Routes match on the escaped
// path so branch names may contain "/".
func pathVar(r *http.Request, name string) string {
	v := mux.Vars(r)[name]
	if dec, err := url.PathUnescape(v); err == nil {
		return dec
	}
	return v
}

// parseQuery maps list parameters onto a dashboard query.
func parseQuery(p url.Values) dashboard.Query {
	q := dashboard.Query{
		Company:  p.Get("company"),
		Branch:   p.Get("branch"),
		Search:   p.Get("q"),
		Show:     p.Get("show"),
		SortKey:  p.Get("sort"),
		SortDesc: strings.EqualFold(p.Get("dir"), "desc"),
	}
	if q.SortKey == "" {
		q = withDefaultSort(q, p.Get("dir"))
	}
	q.ShowArchived, _ = strconv.ParseBool(p.Get("archived"))
	return q
}

func withDefaultSort(q dashboard.Query, dir string) dashboard.Query {
	def := dashboard.DefaultQuery()
	q.SortKey = def.SortKey
	q.SortDesc = def.SortDesc
	if strings.EqualFold(dir, "asc") {
		q.SortDesc = false
	}
	return q
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
