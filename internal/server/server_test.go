package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/branchpnl/pnl-dashboard/internal/converter"
	"github.com/branchpnl/pnl-dashboard/internal/store"
	"github.com/branchpnl/pnl-dashboard/internal/types"
	"github.com/branchpnl/pnl-dashboard/pkg/utils"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func workbook(t *testing.T, cells map[string]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for axis, v := range cells {
		require.NoError(t, f.SetCellValue(sheet, axis, v))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func validWorkbook(t *testing.T) []byte {
	return workbook(t, map[string]any{
		"B3": "Fairfield",
		"C3": "Hollybush",
		"D3": "St Blazey / Par",
		"B4": "Quarter Ending",
		"C4": "Quarter Ending",
		"D4": "Quarter Ending",
		"A6": "Sales",
		"B6": 2000,
		"C6": 1500,
		"D6": 900,
		"A7": "Net Income",
		"B7": 1000,
		"C7": -200,
		"D7": 400,
	})
}

type testEnv struct {
	store  store.Store
	server *Server
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.Open(context.Background(), store.DriverSQLite, filepath.Join(t.TempDir(), "pnl.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.SaveDirectory(context.Background(), types.Directory{
		Companies: map[string]string{"Fairfield": "Acme Ltd", "Hollybush": "Beta plc", "St Blazey / Par": "Acme Ltd"},
		BranchIDs: map[string]string{"Fairfield": "018", "Hollybush": "022", "St Blazey / Par": "031"},
	}))

	conv := converter.New(st, nil, converter.Options{Logger: quietLogger})
	return &testEnv{
		store:  st,
		server: New(Options{Store: st, Converter: conv, Logger: quietLogger}),
	}
}

func (e *testEnv) do(t *testing.T, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) upload(t *testing.T, name string, data []byte, year, quarter string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("year", year))
	require.NoError(t, mw.WriteField("quarter", quarter))
	require.NoError(t, mw.Close())
	return e.do(t, http.MethodPost, "/api/quarters", &body, mw.FormDataContentType())
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	rec := newEnv(t).do(t, http.MethodGet, "/api/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestUnknownRoute(t *testing.T) {
	rec := newEnv(t).do(t, http.MethodGet, "/api/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, decode(t, rec)["success"])
}

func TestUpload(t *testing.T) {
	env := newEnv(t)

	rec := env.upload(t, "report.xlsx", validWorkbook(t), "2024", "Q3")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "2024-Q3", body["id"])
	assert.Equal(t, float64(3), body["locationCount"])
	assert.Equal(t, "Success! 3 branches uploaded for Q3 2024.", body["message"])

	rec = env.do(t, http.MethodGet, "/api/quarters", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	quarters := decode(t, rec)["quarters"].([]any)
	require.Len(t, quarters, 1)
	assert.Equal(t, "Q3 2024", quarters[0].(map[string]any)["label"])

	rec = env.do(t, http.MethodGet, "/api/quarters/2024-Q3", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["branches"], 3)
}

func TestUpload_Errors(t *testing.T) {
	env := newEnv(t)
	good := validWorkbook(t)

	tests := []struct {
		name    string
		file    string
		data    []byte
		year    string
		quarter string
		status  int
		message string
	}{
		{"unsupported extension", "report.csv", []byte("a,b"), "2024", "Q3", http.StatusUnsupportedMediaType, "unsupported file type"},
		{"bad year", "report.xlsx", good, "twenty", "Q3", http.StatusBadRequest, "year"},
		{"bad quarter", "report.xlsx", good, "2024", "Q5", http.StatusBadRequest, ""},
		{"layout not recognized", "report.xlsx", workbook(t, map[string]any{"A1": "nothing"}), "2024", "Q3", http.StatusUnprocessableEntity, "Quarter Ending"},
		{"corrupt workbook", "report.xlsx", []byte("not a workbook"), "2024", "Q3", http.StatusUnprocessableEntity, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.upload(t, tt.file, tt.data, tt.year, tt.quarter)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			body := decode(t, rec)
			assert.Equal(t, false, body["success"])
			assert.Contains(t, body["error"], tt.message)
		})
	}

	list, err := env.store.ListQuarters(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUpload_MissingFile(t *testing.T) {
	env := newEnv(t)
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("year", "2024"))
	require.NoError(t, mw.Close())

	rec := env.do(t, http.MethodPost, "/api/quarters", &body, mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuarterNotFound(t *testing.T) {
	env := newEnv(t)
	for _, target := range []string{
		"/api/quarters/2024-Q1",
		"/api/quarters/2024-Q1/branches",
		"/api/quarters/2024-Q1/export",
	} {
		rec := env.do(t, http.MethodGet, target, nil, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
	}

	rec := env.do(t, http.MethodDelete, "/api/quarters/2024-Q1", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/quarters/2024-Q1/branches/Fairfield/state",
		strings.NewReader(`{"notes":"x"}`), "application/json")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBranches(t *testing.T) {
	env := newEnv(t)
	require.Equal(t, http.StatusCreated, env.upload(t, "r.xlsx", validWorkbook(t), "2024", "Q3").Code)

	names := func(body map[string]any) []string {
		var out []string
		for _, b := range body["branches"].([]any) {
			out = append(out, b.(map[string]any)["branchName"].(string))
		}
		return out
	}

	rec := env.do(t, http.MethodGet, "/api/quarters/2024-Q3/branches", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, []string{"Fairfield", "St Blazey / Par", "Hollybush"}, names(body))
	assert.Equal(t, []any{"Acme Ltd", "Beta plc"}, body["companies"])
	totals := body["totals"].(map[string]any)
	assert.Equal(t, float64(3), totals["count"])

	rec = env.do(t, http.MethodGet, "/api/quarters/2024-Q3/branches?company=Acme+Ltd&sort=branchName&dir=asc", nil, "")
	assert.Equal(t, []string{"Fairfield", "St Blazey / Par"}, names(decode(t, rec)))

	rec = env.do(t, http.MethodGet, "/api/quarters/2024-Q3/branches?show=loss", nil, "")
	assert.Equal(t, []string{"Hollybush"}, names(decode(t, rec)))

	rec = env.do(t, http.MethodGet, "/api/quarters/2024-Q3/branches?q=022", nil, "")
	assert.Equal(t, []string{"Hollybush"}, names(decode(t, rec)))
}

func TestSaveState(t *testing.T) {
	env := newEnv(t)
	require.Equal(t, http.StatusCreated, env.upload(t, "r.xlsx", validWorkbook(t), "2024", "Q3").Code)

	rec := env.do(t, http.MethodPut, "/api/quarters/2024-Q3/branches/St%20Blazey%20%2F%20Par/state",
		strings.NewReader(`{"notes":"closing","archived":true}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "closing", decode(t, rec)["notes"])

	rec = env.do(t, http.MethodPut, "/api/quarters/2024-Q3/branches/St%20Blazey%20%2F%20Par/state",
		strings.NewReader(`{"archived":false}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "closing", body["notes"])
	assert.Equal(t, false, body["archived"])

	rec = env.do(t, http.MethodPut, "/api/quarters/2024-Q3/branches/Fairfield/state",
		strings.NewReader(`{"archived":true}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/quarters/2024-Q3/branches?archived=true", nil, "")
	rows := decode(t, rec)["branches"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, "Fairfield", rows[0].(map[string]any)["branchName"])

	states, err := env.store.LoadBranchStates(context.Background(), "2024-Q3")
	require.NoError(t, err)
	assert.Equal(t, "closing", states["St Blazey / Par"].NotesText())

	rec = env.do(t, http.MethodPut, "/api/quarters/2024-Q3/branches/Fairfield/state",
		strings.NewReader(`{"colour":"red"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExport(t *testing.T) {
	env := newEnv(t)
	require.Equal(t, http.StatusCreated, env.upload(t, "r.xlsx", validWorkbook(t), "2024", "Q3").Code)
	_, err := env.store.SaveBranchState(context.Background(), "2024-Q3", "Fairfield", types.BranchState{Notes: ptr("check rent")})
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/api/quarters/2024-Q3/export?format=csv&company=Acme+Ltd", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, `attachment; filename="Branch_PnL_2024-Q3_Export.csv"`, rec.Header().Get("Content-Disposition"))

	lines := strings.Split(strings.TrimPrefix(rec.Body.String(), "\ufeff"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], `"ID","Branch","Company"`), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], `"018","Fairfield","Acme Ltd"`), lines[1])
	assert.True(t, strings.HasSuffix(lines[1], `"30.00","50.00","check rent"`), lines[1])
	assert.True(t, strings.HasPrefix(lines[2], `"031","St Blazey / Par"`), lines[2])

	rec = env.do(t, http.MethodGet, "/api/quarters/2024-Q3/export?format=xlsx", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Branch P&L")
	require.NoError(t, err)
	assert.Len(t, rows, 4)

	rec = env.do(t, http.MethodGet, "/api/quarters/2024-Q3/export?format=pdf", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteQuarter(t *testing.T) {
	env := newEnv(t)
	require.Equal(t, http.StatusCreated, env.upload(t, "r.xlsx", validWorkbook(t), "2024", "Q3").Code)

	rec := env.do(t, http.MethodDelete, "/api/quarters/2024-Q3", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/quarters/2024-Q3", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDirectoryAndColumns(t *testing.T) {
	env := newEnv(t)

	rec := env.do(t, http.MethodPut, "/api/directory",
		strings.NewReader(`{"companies":{"Fairfield":"New Co"}}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/directory", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, map[string]any{"Fairfield": "New Co"}, body["companies"])
	assert.Equal(t, map[string]any{}, body["branchIds"])

	rec = env.do(t, http.MethodGet, "/api/columns", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode(t, rec))

	rec = env.do(t, http.MethodPut, "/api/columns",
		strings.NewReader(`{"sales":true,"net_income":false}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/columns", nil, "")
	assert.Equal(t, map[string]any{"sales": true, "net_income": false}, decode(t, rec))

	rec = env.do(t, http.MethodPut, "/api/columns", strings.NewReader(`[1,2]`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInboxScheduler(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	root := t.TempDir()
	fm := utils.NewFileManager(filepath.Join(root, "in"), filepath.Join(root, "out"), filepath.Join(root, "archive"))
	require.NoError(t, fm.EnsureDirectories())
	require.NoError(t, os.WriteFile(filepath.Join(fm.InputDir, "2025-Q1.xlsx"), validWorkbook(t), 0o644))

	conv := converter.New(env.store, nil, converter.Options{FileManager: fm, Logger: quietLogger})
	inbox, err := NewInboxScheduler("@every 1h", time.UTC, conv, converter.BatchOptions{ContinueOnError: true}, quietLogger)
	require.NoError(t, err)

	report, err := inbox.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Summary.SuccessfulFiles)

	_, err = env.store.LoadQuarter(ctx, "2025-Q1")
	require.NoError(t, err)

	inbox.Start(ctx)
	inbox.Stop()

	_, err = NewInboxScheduler("not a schedule", time.UTC, conv, converter.BatchOptions{}, quietLogger)
	assert.Error(t, err)
}

func ptr[T any](v T) *T { return &v }
