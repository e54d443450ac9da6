package converter

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/branchpnl/pnl-dashboard/internal/pnl"
	"github.com/branchpnl/pnl-dashboard/internal/store"
	"github.com/branchpnl/pnl-dashboard/internal/types"
	"github.com/branchpnl/pnl-dashboard/internal/validation"
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
		"B4": "Quarter Ending",
		"C4": "Quarter Ending",
		"A6": "Sales",
		"B6": 2000,
		"C6": 1500,
		"A7": "Net Income",
		"B7": 1000,
		"C7": -200,
	})
}

func newStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.DriverSQLite, filepath.Join(t.TempDir(), "pnl.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func q3() types.Period { return types.Period{Year: 2024, Quarter: 3} }

func TestRun_SavesQuarter(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	require.NoError(t, st.SaveDirectory(ctx, types.Directory{
		Companies: map[string]string{"Fairfield": "Acme Ltd", "Hollybush": "Acme Ltd"},
		BranchIDs: map[string]string{"Fairfield": "018"},
	}))

	c := New(st, nil, Options{Logger: quietLogger})
	res := c.Run(ctx, Upload{FileName: "report.xlsx", Data: validWorkbook(t), Period: q3()})

	require.NoError(t, res.Error)
	assert.True(t, res.Success)
	assert.Equal(t, "2024-Q3", res.QuarterID)
	assert.Equal(t, 2, res.LocationCount)
	assert.Equal(t, "Success! 2 branches uploaded for Q3 2024.", res.Message)
	assert.Empty(t, res.Warnings)

	q, err := st.LoadQuarter(ctx, "2024-Q3")
	require.NoError(t, err)
	assert.Equal(t, "Q3 2024", q.Label)
	assert.Equal(t, "Q3 2024", q.DateRange)
	assert.Equal(t, "report.xlsx", q.SourceFile)
	require.Len(t, q.Branches, 2)
	assert.Equal(t, "Acme Ltd", q.Branches[0].Company)
	assert.Equal(t, "018", q.Branches[0].ID)
	assert.Equal(t, "-", q.Branches[1].ID)
	assert.InDelta(t, 50.0, *q.Branches[0].PNL5, 1e-9)
}

func TestRun_DryRunLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	c := New(st, nil, Options{DryRun: true, Logger: quietLogger})
	res := c.Run(ctx, Upload{FileName: "report.xlsx", Data: validWorkbook(t), Period: q3()})

	require.NoError(t, res.Error)
	assert.True(t, res.DryRun)
	assert.Equal(t, "Parsed 2 branches", res.Message)

	_, err := st.LoadQuarter(ctx, "2024-Q3")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRun_ParseErrorLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	data := workbook(t, map[string]any{"A1": "Profit and Loss", "B2": "Fairfield"})

	res := New(st, nil, Options{Logger: quietLogger}).Run(ctx, Upload{FileName: "r.xlsx", Data: data, Period: q3()})

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Error, pnl.ErrLayoutNotRecognized)
	assert.Contains(t, res.Message, "Quarter Ending")

	list, err := st.ListQuarters(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRun_PeriodFromFileName(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	res := New(st, nil, Options{Logger: quietLogger}).Run(ctx, Upload{FileName: "PnL_Q1_2025.xlsx", Data: validWorkbook(t)})
	require.NoError(t, res.Error)
	assert.Equal(t, "2025-Q1", res.QuarterID)

	res = New(st, nil, Options{Logger: quietLogger}).Run(ctx, Upload{FileName: "report.xlsx", Data: validWorkbook(t)})
	assert.ErrorIs(t, res.Error, types.ErrInvalidPeriod)
}

func TestRun_ReadsAndArchivesPath(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	root := t.TempDir()
	fm := utils.NewFileManager(filepath.Join(root, "in"), filepath.Join(root, "out"), filepath.Join(root, "archive"))
	require.NoError(t, fm.EnsureDirectories())

	src := filepath.Join(fm.InputDir, "2024-Q3.xlsx")
	require.NoError(t, os.WriteFile(src, validWorkbook(t), 0o644))

	res := New(st, nil, Options{FileManager: fm, Logger: quietLogger}).Run(ctx, Upload{Path: src})
	require.NoError(t, res.Error)
	assert.Equal(t, src, res.FilePath)
	assert.NoFileExists(t, src)
	assert.FileExists(t, res.ArchivePath)
}

func TestRun_FallbackDirectoryAndWarnings(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	dir := types.Directory{Companies: map[string]string{"Fairfield": "Acme Ltd"}}

	res := New(st, nil, Options{FallbackDirectory: dir, Logger: quietLogger}).
		Run(ctx, Upload{FileName: "x.xlsx", Data: validWorkbook(t), Period: q3()})
	require.NoError(t, res.Error)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, validation.RuleUnknownBranch, res.Warnings[0].Rule)
	assert.Equal(t, "Hollybush", res.Warnings[0].Branch)

	q, err := st.LoadQuarter(ctx, "2024-Q3")
	require.NoError(t, err)
	assert.Equal(t, "Acme Ltd", q.Branches[0].Company)
	assert.Equal(t, "Unknown", q.Branches[1].Company)
}

func TestRun_WarningsAsErrors(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	dir := types.Directory{Companies: map[string]string{"Fairfield": "Acme Ltd"}}

	res := New(st, nil, Options{
		FallbackDirectory: dir,
		Validation:        validation.ValidationOptions{TreatWarningsAsErrors: true},
		Logger:            quietLogger,
	}).Run(ctx, Upload{FileName: "x.xlsx", Data: validWorkbook(t), Period: q3()})

	assert.False(t, res.Success)
	assert.True(t, errors.Is(res.Error, ErrValidationFailed))
	_, err := st.LoadQuarter(ctx, "2024-Q3")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRun_NoInput(t *testing.T) {
	res := New(newStore(t), nil, Options{Logger: quietLogger}).Run(context.Background(), Upload{FileName: "a.xlsx", Period: q3()})
	assert.Error(t, res.Error)
}

func TestProcessInbox(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	root := t.TempDir()
	fm := utils.NewFileManager(filepath.Join(root, "in"), filepath.Join(root, "out"), filepath.Join(root, "archive"))
	require.NoError(t, fm.EnsureDirectories())

	good := validWorkbook(t)
	bad := workbook(t, map[string]any{"A1": "nothing here"})
	for name, data := range map[string][]byte{
		"2024-Q2.xlsx": good,
		"2024-Q3.xlsx": good,
		"2024-Q4.xlsx": bad,
	} {
		require.NoError(t, os.WriteFile(filepath.Join(fm.InputDir, name), data, 0o644))
	}

	var seen int
	c := New(st, nil, Options{FileManager: fm, Logger: quietLogger})
	report, err := c.ProcessInbox(ctx, BatchOptions{
		MaxConcurrency:  2,
		ContinueOnError: true,
		OnResult:        func(Result) { seen++ },
	})
	require.NoError(t, err)

	assert.Equal(t, 3, seen)
	require.Len(t, report.Results, 3)
	assert.Equal(t, 3, report.Summary.TotalFiles)
	assert.Equal(t, 2, report.Summary.SuccessfulFiles)
	assert.Equal(t, 1, report.Summary.FailedFiles)
	assert.Equal(t, 4, report.Summary.TotalBranches)
	assert.Equal(t, "parse", report.Summary.FailedFilesList[0].ErrorType)

	assert.FileExists(t, report.SummaryPath)
	assert.FileExists(t, report.ErrorLogPath)
	assert.FileExists(t, filepath.Join(fm.InputDir, "2024-Q4.xlsx"))
	assert.NoFileExists(t, filepath.Join(fm.InputDir, "2024-Q3.xlsx"))

	list, err := st.ListQuarters(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestProcessInbox_NoFileManager(t *testing.T) {
	_, err := New(newStore(t), nil, Options{Logger: quietLogger}).ProcessInbox(context.Background(), BatchOptions{})
	assert.ErrorIs(t, err, ErrNoFileManager)
}

func TestRunBatch_StopsAfterFailure(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "2024-Q1.xlsx")
	require.NoError(t, os.WriteFile(bad, []byte("not a workbook"), 0o644))

	report := New(newStore(t), nil, Options{Logger: quietLogger}).
		RunBatch(context.Background(), []string{bad}, BatchOptions{MaxConcurrency: 1})
	require.Len(t, report.Failed(), 1)
	assert.Equal(t, "read", ErrorType(report.Results[0].Error))
}

func TestErrorType(t *testing.T) {
	assert.Empty(t, ErrorType(nil))
	assert.Equal(t, "skipped", ErrorType(context.Canceled))
	assert.Equal(t, "validation", ErrorType(ErrValidationFailed))
	assert.Equal(t, "store", ErrorType(ErrSaveFailed))
	assert.Equal(t, "parse", ErrorType(pnl.ErrNoBranchesDetected))
	assert.Equal(t, "io", ErrorType(errors.New("disk full")))
}
