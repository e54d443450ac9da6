// =============================================================================
// Branch P&L Dashboard - Upload Pipeline
// =============================================================================
//
// This module orchestrates the upload of a single quarterly workbook, from the
// raw bytes to the stored quarter document.
//
// UPLOAD PIPELINE:
//   1. Resolve the quarter (explicit period, else from the file name)
//   2. Read the workbook bytes
//   3. Load the company directory from the store
//   4. Parse the first sheet into branches
//   5. Validate the parse report
//   6. Save the quarter document (skipped on dry run)
//   7. Archive the uploaded file
//
// Any failure before step 6 leaves the store untouched.
//
// CONCURRENCY:
//   A Converter holds no per-upload state, so one instance may run several
//   uploads at once. The store is responsible for its own locking.
//
// =============================================================================

package converter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/branchpnl/pnl-dashboard/internal/pnl"
	"github.com/branchpnl/pnl-dashboard/internal/store"
	"github.com/branchpnl/pnl-dashboard/internal/types"
	"github.com/branchpnl/pnl-dashboard/internal/validation"
	"github.com/branchpnl/pnl-dashboard/internal/xlsxparser"
	"github.com/branchpnl/pnl-dashboard/pkg/utils"
)

// Pipeline errors.
var (
	// ErrValidationFailed is returned when the report has fatal findings.
	ErrValidationFailed = errors.New("validation failed")

	// ErrSaveFailed wraps store errors raised while saving a quarter.
	ErrSaveFailed = errors.New("failed to save quarter")
)

// =============================================================================
// INPUT AND RESULT STRUCTURES
// =============================================================================

// Upload is one workbook to ingest. Either Path or Data must be set; when
// both are, Data is used and Path is only archived.
type Upload struct {
	// FileName selects the decoder by extension. Defaults to the base of Path.
	FileName string

	Path string
	Data []byte

	// Period is the target quarter. A zero Period is taken from FileName.
	Period types.Period
}

// Result represents the outcome of one upload.
type Result struct {
	FilePath string

	// QuarterID and Label identify the stored quarter, e.g. "2024-Q3".
	QuarterID string
	Label     string

	LocationCount int

	// ArchivePath is where the input was moved, if it was.
	ArchivePath string

	Success bool
	DryRun  bool

	// Error is nil on success.
	Error error

	// Warnings are the non-fatal validation findings.
	Warnings []*validation.ValidationError

	Stats ProcessingStats

	// Message is the status line shown to the user.
	Message string
}

// ProcessingStats contains statistics about the upload.
type ProcessingStats struct {
	Branches       int
	LineItems      int
	Warnings       int
	ProcessingTime time.Duration
}

// Options configures a Converter.
type Options struct {
	// DryRun parses and validates without touching the store or the inbox.
	DryRun bool

	// Validation controls warning severity.
	Validation validation.ValidationOptions

	// FallbackDirectory is used when the store holds no directory yet.
	FallbackDirectory types.Directory

	// FileManager archives uploaded files. Nil disables archiving.
	FileManager *utils.FileManager

	Logger *slog.Logger
}

// =============================================================================
// CONVERTER STRUCTURE
// =============================================================================

// Converter runs the upload pipeline.
type Converter struct {
	store  store.Store
	parser *pnl.Parser
	opts   Options
	logger *slog.Logger
}

// New creates a Converter. A nil parser uses the default options.
func New(st store.Store, parser *pnl.Parser, opts Options) *Converter {
	if parser == nil {
		parser = pnl.New(pnl.Options{Logger: opts.Logger})
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{store: st, parser: parser, opts: opts, logger: logger}
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

// Run executes the upload pipeline for one workbook.
func (c *Converter) Run(ctx context.Context, up Upload) Result {
	startTime := time.Now()
	name := up.FileName
	if name == "" {
		name = filepath.Base(up.Path)
	}
	result := Result{FilePath: up.Path, DryRun: c.opts.DryRun}
	if result.FilePath == "" {
		result.FilePath = name
	}

	fail := func(err error) Result {
		result.Error = err
		result.Message = err.Error()
		result.Stats.ProcessingTime = time.Since(startTime)
		return result
	}

	// =========================================================================
	// STEP 1: RESOLVE QUARTER
	// =========================================================================

	period := up.Period
	if period == (types.Period{}) {
		p, err := types.ParsePeriodFromFilename(name)
		if err != nil {
			return fail(err)
		}
		period = p
	}
	result.QuarterID = period.ID()
	result.Label = period.Label()

	c.logger.Info("processing upload", "file", name, "quarter", result.QuarterID)

	// =========================================================================
	// STEP 2: READ WORKBOOK
	// =========================================================================

	data := up.Data
	if data == nil {
		if up.Path == "" {
			return fail(errors.New("upload has neither a path nor data"))
		}
		b, err := os.ReadFile(up.Path)
		if err != nil {
			return fail(fmt.Errorf("failed to read %s: %w", name, err))
		}
		data = b
	}

	// =========================================================================
	// STEP 3: LOAD DIRECTORY
	// =========================================================================

	dir, err := c.store.LoadDirectory(ctx)
	if errors.Is(err, store.ErrNotFound) {
		dir, err = c.opts.FallbackDirectory, nil
	}
	if err != nil {
		return fail(fmt.Errorf("failed to load directory: %w", err))
	}

	// =========================================================================
	// STEP 4: PARSE
	// =========================================================================
	// Parser errors carry the message shown to the user, so they are not
	// wrapped again.

	report, err := c.parser.ParseFile(name, data, dir)
	if err != nil {
		return fail(err)
	}
	result.LocationCount = report.Result.LocationCount
	result.Stats.Branches = len(report.Result.Branches)
	result.Stats.LineItems = len(report.Result.LineItemKeys)

	// =========================================================================
	// STEP 5: VALIDATE
	// =========================================================================

	vr := validation.NewValidatorWithOptions(dir, c.opts.Validation).Validate(report)
	result.Warnings = vr.Warnings()
	result.Stats.Warnings = vr.WarningCount
	for _, w := range result.Warnings {
		c.logger.Warn("validation warning", "file", name, "finding", w.Error())
	}
	if !vr.IsValid {
		return fail(fmt.Errorf("%w with %d error(s)\n%s", ErrValidationFailed, vr.ErrorCount, validation.FormatErrors(vr.Errors)))
	}

	if c.opts.DryRun {
		result.Success = true
		result.Message = fmt.Sprintf("Parsed %d branches", result.LocationCount)
		result.Stats.ProcessingTime = time.Since(startTime)
		return result
	}

	// =========================================================================
	// STEP 6: SAVE QUARTER
	// =========================================================================

	q := &types.Quarter{
		ID:          period.ID(),
		Label:       period.Label(),
		DateRange:   period.Label(),
		SourceFile:  name,
		ParseResult: report.Result,
	}
	if err := c.store.SaveQuarter(ctx, q); err != nil {
		return fail(fmt.Errorf("%w %s: %w", ErrSaveFailed, q.ID, err))
	}
	c.logger.Info("quarter saved", "quarter", q.ID, "branches", result.LocationCount)

	// =========================================================================
	// STEP 7: ARCHIVE INPUT
	// =========================================================================
	// The quarter is already stored; an archive failure is only logged.

	if c.opts.FileManager != nil && up.Path != "" {
		archived, err := c.opts.FileManager.ArchiveInputFile(up.Path)
		if err != nil {
			c.logger.Warn("failed to archive upload", "file", up.Path, "error", err)
		} else {
			result.ArchivePath = archived
		}
	}

	// =========================================================================
	// COMPLETE
	// =========================================================================

	result.Success = true
	result.Message = fmt.Sprintf("Success! %d branches uploaded for %s.", result.LocationCount, result.Label)
	result.Stats.ProcessingTime = time.Since(startTime)
	return result
}

// ErrorType classifies a pipeline error for logs and summaries.
func ErrorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "skipped"
	case errors.Is(err, types.ErrInvalidPeriod):
		return "period"
	case errors.Is(err, xlsxparser.ErrUnsupportedFormat):
		return "format"
	case errors.Is(err, pnl.ErrCellRead):
		return "read"
	case errors.Is(err, pnl.ErrLayoutNotRecognized),
		errors.Is(err, pnl.ErrNoBranchesDetected),
		errors.Is(err, pnl.ErrNoLineItemsDetected):
		return "parse"
	case errors.Is(err, ErrValidationFailed):
		return "validation"
	case errors.Is(err, ErrSaveFailed):
		return "store"
	default:
		return "io"
	}
}
