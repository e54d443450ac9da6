package converter

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/branchpnl/pnl-dashboard/pkg/utils"
)

// ErrNoFileManager is returned by ProcessInbox when no inbox is configured.
var ErrNoFileManager = errors.New("no inbox directory configured")

// BatchOptions controls a batch run.
type BatchOptions struct {
	// MaxConcurrency bounds the uploads in flight. Values below 1 mean 1.
	MaxConcurrency int

	// ContinueOnError keeps going after a failed file. When false, files not
	// yet started are skipped after the first failure.
	ContinueOnError bool

	// OnResult is called once per file as it finishes, from the collecting
	// goroutine.
	OnResult func(Result)
}

// BatchReport is the outcome of a batch run.
type BatchReport struct {
	// Results are sorted by file path.
	Results []Result

	Summary utils.ProcessingSummary

	// SummaryPath and ErrorLogPath are set by ProcessInbox when written.
	SummaryPath  string
	ErrorLogPath string
}

// Failed returns the failed results.
func (r BatchReport) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.Success {
			out = append(out, res)
		}
	}
	return out
}

// RunBatch uploads files concurrently. Each file is independent: a failure
// leaves that file in place and does not touch the store.
func (c *Converter) RunBatch(ctx context.Context, files []string, opts BatchOptions) BatchReport {
	report := BatchReport{Summary: utils.NewProcessingSummary(time.Now())}
	report.Summary.DryRun = c.opts.DryRun
	report.Summary.TotalFiles = len(files)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	limit := opts.MaxConcurrency
	if limit < 1 {
		limit = 1
	}
	sem := make(chan struct{}, limit)

	var wg sync.WaitGroup
	results := make(chan Result, len(files))

	for _, file := range files {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results <- Result{FilePath: path, Error: fmt.Errorf("skipped: %w", ctx.Err()), Message: "skipped"}
				return
			}
			if err := ctx.Err(); err != nil {
				results <- Result{FilePath: path, Error: fmt.Errorf("skipped: %w", err), Message: "skipped"}
				return
			}

			res := c.Run(ctx, Upload{Path: path})
			if !res.Success && !opts.ContinueOnError {
				cancel()
			}
			results <- res
		}(file)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		if opts.OnResult != nil {
			opts.OnResult(res)
		}
		report.Results = append(report.Results, res)
	}
	sort.Slice(report.Results, func(i, j int) bool {
		return report.Results[i].FilePath < report.Results[j].FilePath
	})

	s := &report.Summary
	for _, res := range report.Results {
		if res.Success {
			s.SuccessfulFiles++
			s.TotalBranches += res.Stats.Branches
			s.TotalLineItems += res.Stats.LineItems
			s.Warnings += res.Stats.Warnings
			s.ProcessedFiles = append(s.ProcessedFiles, utils.ProcessedFileInfo{
				InputFile:   filepath.Base(res.FilePath),
				QuarterID:   res.QuarterID,
				ArchivePath: res.ArchivePath,
				Branches:    res.Stats.Branches,
				LineItems:   res.Stats.LineItems,
				Warnings:    res.Stats.Warnings,
				ProcessTime: res.Stats.ProcessingTime,
			})
			continue
		}
		s.FailedFiles++
		s.FailedFilesList = append(s.FailedFilesList, utils.FailedFileInfo{
			InputFile:    filepath.Base(res.FilePath),
			ErrorMessage: res.Error.Error(),
			ErrorType:    ErrorType(res.Error),
		})
	}
	s.EndTime = time.Now()
	return report
}

// ProcessInbox uploads every spreadsheet in the inbox and writes the
// processing summary, plus an error log when any file failed.
func (c *Converter) ProcessInbox(ctx context.Context, opts BatchOptions) (BatchReport, error) {
	fm := c.opts.FileManager
	if fm == nil {
		return BatchReport{}, ErrNoFileManager
	}
	if err := fm.EnsureDirectories(); err != nil {
		return BatchReport{}, err
	}
	files, err := fm.DiscoverInputFiles()
	if err != nil {
		return BatchReport{}, err
	}
	c.logger.Info("inbox scan", "dir", fm.InputDir, "files", len(files))
	if len(files) == 0 {
		return BatchReport{Summary: utils.NewProcessingSummary(time.Now())}, nil
	}

	report := c.RunBatch(ctx, files, opts)

	if fm.OutputDir != "" {
		path, err := utils.WriteSummaryLog(report.Summary, fm.OutputDir)
		if err != nil {
			c.logger.Warn("failed to write summary", "error", err)
		}
		report.SummaryPath = path

		var entries []utils.ErrorLogEntry
		for _, res := range report.Failed() {
			entries = append(entries, utils.ErrorLogEntry{
				Timestamp:    report.Summary.EndTime,
				FileName:     filepath.Base(res.FilePath),
				ErrorType:    ErrorType(res.Error),
				ErrorMessage: res.Error.Error(),
				QuarterID:    res.QuarterID,
			})
		}
		path, err = utils.WriteErrorLog(entries, fm.OutputDir)
		if err != nil {
			c.logger.Warn("failed to write error log", "error", err)
		}
		report.ErrorLogPath = path
	}

	c.logger.Info("inbox processed",
		"run_id", report.Summary.RunID,
		"successful", report.Summary.SuccessfulFiles,
		"failed", report.Summary.FailedFiles)
	return report, nil
}
