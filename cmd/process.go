// =============================================================================
// Branch P&L Dashboard - Process Command
// =============================================================================
//
// This file defines the 'process' command, which uploads every workbook in
// the inbox directory.
//
// COMMAND USAGE:
//   pnl process [--dry-run]
//
// PROCESSING PIPELINE:
//   1. Discover .xlsx/.xls files in the input directory
//   2. For each file (concurrently, bounded by max_concurrency):
//      a. Derive the quarter from the file name
//      b. Parse and validate the first sheet
//      c. Save the quarter
//      d. Move the file to the input archive
//   3. Write the processing summary and, on failures, the error log
//
// On error the workbook stays in the inbox and the other files continue
// unless continue_on_error is false.
//
// =============================================================================

package cmd

import (
	"fmt"
	"log/slog"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/branchpnl/pnl-dashboard/internal/converter"
)

var processDryRun bool

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Upload every workbook in the inbox directory",
	Long: `The process command scans the input directory for quarterly workbooks and
uploads each one as the quarter named in its file name (2024-Q3.xlsx,
PnL_Q3_2024.xlsx, ...).

On success:
  - The quarter is stored, replacing an earlier upload of the same quarter
  - The workbook is moved to the input archive

On error:
  - The workbook remains in the input directory
  - An error log is written to the output directory`,
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)
	processCmd.Flags().BoolVar(&processDryRun, "dry-run", false, "parse and validate without saving or archiving")
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, titleStyle.Render("=== Branch P&L Inbox ==="))

	fm := newFileManager()
	if err := fm.EnsureDirectories(); err != nil {
		return err
	}
	files, err := fm.DiscoverInputFiles()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Fprintf(out, "No workbooks found in %s\n", fm.InputDir)
		return nil
	}
	fmt.Fprintf(out, "Found %d file(s) to process\n", len(files))

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	conv, err := newConverter(st, fm, processDryRun)
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Uploading workbooks...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	report, err := conv.ProcessInbox(ctx, batchOptions(func(converter.Result) {
		if err := bar.Add(1); err != nil {
			slog.Warn("Failed to update progress bar", "error", err)
		}
	}))
	_ = bar.Finish()
	fmt.Fprintln(out)
	if err != nil {
		return err
	}

	for _, res := range report.Results {
		printResult(out, res)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, renderSummary(report.Summary))

	if report.SummaryPath != "" {
		fmt.Fprintf(out, "Summary:   %s\n", report.SummaryPath)
	}
	if report.ErrorLogPath != "" {
		fmt.Fprintf(out, "Error log: %s\n", report.ErrorLogPath)
	}
	if n := len(report.Failed()); n > 0 {
		return fmt.Errorf("%d of %d file(s) failed", n, len(report.Results))
	}
	return nil
}
