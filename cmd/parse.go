// =============================================================================
// Branch P&L Dashboard - Parse Command
// =============================================================================
//
// COMMAND USAGE:
//   pnl parse FILE [--json] [--report PATH]
//
// Parses a workbook against the stored directory without saving anything.
// Prints where the header was found, the branches and the line items, or
// the full ParseResult as JSON.
//
// =============================================================================

package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/branchpnl/pnl-dashboard/internal/store"
	"github.com/branchpnl/pnl-dashboard/internal/validation"
)

var (
	parseJSON   bool
	parseReport string
)

var parseCmd = &cobra.Command{
	Use:   "parse FILE",
	Short: "Parse a P&L workbook and print the result",
	Args:  cobra.ExactArgs(1),
	RunE:  runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)
	parseCmd.Flags().BoolVar(&parseJSON, "json", false, "print the parse result as JSON")
	parseCmd.Flags().StringVar(&parseReport, "report", "", "write the validation findings to this file")
}

func runParse(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path := args[0]

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	dir, err := appConfig.SeedDirectory()
	if err != nil {
		return err
	}
	// A reachable store wins over the seed directory; parse must work offline.
	if st, err := store.Open(ctx, appConfig.Store.Driver, appConfig.Store.DSN); err == nil {
		defer st.Close()
		stored, err := st.LoadDirectory(ctx)
		switch {
		case err == nil:
			dir = stored
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
	} else {
		logger.Debug("store unavailable, using seed directory", "error", err)
	}

	parser, err := newParser()
	if err != nil {
		return err
	}
	report, err := parser.ParseFile(filepath.Base(path), data, dir)
	if err != nil {
		return err
	}

	vr := validation.Validate(report, dir)
	if parseReport != "" {
		if err := validation.WriteErrorLog(path, vr.Errors, parseReport); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if parseJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report.Result)
	}

	res := report.Result
	fmt.Fprintln(out, titleStyle.Render(filepath.Base(path)))
	fmt.Fprintf(out, "Header row:   %d\n", report.Layout.LocationRow+1)
	fmt.Fprintf(out, "Scan window:  rows %d-%d\n", report.Layout.ScanStart+1, report.Layout.ScanEnd+1)
	if report.BottomLine >= 0 {
		fmt.Fprintf(out, "Bottom line:  row %d\n", report.BottomLine+1)
	} else {
		fmt.Fprintf(out, "Bottom line:  %s\n", dimStyle.Render("not found, using fallback keys"))
	}
	fmt.Fprintf(out, "Branches:     %d\n", res.LocationCount)
	fmt.Fprintf(out, "Line items:   %d\n\n", len(res.LineItemKeys))

	tw := newTable(out)
	writeHeader(tw, "ID", "Branch", "Company", "Net Income", "3%", "5%")
	for _, b := range res.Branches {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			b.ID, b.BranchName, b.Company, amount(b.NetIncome), amount(b.PNL3), amount(b.PNL5))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(vr.Errors) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	for _, rc := range validation.CountByRule(vr.Errors) {
		fmt.Fprintf(out, "%s %-28s %d\n", warnStyle.Render("!"), rc.Rule, rc.Count)
	}
	for _, w := range vr.Errors {
		fmt.Fprintf(out, "  %s\n", dimStyle.Render(w.Error()))
	}
	return nil
}

func amount(v *float64) string {
	if v == nil {
		return dimStyle.Render("-")
	}
	return decimal.NewFromFloat(*v).StringFixed(2)
}
