// =============================================================================
// Branch P&L Dashboard - Export Command
// =============================================================================
//
// COMMAND USAGE:
//   pnl export ID [--format csv|xlsx] [--out PATH] [--columns k1,k2] [--company C]
//
// Writes the active branches of a quarter, sorted by the 5% figure, to
// OUTPUT_DIR/Branch_PnL_<ID>_Export.<ext> unless --out is given.
//
// =============================================================================

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/branchpnl/pnl-dashboard/internal/dashboard"
	"github.com/branchpnl/pnl-dashboard/internal/export"
)

var (
	exportFormat  string
	exportOut     string
	exportColumns []string
	exportCompany string
	exportNoBOM   bool
)

var exportCmd = &cobra.Command{
	Use:   "export ID",
	Short: "Export a quarter to CSV or Excel",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "csv or xlsx")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default is the output directory)")
	exportCmd.Flags().StringSliceVar(&exportColumns, "columns", nil, "line-item keys to include (default all)")
	exportCmd.Flags().StringVar(&exportCompany, "company", "", "only branches of this company")
	exportCmd.Flags().BoolVar(&exportNoBOM, "no-bom", false, "omit the UTF-8 byte order mark from CSV output")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	format, err := export.ParseFormat(exportFormat)
	if err != nil {
		return err
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	q, err := st.LoadQuarter(ctx, args[0])
	if err != nil {
		return err
	}
	states, err := st.LoadBranchStates(ctx, q.ID)
	if err != nil {
		return err
	}

	query := dashboard.DefaultQuery()
	query.Company = exportCompany
	rows := dashboard.Apply(q, states, query)

	opts := export.DefaultOptions()
	opts.Columns = exportColumns
	opts.ByteOrderMark = !exportNoBOM
	table := export.Build(q, dashboard.Branches(rows), states, opts)

	path := exportOut
	if path == "" {
		if err := os.MkdirAll(appConfig.OutputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		path = filepath.Join(appConfig.OutputDir, export.FileName(q.ID, format))
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := export.Write(f, format, table, opts); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	logger.Info("quarter exported", "quarter", q.ID, "format", format, "rows", len(table.Rows))
	fmt.Fprintf(cmd.OutOrStdout(), "%s %d branches written to %s\n", successStyle.Render("✓"), len(table.Rows), path)
	return nil
}
