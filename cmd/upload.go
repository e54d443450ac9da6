// =============================================================================
// Branch P&L Dashboard - Upload Command
// =============================================================================
//
// COMMAND USAGE:
//   pnl upload FILE --year 2024 --quarter Q3 [--dry-run] [--archive]
//
// Runs the full pipeline for one workbook: parse, validate, save the
// quarter (replacing any earlier upload of the same quarter) and, with
// --archive, move the file to the input archive.
//
// =============================================================================

package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/branchpnl/pnl-dashboard/internal/converter"
	"github.com/branchpnl/pnl-dashboard/internal/types"
	"github.com/branchpnl/pnl-dashboard/pkg/utils"
)

var (
	uploadYear    int
	uploadQuarter string
	uploadDryRun  bool
	uploadArchive bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload FILE",
	Short: "Upload one quarterly workbook",
	Long: `Parse a quarterly P&L workbook and store it as the given quarter.

Without --year and --quarter the quarter is taken from the file name, e.g.
2024-Q3.xlsx or PnL_Q3_2024.xlsx.`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().IntVar(&uploadYear, "year", 0, "four digit year of the quarter")
	uploadCmd.Flags().StringVar(&uploadQuarter, "quarter", "", "quarter, Q1 to Q4")
	uploadCmd.Flags().BoolVar(&uploadDryRun, "dry-run", false, "parse and validate without saving")
	uploadCmd.Flags().BoolVar(&uploadArchive, "archive", false, "move the file to the input archive after saving")
	uploadCmd.MarkFlagsRequiredTogether("year", "quarter")
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path := args[0]

	var period types.Period
	if uploadQuarter != "" {
		p, err := types.NewPeriod(uploadYear, uploadQuarter)
		if err != nil {
			return err
		}
		period = p
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	var fm *utils.FileManager
	if uploadArchive {
		fm = newFileManager()
		if err := fm.EnsureDirectories(); err != nil {
			return err
		}
	}
	conv, err := newConverter(st, fm, uploadDryRun)
	if err != nil {
		return err
	}

	res := conv.Run(ctx, converter.Upload{Path: path, Period: period})
	out := cmd.OutOrStdout()
	printResult(out, res)
	if res.Error != nil {
		return fmt.Errorf("upload of %s failed (%s)", filepath.Base(path), converter.ErrorType(res.Error))
	}
	if res.ArchivePath != "" {
		fmt.Fprintf(out, "  %s archived to %s\n", dimStyle.Render("-"), res.ArchivePath)
	}
	return nil
}
