package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/branchpnl/pnl-dashboard/internal/config"
	"github.com/branchpnl/pnl-dashboard/internal/types"
)

var directoryCmd = &cobra.Command{
	Use:   "directory",
	Short: "Manage the branch to company and branch id maps",
	Long: `The directory maps branch names, as they appear in the workbook header,
to a company and a branch id. Names are matched exactly. Branches missing
from the directory are stored with company "Unknown" and id "-".`,
}

var directoryShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored directory as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		dir, err := st.LoadDirectory(ctx)
		if err != nil {
			return err
		}
		data, err := config.MarshalDirectory(dir)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var directoryImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Replace the stored directory with a YAML or JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := config.LoadDirectoryFile(args[0])
		if err != nil {
			return err
		}
		return saveDirectory(cmd, dir)
	},
}

var directoryResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore the built-in directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := config.DefaultDirectory()
		if err != nil {
			return err
		}
		return saveDirectory(cmd, dir)
	},
}

func saveDirectory(cmd *cobra.Command, dir types.Directory) error {
	ctx := cmd.Context()
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.SaveDirectory(ctx, dir); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s directory saved: %d companies, %d branch ids\n",
		successStyle.Render("✓"), len(dir.Companies), len(dir.BranchIDs))
	return nil
}

func init() {
	rootCmd.AddCommand(directoryCmd)
	directoryCmd.AddCommand(directoryShowCmd, directoryImportCmd, directoryResetCmd)
}
