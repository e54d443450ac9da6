package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/branchpnl/pnl-dashboard/internal/dashboard"
)

var quartersCmd = &cobra.Command{
	Use:   "quarters",
	Short: "List, show or delete stored quarters",
}

var quartersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored quarters, most recent upload first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		list, err := st.ListQuarters(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(list) == 0 {
			fmt.Fprintln(out, dimStyle.Render("No quarters uploaded yet."))
			return nil
		}

		tw := newTable(out)
		writeHeader(tw, "ID", "Label", "Branches", "Uploaded")
		for _, q := range list {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", q.ID, q.Label, q.LocationCount, q.UploadedAt.Local().Format("2006-01-02 15:04"))
		}
		return tw.Flush()
	},
}

var (
	showCompany string
	showSort    string
	showAsc     bool
	showAll     bool
)

var quartersShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show the branches of a quarter with totals",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
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
		query.Company = showCompany
		if showSort != "" {
			query.SortKey = showSort
			query.SortDesc = !showAsc
		}
		rows := dashboard.Apply(q, states, query)
		if showAll {
			query.ShowArchived = true
			rows = append(rows, dashboard.Apply(q, states, query)...)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s\n\n", titleStyle.Render(q.Label), dimStyle.Render(q.SourceFile))

		tw := newTable(out)
		writeHeader(tw, "ID", "Branch", "Company", "Net Income", "3%", "5%", "Notes")
		for _, r := range rows {
			name := r.BranchName
			if r.State.IsArchived() {
				name += dimStyle.Render(" (archived)")
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				r.ID, name, r.Company, amount(r.NetIncome), amount(r.PNL3), amount(r.PNL5), r.State.NotesText())
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		t := dashboard.Summarize(q, states, rows)
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Branches:    %d shown, %d active of %d\n", t.Count, t.Active, t.Total)
		fmt.Fprintf(out, "Net income:  %s\n", t.NetIncome.StringFixed(2))
		fmt.Fprintf(out, "5%% total:    %s\n", t.PNL5.StringFixed(2))
		if t.IncomeKey != "" && t.PayrollKey != "" {
			fmt.Fprintf(out, "Payroll:     %s of %s (%s%%)\n",
				t.Payroll.StringFixed(2), t.Income.StringFixed(2), t.PayrollPct.StringFixed(1))
		}
		return nil
	},
}

var quartersDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a quarter and its branch notes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.DeleteQuarter(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s deleted %s\n", successStyle.Render("✓"), args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(quartersCmd)
	quartersCmd.AddCommand(quartersListCmd, quartersShowCmd, quartersDeleteCmd)

	quartersShowCmd.Flags().StringVar(&showCompany, "company", "", "only branches of this company")
	quartersShowCmd.Flags().StringVar(&showSort, "sort", "", "sort key: branchName, company, id, netIncome, pnl3, pnl5 or a line item (default pnl5)")
	quartersShowCmd.Flags().BoolVar(&showAsc, "asc", false, "sort ascending")
	quartersShowCmd.Flags().BoolVar(&showAll, "all", false, "include archived branches")
}
