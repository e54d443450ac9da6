// =============================================================================
// Branch P&L Dashboard - Main Entry Point
// =============================================================================
//
// This is the main entry point for the pnl CLI. It delegates to the cmd
// package, which holds the Cobra command tree.
//
// USAGE:
//   pnl parse FILE         - Parse a workbook and print the branches
//   pnl upload FILE        - Parse and store one quarter
//   pnl process            - Upload every workbook in the inbox
//   pnl quarters list      - List stored quarters
//   pnl export ID          - Export a quarter to CSV or Excel
//   pnl serve              - Serve the dashboard API
//
// ARCHITECTURE:
//   - cmd/                 : CLI command definitions (Cobra)
//   - internal/xlsxparser  : workbook decoding into a cell grid
//   - internal/pnl         : header detection, line items, branch records
//   - internal/validation  : findings on a parse report
//   - internal/converter   : the upload pipeline and inbox batches
//   - internal/store       : sqlite / postgres document store
//   - internal/dashboard   : filtering, sorting and totals
//   - internal/export      : CSV and XLSX writers
//   - internal/server      : JSON API and the scheduled inbox job
//   - pkg/utils            : inbox, archive and run logs
//
// =============================================================================

package main

import (
	"github.com/branchpnl/pnl-dashboard/cmd"
)

func main() {
	cmd.Execute()
}
