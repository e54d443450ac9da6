// =============================================================================
// Branch P&L Dashboard - Validation Engine
// =============================================================================
//
// This module inspects a parsed P&L report before it is stored. The parser
// already rejects sheets it cannot read; validation looks for results that
// are readable but suspicious:
//   - Line-item keys that appear more than once (the later row wins)
//   - No bottom-line row (net income came from the fallback keys)
//   - Branches with no net income figure
//   - Branch names missing from the company directory
//   - The same branch name in two columns
//
// ERROR HANDLING:
//   - Findings are collected, not returned one by one
//   - Each finding names the branch, line item and sheet row where possible
//   - Findings are warnings (store anyway) or errors (do not store)
//
// =============================================================================

package validation

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/branchpnl/pnl-dashboard/internal/pnl"
	"github.com/branchpnl/pnl-dashboard/internal/types"
)

// =============================================================================
// VALIDATION ERROR TYPES
// =============================================================================

// Severity levels.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Rule names.
const (
	RuleBranchesRequired = "branches.required"
	RuleDuplicateKey     = "line_item.duplicate_key"
	RuleBottomLine       = "bottom_line.missing"
	RuleNetIncome        = "net_income.missing"
	RuleUnknownBranch    = "directory.unknown_branch"
	RuleDuplicateBranch  = "branch.duplicate_name"
)

// ValidationError is a single finding.
type ValidationError struct {
	// Severity is SeverityError (do not store) or SeverityWarning.
	Severity string

	// Rule is the rule that produced the finding.
	Rule string

	// Branch is the branch the finding is about, if any.
	Branch string

	// Field is the line-item key the finding is about, if any.
	Field string

	// Rows are the 1-based sheet rows involved, if any.
	Rows []int

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", strings.ToUpper(e.Severity), e.Rule)
	if e.Branch != "" {
		fmt.Fprintf(&b, ", Branch '%s'", e.Branch)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, ", Field '%s'", e.Field)
	}
	if len(e.Rows) > 0 {
		rows := make([]string, len(e.Rows))
		for i, r := range e.Rows {
			rows[i] = fmt.Sprint(r)
		}
		fmt.Fprintf(&b, ", rows %s", strings.Join(rows, ","))
	}
	fmt.Fprintf(&b, ": %s", e.Message)
	return b.String()
}

// =============================================================================
// VALIDATION RESULT
// =============================================================================

// ValidationResult contains the results of validation.
type ValidationResult struct {
	// IsValid is true if there are no fatal errors.
	IsValid bool

	// Errors contains all findings, warnings included.
	Errors []*ValidationError

	ErrorCount   int
	WarningCount int

	// BranchesValidated is the number of branches inspected.
	BranchesValidated int
}

// Warnings returns the non-fatal findings.
func (r *ValidationResult) Warnings() []*ValidationError {
	var out []*ValidationError
	for _, e := range r.Errors {
		if e.Severity == SeverityWarning {
			out = append(out, e)
		}
	}
	return out
}

// =============================================================================
// VALIDATOR
// =============================================================================

// ValidationOptions contains options for validation.
type ValidationOptions struct {
	// TreatWarningsAsErrors makes every warning fatal.
	TreatWarningsAsErrors bool

	// SkipDirectoryCheck disables the unknown-branch rule. The rule is also
	// skipped when the directory is empty.
	SkipDirectoryCheck bool
}

// Validator checks parse reports.
type Validator struct {
	dir     types.Directory
	options ValidationOptions
}

// NewValidator creates a validator with default options.
func NewValidator(dir types.Directory) *Validator {
	return NewValidatorWithOptions(dir, ValidationOptions{})
}

// NewValidatorWithOptions creates a validator with custom options.
func NewValidatorWithOptions(dir types.Directory, options ValidationOptions) *Validator {
	return &Validator{dir: dir, options: options}
}

// Validate is a convenience wrapper using default options.
func Validate(report *pnl.Report, dir types.Directory) *ValidationResult {
	return NewValidator(dir).Validate(report)
}

// Validate runs every rule against the report.
func (v *Validator) Validate(report *pnl.Report) *ValidationResult {
	result := &ValidationResult{BranchesValidated: len(report.Result.Branches)}

	var findings []*ValidationError
	findings = append(findings, v.checkBranches(report.Result)...)
	findings = append(findings, v.checkDuplicateKeys(report.Items)...)
	if report.BottomLine < 0 {
		findings = append(findings, &ValidationError{
			Severity: SeverityWarning,
			Rule:     RuleBottomLine,
			Message:  "no \"Net Income\" row found; net income taken from fallback line items",
		})
	}

	for _, f := range findings {
		if v.options.TreatWarningsAsErrors {
			f.Severity = SeverityError
		}
		if f.Severity == SeverityError {
			result.ErrorCount++
		} else {
			result.WarningCount++
		}
	}
	result.Errors = findings
	result.IsValid = result.ErrorCount == 0
	return result
}

func (v *Validator) checkBranches(res types.ParseResult) []*ValidationError {
	if len(res.Branches) == 0 {
		return []*ValidationError{{
			Severity: SeverityError,
			Rule:     RuleBranchesRequired,
			Message:  "report contains no branches",
		}}
	}

	var out []*ValidationError
	checkDir := !v.options.SkipDirectoryCheck && !v.dir.IsEmpty()
	seen := make(map[string]bool, len(res.Branches))

	for _, b := range res.Branches {
		if seen[b.BranchName] {
			out = append(out, &ValidationError{
				Severity: SeverityWarning,
				Rule:     RuleDuplicateBranch,
				Branch:   b.BranchName,
				Message:  "branch name appears in more than one column; notes and archive state are shared",
			})
		}
		seen[b.BranchName] = true

		if b.NetIncome == nil {
			out = append(out, &ValidationError{
				Severity: SeverityWarning,
				Rule:     RuleNetIncome,
				Branch:   b.BranchName,
				Message:  "no numeric net income; profit share left empty",
			})
		}

		if checkDir {
			if _, ok := v.dir.Companies[b.BranchName]; !ok {
				out = append(out, &ValidationError{
					Severity: SeverityWarning,
					Rule:     RuleUnknownBranch,
					Branch:   b.BranchName,
					Message:  "branch not in directory; company recorded as Unknown",
				})
			}
		}
	}
	return out
}

func (v *Validator) checkDuplicateKeys(items []pnl.LineItem) []*ValidationError {
	rows := make(map[string][]int)
	var order []string
	for _, item := range items {
		if _, ok := rows[item.Key]; !ok {
			order = append(order, item.Key)
		}
		rows[item.Key] = append(rows[item.Key], item.Row+1)
	}

	var out []*ValidationError
	for _, key := range order {
		if len(rows[key]) < 2 {
			continue
		}
		out = append(out, &ValidationError{
			Severity: SeverityWarning,
			Rule:     RuleDuplicateKey,
			Field:    key,
			Rows:     rows[key],
			Message:  fmt.Sprintf("key appears %d times; values from row %d are kept", len(rows[key]), rows[key][len(rows[key])-1]),
		})
	}
	return out
}

// =============================================================================
// ERROR FORMATTING
// =============================================================================

// FormatErrors formats findings for display or logging.
func FormatErrors(errors []*ValidationError) string {
	if len(errors) == 0 {
		return "No validation errors."
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("Validation completed with %d finding(s):\n\n", len(errors)))
	for i, err := range errors {
		builder.WriteString(fmt.Sprintf("%d. %s\n", i+1, err.Error()))
	}
	return builder.String()
}

// CountByRule tallies findings per rule, sorted by rule name.
func CountByRule(errors []*ValidationError) []RuleCount {
	counts := make(map[string]int)
	for _, e := range errors {
		counts[e.Rule]++
	}
	out := make([]RuleCount, 0, len(counts))
	for rule, n := range counts {
		out = append(out, RuleCount{Rule: rule, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rule < out[j].Rule })
	return out
}

// RuleCount is one entry of CountByRule.
type RuleCount struct {
	Rule  string
	Count int
}

// WriteErrorLog writes the findings for one source file to filePath.
func WriteErrorLog(source string, errors []*ValidationError, filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create error log: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	fmt.Fprintf(w, "Source: %s\n", source)
	fmt.Fprintf(w, "Generated: %s\n\n", time.Now().Format(time.RFC3339))
	w.WriteString(FormatErrors(errors))
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write error log: %w", err)
	}
	return nil
}
