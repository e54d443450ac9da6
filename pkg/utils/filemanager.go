// =============================================================================
// Branch P&L Dashboard - File Manager Utility
// =============================================================================
//
// This module provides file management utilities for the inbox workflow:
//   - Spreadsheet discovery in the inbox directory
//   - Archival of uploaded spreadsheets
//   - Error log and processing summary generation
//   - Directory management
//
// ARCHIVAL STRATEGY:
//   - Inbox files are moved to the archive after a successful upload
//   - Archived names carry a short unique suffix so re-uploads of the same
//     quarter never overwrite an earlier copy
//   - Failed files remain in the inbox
//   - Error logs and summaries are created in the output directory
//
// =============================================================================

package utils

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// FILE MANAGER
// =============================================================================

// FileManager handles file operations for the inbox.
type FileManager struct {
	// InputDir is the inbox scanned for spreadsheets.
	InputDir string

	// OutputDir receives error logs and summaries.
	OutputDir string

	// InputArchiveDir receives spreadsheets after a successful upload.
	InputArchiveDir string

	// UseTimestampSubdirs creates date-based subdirectories in the archive.
	// Example: input_archive/2024/01/15/2024-Q3_1a2b3c4d.xlsx
	UseTimestampSubdirs bool

	// ArchiveOnSuccess determines whether uploaded files are moved at all.
	ArchiveOnSuccess bool
}

// NewFileManager creates a new FileManager with the specified directories.
func NewFileManager(inputDir, outputDir, inputArchiveDir string) *FileManager {
	return &FileManager{
		InputDir:         inputDir,
		OutputDir:        outputDir,
		InputArchiveDir:  inputArchiveDir,
		ArchiveOnSuccess: true,
	}
}

// =============================================================================
// DIRECTORY MANAGEMENT
// =============================================================================

// EnsureDirectories creates all required directories if they don't exist.
func (fm *FileManager) EnsureDirectories() error {
	for _, dir := range []string{fm.InputDir, fm.OutputDir, fm.InputArchiveDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// =============================================================================
// FILE DISCOVERY
// =============================================================================

// spreadsheetExts are the extensions picked up from the inbox.
var spreadsheetExts = map[string]bool{
	".xlsx": true,
	".xlsm": true,
	".xls":  true,
}

// DiscoverInputFiles lists the spreadsheets in the inbox, sorted by name.
// Hidden files and Office lock files ("~$report.xlsx") are skipped.
// Subdirectories are not scanned.
func (fm *FileManager) DiscoverInputFiles() ([]string, error) {
	entries, err := os.ReadDir(fm.InputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan input directory: %w", err)
	}

	var result []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") {
			continue
		}
		if !spreadsheetExts[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		result = append(result, filepath.Join(fm.InputDir, name))
	}
	sort.Strings(result)
	return result, nil
}

// =============================================================================
// FILE ARCHIVAL
// =============================================================================

// ArchiveInputFile moves an uploaded file to the archive directory.
//
// RETURNS:
//   - The path to the archived file.
//   - An error if archival fails.
func (fm *FileManager) ArchiveInputFile(filePath string) (string, error) {
	if !fm.ArchiveOnSuccess {
		return filePath, nil
	}

	archivePath := fm.getArchivePath(fm.InputArchiveDir, filePath)

	if err := os.MkdirAll(filepath.Dir(archivePath), 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	if err := os.Rename(filePath, archivePath); err != nil {
		// Rename fails across devices; fall back to copy and delete.
		if err := copyFile(filePath, archivePath); err != nil {
			return "", fmt.Errorf("failed to copy file to archive: %w", err)
		}
		if err := os.Remove(filePath); err != nil {
			return "", fmt.Errorf("failed to remove original file: %w", err)
		}
	}

	return archivePath, nil
}

// getArchivePath constructs the archive path for a file.
func (fm *FileManager) getArchivePath(archiveDir, filePath string) string {
	fileName := ArchiveFileName(filepath.Base(filePath))

	if fm.UseTimestampSubdirs {
		now := time.Now()
		return filepath.Join(
			archiveDir,
			fmt.Sprintf("%d", now.Year()),
			fmt.Sprintf("%02d", now.Month()),
			fmt.Sprintf("%02d", now.Day()),
			fileName,
		)
	}
	return filepath.Join(archiveDir, fileName)
}

// ArchiveFileName appends a short random suffix before the extension:
// "2024-Q3.xlsx" becomes "2024-Q3_1a2b3c4d.xlsx".
func ArchiveFileName(name string) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	return fmt.Sprintf("%s_%s%s", base, uuid.New().String()[:8], ext)
}

// =============================================================================
// ERROR LOG GENERATION
// =============================================================================

// ErrorLogEntry represents a single failed or flagged file.
type ErrorLogEntry struct {
	Timestamp    time.Time
	FileName     string
	ErrorType    string
	ErrorMessage string
	QuarterID    string
}

// WriteErrorLog writes error entries to a log file in outputDir.
//
// RETURNS:
//   - The path to the error log file, or "" when there is nothing to write.
//   - An error if writing fails.
func WriteErrorLog(entries []ErrorLogEntry, outputDir string) (string, error) {
	if len(entries) == 0 {
		return "", nil
	}

	timestamp := time.Now().Format("20060102_150405")
	logPath := filepath.Join(outputDir, fmt.Sprintf("error_log_%s.txt", timestamp))

	file, err := os.Create(logPath)
	if err != nil {
		return "", fmt.Errorf("failed to create error log: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)

	fmt.Fprintf(writer, "Branch P&L Dashboard - Error Log\n"+
		"Generated: %s\n"+
		"Total Errors: %d\n"+
		"================================================================================\n\n",
		time.Now().Format("2006-01-02 15:04:05"),
		len(entries))

	for i, entry := range entries {
		fmt.Fprintf(writer, "Error #%d\n"+
			"  Timestamp:      %s\n"+
			"  File:           %s\n"+
			"  Error Type:     %s\n"+
			"  Message:        %s\n",
			i+1,
			entry.Timestamp.Format("2006-01-02 15:04:05"),
			entry.FileName,
			entry.ErrorType,
			entry.ErrorMessage)
		if entry.QuarterID != "" {
			fmt.Fprintf(writer, "  Quarter:        %s\n", entry.QuarterID)
		}
		writer.WriteString("\n")
	}

	writer.WriteString("================================================================================\n" +
		"End of Error Log\n")

	if err := writer.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush error log: %w", err)
	}
	return logPath, nil
}

// =============================================================================
// PROCESSING SUMMARY
// =============================================================================

// ProcessingSummary contains summary information about an inbox run.
type ProcessingSummary struct {
	RunID           string              `json:"runId"`
	StartTime       time.Time           `json:"startTime"`
	EndTime         time.Time           `json:"endTime"`
	DryRun          bool                `json:"dryRun"`
	TotalFiles      int                 `json:"totalFiles"`
	SuccessfulFiles int                 `json:"successfulFiles"`
	FailedFiles     int                 `json:"failedFiles"`
	TotalBranches   int                 `json:"totalBranches"`
	TotalLineItems  int                 `json:"totalLineItems"`
	Warnings        int                 `json:"warnings"`
	ProcessedFiles  []ProcessedFileInfo `json:"processedFiles"`
	FailedFilesList []FailedFileInfo    `json:"failedFilesList"`
}

// ProcessedFileInfo describes a successfully uploaded file.
type ProcessedFileInfo struct {
	InputFile   string        `json:"inputFile"`
	QuarterID   string        `json:"quarterId"`
	ArchivePath string        `json:"archivePath,omitempty"`
	Branches    int           `json:"branches"`
	LineItems   int           `json:"lineItems"`
	Warnings    int           `json:"warnings"`
	ProcessTime time.Duration `json:"processTimeNs"`
}

// FailedFileInfo describes a file that could not be uploaded.
type FailedFileInfo struct {
	InputFile    string `json:"inputFile"`
	ErrorMessage string `json:"error"`
	ErrorType    string `json:"errorType"`
}

// NewProcessingSummary starts a summary with a fresh run id.
func NewProcessingSummary(start time.Time) ProcessingSummary {
	return ProcessingSummary{RunID: uuid.NewString(), StartTime: start}
}

// WriteSummaryLog writes the summary as JSON to outputDir.
func WriteSummaryLog(summary ProcessingSummary, outputDir string) (string, error) {
	timestamp := summary.StartTime.Format("20060102_150405")
	summaryPath := filepath.Join(outputDir, fmt.Sprintf("processing_summary_%s.json", timestamp))

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode summary: %w", err)
	}
	if err := os.WriteFile(summaryPath, append(data, '\n'), 0644); err != nil {
		return "", fmt.Errorf("failed to write summary file: %w", err)
	}
	return summaryPath, nil
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// copyFile copies a file from src to dst.
func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return err
	}
	return destFile.Sync()
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
