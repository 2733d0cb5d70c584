package constants

import "fmt"

// ============================================================================
// IMPORT ERRORS
// ============================================================================

const (
	ErrJobNotFound         = "Import job not found"
	ErrJobAccessDenied     = "You are not authorized to access this import job"
	ErrTemplateNotFound    = "Import template not found"
	ErrMappingConflict     = "Field mapping conflicts with the saved template"
	ErrPortfolioNotAllowed = "You do not have access to this portfolio"
	ErrUnsupportedFile     = "Unsupported file format. Upload a CSV, XLSX or XLS file"
	ErrFileTooLarge        = "Uploaded file exceeds the size limit"
	ErrEmptySpreadsheet    = "Spreadsheet must contain a header row and at least one data row"
)

// ============================================================================
// PORTFOLIO & ACCOUNT ERRORS
// ============================================================================

const (
	ErrPortfolioNotFound = "Portfolio not found"
	ErrNoPortfolios      = "No accessible portfolios found for your account"
	ErrAccountNotFound   = "Debt account not found"
	ErrPersonNotFound    = "Person record not found"
)

// ============================================================================
// ERROR FORMATTERS
// ============================================================================

func FormatJobStatusConflict(current string) string {
	return fmt.Sprintf("Import job is %s and cannot be modified", current)
}

func FormatMissingRequiredField(field string) string {
	return fmt.Sprintf("Required field %q is not mapped to any column", field)
}

func FormatRowError(rowNumber int, reason string) string {
	return fmt.Sprintf("Row %d: %s", rowNumber, reason)
}
