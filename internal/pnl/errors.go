package pnl

import "errors"

// Parse failures. Every one of them aborts the whole parse; callers display
// the wrapped message and must not persist anything.
var (
	// ErrLayoutNotRecognized means the header anchor could not be found.
	ErrLayoutNotRecognized = errors.New("layout not recognized")

	// ErrNoBranchesDetected means the header row holds no location names.
	ErrNoBranchesDetected = errors.New("no branches detected")

	// ErrNoLineItemsDetected means no usable label rows were found.
	ErrNoLineItemsDetected = errors.New("no financial line items found")

	// ErrCellRead wraps failures of the underlying spreadsheet reader.
	ErrCellRead = errors.New("cell read failure")
)
