// Package services defines the business logic for query analysis, dashboard
// aggregates, analytics views, and report generation. This file centralizes
// common service-level error values so that they can be consistently
// returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import "errors"

// Query-related errors.
var (
	// ErrEmptyQuery is returned when a request to analyze a query contains
	// no text after trimming.
	ErrEmptyQuery = errors.New("query is empty")

	// ErrQueryTooLong is returned when a query exceeds the maximum
	// configured rune length.
	ErrQueryTooLong = errors.New("query too long")

	// ErrQueryNotFound indicates that the requested query record does not
	// exist or is not accessible to the current user.
	ErrQueryNotFound = errors.New("query not found")

	// ErrInvalidFilter is returned when a listing filter carries a value
	// outside the allowed sets (risk level, category, or time window).
	ErrInvalidFilter = errors.New("invalid filter")
)

// Report-related errors.
var (
	// ErrReportNotFound indicates that the requested report does not exist
	// or is not accessible to the current user.
	ErrReportNotFound = errors.New("report not found")

	// ErrReportNotReady is returned when a download is requested for a
	// report that is not in the completed state.
	ErrReportNotReady = errors.New("report not ready")

	// ErrInvalidReportInput is returned when report generation input fails
	// validation (blank name, unknown type or format, inverted date range).
	ErrInvalidReportInput = errors.New("invalid report input")
)
