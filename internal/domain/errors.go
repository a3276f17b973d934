package domain

import "errors"

// -----------------------------------------------------------------------------
// Domain Errors
// These errors represent domain-level failures and are used by stores and
// services to communicate domain-specific error conditions.
// -----------------------------------------------------------------------------

// Progress errors
var (
	ErrProgressNotFound = errors.New("progress not found")
)

// Submission errors
var (
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrNoTestCases        = errors.New("submission has no test cases")
	ErrEmptyCode          = errors.New("submission code is empty")
)

// Content errors
var (
	ErrContentNotFound = errors.New("content not found")
	ErrInvalidContent  = errors.New("invalid generated content")
)

// General errors
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)
