package domain

import "errors"

// Error taxonomy for the decision pipeline. Pure numeric routines never
// return these for ordinary missing data; they return explicit null axes.
// These errors mark contract violations and command failures.
var (
	// ErrSeriesUnavailable - no points of a required series survive the as-of filter
	ErrSeriesUnavailable = errors.New("series unavailable")
	// ErrInsufficientData - a routine has fewer samples than its minimum
	ErrInsufficientData = errors.New("insufficient data")
	// ErrStaleData - data newer than the publication lag allows for strict as-of callers
	ErrStaleData = errors.New("stale data")
	// ErrValidation - a numeric contract was violated (NaN/Inf, out-of-range allocation)
	ErrValidation = errors.New("validation failure")
	// ErrConstraintBreach - a guard cap or risk-reduction rule was violated post-application
	ErrConstraintBreach = errors.New("constraint breach")
	// ErrTimeout - an external fetch exceeded its deadline
	ErrTimeout = errors.New("fetch timeout")
	// ErrPromotionRejected - the promotion gate declined a candidate version
	ErrPromotionRejected = errors.New("promotion rejected")
	// ErrRunNotFound - a status lookup referenced an unknown run id
	ErrRunNotFound = errors.New("run not found")
	// ErrInsufficientCalibration - the active calibration lacks a requested horizon
	ErrInsufficientCalibration = errors.New("insufficient calibration")
)
