package mensa

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("mensa: not found")
	ErrAlreadyExists = errors.New("mensa: already exists")
	ErrInvalidInput  = errors.New("mensa: invalid input")
	ErrForbidden     = errors.New("mensa: forbidden")

	// Account errors
	ErrAccountNotFound = errors.New("mensa: account not found")
	ErrAccountExists   = errors.New("mensa: account already exists for owner")
	ErrAccountBlocked  = errors.New("mensa: account is blocked")

	// Consumption errors
	ErrAlreadyUsedToday    = errors.New("mensa: consumption already recorded for this day")
	ErrInvalidDay          = errors.New("mensa: day is not valid for consumption")
	ErrFutureDate          = errors.New("mensa: consumption date must not be in the future")
	ErrCustomDateForbidden = errors.New("mensa: custom consumption date requires an elevated role")

	// Token errors
	ErrZeroDelta          = errors.New("mensa: token delta must not be zero")
	ErrNegativeDelta      = errors.New("mensa: token delta must be positive")
	ErrAdjustRequiresRole = errors.New("mensa: manual adjustment requires the admin role")

	// Period errors
	ErrNoPeriod           = errors.New("mensa: no period assigned")
	ErrPeriodNotActive    = errors.New("mensa: period is only removable while it covers today")
	ErrPeriodOverlap      = errors.New("mensa: period overlaps a previously assigned period")
	ErrPeriodTooShort     = errors.New("mensa: period has fewer valid days than the minimum")
	ErrPeriodBackdated    = errors.New("mensa: backdated period start requires an elevated role")
	ErrPeriodInverted     = errors.New("mensa: period end precedes its start")
	ErrOutstandingDebt    = errors.New("mensa: account has outstanding debt")
	ErrPeriodAlreadySet   = errors.New("mensa: account already has an assigned period")
	ErrTokensDuringPeriod = errors.New("mensa: tokens cannot be purchased during an active period")

	// Payment errors
	ErrPaymentNotFound = errors.New("mensa: payment not found")
	ErrTicketNotFound  = errors.New("mensa: ticket not found")

	// Holiday errors
	ErrHolidayNotFound = errors.New("mensa: holiday not found")
	ErrHolidayExists   = errors.New("mensa: holiday already exists for that day")

	// Dependency errors
	ErrDirectoryUnavailable = errors.New("mensa: directory service unavailable")
	ErrNotifyFailed         = errors.New("mensa: notification delivery failed")

	// Store errors
	ErrVersionConflict   = errors.New("mensa: concurrent update conflict")
	ErrStoreNotReady     = errors.New("mensa: store not ready")
	ErrStoreClosed       = errors.New("mensa: store is closed")
	ErrTransactionFailed = errors.New("mensa: transaction failed")
	ErrMigrationFailed   = errors.New("mensa: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("mensa: validation failed for %s: %s", e.Field, e.Message)
}

func (e ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// IsValidation returns true if the error is a precondition or input failure
// that the caller can fix by changing the request.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrZeroDelta) ||
		errors.Is(err, ErrNegativeDelta) ||
		errors.Is(err, ErrInvalidDay) ||
		errors.Is(err, ErrFutureDate) ||
		errors.Is(err, ErrPeriodTooShort) ||
		errors.Is(err, ErrPeriodInverted)
}

// IsConflict returns true if the error reflects state that already moved:
// duplicates, overlaps, debt gates, lost version races.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrAccountExists) ||
		errors.Is(err, ErrAlreadyUsedToday) ||
		errors.Is(err, ErrPeriodOverlap) ||
		errors.Is(err, ErrPeriodAlreadySet) ||
		errors.Is(err, ErrTokensDuringPeriod) ||
		errors.Is(err, ErrOutstandingDebt) ||
		errors.Is(err, ErrHolidayExists) ||
		errors.Is(err, ErrNoPeriod) ||
		errors.Is(err, ErrPeriodNotActive) ||
		errors.Is(err, ErrVersionConflict)
}

// IsForbidden returns true if the error is a role or permission failure.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrCustomDateForbidden) ||
		errors.Is(err, ErrAdjustRequiresRole) ||
		errors.Is(err, ErrPeriodBackdated) ||
		errors.Is(err, ErrAccountBlocked)
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrTicketNotFound) ||
		errors.Is(err, ErrHolidayNotFound)
}

// IsDependency returns true if an external service failed. Ledger state is
// unaffected by dependency errors.
func IsDependency(err error) bool {
	return errors.Is(err, ErrDirectoryUnavailable) ||
		errors.Is(err, ErrNotifyFailed)
}

// IsRetryable returns true if the error is temporary and the operation can
// be retried as-is.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrVersionConflict) ||
		errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrTransactionFailed) ||
		errors.Is(err, ErrDirectoryUnavailable) ||
		errors.Is(err, ErrNotifyFailed)
}

// IsFatal returns true for storage failures that indicate the engine cannot
// continue safely.
func IsFatal(err error) bool {
	return errors.Is(err, ErrStoreClosed) ||
		errors.Is(err, ErrMigrationFailed)
}
