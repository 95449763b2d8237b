package fundme

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// Contribution errors
	ErrInsufficientContribution = errors.New("fundme: contribution below minimum usd value")
	ErrOracleUnavailable        = errors.New("fundme: price oracle unavailable")

	// Withdrawal errors
	ErrUnauthorized   = errors.New("fundme: caller is not the owner")
	ErrTransferFailed = errors.New("fundme: transfer to owner failed")

	// Read errors
	ErrIndexOutOfRange = errors.New("fundme: contributor index out of range")

	// General errors
	ErrInvalidInput      = errors.New("fundme: invalid input")
	ErrFundNotFound      = errors.New("fundme: fund not found")
	ErrAlreadyExists     = errors.New("fundme: already exists")
	ErrPriceFeedMismatch = errors.New("fundme: price feed does not match deployment")

	// Store errors
	ErrStoreClosed = errors.New("fundme: store is closed")
)

// ValidationError reports an invalid argument. It matches ErrInvalidInput
// under errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("fundme: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap ties every validation failure to ErrInvalidInput.
func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// IsRejection reports whether err is a refusal of the caller's request
// rather than a system fault.
func IsRejection(err error) bool {
	return errors.Is(err, ErrInsufficientContribution) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrIndexOutOfRange) ||
		errors.Is(err, ErrInvalidInput)
}

// IsRetryable reports whether the operation may succeed if tried again
// unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrOracleUnavailable) ||
		errors.Is(err, ErrTransferFailed)
}

// IsNotFound reports whether err means a fund or entry does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrFundNotFound) ||
		errors.Is(err, ErrIndexOutOfRange)
}
