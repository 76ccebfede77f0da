package types

import "fmt"

// TransientBillingError indicates a billing call failed in a way that may
// succeed on retry: timeout, connection refused, or a 5xx from the
// billing subsystem.
type TransientBillingError struct {
	Cause error
}

// Error implements the error interface
func (e *TransientBillingError) Error() string {
	return fmt.Sprintf("billing call failed transiently: %v", e.Cause)
}

// Unwrap returns the underlying cause error
func (e *TransientBillingError) Unwrap() error {
	return e.Cause
}

// RejectedBillingError indicates the billing subsystem refused the
// provisioning request. Retrying is pointless.
type RejectedBillingError struct {
	StatusCode int
	Reason     string
}

// Error implements the error interface
func (e *RejectedBillingError) Error() string {
	return fmt.Sprintf("billing request rejected (status %d): %s", e.StatusCode, e.Reason)
}
