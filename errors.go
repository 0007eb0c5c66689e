package assistant

import (
	"errors"
	"fmt"
)

// Common errors shared by every component.
var (
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrInvalidStoreType = errors.New("invalid store type")
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrValidation       = errors.New("validation failed")
	ErrQuotaExceeded    = errors.New("quota exceeded")
	ErrStorageCapacity  = errors.New("storage capacity exceeded")
	ErrProvider         = errors.New("provider failure")
	ErrProviderTimeout  = errors.New("provider timeout")
	ErrCredential       = errors.New("credential failure")
)

// QuotaExceededError reports a denied daily allowance.
type QuotaExceededError struct {
	Feature string
	Used    int64
	Allowed int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("daily %s limit reached (%d/%d)", e.Feature, e.Used, e.Allowed)
}

func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// StorageCapacityError reports that a write would exceed the tenant ceiling.
type StorageCapacityError struct {
	Slug      string
	UsedBytes int64
	Limit     int64
}

func (e *StorageCapacityError) Error() string {
	return fmt.Sprintf("storage limit reached for %s (%d of %d bytes)", e.Slug, e.UsedBytes, e.Limit)
}

func (e *StorageCapacityError) Is(target error) bool {
	return target == ErrStorageCapacity
}

// ProviderError wraps a failure reported by an external generation provider.
type ProviderError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *ProviderError) Error() string {
	msg := "provider " + e.Provider + " failed"
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool {
	return target == ErrProvider
}

// ProviderTimeoutError is returned when a job never reached a terminal state.
type ProviderTimeoutError struct {
	Provider string
	Attempts int
}

func (e *ProviderTimeoutError) Error() string {
	return fmt.Sprintf("provider %s did not finish after %d attempts", e.Provider, e.Attempts)
}

func (e *ProviderTimeoutError) Is(target error) bool {
	return target == ErrProviderTimeout
}

// CredentialError reports an unusable stored credential.
type CredentialError struct {
	Slug   string
	Reason string
	Err    error
}

func (e *CredentialError) Error() string {
	msg := "credential for " + e.Slug + ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CredentialError) Unwrap() error { return e.Err }

func (e *CredentialError) Is(target error) bool {
	return target == ErrCredential
}
