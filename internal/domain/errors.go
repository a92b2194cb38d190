package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrCacheMiss       = errors.New("cache miss")
	ErrDataUnavailable = errors.New("data unavailable")
	ErrGuardRejected   = errors.New("guard rejected")
	ErrProviderFailure = errors.New("provider failure")
	ErrConfiguration   = errors.New("invalid configuration")
	ErrRateLimited     = errors.New("rate limited")
	ErrLockHeld        = errors.New("lock already held")
	ErrContextDone     = errors.New("context cancelled")
)

// GuardError reports a candidate rejected by a valuation bound (price impact,
// liquidity, profit floor). It is a policy decision, not a failure; callers
// typically count it and move on.
type GuardError struct {
	Guard string  // which bound fired, e.g. "max_price_impact"
	Value float64 // observed value
	Limit float64 // configured bound
}

func (e *GuardError) Error() string {
	return fmt.Sprintf("%s: %.6f exceeds %.6f", e.Guard, e.Value, e.Limit)
}

func (e *GuardError) Is(target error) bool { return target == ErrGuardRejected }

// ProviderError wraps a transient venue or RPC failure. The affected pair is
// skipped for the current cycle and becomes eligible again on the next one.
type ProviderError struct {
	Venue string
	Op    string
	Err   error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Venue, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool { return target == ErrProviderFailure }

// IsNotFound reports whether err is the ErrNotFound sentinel.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsCacheMiss reports whether err is the ErrCacheMiss sentinel.
func IsCacheMiss(err error) bool { return errors.Is(err, ErrCacheMiss) }

// IsDataUnavailable reports whether err marks a missing quote or pair.
func IsDataUnavailable(err error) bool { return errors.Is(err, ErrDataUnavailable) }

// IsGuardRejected reports whether err is a valuation-bound rejection.
func IsGuardRejected(err error) bool { return errors.Is(err, ErrGuardRejected) }

// IsProviderFailure reports whether err is a transient provider failure.
func IsProviderFailure(err error) bool { return errors.Is(err, ErrProviderFailure) }

// IsConfiguration reports whether err is a fatal configuration error.
func IsConfiguration(err error) bool { return errors.Is(err, ErrConfiguration) }
