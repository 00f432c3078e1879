package types

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNetwork               = errors.New("network error")
	ErrSubmission            = errors.New("submission error")
	ErrEncoding              = errors.New("encoding error")
	ErrAttestationTimeout    = errors.New("attestation timeout")
	ErrAttestationService    = errors.New("attestation service error")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

// NetworkError is an RPC or HTTP connectivity failure
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// SubmissionError is a signer rejection, gas or nonce failure, or an on-chain revert.
// Submissions are never retried automatically.
type SubmissionError struct {
	Step   string
	TxHash string // set when the transaction was sent and later reverted
	Err    error
}

func (e *SubmissionError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("%s transaction %s failed: %v", e.Step, e.TxHash, e.Err)
	}
	return fmt.Sprintf("%s submission failed: %v", e.Step, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

func (e *SubmissionError) Is(target error) bool { return target == ErrSubmission }

// EncodingError is malformed input to the transaction encoder
type EncodingError struct {
	Field string
	Err   error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

func (e *EncodingError) Is(target error) bool { return target == ErrEncoding }

// AttestationTimeoutError is returned once the configured max wait is exhausted
type AttestationTimeoutError struct {
	TxHash   string
	Attempts int
	Elapsed  time.Duration
}

func (e *AttestationTimeoutError) Error() string {
	return fmt.Sprintf("attestation for %s not complete after %s (%d attempts)", e.TxHash, e.Elapsed.Round(time.Millisecond), e.Attempts)
}

func (e *AttestationTimeoutError) Is(target error) bool { return target == ErrAttestationTimeout }

// AttestationServiceError is a terminal failure reported by the attestation service
type AttestationServiceError struct {
	TxHash string
	Status string
	Err    error
}

func (e *AttestationServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("attestation for %s failed (status %q): %v", e.TxHash, e.Status, e.Err)
	}
	return fmt.Sprintf("attestation for %s failed (status %q)", e.TxHash, e.Status)
}

func (e *AttestationServiceError) Unwrap() error { return e.Err }

func (e *AttestationServiceError) Is(target error) bool { return target == ErrAttestationService }
