package types

import "time"

// AttestationStatus is the lifecycle of an attestation as observed by polling
type AttestationStatus string

const (
	AttestationPending  AttestationStatus = "pending"
	AttestationComplete AttestationStatus = "complete"
	AttestationFailed   AttestationStatus = "failed"
)

// ParseAttestationStatus maps an Iris status string onto the three observable states.
// Iris reports intermediate states such as "pending_confirmations"; all of them are pending.
func ParseAttestationStatus(status string) AttestationStatus {
	switch status {
	case string(AttestationComplete):
		return AttestationComplete
	case string(AttestationFailed):
		return AttestationFailed
	default:
		return AttestationPending
	}
}

// Attestation is a decoded Iris attestation. Message and Attestation are only set when
// Status is complete.
type Attestation struct {
	Status      AttestationStatus `json:"status"`
	Message     []byte            `json:"message,omitempty"`
	Attestation []byte            `json:"attestation,omitempty"`
	EventNonce  string            `json:"eventNonce,omitempty"`
	CctpVersion string            `json:"cctpVersion,omitempty"`
}

// Complete reports whether the attestation can authorize a mint
func (a *Attestation) Complete() bool {
	return a != nil && a.Status == AttestationComplete && len(a.Message) > 0 && len(a.Attestation) > 0
}

// PollAttempt describes a single request to the attestation service
type PollAttempt struct {
	Attempt    int
	Elapsed    time.Duration
	StatusCode int
	Status     AttestationStatus
	Err        error
}

// AttestationResponse is the v1 API response format
type AttestationResponse struct {
	Attestation string `json:"attestation"`
	Status      string `json:"status"`
}

// AttestationResponseV2 is the v2 API response format
type AttestationResponseV2 struct {
	Messages []MessageResponseV2 `json:"messages"`
}

// MessageResponseV2 represents a message in v2 response
type MessageResponseV2 struct {
	Message           string `json:"message"`
	Attestation       string `json:"attestation"`
	Status            string `json:"status"`
	EventNonce        string `json:"eventNonce"`
	SourceDomain      string `json:"sourceDomain"`
	DestinationDomain string `json:"destinationDomain"`
	CctpVersion       string `json:"cctpVersion"`
}
