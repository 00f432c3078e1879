package transfer

import (
	"errors"
	"fmt"
	"time"

	"github.com/strangelove-ventures/cctp-transfer/types"
)

// State is a step of the transfer state machine
type State string

const (
	Idle                State = "idle"
	Approving           State = "approving"
	Burning             State = "burning"
	AwaitingAttestation State = "awaiting_attestation"
	Minting             State = "minting"
	Complete            State = "complete"
	Failed              State = "failed"
)

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	return s == Complete || s == Failed
}

// FailureReason explains why a transfer entered the failed state
type FailureReason string

const (
	InvalidRequest     FailureReason = "invalid_request"
	Filtered           FailureReason = "filtered"
	ApprovalRejected   FailureReason = "approval_rejected"
	BurnRejected       FailureReason = "burn_rejected"
	AttestationFailed  FailureReason = "attestation_failed"
	AttestationTimeout FailureReason = "attestation_timeout"
	Canceled           FailureReason = "canceled"
	MintRejected       FailureReason = "mint_rejected"
)

// TransferError is returned for every failed transfer. LastState is the last state that
// completed successfully, the point a caller may resume from.
type TransferError struct {
	Reason    FailureReason
	LastState State
	Err       error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer failed (%s) after %s: %v", e.Reason, e.LastState, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// ReasonOf returns the failure reason carried by err, empty if err is not a TransferError
func ReasonOf(err error) FailureReason {
	var transferErr *TransferError
	if errors.As(err, &transferErr) {
		return transferErr.Reason
	}
	return ""
}

// Result is everything a transfer produced so far. A failed result keeps the artifacts of
// the steps that succeeded so the transfer can be resumed.
type Result struct {
	ID      string                `json:"id"`
	Sender  string                `json:"sender"`
	Request types.TransferRequest `json:"request"`
	State   State                 `json:"state"`

	ApproveTxHash string             `json:"approveTxHash,omitempty"`
	BurnTxHash    string             `json:"burnTxHash,omitempty"`
	Burn          *types.BurnReceipt `json:"burn,omitempty"`
	Attestation   *types.Attestation `json:"attestation,omitempty"`
	MintTxHash    string             `json:"mintTxHash,omitempty"`
	Mint          *types.MintReceipt `json:"mint,omitempty"`

	Reason FailureReason `json:"reason,omitempty"`
	Error  string        `json:"error,omitempty"`

	StartedAt time.Time `json:"startedAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	err error
}

// Err returns the error the transfer failed with
func (r *Result) Err() error {
	return r.err
}

// EventType names a progress event
type EventType string

const (
	EventStateChanged        EventType = "state_changed"
	EventApproveSubmitted    EventType = "approve_submitted"
	EventApproveSkipped      EventType = "approve_skipped"
	EventBurnSubmitted       EventType = "burn_submitted"
	EventAttestationPending  EventType = "attestation_pending"
	EventAttestationComplete EventType = "attestation_complete"
	EventMintSubmitted       EventType = "mint_submitted"
	EventFailed              EventType = "failed"
)

// Event reports progress of a transfer. Attempt and Elapsed are set for attestation events.
type Event struct {
	Type       EventType
	TransferID string
	State      State
	TxHash     string
	Attempt    int
	Elapsed    time.Duration
	Reason     FailureReason
	Err        error
}

// Observer receives events synchronously on the goroutine running the transfer
type Observer func(Event)
