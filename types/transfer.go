package types

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/go-playground/validator/v10"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

type Domain uint32

var validate = validator.New()

// TransferRequest is the immutable input of a cross-chain transfer
type TransferRequest struct {
	Amount            *big.Int // token subunits
	SourceDomain      Domain
	DestinationDomain Domain
	SourceToken       string `validate:"required,eth_addr"`
	MintRecipient     string `validate:"required,eth_addr"`
	BurnSpender       string `validate:"required,eth_addr"` // TokenMessenger on the source chain
}

// Validate checks the request before any calldata is built or any network call is made.
func (r TransferRequest) Validate() error {
	if r.Amount == nil || r.Amount.Sign() <= 0 {
		return &EncodingError{Field: "amount", Err: fmt.Errorf("amount must be positive, got %v", r.Amount)}
	}
	if r.SourceDomain == r.DestinationDomain {
		return &EncodingError{Field: "destinationDomain", Err: fmt.Errorf("source and destination domain are both %d", r.SourceDomain)}
	}
	if err := validate.Struct(r); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			field := strings.ToLower(verrs[0].Field()[:1]) + verrs[0].Field()[1:]
			return &EncodingError{Field: field, Err: fmt.Errorf("invalid value %q", verrs[0].Value())}
		}
		return &EncodingError{Field: "request", Err: err}
	}
	return nil
}

// AllowanceState is a read-only snapshot of the sender's balance and spender allowance
type AllowanceState struct {
	Token     string
	Owner     string
	Spender   string
	Balance   *big.Int
	Allowance *big.Int
}

// AllowanceCovers reports whether the spender may burn amount on behalf of the owner
func (s AllowanceState) AllowanceCovers(amount *big.Int) bool {
	return s.Allowance != nil && amount != nil && s.Allowance.Cmp(amount) >= 0
}

// BalanceCovers reports whether the owner holds at least amount
func (s AllowanceState) BalanceCovers(amount *big.Int) bool {
	return s.Balance != nil && amount != nil && s.Balance.Cmp(amount) >= 0
}

// Receipt is the confirmation of a mined transaction
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	Success     bool
	Logs        []*ethtypes.Log
}

// BurnReceipt identifies a confirmed depositForBurn transaction. The tx hash is the
// correlation key for the attestation lookup.
type BurnReceipt struct {
	TxHash       string `json:"txHash"`
	SourceDomain Domain `json:"sourceDomain"`
	BlockNumber  uint64 `json:"blockNumber"`
	Message      []byte `json:"message,omitempty"`     // MessageSent bytes, when found in the receipt logs
	MessageHash  string `json:"messageHash,omitempty"` // keccak256(Message), v1 lookup id
}

// MintReceipt identifies a confirmed receiveMessage transaction
type MintReceipt struct {
	TxHash            string `json:"txHash"`
	DestinationDomain Domain `json:"destinationDomain"`
	BlockNumber       uint64 `json:"blockNumber"`
}
