package payment

import (
	"fmt"
	"math/big"

	"github.com/go-playground/validator/v10"
)

const (
	X402Version = 1
	SchemeExact = "exact"

	HeaderPayment         = "X-PAYMENT"
	HeaderPaymentResponse = "X-PAYMENT-RESPONSE"
)

var validate = validator.New()

// networks maps x402 network names onto EVM chain ids
var networks = map[string]int64{
	"ethereum":       1,
	"sepolia":        11155111,
	"base":           8453,
	"base-sepolia":   84532,
	"avalanche":      43114,
	"avalanche-fuji": 43113,
	"polygon":        137,
	"polygon-amoy":   80002,
}

// ChainID returns the EVM chain id of an x402 network name
func ChainID(network string) (*big.Int, error) {
	id, ok := networks[network]
	if !ok {
		return nil, fmt.Errorf("unsupported network %q", network)
	}
	return big.NewInt(id), nil
}

// PaymentRequirements is one way a resource server accepts payment
type PaymentRequirements struct {
	Scheme            string                 `json:"scheme" validate:"required"`
	Network           string                 `json:"network" validate:"required"`
	MaxAmountRequired string                 `json:"maxAmountRequired" validate:"required,numeric"`
	Resource          string                 `json:"resource"`
	Description       string                 `json:"description"`
	MimeType          string                 `json:"mimeType"`
	OutputSchema      map[string]interface{} `json:"outputSchema,omitempty"`
	PayTo             string                 `json:"payTo" validate:"required,eth_addr"`
	MaxTimeoutSeconds int                    `json:"maxTimeoutSeconds"`
	Asset             string                 `json:"asset" validate:"required,eth_addr"`
	// Extra carries the EIP-712 domain "name" and "version" of the asset for the exact scheme
	Extra map[string]interface{} `json:"extra,omitempty"`
}

func (r PaymentRequirements) Validate() error {
	return validate.Struct(r)
}

// PaymentRequiredResponse is the body of an HTTP 402 response
type PaymentRequiredResponse struct {
	X402Version int                   `json:"x402Version"`
	Accepts     []PaymentRequirements `json:"accepts"`
	Error       string                `json:"error,omitempty"`
}

// PaymentPayload is sent base64 encoded in the X-PAYMENT header
type PaymentPayload struct {
	X402Version int             `json:"x402Version"`
	Scheme      string          `json:"scheme"`
	Network     string          `json:"network"`
	Payload     ExactEvmPayload `json:"payload"`
}

type ExactEvmPayload struct {
	Signature     string        `json:"signature" validate:"required,hexadecimal"`
	Authorization Authorization `json:"authorization"`
}

// Authorization is an EIP-3009 transferWithAuthorization. Amounts and timestamps are
// decimal strings, the nonce is a 0x prefixed 32 byte hex string.
type Authorization struct {
	From        string `json:"from" validate:"required,eth_addr"`
	To          string `json:"to" validate:"required,eth_addr"`
	Value       string `json:"value" validate:"required,numeric"`
	ValidAfter  string `json:"validAfter" validate:"required,numeric"`
	ValidBefore string `json:"validBefore" validate:"required,numeric"`
	Nonce       string `json:"nonce" validate:"required,len=66,startswith=0x"`
}

func (a Authorization) Validate() error {
	return validate.Struct(a)
}

// SettleResponse is decoded from the X-PAYMENT-RESPONSE header
type SettleResponse struct {
	Success     bool   `json:"success"`
	ErrorReason string `json:"errorReason,omitempty"`
	Transaction string `json:"transaction"`
	Network     string `json:"network"`
	Payer       string `json:"payer,omitempty"`
}
