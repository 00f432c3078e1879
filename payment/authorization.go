package payment

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// DefaultValidFor is how long a signed authorization may be settled
const DefaultValidFor = 600 * time.Second

// HashSigner signs EIP-712 digests. *ethereum.KeySigner satisfies it.
type HashSigner interface {
	Address() common.Address
	// SignHash returns a 65 byte [R || S || V] signature
	SignHash(hash []byte) ([]byte, error)
}

// NewAuthorization authorizes a transfer of the required amount from `from` to the payee,
// valid from now for validFor, with a random nonce.
func NewAuthorization(from string, req PaymentRequirements, now time.Time, validFor time.Duration) (Authorization, error) {
	if err := req.Validate(); err != nil {
		return Authorization{}, fmt.Errorf("invalid payment requirements: %w", err)
	}
	if validFor <= 0 {
		validFor = DefaultValidFor
	}

	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return Authorization{}, fmt.Errorf("unable to generate nonce: %w", err)
	}

	auth := Authorization{
		From:        from,
		To:          req.PayTo,
		Value:       req.MaxAmountRequired,
		ValidAfter:  strconv.FormatInt(now.Unix(), 10),
		ValidBefore: strconv.FormatInt(now.Add(validFor).Unix(), 10),
		Nonce:       hexutil.Encode(nonce),
	}
	return auth, auth.Validate()
}

// TypedData is the EIP-3009 TransferWithAuthorization typed data of auth, signed against
// the asset contract of req on chainID.
func TypedData(auth Authorization, req PaymentRequirements, chainID *big.Int) apitypes.TypedData {
	name, version := "USD Coin", "2"
	if v, ok := req.Extra["name"].(string); ok && v != "" {
		name = v
	}
	if v, ok := req.Extra["version"].(string); ok && v != "" {
		version = v
	}

	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TransferWithAuthorization": {
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              name,
			Version:           version,
			ChainId:           (*gethmath.HexOrDecimal256)(chainID),
			VerifyingContract: req.Asset,
		},
		Message: apitypes.TypedDataMessage{
			"from":        auth.From,
			"to":          auth.To,
			"value":       auth.Value,
			"validAfter":  auth.ValidAfter,
			"validBefore": auth.ValidBefore,
			"nonce":       auth.Nonce,
		},
	}
}

// Digest is the EIP-712 hash signed for auth
func Digest(auth Authorization, req PaymentRequirements, chainID *big.Int) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(TypedData(auth, req, chainID))
	if err != nil {
		return nil, fmt.Errorf("unable to hash authorization: %w", err)
	}
	return hash, nil
}

// Sign builds the exact scheme payment payload for req
func Sign(signer HashSigner, auth Authorization, req PaymentRequirements) (PaymentPayload, error) {
	chainID, err := ChainID(req.Network)
	if err != nil {
		return PaymentPayload{}, err
	}
	digest, err := Digest(auth, req, chainID)
	if err != nil {
		return PaymentPayload{}, err
	}
	sig, err := signer.SignHash(digest)
	if err != nil {
		return PaymentPayload{}, fmt.Errorf("signer rejected authorization: %w", err)
	}
	return PaymentPayload{
		X402Version: X402Version,
		Scheme:      SchemeExact,
		Network:     req.Network,
		Payload: ExactEvmPayload{
			Signature:     hexutil.Encode(sig),
			Authorization: auth,
		},
	}, nil
}

// RecoverSigner returns the account that signed payload
func RecoverSigner(payload PaymentPayload, req PaymentRequirements) (common.Address, error) {
	chainID, err := ChainID(payload.Network)
	if err != nil {
		return common.Address{}, err
	}
	digest, err := Digest(payload.Payload.Authorization, req, chainID)
	if err != nil {
		return common.Address{}, err
	}
	sig, err := hexutil.Decode(payload.Payload.Signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	sig = append([]byte(nil), sig...)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("unable to recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// EncodeHeader encodes a payload for the X-PAYMENT header
func EncodeHeader(payload PaymentPayload) (string, error) {
	bz, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(bz), nil
}

func DecodeHeader(header string) (PaymentPayload, error) {
	var payload PaymentPayload
	if err := decodeBase64JSON(header, &payload); err != nil {
		return payload, fmt.Errorf("invalid %s header: %w", HeaderPayment, err)
	}
	if err := validate.Struct(payload.Payload); err != nil {
		return payload, fmt.Errorf("invalid %s header: %w", HeaderPayment, err)
	}
	return payload, nil
}

func decodeBase64JSON(s string, v any) error {
	bz, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(bz, v)
}
