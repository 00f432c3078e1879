package ethereum

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/strangelove-ventures/cctp-transfer/types"
)

// EncodeApprove builds ERC-20 approve(spender, amount) calldata
func EncodeApprove(spender string, amount *big.Int) ([]byte, error) {
	spenderAddr, err := parseAddress("spender", spender)
	if err != nil {
		return nil, err
	}
	if err := checkUint256("amount", amount, false); err != nil {
		return nil, err
	}
	return pack(erc20ABI.Pack("approve", spenderAddr, amount))
}

// EncodeDepositForBurn builds TokenMessenger depositForBurn calldata. The recipient is
// left padded to bytes32 as CCTP expects.
func EncodeDepositForBurn(amount *big.Int, destinationDomain types.Domain, mintRecipient, burnToken string) ([]byte, error) {
	if err := checkUint256("amount", amount, true); err != nil {
		return nil, err
	}
	recipient, err := MintRecipientBytes32(mintRecipient)
	if err != nil {
		return nil, err
	}
	token, err := parseAddress("burnToken", burnToken)
	if err != nil {
		return nil, err
	}
	return pack(tokenMessengerABI.Pack("depositForBurn", amount, uint32(destinationDomain), recipient, token))
}

// EncodeReceiveMessage builds MessageTransmitter receiveMessage calldata
func EncodeReceiveMessage(message, attestation []byte) ([]byte, error) {
	if len(message) == 0 {
		return nil, &types.EncodingError{Field: "message", Err: errors.New("message is empty")}
	}
	if len(attestation) == 0 {
		return nil, &types.EncodingError{Field: "attestation", Err: errors.New("attestation is empty")}
	}
	return pack(messageTransmitterABI.Pack("receiveMessage", message, attestation))
}

// MintRecipientBytes32 converts a 20 byte address into 12 zero bytes followed by the address
func MintRecipientBytes32(address string) ([32]byte, error) {
	var out [32]byte
	addr, err := parseAddress("mintRecipient", address)
	if err != nil {
		return out, err
	}
	copy(out[12:], addr.Bytes())
	return out, nil
}

// EncodeBalanceOf builds ERC-20 balanceOf(owner) calldata
func EncodeBalanceOf(owner string) ([]byte, error) {
	ownerAddr, err := parseAddress("owner", owner)
	if err != nil {
		return nil, err
	}
	return pack(erc20ABI.Pack("balanceOf", ownerAddr))
}

// EncodeAllowance builds ERC-20 allowance(owner, spender) calldata
func EncodeAllowance(owner, spender string) ([]byte, error) {
	ownerAddr, err := parseAddress("owner", owner)
	if err != nil {
		return nil, err
	}
	spenderAddr, err := parseAddress("spender", spender)
	if err != nil {
		return nil, err
	}
	return pack(erc20ABI.Pack("allowance", ownerAddr, spenderAddr))
}

func parseAddress(field, address string) (common.Address, error) {
	if !common.IsHexAddress(address) {
		return common.Address{}, &types.EncodingError{Field: field, Err: fmt.Errorf("%q is not a hex address", address)}
	}
	return common.HexToAddress(address), nil
}

func checkUint256(field string, amount *big.Int, positive bool) error {
	switch {
	case amount == nil:
		return &types.EncodingError{Field: field, Err: errors.New("amount is required")}
	case amount.Sign() < 0, positive && amount.Sign() == 0:
		return &types.EncodingError{Field: field, Err: fmt.Errorf("amount %s out of range", amount)}
	case amount.BitLen() > 256:
		return &types.EncodingError{Field: field, Err: fmt.Errorf("amount %s overflows uint256", amount)}
	}
	return nil
}

func pack(data []byte, err error) ([]byte, error) {
	if err != nil {
		return nil, &types.EncodingError{Field: "calldata", Err: err}
	}
	return data, nil
}
