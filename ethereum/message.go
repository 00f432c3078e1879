package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	cctptypes "github.com/circlefin/noble-cctp/x/cctp/types"
	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/strangelove-ventures/cctp-transfer/types"
)

var ErrMessageSentNotFound = errors.New("no MessageSent event in logs")

// ExtractMessageSent finds the MessageTransmitter MessageSent event in a burn receipt's logs
// and returns the message bytes with their keccak256 hash, the v1 attestation lookup id.
func ExtractMessageSent(logs []*ethtypes.Log) ([]byte, common.Hash, error) {
	messageSent := messageTransmitterABI.Events["MessageSent"]
	for _, l := range logs {
		if l == nil || len(l.Topics) == 0 || l.Topics[0] != messageSent.ID {
			continue
		}

		event := make(map[string]interface{})
		if err := messageTransmitterABI.UnpackIntoMap(event, messageSent.Name, l.Data); err != nil {
			return nil, common.Hash{}, fmt.Errorf("unable to unpack MessageSent log: %w", err)
		}
		message, ok := event["message"].([]byte)
		if !ok || len(message) == 0 {
			return nil, common.Hash{}, errors.New("MessageSent log carries no message")
		}
		if _, err := new(cctptypes.Message).Parse(message); err != nil {
			return nil, common.Hash{}, fmt.Errorf("MessageSent log carries a malformed message: %w", err)
		}
		return message, crypto.Keccak256Hash(message), nil
	}
	return nil, common.Hash{}, ErrMessageSentNotFound
}

// BurnReceiptFromReceipt builds the BurnReceipt of a mined depositForBurn transaction
func BurnReceiptFromReceipt(receipt *types.Receipt, sourceDomain types.Domain) types.BurnReceipt {
	burn := types.BurnReceipt{
		TxHash:       receipt.TxHash,
		SourceDomain: sourceDomain,
		BlockNumber:  receipt.BlockNumber,
	}
	if message, hash, err := ExtractMessageSent(receipt.Logs); err == nil {
		burn.Message = message
		burn.MessageHash = hash.Hex()
	}
	return burn
}

// MessageReceived reports whether the destination MessageTransmitter already consumed the
// nonce of message, meaning a receiveMessage call for it would revert.
func (c *Chain) MessageReceived(ctx context.Context, messageTransmitter string, message []byte) (bool, error) {
	msg, err := new(cctptypes.Message).Parse(message)
	if err != nil {
		return false, &types.EncodingError{Field: "message", Err: err}
	}
	to, err := parseAddress("messageTransmitter", messageTransmitter)
	if err != nil {
		return false, err
	}

	key := crypto.Keccak256Hash(
		common.LeftPadBytes(big.NewInt(int64(msg.SourceDomain)).Bytes(), 4),
		common.LeftPadBytes(new(big.Int).SetUint64(msg.Nonce).Bytes(), 8),
	)
	data, err := messageTransmitterABI.Pack("usedNonces", key)
	if err != nil {
		return false, &types.EncodingError{Field: "calldata", Err: err}
	}

	out, err := c.backend.CallContract(ctx, goethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return false, &types.NetworkError{Op: "usedNonces", Err: err}
	}
	values, err := messageTransmitterABI.Unpack("usedNonces", out)
	if err != nil || len(values) != 1 {
		return false, &types.NetworkError{Op: "usedNonces", Err: fmt.Errorf("unexpected response 0x%x: %v", out, err)}
	}
	used, _ := values[0].(*big.Int)
	return used != nil && used.Sign() > 0, nil
}
