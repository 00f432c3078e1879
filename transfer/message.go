package transfer

import (
	"bytes"
	"fmt"

	"cosmossdk.io/math"
	cctptypes "github.com/circlefin/noble-cctp/x/cctp/types"
	"github.com/ethereum/go-ethereum/common"

	"github.com/strangelove-ventures/cctp-transfer/ethereum"
	"github.com/strangelove-ventures/cctp-transfer/types"
)

// VerifyMessage checks that an attested message mints req. A mismatch means the attestation
// belongs to a different burn and must not be submitted.
func VerifyMessage(req types.TransferRequest, message []byte) error {
	msg, err := new(cctptypes.Message).Parse(message)
	if err != nil {
		return &types.EncodingError{Field: "message", Err: err}
	}
	if types.Domain(msg.SourceDomain) != req.SourceDomain || types.Domain(msg.DestinationDomain) != req.DestinationDomain {
		return &types.EncodingError{Field: "message", Err: fmt.Errorf("route %d -> %d does not match transfer %d -> %d",
			msg.SourceDomain, msg.DestinationDomain, req.SourceDomain, req.DestinationDomain)}
	}

	burn, err := new(cctptypes.BurnMessage).Parse(msg.MessageBody)
	if err != nil {
		return &types.EncodingError{Field: "message", Err: fmt.Errorf("message body is not a burn message: %w", err)}
	}

	recipient, err := ethereum.MintRecipientBytes32(req.MintRecipient)
	if err != nil {
		return err
	}
	if !bytes.Equal(burn.MintRecipient, recipient[:]) {
		return &types.EncodingError{Field: "message", Err: fmt.Errorf("mint recipient 0x%x does not match %s", burn.MintRecipient, req.MintRecipient)}
	}
	if req.Amount != nil && !burn.Amount.Equal(math.NewIntFromBigInt(req.Amount)) {
		return &types.EncodingError{Field: "message", Err: fmt.Errorf("burn amount %s does not match %s", burn.Amount, req.Amount)}
	}
	return nil
}

// RequestFromMessage rebuilds the request of an attested burn, for minting a transfer that
// was started elsewhere.
func RequestFromMessage(message []byte) (types.TransferRequest, error) {
	msg, err := new(cctptypes.Message).Parse(message)
	if err != nil {
		return types.TransferRequest{}, &types.EncodingError{Field: "message", Err: err}
	}
	burn, err := new(cctptypes.BurnMessage).Parse(msg.MessageBody)
	if err != nil {
		return types.TransferRequest{}, &types.EncodingError{Field: "message", Err: fmt.Errorf("message body is not a burn message: %w", err)}
	}
	return types.TransferRequest{
		Amount:            burn.Amount.BigInt(),
		SourceDomain:      types.Domain(msg.SourceDomain),
		DestinationDomain: types.Domain(msg.DestinationDomain),
		SourceToken:       common.BytesToAddress(burn.BurnToken).Hex(),
		MintRecipient:     common.BytesToAddress(burn.MintRecipient).Hex(),
		BurnSpender:       common.BytesToAddress(msg.Sender).Hex(),
	}, nil
}
