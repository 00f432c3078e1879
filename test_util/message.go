package testutil

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// BurnMessageBytes assembles a version 0 CCTP message carrying a burn message body,
// laid out exactly as MessageTransmitter emits it in MessageSent.
func BurnMessageBytes(sourceDomain, destinationDomain uint32, nonce uint64, burnToken, mintRecipient, sender string, amount *big.Int) []byte {
	body := make([]byte, 0, 132)
	body = binary.BigEndian.AppendUint32(body, 0)
	body = append(body, common.LeftPadBytes(common.HexToAddress(burnToken).Bytes(), 32)...)
	body = append(body, common.LeftPadBytes(common.HexToAddress(mintRecipient).Bytes(), 32)...)
	body = append(body, common.LeftPadBytes(amount.Bytes(), 32)...)
	body = append(body, common.LeftPadBytes(common.HexToAddress(sender).Bytes(), 32)...)

	msg := make([]byte, 0, 116+len(body))
	msg = binary.BigEndian.AppendUint32(msg, 0)
	msg = binary.BigEndian.AppendUint32(msg, sourceDomain)
	msg = binary.BigEndian.AppendUint32(msg, destinationDomain)
	msg = binary.BigEndian.AppendUint64(msg, nonce)
	msg = append(msg, common.LeftPadBytes(common.HexToAddress(SepoliaTokenMessenger).Bytes(), 32)...)
	msg = append(msg, common.LeftPadBytes(common.HexToAddress(BaseSepoliaTokenMessenger).Bytes(), 32)...)
	msg = append(msg, make([]byte, 32)...) // any destination caller
	return append(msg, body...)
}
