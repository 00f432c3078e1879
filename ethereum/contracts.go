package ethereum

import (
	"bytes"
	"embed"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

//go:embed abi/*.json
var abiFS embed.FS

var (
	erc20ABI              = mustLoadABI("ERC20")
	tokenMessengerABI     = mustLoadABI("TokenMessenger")
	messageTransmitterABI = mustLoadABI("MessageTransmitter")
)

func mustLoadABI(name string) abi.ABI {
	bz, err := abiFS.ReadFile("abi/" + name + ".json")
	if err != nil {
		panic(fmt.Sprintf("unable to read %s abi: %v", name, err))
	}
	parsed, err := abi.JSON(bytes.NewReader(bz))
	if err != nil {
		panic(fmt.Sprintf("unable to parse %s abi: %v", name, err))
	}
	return parsed
}

// methodName resolves the contract method a calldata payload calls, for error reporting
func methodName(data []byte) string {
	if len(data) < 4 {
		return "transaction"
	}
	for _, parsed := range []abi.ABI{erc20ABI, tokenMessengerABI, messageTransmitterABI} {
		if method, err := parsed.MethodById(data[:4]); err == nil {
			return method.Name
		}
	}
	return "transaction"
}
