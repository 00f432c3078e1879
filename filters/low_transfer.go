package filters

import (
	"context"
	"fmt"
	"math/big"

	"cosmossdk.io/math"

	"github.com/strangelove-ventures/cctp-transfer/types"
)

var _ types.TransferFilter = (*LowTransferFilter)(nil)

// LowTransferFilter rejects transfers below the minimum amount of their destination chain
// or below the global minimum, whichever is higher
type LowTransferFilter struct {
	globalMin math.Int
	minimums  map[types.Domain]math.Int
}

// NewLowTransferFilter builds the filter from the chain configs. globalMin may be nil.
func NewLowTransferFilter(chains map[string]types.ChainSettings, globalMin *big.Int) *LowTransferFilter {
	f := &LowTransferFilter{
		globalMin: math.ZeroInt(),
		minimums:  make(map[types.Domain]math.Int),
	}
	if globalMin != nil {
		f.globalMin = math.NewIntFromBigInt(globalMin)
	}
	for _, chain := range chains {
		if chain.MinMintAmount > 0 {
			f.minimums[chain.Domain] = math.NewIntFromUint64(chain.MinMintAmount)
		}
	}
	return f
}

func (f *LowTransferFilter) Name() string {
	return "low-transfer"
}

func (f *LowTransferFilter) Filter(_ context.Context, req types.TransferRequest) (bool, string, error) {
	if req.Amount == nil {
		return true, "transfer amount missing", nil
	}

	minAmount := f.globalMin
	if destMin, ok := f.minimums[req.DestinationDomain]; ok && destMin.GT(minAmount) {
		minAmount = destMin
	}
	if minAmount.IsZero() {
		return false, "", nil
	}

	amount := math.NewIntFromBigInt(req.Amount)
	if amount.LT(minAmount) {
		reason := fmt.Sprintf("transfer amount too low: amount=%s min_amount=%s dest_domain=%d",
			amount.String(), minAmount.String(), req.DestinationDomain)
		return true, reason, nil
	}
	return false, "", nil
}

func (f *LowTransferFilter) Close() error {
	return nil
}
