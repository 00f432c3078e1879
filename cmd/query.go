package cmd

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/strangelove-ventures/cctp-transfer/circle"
	"github.com/strangelove-ventures/cctp-transfer/ethereum"
)

// Attestation looks up the attestation of a burn once, without waiting
func Attestation(a *AppState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attestation",
		Short: "Check the status of Circle's attestation for a burn",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			burnTx, err := cmd.Flags().GetString(flagBurnTx)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			sourceName, _ := routeNames(cmd, a.Config)

			source, settings, err := newChain(ctx, a, sourceName)
			if err != nil {
				return err
			}
			defer source.Close()

			receipt, err := source.WaitMined(ctx, burnTx)
			if err != nil {
				return fmt.Errorf("burn %s: %w", burnTx, err)
			}
			burn := ethereum.BurnReceiptFromReceipt(receipt, settings.Domain)

			poller, err := circle.NewPoller(a.Config.Circle, a.Logger)
			if err != nil {
				return err
			}
			att, err := poller.CheckAttestation(ctx, burn)
			if err != nil {
				return err
			}

			out := map[string]any{
				"burnTx":       burnTx,
				"sourceDomain": burn.SourceDomain,
				"status":       att.Status,
			}
			if att.Complete() {
				out["message"] = hexutil.Encode(att.Message)
				out["attestation"] = hexutil.Encode(att.Attestation)
			}
			return printJSON(cmd, out)
		},
	}

	cmd.Flags().String(flagBurnTx, "", "hash of the depositForBurn transaction")
	cmd.Flags().String(flagSource, "", "chain the burn was submitted on, defaults to transfer.source of the config")
	_ = cmd.MarkFlagRequired(flagBurnTx)
	return cmd
}

type balance struct {
	Chain     string `json:"chain"`
	Domain    uint32 `json:"domain"`
	Address   string `json:"address"`
	Native    string `json:"native,omitempty"`
	USDC      string `json:"usdc,omitempty"`
	Allowance string `json:"allowance,omitempty"`
}

// Balance prints the gas token balance, USDC balance and TokenMessenger allowance of the
// signing account on each configured chain
func Balance(a *AppState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show the balances and USDC allowance of the signing accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			names := []string{}
			if name, _ := cmd.Flags().GetString(flagChain); name != "" {
				names = append(names, name)
			} else {
				for name := range a.Config.Chains {
					names = append(names, name)
				}
				sort.Strings(names)
			}

			decimals := a.Config.Transfer.Decimals
			balances := make([]balance, 0, len(names))
			for _, name := range names {
				chain, settings, err := newChain(ctx, a, name)
				if err != nil {
					return err
				}
				b := balance{Chain: name, Domain: uint32(settings.Domain), Address: chain.Address()}
				if b.Address == "" {
					chain.Close()
					a.Logger.Info("No signing key configured, skipping", "chain", name)
					continue
				}

				native, err := chain.NativeBalance(ctx)
				if err != nil {
					chain.Close()
					return err
				}
				b.Native = formatAmount(native, int32(settings.MetricsExponent)) + " " + settings.MetricsDenom

				if settings.USDC != "" && settings.TokenMessenger != "" {
					state, err := chain.ReadAllowanceState(ctx, settings.USDC, b.Address, settings.TokenMessenger)
					if err != nil {
						chain.Close()
						return err
					}
					b.USDC = formatAmount(state.Balance, decimals)
					b.Allowance = formatAmount(state.Allowance, decimals)
					if state.Allowance.Cmp(maxUint256) == 0 {
						b.Allowance = "unlimited"
					}
				}
				chain.Close()
				balances = append(balances, b)
			}
			return printJSON(cmd, balances)
		},
	}

	cmd.Flags().String(flagChain, "", "only show this chain")
	return cmd
}

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
