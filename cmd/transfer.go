package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strangelove-ventures/cctp-transfer/ethereum"
	"github.com/strangelove-ventures/cctp-transfer/transfer"
)

func Transfer(a *AppState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Burn USDC on the source chain and mint it on the destination chain",
		Example: `cctp-transfer transfer --amount 1.5
cctp-transfer transfer --amount 10 --recipient 0x... --source base-sepolia --destination sepolia`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			value, err := cmd.Flags().GetString(flagAmount)
			if err != nil {
				return err
			}
			amount, err := parseAmount(value, a.Config.Transfer.Decimals)
			if err != nil {
				return err
			}

			sourceName, destName := routeNames(cmd, a.Config)
			r, err := newRoute(cmd.Context(), a, sourceName, destName)
			if err != nil {
				return err
			}
			defer r.Close()

			recipient, err := cmd.Flags().GetString(flagRecipient)
			if err != nil {
				return err
			}
			if recipient == "" {
				recipient = r.destination.Address()
			}

			req, err := r.request(amount, recipient)
			if err != nil {
				return err
			}
			a.Logger.Info("Starting transfer", "amount", value, "from", sourceName, "to", destName, "recipient", recipient)

			res, err := r.orchestrator.Run(cmd.Context(), req)
			if printErr := printJSON(cmd, res); printErr != nil {
				a.Logger.Error("Unable to print result", "error", printErr)
			}
			return err
		},
	}

	cmd.Flags().String(flagAmount, "", "amount of USDC to transfer, e.g. 1.5")
	cmd.Flags().String(flagRecipient, "", "mint recipient on the destination chain, defaults to the destination signer")
	_ = cmd.MarkFlagRequired(flagAmount)
	addRouteFlags(cmd)
	return cmd
}

// Resume finishes a transfer from its burn transaction: it rebuilds the request from the
// burned message, skips messages that were already received and otherwise awaits the
// attestation and mints.
func Resume(a *AppState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Await the attestation of a burn and mint it on the destination chain",
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
			receipt, err := source.WaitMined(ctx, burnTx)
			source.Close()
			if err != nil {
				return fmt.Errorf("burn %s: %w", burnTx, err)
			}
			burn := ethereum.BurnReceiptFromReceipt(receipt, settings.Domain)
			if len(burn.Message) == 0 {
				return fmt.Errorf("transaction %s emitted no MessageSent event", burnTx)
			}

			req, err := transfer.RequestFromMessage(burn.Message)
			if err != nil {
				return err
			}
			destName, _, err := a.Config.ChainByDomain(req.DestinationDomain)
			if err != nil {
				return err
			}

			r, err := newRoute(ctx, a, sourceName, destName)
			if err != nil {
				return err
			}
			defer r.Close()

			received, err := r.destination.MessageReceived(ctx, r.destSettings.MessageTransmitter, burn.Message)
			if err != nil {
				return err
			}
			if received {
				a.Logger.Info("Message was already received on the destination chain, nothing to mint", "burn_tx", burnTx, "destination", destName)
				return nil
			}

			res, err := r.orchestrator.ResumeFromBurn(ctx, req, burnTx)
			if printErr := printJSON(cmd, res); printErr != nil {
				a.Logger.Error("Unable to print result", "error", printErr)
			}
			return err
		},
	}

	cmd.Flags().String(flagBurnTx, "", "hash of the depositForBurn transaction")
	cmd.Flags().String(flagSource, "", "chain the burn was submitted on, defaults to transfer.source of the config")
	_ = cmd.MarkFlagRequired(flagBurnTx)
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	bz, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(bz))
	return err
}
