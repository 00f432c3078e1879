package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strangelove-ventures/cctp-transfer/payment"
)

// Pay fetches an x402 protected resource, paying with a USDC transfer authorization
func Pay(a *AppState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pay",
		Short: "Fetch an x402 payment protected URL, paying in USDC if required",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, err := cmd.Flags().GetString(flagURL)
			if err != nil {
				return err
			}
			name, _ := cmd.Flags().GetString(flagChain)
			if name == "" {
				name = a.Config.Transfer.Source
			}
			settings, err := a.Config.Chain(name)
			if err != nil {
				return err
			}
			signer, err := a.Signer(name, settings)
			if err != nil {
				return err
			}
			if signer == nil {
				return fmt.Errorf("no signing key for %s, set %s or %s", name, privateKeyEnv(name), PrivateKeyEnv)
			}

			client, err := payment.NewClient(signer, a.Config.Payment, a.Logger)
			if err != nil {
				return err
			}
			resp, err := client.Fetch(cmd.Context(), url)
			if err != nil {
				return err
			}
			if resp.Settlement != nil {
				a.Logger.Info("Payment settled", "success", resp.Settlement.Success, "tx", resp.Settlement.Transaction, "network", resp.Settlement.Network)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(resp.Body))
			return err
		},
	}

	cmd.Flags().String(flagURL, "", "resource to fetch")
	cmd.Flags().String(flagChain, "", "chain whose signing key pays, defaults to transfer.source of the config")
	_ = cmd.MarkFlagRequired(flagURL)
	return cmd
}
