package cmd

import (
	"github.com/spf13/cobra"
)

const defaultConfigPath = "./config.yaml"

// NewRootCmd returns the root command of the cctp-transfer CLI
func NewRootCmd() *cobra.Command {
	a := NewAppState()

	rootCmd := &cobra.Command{
		Use:   "cctp-transfer",
		Short: "Move USDC between EVM chains with Circle's Cross-Chain Transfer Protocol",
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			a.InitAppState()
		},
	}

	addAppPersistantFlags(rootCmd, a)

	rootCmd.AddCommand(
		Transfer(a),
		Resume(a),
		Attestation(a),
		Balance(a),
		Pay(a),
		Serve(a),
	)

	return rootCmd
}
