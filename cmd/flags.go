package cmd

import (
	"github.com/spf13/cobra"
)

const (
	flagConfigPath     = "config"
	flagVerbose        = "verbose"
	flagLogLevel       = "log-level"
	flagMetricsPort    = "metrics-port"
	flagMetricsAddress = "metrics-address"
	flagAmount         = "amount"
	flagRecipient      = "recipient"
	flagSource         = "source"
	flagDestination    = "destination"
	flagBurnTx         = "burn-tx"
	flagURL            = "url"
	flagChain          = "chain"
)

func addAppPersistantFlags(cmd *cobra.Command, a *AppState) *cobra.Command {
	cmd.PersistentFlags().StringVar(&a.ConfigPath, flagConfigPath, defaultConfigPath, "file path of config file")
	cmd.PersistentFlags().BoolVarP(&a.Debug, flagVerbose, "v", false, "use this flag to set log level to `debug`")
	cmd.PersistentFlags().StringVar(&a.LogLevel, flagLogLevel, "info", "log level (debug, info, warn, error)")
	return cmd
}

func addRouteFlags(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().String(flagSource, "", "source chain name, defaults to transfer.source of the config")
	cmd.Flags().String(flagDestination, "", "destination chain name, defaults to transfer.destination of the config")
	return cmd
}

func addMetricsFlags(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().Int16P(flagMetricsPort, "p", 2112, "customize Prometheus metrics port")
	cmd.Flags().String(flagMetricsAddress, "localhost", "customize Prometheus metrics address")
	return cmd
}
