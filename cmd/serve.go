package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/strangelove-ventures/cctp-transfer/metrics"
	"github.com/strangelove-ventures/cctp-transfer/transfer"
)

const walletBalanceInterval = time.Minute

// Serve runs transfers requested over HTTP on the configured route and exports metrics
func Serve(a *AppState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve an HTTP API that runs transfers in the background",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := a.Logger

			port, err := cmd.Flags().GetInt16(flagMetricsPort)
			if err != nil {
				return fmt.Errorf("invalid port error=%w", err)
			}
			address, err := cmd.Flags().GetString(flagMetricsAddress)
			if err != nil {
				return fmt.Errorf("invalid address error=%w", err)
			}

			m := metrics.NewPromMetrics()
			go func() {
				if err := m.Serve(ctx, address, port); err != nil {
					logger.Error("Prometheus exporter stopped", "error", err)
				}
			}()

			store := transfer.NewStore()
			sourceName, destName := routeNames(cmd, a.Config)
			r, err := newRoute(ctx, a, sourceName, destName, transfer.WithMetrics(m), transfer.WithStore(store))
			if err != nil {
				return err
			}
			defer r.Close()

			go r.source.WalletBalanceMetric(ctx, walletBalanceInterval, m)
			go r.destination.WalletBalanceMetric(ctx, walletBalanceInterval, m)
			transfer.StartAllowanceMonitor(ctx, r.source, r.sourceSettings, a.Config.Transfer.Decimals,
				transfer.DefaultAllowanceMonitorInterval, m, logger)

			api := NewAPI(ctx, r.orchestrator, store, a.Config, sourceName, destName, r.source.Address(), logger)
			return api.Serve(ctx, a.Config.API.ListenAddress, a.Config.API.TrustedProxies)
		},
	}

	addRouteFlags(cmd)
	addMetricsFlags(cmd)
	return cmd
}
