package cmd

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/strangelove-ventures/cctp-transfer/circle"
	"github.com/strangelove-ventures/cctp-transfer/ethereum"
	"github.com/strangelove-ventures/cctp-transfer/filters"
	"github.com/strangelove-ventures/cctp-transfer/transfer"
	"github.com/strangelove-ventures/cctp-transfer/types"
)

// sequenceMap maps the domain -> the next nonce of the signing account
var sequenceMap = types.NewSequenceMap()

// route holds the clients of one source -> destination transfer route
type route struct {
	cfg        *types.Config
	sourceName string
	destName   string

	source      *ethereum.Chain
	destination *ethereum.Chain

	sourceSettings types.ChainSettings
	destSettings   types.ChainSettings

	poller       *circle.Poller
	filters      *types.FilterRegistry
	orchestrator *transfer.Orchestrator
}

// routeNames returns the chains selected by the route flags, falling back to the config
func routeNames(cmd *cobra.Command, cfg *types.Config) (string, string) {
	source, destination := cfg.Transfer.Source, cfg.Transfer.Destination
	if cmd.Flags().Lookup(flagSource) != nil {
		if name, _ := cmd.Flags().GetString(flagSource); name != "" {
			source = name
		}
	}
	if cmd.Flags().Lookup(flagDestination) != nil {
		if name, _ := cmd.Flags().GetString(flagDestination); name != "" {
			destination = name
		}
	}
	return source, destination
}

// newChain dials a configured chain, signing with its resolved key if one is available
func newChain(ctx context.Context, a *AppState, name string) (*ethereum.Chain, types.ChainSettings, error) {
	settings, err := a.Config.Chain(name)
	if err != nil {
		return nil, settings, err
	}
	signer, err := a.Signer(name, settings)
	if err != nil {
		return nil, settings, err
	}
	chain, err := ethereum.NewChain(ctx, name, settings, signer, sequenceMap, a.Logger)
	if err != nil {
		return nil, settings, fmt.Errorf("error creating chain %s: %w", name, err)
	}
	return chain, settings, nil
}

// newRoute dials both chains of the route and wires the orchestrator with the configured
// filters. The shared config is left untouched, requests for the route come from request.
func newRoute(ctx context.Context, a *AppState, sourceName, destName string, opts ...transfer.Option) (*route, error) {
	cfg := a.Config
	if err := cfg.ValidateRoute(sourceName, destName); err != nil {
		return nil, err
	}

	r := &route{cfg: cfg, sourceName: sourceName, destName: destName}
	var err error
	if r.source, r.sourceSettings, err = newChain(ctx, a, sourceName); err != nil {
		return nil, err
	}
	if r.destination, r.destSettings, err = newChain(ctx, a, destName); err != nil {
		r.Close()
		return nil, err
	}
	if r.source.Address() == "" || r.destination.Address() == "" {
		r.Close()
		return nil, fmt.Errorf("no signing key for %s or %s, set %s, %s or %s",
			sourceName, destName, privateKeyEnv(sourceName), privateKeyEnv(destName), PrivateKeyEnv)
	}

	if r.poller, err = circle.NewPoller(cfg.Circle, a.Logger); err != nil {
		r.Close()
		return nil, err
	}
	if r.filters, err = filters.NewRegistry(ctx, cfg, a.Logger); err != nil {
		r.Close()
		return nil, fmt.Errorf("failed to initialize filters: %w", err)
	}

	tcfg, err := transfer.NewConfig(cfg.Transfer, r.destSettings)
	if err != nil {
		r.Close()
		return nil, err
	}
	opts = append([]transfer.Option{transfer.WithFilters(r.filters), transfer.WithObserver(progressLogger(a))}, opts...)
	r.orchestrator = transfer.NewOrchestrator(r.source, r.destination, r.poller, tcfg, a.Logger, opts...)
	return r, nil
}

// request builds a request to transfer amount subunits over the route
func (r *route) request(amount *big.Int, recipient string) (types.TransferRequest, error) {
	return r.cfg.RouteRequest(r.sourceName, r.destName, amount, recipient)
}

func (r *route) Close() {
	if r.source != nil {
		r.source.Close()
	}
	if r.destination != nil {
		r.destination.Close()
	}
	if r.filters != nil {
		_ = r.filters.Close()
	}
}

// progressLogger reports attestation polling, which the orchestrator only logs at debug level
func progressLogger(a *AppState) transfer.Observer {
	return func(e transfer.Event) {
		switch e.Type {
		case transfer.EventBurnSubmitted:
			a.Logger.Info("Burn submitted, waiting for Circle's attestation", "transfer", e.TransferID, "tx", e.TxHash)
		case transfer.EventAttestationPending:
			if e.Attempt%10 == 0 {
				a.Logger.Info("Still waiting for attestation", "transfer", e.TransferID, "attempt", e.Attempt, "elapsed", e.Elapsed.Round(time.Second))
			}
		}
	}
}

// parseAmount converts a decimal token amount such as "1.5" into subunits
func parseAmount(value string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	if !d.IsPositive() {
		return nil, fmt.Errorf("amount must be positive, got %s", value)
	}
	shifted := d.Shift(decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("amount %s has more than %d decimals", value, decimals)
	}
	return shifted.BigInt(), nil
}

// formatAmount converts subunits into a decimal token amount
func formatAmount(amount *big.Int, decimals int32) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -decimals).String()
}
