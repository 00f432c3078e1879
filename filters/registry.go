package filters

import (
	"context"
	"fmt"
	"os"

	"cosmossdk.io/log"

	"github.com/strangelove-ventures/cctp-transfer/types"
)

// QuickNodeAPIKeyEnv holds the api key of the quicknode-kv allowlist provider
const QuickNodeAPIKeyEnv = "QUICKNODE_API_KEY"

// NewRegistry registers every filter enabled by the config
func NewRegistry(ctx context.Context, cfg *types.Config, logger log.Logger) (*types.FilterRegistry, error) {
	registry := types.NewFilterRegistry(logger)

	if len(cfg.Transfer.EnabledRoutes) > 0 {
		registry.Register(NewRouteFilter(cfg.Transfer.EnabledRoutes))
	}

	globalMin, err := cfg.Transfer.Minimum()
	if err != nil {
		return nil, err
	}
	registry.Register(NewLowTransferFilter(cfg.Chains, globalMin))

	allowlist := cfg.Transfer.RecipientAllowlist
	if allowlist.Enabled() {
		f := NewRecipientAllowlistFilter(allowlist.Addresses, logger)
		switch allowlist.Provider {
		case "":
		case "quicknode-kv":
			provider, err := types.NewQuickNodeKVProvider(os.Getenv(QuickNodeAPIKeyEnv), "")
			if err != nil {
				return nil, err
			}
			if err := f.WithProvider(ctx, provider, allowlist.KVKey, allowlist.RefreshInterval); err != nil {
				return nil, fmt.Errorf("unable to load recipient allowlist: %w", err)
			}
		default:
			return nil, fmt.Errorf("unknown allowlist provider: %s", allowlist.Provider)
		}
		registry.Register(f)
	}

	return registry, nil
}
