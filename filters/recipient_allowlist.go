package filters

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cosmossdk.io/log"
	"github.com/ethereum/go-ethereum/common"

	"github.com/strangelove-ventures/cctp-transfer/types"
)

const DefaultAllowlistRefreshInterval = 5 * time.Minute

var _ types.TransferFilter = (*RecipientAllowlistFilter)(nil)

// RecipientAllowlistFilter rejects transfers minting to an address outside the allowlist.
// The list is the union of static addresses and an optional remote list refreshed in the background.
type RecipientAllowlistFilter struct {
	mu        sync.RWMutex
	static    map[string]bool
	allowlist map[string]bool

	provider        types.DataProvider
	kvKey           string
	refreshInterval time.Duration
	logger          log.Logger
	stopCh          chan struct{}
	stopOnce        sync.Once
}

func NewRecipientAllowlistFilter(addresses []string, logger log.Logger) *RecipientAllowlistFilter {
	static := make(map[string]bool, len(addresses))
	for _, addr := range addresses {
		if normalized := normalizeAddress(addr); normalized != "" {
			static[normalized] = true
		}
	}
	return &RecipientAllowlistFilter{
		static:    static,
		allowlist: static,
		logger:    logger.With("filter", "recipient-allowlist"),
		stopCh:    make(chan struct{}),
	}
}

// WithProvider loads the remote list once and keeps refreshing it until ctx is done or the
// filter is closed. The filter owns provider: it is closed with the filter, or right away if
// the initial fetch fails.
func (f *RecipientAllowlistFilter) WithProvider(ctx context.Context, provider types.DataProvider, kvKey string, refreshInterval time.Duration) error {
	if kvKey == "" {
		return errors.Join(fmt.Errorf("recipient-allowlist requires a kv key for provider %s", provider.Name()), provider.Close())
	}
	if refreshInterval <= 0 {
		refreshInterval = DefaultAllowlistRefreshInterval
	}
	f.provider = provider
	f.kvKey = kvKey
	f.refreshInterval = refreshInterval

	if err := f.refresh(ctx); err != nil {
		f.logger.Error("Failed to fetch initial allowlist", "error", err)
		f.provider = nil
		return errors.Join(err, provider.Close())
	}

	f.logger.Info("Recipient allowlist initialized",
		"provider", provider.Name(),
		"kv_key", f.kvKey,
		"refresh_interval", f.refreshInterval,
		"initial_count", f.Count())

	go f.startRefresh(ctx)
	return nil
}

func (f *RecipientAllowlistFilter) Name() string {
	return "recipient-allowlist"
}

func (f *RecipientAllowlistFilter) Filter(_ context.Context, req types.TransferRequest) (bool, string, error) {
	if !f.isAllowed(req.MintRecipient) {
		reason := fmt.Sprintf("mint recipient not allowlisted: %s (source_domain=%d, dest_domain=%d)",
			req.MintRecipient, req.SourceDomain, req.DestinationDomain)
		return true, reason, nil
	}
	return false, "", nil
}

// Close stops the background refresh and cleans up resources
func (f *RecipientAllowlistFilter) Close() error {
	f.stopOnce.Do(func() { close(f.stopCh) })
	if f.provider != nil {
		return f.provider.Close()
	}
	return nil
}

func (f *RecipientAllowlistFilter) startRefresh(ctx context.Context) {
	ticker := time.NewTicker(f.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("Recipient allowlist filter stopping")
			return
		case <-f.stopCh:
			return
		case <-ticker.C:
			if err := f.refresh(ctx); err != nil {
				f.logger.Error("Failed to refresh allowlist", "error", err)
			} else {
				f.logger.Debug("Allowlist refreshed", "count", f.Count())
			}
		}
	}
}

func (f *RecipientAllowlistFilter) refresh(ctx context.Context) error {
	addresses, err := f.provider.FetchList(ctx, f.kvKey)
	if err != nil {
		return err
	}

	allowlist := make(map[string]bool, len(addresses)+len(f.static))
	for addr := range f.static {
		allowlist[addr] = true
	}
	for _, addr := range addresses {
		if normalized := normalizeAddress(addr); normalized != "" {
			allowlist[normalized] = true
		}
	}

	f.mu.Lock()
	f.allowlist = allowlist
	f.mu.Unlock()

	if len(addresses) == 0 {
		f.logger.Info("Remote allowlist is empty after refresh")
	}
	return nil
}

func (f *RecipientAllowlistFilter) isAllowed(address string) bool {
	normalized := normalizeAddress(address)
	if normalized == "" {
		return false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.allowlist[normalized]
}

func (f *RecipientAllowlistFilter) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.allowlist)
}

func normalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return ""
	}
	return strings.ToLower(common.HexToAddress(address).Hex())
}
