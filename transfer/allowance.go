package transfer

import (
	"context"
	"sync"
	"time"

	"cosmossdk.io/log"
	"github.com/shopspring/decimal"

	"github.com/strangelove-ventures/cctp-transfer/metrics"
	"github.com/strangelove-ventures/cctp-transfer/types"
)

const DefaultAllowanceMonitorInterval = 30 * time.Second

// AllowanceMonitor periodically reads the sender's token balance and the allowance granted
// to the TokenMessenger, keeping the last snapshot and exporting it to Prometheus.
type AllowanceMonitor struct {
	chain    ChainClient
	token    string
	spender  string
	decimals int32
	interval time.Duration
	metrics  *metrics.PromMetrics
	logger   log.Logger

	mu    sync.RWMutex
	state *types.AllowanceState
}

func NewAllowanceMonitor(
	chain ChainClient,
	settings types.ChainSettings,
	decimals int32,
	interval time.Duration,
	m *metrics.PromMetrics,
	logger log.Logger,
) *AllowanceMonitor {
	if interval <= 0 {
		interval = DefaultAllowanceMonitorInterval
	}
	return &AllowanceMonitor{
		chain:    chain,
		token:    settings.USDC,
		spender:  settings.TokenMessenger,
		decimals: decimals,
		interval: interval,
		metrics:  m,
		logger:   logger.With("component", "allowance-monitor", "chain", chain.Name()),
	}
}

// State returns the last snapshot, false before the first successful read
func (m *AllowanceMonitor) State() (types.AllowanceState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return types.AllowanceState{}, false
	}
	return *m.state, true
}

func (m *AllowanceMonitor) Start(ctx context.Context) {
	m.logger.Info("Starting allowance monitoring", "token", m.token, "spender", m.spender, "interval", m.interval)
	m.query(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Stopping allowance monitoring")
			return
		case <-ticker.C:
			m.query(ctx)
		}
	}
}

func (m *AllowanceMonitor) query(ctx context.Context) {
	owner := m.chain.Address()
	balance, err := m.chain.ReadBalance(ctx, m.token, owner)
	if err != nil {
		m.logger.Error("Failed to fetch token balance", "error", err)
		return
	}
	allowance, err := m.chain.ReadAllowance(ctx, m.token, owner, m.spender)
	if err != nil {
		m.logger.Error("Failed to fetch allowance", "error", err)
		return
	}

	state := types.AllowanceState{Token: m.token, Owner: owner, Spender: m.spender, Balance: balance, Allowance: allowance}
	m.mu.Lock()
	m.state = &state
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SetTokenBalance(m.chain.Name(), m.token, owner, decimal.NewFromBigInt(balance, -m.decimals).InexactFloat64())
		m.metrics.SetTokenAllowance(m.chain.Name(), m.token, owner, m.spender, decimal.NewFromBigInt(allowance, -m.decimals).InexactFloat64())
	}
	m.logger.Debug("Allowance updated", "balance", balance.String(), "allowance", allowance.String())
}

// StartAllowanceMonitor starts background monitoring of a source chain. Returns nil when the
// chain has no signer or no token/messenger to monitor.
func StartAllowanceMonitor(
	ctx context.Context,
	chain ChainClient,
	settings types.ChainSettings,
	decimals int32,
	interval time.Duration,
	m *metrics.PromMetrics,
	logger log.Logger,
) *AllowanceMonitor {
	if chain.Address() == "" || settings.USDC == "" || settings.TokenMessenger == "" {
		logger.Info("Allowance monitoring disabled", "chain", chain.Name())
		return nil
	}
	monitor := NewAllowanceMonitor(chain, settings, decimals, interval, m, logger)
	go monitor.Start(ctx)
	return monitor
}
