package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type PromMetrics struct {
	registry *prometheus.Registry

	WalletBalance      *prometheus.GaugeVec
	TokenBalance       *prometheus.GaugeVec
	TokenAllowance     *prometheus.GaugeVec
	SubmissionErrors   *prometheus.CounterVec
	TransfersTotal     *prometheus.CounterVec
	AttestationTotal   *prometheus.CounterVec
	AttestationPending *prometheus.GaugeVec
	AttestationWait    *prometheus.HistogramVec
}

func NewPromMetrics() *PromMetrics {
	reg := prometheus.NewRegistry()

	// labels
	var (
		walletLabels     = []string{"chain", "address", "denom"}
		tokenLabels      = []string{"chain", "token", "owner"}
		allowanceLabels  = []string{"chain", "token", "owner", "spender"}
		submissionLabels = []string{"chain", "domain", "step"}
		transferLabels   = []string{"source_domain", "dest_domain", "state", "reason"}
		attestLabels     = []string{"source_domain", "status"}
		pendingLabels    = []string{"source_domain", "dest_domain"}
		waitLabels       = []string{"source_domain"}
	)

	m := &PromMetrics{
		registry: reg,
		WalletBalance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cctp_transfer_wallet_balance",
			Help: "The current gas token balance of the signing wallet",
		}, walletLabels),
		TokenBalance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cctp_transfer_token_balance",
			Help: "The USDC balance of the sender",
		}, tokenLabels),
		TokenAllowance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cctp_transfer_token_allowance",
			Help: "The USDC allowance granted to the TokenMessenger",
		}, allowanceLabels),
		SubmissionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cctp_transfer_submission_errors_total",
			Help: "Transactions rejected by the signer or node, or reverted on chain",
		}, submissionLabels),
		TransfersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cctp_transfer_transfers_total",
			Help: "Transfers that reached a terminal state",
		}, transferLabels),
		AttestationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cctp_transfer_attestation_polls_total",
			Help: "Attestation service requests by observed status: pending, complete, failed, error",
		}, attestLabels),
		AttestationPending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cctp_transfer_attestation_pending",
			Help: "Number of transfers currently awaiting an attestation",
		}, pendingLabels),
		AttestationWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cctp_transfer_attestation_wait_seconds",
			Help:    "Time from burn confirmation to a complete attestation",
			Buckets: []float64{15, 30, 60, 120, 300, 600, 900, 1200, 1800, 3600},
		}, waitLabels),
	}

	reg.MustRegister(
		m.WalletBalance,
		m.TokenBalance,
		m.TokenAllowance,
		m.SubmissionErrors,
		m.TransfersTotal,
		m.AttestationTotal,
		m.AttestationPending,
		m.AttestationWait,
	)

	return m
}

// Handler exposes the registry in the prometheus text format
func (m *PromMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics until ctx is done
func (m *PromMetrics) Serve(ctx context.Context, address string, port int16) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", address, port),
		Handler:           mux,
		ReadHeaderTimeout: 3 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (m *PromMetrics) SetWalletBalance(chain, address, denom string, balance float64) {
	m.WalletBalance.WithLabelValues(chain, address, denom).Set(balance)
}

func (m *PromMetrics) SetTokenBalance(chain, token, owner string, balance float64) {
	m.TokenBalance.WithLabelValues(chain, token, owner).Set(balance)
}

func (m *PromMetrics) SetTokenAllowance(chain, token, owner, spender string, allowance float64) {
	m.TokenAllowance.WithLabelValues(chain, token, owner, spender).Set(allowance)
}

func (m *PromMetrics) IncSubmissionErrors(chain, domain, step string) {
	m.SubmissionErrors.WithLabelValues(chain, domain, step).Inc()
}

func (m *PromMetrics) IncTransfer(srcDomain, destDomain, state, reason string) {
	m.TransfersTotal.WithLabelValues(srcDomain, destDomain, state, reason).Inc()
}

func (m *PromMetrics) IncAttestation(srcDomain, status string) {
	m.AttestationTotal.WithLabelValues(srcDomain, status).Inc()
}

func (m *PromMetrics) IncPending(srcDomain, destDomain string) {
	m.AttestationPending.WithLabelValues(srcDomain, destDomain).Inc()
}

func (m *PromMetrics) DecPending(srcDomain, destDomain string) {
	m.AttestationPending.WithLabelValues(srcDomain, destDomain).Dec()
}

func (m *PromMetrics) ObserveAttestationWait(srcDomain string, wait time.Duration) {
	m.AttestationWait.WithLabelValues(srcDomain).Observe(wait.Seconds())
}
