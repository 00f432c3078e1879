package circle

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cosmossdk.io/log"

	"github.com/strangelove-ventures/cctp-transfer/types"
)

var ErrMessageHashRequired = errors.New("v1 attestation lookups require the MessageSent hash of the burn")

// Poller waits for Circle's attestation service to attest a burn
type Poller struct {
	cfg     types.CircleSettings
	version types.APIVersion
	client  *http.Client
	logger  log.Logger
}

func NewPoller(cfg types.CircleSettings, logger log.Logger) (*Poller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	version, _ := cfg.GetAPIVersion()
	return &Poller{
		cfg:     cfg,
		version: version,
		client:  &http.Client{},
		logger:  logger.With("component", "attestation-poller", "api", version.String()),
	}, nil
}

// AwaitAttestation polls until the burn's attestation is complete. The first request is sent
// immediately, later ones every poll interval, growing by the backoff multiplier up to the
// max poll interval. Every request is reported to onAttempt.
//
// A failed attestation returns an AttestationServiceError, exhausting max wait returns an
// AttestationTimeoutError and canceling ctx returns the context's error.
func (p *Poller) AwaitAttestation(ctx context.Context, burn types.BurnReceipt, onAttempt func(types.PollAttempt)) (*types.Attestation, error) {
	if burn.TxHash == "" {
		return nil, errors.New("burn receipt has no transaction hash")
	}
	if p.version == types.APIVersionV1 && burn.MessageHash == "" {
		return nil, ErrMessageHashRequired
	}

	start := time.Now()
	pollCtx, cancel := ctx, context.CancelFunc(func() {})
	if p.cfg.MaxWait > 0 {
		pollCtx, cancel = context.WithTimeout(ctx, p.cfg.MaxWait)
	}
	defer cancel()

	interval := p.cfg.PollInterval
	logger := p.logger.With("tx", burn.TxHash, "source_domain", burn.SourceDomain)
	for attempt := 1; ; attempt++ {
		att, statusCode, err := p.fetch(pollCtx, burn)

		pa := types.PollAttempt{
			Attempt:    attempt,
			Elapsed:    time.Since(start),
			StatusCode: statusCode,
			Status:     types.AttestationPending,
			Err:        err,
		}
		if att != nil {
			pa.Status = att.Status
		}
		if onAttempt != nil {
			onAttempt(pa)
		}

		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Debug("Attestation request failed, retrying", "attempt", attempt, "error", err)
		} else {
			switch att.Status {
			case types.AttestationComplete:
				logger.Info(fmt.Sprintf("Attestation complete after %s", pa.Elapsed.Round(time.Second)), "attempts", attempt)
				return att, nil
			case types.AttestationFailed:
				return nil, &types.AttestationServiceError{TxHash: burn.TxHash, Status: string(att.Status)}
			default:
				logger.Debug("Attestation pending", "attempt", attempt, "elapsed", pa.Elapsed.Round(time.Millisecond))
			}
		}

		if attempt > 1 {
			interval = p.nextInterval(interval)
		}
		if err := sleep(ctx, pollCtx, interval); err != nil {
			if errors.Is(err, errMaxWait) {
				return nil, &types.AttestationTimeoutError{TxHash: burn.TxHash, Attempts: attempt, Elapsed: time.Since(start)}
			}
			return nil, err
		}
	}
}

var errMaxWait = errors.New("max wait exceeded")

// sleep waits for d unless the caller's ctx or the bounded pollCtx finishes first
func sleep(ctx, pollCtx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-pollCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errMaxWait
	case <-timer.C:
		return nil
	}
}

// CheckAttestation performs a single lookup. A not yet attested burn returns a pending attestation.
func (p *Poller) CheckAttestation(ctx context.Context, burn types.BurnReceipt) (*types.Attestation, error) {
	if p.version == types.APIVersionV1 && burn.MessageHash == "" {
		return nil, ErrMessageHashRequired
	}
	att, _, err := p.fetch(ctx, burn)
	if err != nil {
		return nil, &types.NetworkError{Op: "attestation lookup", Err: err}
	}
	return att, nil
}

func (p *Poller) nextInterval(interval time.Duration) time.Duration {
	if p.cfg.BackoffMultiplier <= 1 {
		return interval
	}
	next := time.Duration(float64(interval) * p.cfg.BackoffMultiplier)
	if p.cfg.MaxPollInterval > 0 && next > p.cfg.MaxPollInterval {
		next = p.cfg.MaxPollInterval
	}
	return next
}

// fetch performs one request. A nil error with a pending attestation covers both a 404 and
// an intermediate status such as pending_confirmations.
func (p *Poller) fetch(ctx context.Context, burn types.BurnReceipt) (*types.Attestation, int, error) {
	switch p.version {
	case types.APIVersionV1:
		return p.fetchV1(ctx, burn)
	default:
		return p.fetchV2(ctx, burn)
	}
}

// fetchV1 uses the legacy v1 API: {baseURL}/attestations/{messageHash}
func (p *Poller) fetchV1(ctx context.Context, burn types.BurnReceipt) (*types.Attestation, int, error) {
	url := fmt.Sprintf("%s/attestations/%s", normalizeBaseURL(p.cfg.AttestationBaseURL), normalizeMessageHash(burn.MessageHash))
	p.logger.Debug(fmt.Sprintf("Checking v1 attestation at %s", url))

	var response types.AttestationResponse
	statusCode, err := p.httpGet(ctx, url, &response)
	if err != nil || statusCode == http.StatusNotFound {
		return pendingAttestation(statusCode, err)
	}

	att := &types.Attestation{Status: types.ParseAttestationStatus(response.Status)}
	if att.Status != types.AttestationComplete {
		return att, statusCode, nil
	}
	if len(burn.Message) == 0 {
		return nil, statusCode, errors.New("v1 attestation is complete but the burn receipt carries no message")
	}
	if att.Attestation, err = decodeHex(response.Attestation); err != nil {
		return nil, statusCode, fmt.Errorf("invalid attestation: %w", err)
	}
	att.Message = burn.Message
	return att, statusCode, nil
}

// fetchV2 uses the v2 API: {baseURL}/v2/messages/{sourceDomain}?transactionHash={txHash}
func (p *Poller) fetchV2(ctx context.Context, burn types.BurnReceipt) (*types.Attestation, int, error) {
	url := fmt.Sprintf("%s/v2/messages/%d?transactionHash=%s", normalizeBaseURL(p.cfg.AttestationBaseURL), burn.SourceDomain, normalizeMessageHash(burn.TxHash))
	p.logger.Debug(fmt.Sprintf("Checking v2 attestation at %s", url))

	var v2Response types.AttestationResponseV2
	statusCode, err := p.httpGet(ctx, url, &v2Response)
	if err != nil || statusCode == http.StatusNotFound || len(v2Response.Messages) == 0 {
		return pendingAttestation(statusCode, err)
	}

	if len(v2Response.Messages) > 1 {
		p.logger.Info(fmt.Sprintf("V2 attestation found %d messages for tx %s", len(v2Response.Messages), burn.TxHash))
	}
	msg := selectMessage(v2Response.Messages, burn.Message)

	att := &types.Attestation{
		Status:      types.ParseAttestationStatus(msg.Status),
		EventNonce:  msg.EventNonce,
		CctpVersion: msg.CctpVersion,
	}
	if att.Status != types.AttestationComplete {
		return att, statusCode, nil
	}
	if att.Message, err = decodeHex(msg.Message); err != nil {
		return nil, statusCode, fmt.Errorf("invalid message: %w", err)
	}
	if att.Attestation, err = decodeHex(msg.Attestation); err != nil {
		return nil, statusCode, fmt.Errorf("invalid attestation: %w", err)
	}
	if len(att.Message) == 0 || len(att.Attestation) == 0 {
		return nil, statusCode, errors.New("complete attestation has an empty message or signature")
	}
	return att, statusCode, nil
}

func pendingAttestation(statusCode int, err error) (*types.Attestation, int, error) {
	if err != nil {
		return nil, statusCode, err
	}
	return &types.Attestation{Status: types.AttestationPending}, statusCode, nil
}

// selectMessage picks the message emitted by the burn. A transaction may emit several.
func selectMessage(messages []types.MessageResponseV2, burnMessage []byte) types.MessageResponseV2 {
	if len(burnMessage) > 0 {
		for _, m := range messages {
			if bz, err := decodeHex(m.Message); err == nil && bytes.Equal(bz, burnMessage) {
				return m
			}
		}
	}
	return messages[0]
}

// httpGet performs a GET request and unmarshals a 2xx JSON response. A 404 is not an error.
func (p *Poller) httpGet(ctx context.Context, url string, result any) (int, error) {
	if p.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.RequestTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusNotFound:
		return resp.StatusCode, nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}
	// a 2xx without a body, e.g. 204, leaves result empty and reads as pending
	if len(bytes.TrimSpace(body)) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(body, result); err != nil {
		return resp.StatusCode, fmt.Errorf("unable to decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
}

// normalizeMessageHash ensures the message hash has 0x prefix
func normalizeMessageHash(hash string) string {
	if len(hash) > 2 && hash[:2] != "0x" {
		return "0x" + hash
	}
	return hash
}

// normalizeBaseURL removes trailing slashes and the /attestations suffix of v1 style URLs
func normalizeBaseURL(url string) string {
	url = strings.TrimSuffix(url, "/")
	return strings.TrimSuffix(url, "/attestations")
}
