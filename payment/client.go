package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"cosmossdk.io/log"

	"github.com/strangelove-ventures/cctp-transfer/types"
)

var ErrNoAcceptedRequirement = errors.New("no payment requirement matches the client network")

// Response is the outcome of a paid request
type Response struct {
	StatusCode int
	Body       []byte
	// Payment is the payload that was sent, nil if the resource was free
	Payment *PaymentPayload
	// Settlement is decoded from X-PAYMENT-RESPONSE when the server sent one
	Settlement *SettleResponse
}

// Client fetches x402 protected resources, paying with an EIP-3009 authorization when the
// server answers 402 Payment Required.
type Client struct {
	httpClient *http.Client
	signer     HashSigner
	network    string
	validFor   time.Duration
	maxAmount  *big.Int
	logger     log.Logger
}

func NewClient(signer HashSigner, settings types.PaymentSettings, logger log.Logger) (*Client, error) {
	if _, err := ChainID(settings.Network); err != nil {
		return nil, err
	}
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		signer:     signer,
		network:    settings.Network,
		validFor:   settings.ValidFor,
		logger:     logger.With("component", "payment-client", "network", settings.Network),
	}
	if settings.MaxAmount != "" {
		maxAmount, ok := new(big.Int).SetString(settings.MaxAmount, 10)
		if !ok || maxAmount.Sign() < 0 {
			return nil, fmt.Errorf("invalid payment max-amount %q", settings.MaxAmount)
		}
		c.maxAmount = maxAmount
	}
	return c, nil
}

// Fetch GETs url, paying once if the server requires it
func (c *Client) Fetch(ctx context.Context, url string) (*Response, error) {
	resp, body, err := c.get(ctx, url, "")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusPaymentRequired {
		return &Response{StatusCode: resp.StatusCode, Body: body}, nil
	}

	var required PaymentRequiredResponse
	if err := json.Unmarshal(body, &required); err != nil {
		return nil, fmt.Errorf("unable to decode payment requirements: %w", err)
	}
	req, err := c.selectRequirement(required.Accepts)
	if err != nil {
		return nil, err
	}

	auth, err := NewAuthorization(c.signer.Address().Hex(), req, time.Now(), c.validFor)
	if err != nil {
		return nil, err
	}
	payload, err := Sign(c.signer, auth, req)
	if err != nil {
		return nil, err
	}
	header, err := EncodeHeader(payload)
	if err != nil {
		return nil, err
	}
	c.logger.Info("Paying for resource", "resource", url, "amount", req.MaxAmountRequired, "asset", req.Asset, "pay_to", req.PayTo)

	resp, body, err = c.get(ctx, url, header)
	if err != nil {
		return nil, err
	}
	out := &Response{StatusCode: resp.StatusCode, Body: body, Payment: &payload}
	if settlement := resp.Header.Get(HeaderPaymentResponse); settlement != "" {
		var settle SettleResponse
		if err := decodeBase64JSON(settlement, &settle); err != nil {
			c.logger.Error("Invalid payment response header", "error", err)
		} else {
			out.Settlement = &settle
		}
	}
	if resp.StatusCode == http.StatusPaymentRequired {
		return out, fmt.Errorf("payment rejected: %s", bodySnippet(body))
	}
	return out, nil
}

// selectRequirement picks the first exact scheme requirement on the client's network within
// the configured spending limit
func (c *Client) selectRequirement(accepts []PaymentRequirements) (PaymentRequirements, error) {
	for _, req := range accepts {
		if req.Scheme != SchemeExact || req.Network != c.network {
			continue
		}
		amount, ok := new(big.Int).SetString(req.MaxAmountRequired, 10)
		if !ok {
			continue
		}
		if c.maxAmount != nil && amount.Cmp(c.maxAmount) > 0 {
			c.logger.Info("Payment requirement exceeds max amount", "amount", amount.String(), "max", c.maxAmount.String())
			continue
		}
		return req, nil
	}
	return PaymentRequirements{}, ErrNoAcceptedRequirement
}

func (c *Client) get(ctx context.Context, url, paymentHeader string) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if paymentHeader != "" {
		req.Header.Set(HeaderPayment, paymentHeader)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, &types.NetworkError{Op: "GET " + url, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, &types.NetworkError{Op: "GET " + url, Err: err}
	}
	return resp, body, nil
}

func bodySnippet(body []byte) string {
	if len(body) > 256 {
		return string(body[:256])
	}
	return string(body)
}
