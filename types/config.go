package types

import (
	"fmt"
	"math/big"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Chains   map[string]ChainSettings `yaml:"chains"`
	Circle   CircleSettings           `yaml:"circle"`
	Transfer TransferSettings         `yaml:"transfer"`
	Payment  PaymentSettings          `yaml:"payment"`

	API struct {
		ListenAddress  string   `yaml:"listen-address" default:"localhost:8000"`
		TrustedProxies []string `yaml:"trusted-proxies"`
	} `yaml:"api"`
}

// ChainSettings describes one EVM chain and the CCTP contracts deployed on it
type ChainSettings struct {
	Domain             Domain `yaml:"domain"`
	ChainID            int64  `yaml:"chain-id" validate:"required"`
	RPC                string `yaml:"rpc" validate:"required,url"`
	USDC               string `yaml:"usdc" validate:"omitempty,eth_addr"`
	TokenMessenger     string `yaml:"token-messenger" validate:"omitempty,eth_addr"`
	MessageTransmitter string `yaml:"message-transmitter" validate:"omitempty,eth_addr"`
	MinterPrivateKey   string `yaml:"minter-private-key"`
	MinMintAmount      uint64 `yaml:"min-mint-amount"` // smallest transfer accepted towards this chain

	ReceiptPollInterval time.Duration `yaml:"receipt-poll-interval" default:"2s"`

	MetricsDenom    string `yaml:"metrics-denom" default:"USDC"`
	MetricsExponent int    `yaml:"metrics-exponent" default:"6"`
}

type CircleSettings struct {
	AttestationBaseURL string        `yaml:"attestation-base-url" default:"https://iris-api-sandbox.circle.com"`
	APIVersion         string        `yaml:"api-version"`
	PollInterval       time.Duration `yaml:"poll-interval" default:"5s"`
	MaxPollInterval    time.Duration `yaml:"max-poll-interval" default:"30s"`
	BackoffMultiplier  float64       `yaml:"backoff-multiplier" default:"1"`
	MaxWait            time.Duration `yaml:"max-wait" default:"30m"` // 0 waits until the context is canceled
	RequestTimeout     time.Duration `yaml:"request-timeout" default:"5s"`
}

type TransferSettings struct {
	Source           string              `yaml:"source"`
	Destination      string              `yaml:"destination"`
	AllowanceCeiling string              `yaml:"allowance-ceiling" default:"10000000000"` // 10,000 USDC
	CheckAllowance   bool                `yaml:"check-allowance" default:"true"`
	VerifyMessage    bool                `yaml:"verify-message" default:"true"`
	MinAmount        string              `yaml:"min-amount"`
	Decimals         int32               `yaml:"decimals" default:"6"`
	EnabledRoutes    map[Domain][]Domain `yaml:"enabled-routes"`

	RecipientAllowlist AllowlistSettings `yaml:"recipient-allowlist"`
}

// AllowlistSettings restricts mint recipients to a static list and/or a remote list
type AllowlistSettings struct {
	Addresses       []string      `yaml:"addresses" validate:"dive,eth_addr"`
	Provider        string        `yaml:"provider" validate:"omitempty,oneof=quicknode-kv"`
	KVKey           string        `yaml:"kv-key" validate:"required_with=Provider"`
	RefreshInterval time.Duration `yaml:"refresh-interval" default:"5m"`
}

// Enabled reports whether any allowlist source is configured
func (a AllowlistSettings) Enabled() bool {
	return len(a.Addresses) > 0 || a.Provider != ""
}

type PaymentSettings struct {
	Network   string        `yaml:"network" default:"base-sepolia"`
	ValidFor  time.Duration `yaml:"valid-for" default:"10m"`
	MaxAmount string        `yaml:"max-amount"`
}

// ParseConfig decodes a YAML config, applying defaults for every omitted value
func ParseConfig(bz []byte) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("error applying config defaults: %w", err)
	}
	if err := yaml.Unmarshal(bz, cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	for name, chain := range cfg.Chains {
		if err := defaults.Set(&chain); err != nil {
			return nil, fmt.Errorf("error applying defaults for chain %s: %w", name, err)
		}
		cfg.Chains[name] = chain
	}
	return cfg, nil
}

// Validate checks every section of the config
func (c *Config) Validate() error {
	for name, chain := range c.Chains {
		if err := validate.Struct(chain); err != nil {
			return fmt.Errorf("invalid config for chain %s: %w", name, err)
		}
	}
	if err := c.Circle.Validate(); err != nil {
		return fmt.Errorf("invalid circle config: %w", err)
	}
	if err := c.Transfer.Validate(); err != nil {
		return fmt.Errorf("invalid transfer config: %w", err)
	}
	if c.Transfer.Source != "" {
		if err := c.validateSource(c.Transfer.Source); err != nil {
			return err
		}
	}
	if c.Transfer.Destination != "" {
		if err := c.validateDestination(c.Transfer.Destination); err != nil {
			return err
		}
	}
	return nil
}

// ValidateRoute checks that a transfer can run from source to destination. The names may
// differ from the configured route, so commands can pick a route per invocation.
func (c *Config) ValidateRoute(source, destination string) error {
	if source == "" || destination == "" {
		return fmt.Errorf("a source and destination chain are required")
	}
	if source == destination {
		return fmt.Errorf("source and destination must differ")
	}
	if err := c.validateSource(source); err != nil {
		return err
	}
	return c.validateDestination(destination)
}

func (c *Config) validateSource(name string) error {
	src, err := c.Chain(name)
	if err != nil {
		return err
	}
	if src.USDC == "" || src.TokenMessenger == "" {
		return fmt.Errorf("source chain %s requires usdc and token-messenger", name)
	}
	return nil
}

func (c *Config) validateDestination(name string) error {
	dst, err := c.Chain(name)
	if err != nil {
		return err
	}
	if dst.MessageTransmitter == "" {
		return fmt.Errorf("destination chain %s requires message-transmitter", name)
	}
	return nil
}

// Chain returns the settings of a configured chain by name
func (c *Config) Chain(name string) (ChainSettings, error) {
	chain, ok := c.Chains[name]
	if !ok {
		return ChainSettings{}, fmt.Errorf("chain %q is not configured", name)
	}
	return chain, nil
}

// ChainByDomain returns the name and settings of the chain registered for domain
func (c *Config) ChainByDomain(domain Domain) (string, ChainSettings, error) {
	for name, chain := range c.Chains {
		if chain.Domain == domain {
			return name, chain, nil
		}
	}
	return "", ChainSettings{}, fmt.Errorf("no chain configured for domain %d", domain)
}

// TransferRequest builds a request for the configured source -> destination route
func (c *Config) TransferRequest(amount *big.Int, mintRecipient string) (TransferRequest, error) {
	return c.RouteRequest(c.Transfer.Source, c.Transfer.Destination, amount, mintRecipient)
}

// RouteRequest builds a request to transfer amount subunits from source to destination
func (c *Config) RouteRequest(source, destination string, amount *big.Int, mintRecipient string) (TransferRequest, error) {
	src, err := c.Chain(source)
	if err != nil {
		return TransferRequest{}, fmt.Errorf("source: %w", err)
	}
	dst, err := c.Chain(destination)
	if err != nil {
		return TransferRequest{}, fmt.Errorf("destination: %w", err)
	}
	return TransferRequest{
		Amount:            amount,
		SourceDomain:      src.Domain,
		DestinationDomain: dst.Domain,
		SourceToken:       src.USDC,
		MintRecipient:     mintRecipient,
		BurnSpender:       src.TokenMessenger,
	}, nil
}

// GetAPIVersion returns the parsed API version
func (c *CircleSettings) GetAPIVersion() (APIVersion, error) {
	return ParseAPIVersion(c.APIVersion)
}

func (c *CircleSettings) Validate() error {
	if _, err := c.GetAPIVersion(); err != nil {
		return fmt.Errorf("invalid api-version: %w", err)
	}
	if c.AttestationBaseURL == "" {
		return fmt.Errorf("attestation-base-url is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll-interval must be positive")
	}
	if c.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff-multiplier must be at least 1")
	}
	if c.MaxWait < 0 {
		return fmt.Errorf("max-wait cannot be negative")
	}
	return nil
}

func (t *TransferSettings) Validate() error {
	if _, err := t.Ceiling(); err != nil {
		return err
	}
	if _, err := t.Minimum(); err != nil {
		return err
	}
	if t.Source != "" && t.Source == t.Destination {
		return fmt.Errorf("source and destination must differ")
	}
	if err := validate.Struct(t.RecipientAllowlist); err != nil {
		return fmt.Errorf("invalid recipient-allowlist: %w", err)
	}
	return nil
}

// Ceiling returns the allowance granted by an approval
func (t *TransferSettings) Ceiling() (*big.Int, error) {
	return parseSubunits("allowance-ceiling", t.AllowanceCeiling)
}

// Minimum returns the smallest transfer amount accepted, nil if unset
func (t *TransferSettings) Minimum() (*big.Int, error) {
	if t.MinAmount == "" {
		return nil, nil
	}
	return parseSubunits("min-amount", t.MinAmount)
}

func parseSubunits(name, value string) (*big.Int, error) {
	if value == "" {
		return nil, fmt.Errorf("%s is required", name)
	}
	n, ok := new(big.Int).SetString(value, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("%s must be a non-negative integer, got %q", name, value)
	}
	return n, nil
}
