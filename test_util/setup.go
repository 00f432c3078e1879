package testutil

import (
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"cosmossdk.io/log"

	"github.com/strangelove-ventures/cctp-transfer/types"
)

// Ethereum Sepolia -> Base Sepolia testnet deployment
const (
	SepoliaUSDC                   = "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238"
	SepoliaTokenMessenger         = "0x9f3B8679c73C2Fef8b59B4f3444d4e156fb70AA5"
	SepoliaMessageTransmitter     = "0x7865fAfC2db2093669d92c0F33AeEF291086BEFD"
	BaseSepoliaUSDC               = "0x036CbD53842c5426634e7929541eC2318f3dCF7e"
	BaseSepoliaTokenMessenger     = "0x9f3B8679c73C2Fef8b59B4f3444d4e156fb70AA5"
	BaseSepoliaMessageTransmitter = "0x7865fAfC2db2093669d92c0F33AeEF291086BEFD"

	Recipient = "0xf59dA181591dbB122A894372C6E44cC079A7Bb3F"

	// well known hardhat account #0, never funded on a public network
	TestPrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	TestAddress    = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

// GetEnvOrDefault returns the environment variable value or a default if not set
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func init() {
	// Try to load .env file if it exists
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("../.env")
	}
}

// Logger only reports errors to keep test output readable
func Logger() log.Logger {
	return log.NewLogger(os.Stdout, log.LevelOption(zerolog.ErrorLevel))
}

// ConfigSetup returns a validated Sepolia -> Base Sepolia config polling irisURL
func ConfigSetup(t *testing.T, irisURL string) *types.Config {
	t.Helper()

	cfg, err := types.ParseConfig(nil)
	if err != nil {
		t.Fatalf("unable to build default config: %v", err)
	}

	cfg.Chains = map[string]types.ChainSettings{
		"sepolia": {
			Domain:              0,
			ChainID:             11155111,
			RPC:                 GetEnvOrDefault("SEPOLIA_RPC", "https://ethereum-sepolia-rpc.publicnode.com"),
			USDC:                SepoliaUSDC,
			TokenMessenger:      SepoliaTokenMessenger,
			MessageTransmitter:  SepoliaMessageTransmitter,
			MinterPrivateKey:    TestPrivateKey,
			ReceiptPollInterval: 10 * time.Millisecond,
			MetricsDenom:        "ETH",
			MetricsExponent:     18,
		},
		"base-sepolia": {
			Domain:              6,
			ChainID:             84532,
			RPC:                 GetEnvOrDefault("BASE_SEPOLIA_RPC", "https://sepolia.base.org"),
			USDC:                BaseSepoliaUSDC,
			TokenMessenger:      BaseSepoliaTokenMessenger,
			MessageTransmitter:  BaseSepoliaMessageTransmitter,
			MinterPrivateKey:    TestPrivateKey,
			ReceiptPollInterval: 10 * time.Millisecond,
			MetricsDenom:        "ETH",
			MetricsExponent:     18,
		},
	}
	cfg.Circle.AttestationBaseURL = irisURL
	cfg.Circle.APIVersion = "v2"
	cfg.Circle.PollInterval = 10 * time.Millisecond
	cfg.Circle.MaxPollInterval = 50 * time.Millisecond
	cfg.Circle.MaxWait = 5 * time.Second
	cfg.Circle.RequestTimeout = time.Second
	cfg.Transfer.Source = "sepolia"
	cfg.Transfer.Destination = "base-sepolia"
	cfg.Transfer.EnabledRoutes = map[types.Domain][]types.Domain{
		0: {6},
		6: {0},
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("invalid test config: %v", err)
	}
	return cfg
}
