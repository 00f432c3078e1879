package cmd

import (
	"fmt"
	"os"
	"strings"

	"cosmossdk.io/log"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/strangelove-ventures/cctp-transfer/ethereum"
	"github.com/strangelove-ventures/cctp-transfer/types"
)

// PrivateKeyEnv is the fallback signing key for chains without a key of their own
const PrivateKeyEnv = "PRIVATE_KEY"

// AppState is the modifiable state of the application.
type AppState struct {
	Config *types.Config

	ConfigPath string

	Debug bool

	LogLevel string

	Logger log.Logger
}

func NewAppState() *AppState {
	return &AppState{}
}

// InitAppState loads the environment, initializes the logger and loads the config file.
func (a *AppState) InitAppState() {
	// a missing .env is fine, keys may come from the environment or the config
	_ = godotenv.Load()
	a.InitLogger()
	a.loadConfigFile()
}

func (a *AppState) InitLogger() {
	// info level is default
	level := zerolog.InfoLevel
	switch a.LogLevel {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	if a.Debug {
		level = zerolog.DebugLevel
	}
	a.Logger = log.NewLogger(os.Stdout, log.LevelOption(level))
}

// loadConfigFile loads the configuration from the config file path.
func (a *AppState) loadConfigFile() {
	if a.Logger == nil {
		a.InitLogger()
	}
	if a.ConfigPath == "" {
		a.Logger.Error("No config file specified, use --config")
		os.Exit(1)
	}
	cfg, err := ParseConfig(a.ConfigPath)
	if err != nil {
		a.Logger.Error("Unable to parse config file", "location", a.ConfigPath, "error", err)
		os.Exit(1)
	}
	a.Logger.Info("Successfully parsed config file", "location", a.ConfigPath)
	a.Config = cfg
}

// ParseConfig reads and validates a YAML config file
func ParseConfig(file string) (*types.Config, error) {
	bz, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	cfg, err := types.ParseConfig(bz)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// privateKeyEnv is the environment variable holding the key of a named chain, e.g. BASE_SEPOLIA_PRIV_KEY
func privateKeyEnv(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_")) + "_PRIV_KEY"
}

// Signer resolves the signing key of a chain from its config, its own environment variable
// or PRIVATE_KEY, in that order. A chain without any key gets a nil signer and is read-only.
func (a *AppState) Signer(name string, settings types.ChainSettings) (ethereum.Signer, error) {
	key := settings.MinterPrivateKey
	if key == "" {
		key = os.Getenv(privateKeyEnv(name))
	}
	if key == "" {
		key = os.Getenv(PrivateKeyEnv)
	}
	if key == "" {
		return nil, nil
	}
	signer, err := ethereum.NewKeySigner(key)
	if err != nil {
		return nil, fmt.Errorf("invalid key for chain %s: %w", name, err)
	}
	return signer, nil
}
