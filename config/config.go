// Package config loads the router daemon's enumerated configuration
// (§6.5) via viper: a YAML/JSON file plus ROUTER_-prefixed
// environment overrides, the way the teacher's services load config.
package config

import (
	"math/big"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/meshbridge/router-node/chainid"
	"github.com/meshbridge/router-node/errs"
)

// ChainConfig is one entry of the chainConfig[chainId] map (§6.5).
type ChainConfig struct {
	ChainID                    uint64   `mapstructure:"chainId"`
	Providers                  []string `mapstructure:"providers"`
	Confirmations              uint64   `mapstructure:"confirmations"`
	GasStations                []string `mapstructure:"gasStations"`
	MinGas                     string   `mapstructure:"minGas"`
	TransactionManagerAddress  string   `mapstructure:"transactionManagerAddress"`
	RouterContractRelayerAsset string   `mapstructure:"routerContractRelayerAsset"`
	Weight                     string   `mapstructure:"weight"`
}

// SwapPoolAsset is one entry of a swapPools[].assets[] array.
type SwapPoolAsset struct {
	ChainID uint64 `mapstructure:"chainId"`
	AssetID string `mapstructure:"assetId"`
}

// SwapPool is one entry of the swapPools[] array.
type SwapPool struct {
	Name   string          `mapstructure:"name"`
	Assets []SwapPoolAsset `mapstructure:"assets"`
}

// Config is the router daemon's full configuration surface (§6.5).
type Config struct {
	Mnemonic      string `mapstructure:"mnemonic"`
	Web3SignerURL string `mapstructure:"web3SignerUrl"`
	AuthURL       string `mapstructure:"authUrl"`
	NatsURL       string `mapstructure:"natsUrl"`
	LogLevel      string `mapstructure:"logLevel"`

	ChainConfig map[string]ChainConfig `mapstructure:"chainConfig"`
	SwapPools   []SwapPool              `mapstructure:"swapPools"`

	RequestLimitMS int64  `mapstructure:"requestLimit"`
	MaxPriceImpact string `mapstructure:"maxPriceImpact"`
	Amplification  string `mapstructure:"amplification"`
	AllowedVAMM    bool   `mapstructure:"allowedVAMM"`

	DiagnosticMode bool `mapstructure:"diagnosticMode"`
	CleanUpMode    bool `mapstructure:"cleanUpMode"`
	PriceCacheMode bool `mapstructure:"priceCacheMode"`

	AdminPort int    `mapstructure:"adminPort"`
	Router    string `mapstructure:"router"`

	// StatePersistence selects the dead-letter store backend: "file"
	// (default, a JSON file) or "badger" (BadgerDB, for operators who
	// want a real embedded KV store on a mounted volume).
	StatePersistence string `mapstructure:"statePersistence"`
	StatePath        string `mapstructure:"statePath"`

	// PriceFeedIDs maps an assetId to its CoinGecko coin id, for the
	// REST price-feed fallback (ambient addition beyond §6.5's
	// enumerated fields; the price oracle's actual upstream is out of
	// spec.md's scope).
	PriceFeedIDs map[string]string `mapstructure:"priceFeedIds"`
}

// Load reads configuration from configPath (if non-empty) plus
// ROUTER_-prefixed environment variables, and validates it.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ROUTER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("logLevel", "info")
	v.SetDefault("requestLimit", int64(1000))
	v.SetDefault("adminPort", 8080)
	v.SetDefault("allowedVAMM", true)
	v.SetDefault("statePersistence", "file")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errs.Wrap(errs.ConfigurationError, "config.Load", err, "failed to read config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errs.Wrap(errs.ConfigurationError, "config.Load", err, "failed to unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces §6.5's mnemonic/web3SignerUrl exclusivity and the
// other structural requirements a router needs to boot.
func (c *Config) Validate() error {
	if c.Mnemonic != "" && c.Web3SignerURL != "" {
		return errs.New(errs.ConfigurationError, "Config.Validate", "mnemonic and web3SignerUrl are mutually exclusive")
	}
	if c.Mnemonic == "" && c.Web3SignerURL == "" {
		return errs.New(errs.ConfigurationError, "Config.Validate", "exactly one of mnemonic or web3SignerUrl must be set")
	}
	if len(c.ChainConfig) == 0 {
		return errs.New(errs.ConfigurationError, "Config.Validate", "at least one chain must be configured")
	}
	for key, cc := range c.ChainConfig {
		if len(cc.Providers) == 0 {
			return errs.New(errs.ConfigurationError, "Config.Validate", "chain has no configured providers").With("chainId", key)
		}
		if cc.TransactionManagerAddress == "" {
			return errs.New(errs.ConfigurationError, "Config.Validate", "chain has no transaction manager address").With("chainId", key)
		}
	}
	return nil
}

// RequestLimit converts the millisecond config field into a
// time.Duration for the rate limiter.
func (c *Config) RequestLimit() time.Duration {
	return time.Duration(c.RequestLimitMS) * time.Millisecond
}

// Redacted returns a copy with the mnemonic and web3SignerUrl
// suppressed, for GET /config and `router config show` (§6.4,
// SPEC_FULL.md supplemented feature #4).
func (c *Config) Redacted() Config {
	redacted := *c
	if redacted.Mnemonic != "" {
		redacted.Mnemonic = "[redacted]"
	}
	if redacted.Web3SignerURL != "" {
		redacted.Web3SignerURL = "[redacted]"
	}
	return redacted
}

// bigIntOrDefault parses a decimal string field, falling back to def
// when empty or unparseable — used for the numeric fields viper reads
// as strings to avoid float64 precision loss on large values.
func bigIntOrDefault(s string, def *big.Int) *big.Int {
	if s == "" {
		return def
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return def
	}
	return v
}

// ChainIDs returns every configured chain as a typed chainid.ID.
func (c *Config) ChainIDs() []chainid.ID {
	ids := make([]chainid.ID, 0, len(c.ChainConfig))
	for _, cc := range c.ChainConfig {
		ids = append(ids, chainid.ID(cc.ChainID))
	}
	return ids
}
