// Package config defines the configuration of a community node.
//
// The configuration is built from the defaults, overridden by an optional YAML
// file, themselves overridden by the environment variables prefixed with
// COMMUNITY_.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"go.dedis.ch/community/cli"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"
)

// EnvPrefix is the prefix of the environment variables of the configuration.
const EnvPrefix = "COMMUNITY_"

// FlagConfigFile is the name of the start flag of the configuration file.
const FlagConfigFile = "config-file"

// DefaultFileName is the name of the configuration file looked up in the
// folder of the node when no file is given.
const DefaultFileName = "config.yaml"

// Config is the configuration of a community node.
type Config struct {
	// FeeContract is the contract whose holders receive the fees.
	FeeContract string `yaml:"fee_contract" env:"FEE_CONTRACT"`

	// Contract is the community contract bound at start, if any.
	Contract string `yaml:"contract" env:"CONTRACT"`

	// ContractSource is the source of the contracts created by the node.
	ContractSource string `yaml:"contract_source" env:"CONTRACT_SOURCE"`

	RefreshInterval time.Duration `yaml:"refresh_interval" env:"REFRESH_INTERVAL"`
	ReloadTimeout   time.Duration `yaml:"reload_timeout" env:"RELOAD_TIMEOUT"`

	AppName    string `yaml:"app_name" env:"APP_NAME"`
	AppVersion string `yaml:"app_version" env:"APP_VERSION"`

	// FeeReferenceSize is the size in bytes of the payload whose price is the
	// fee of an action.
	FeeReferenceSize int `yaml:"fee_reference_size" env:"FEE_REFERENCE_SIZE"`

	LedgerPath   string `yaml:"ledger_path" env:"LEDGER_PATH"`
	WalletPath   string `yaml:"wallet_path" env:"WALLET_PATH"`
	BasePrice    int64  `yaml:"base_price" env:"BASE_PRICE"`
	PricePerByte int64  `yaml:"price_per_byte" env:"PRICE_PER_BYTE"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		FeeContract:      "fee-contract",
		ContractSource:   "community-source",
		RefreshInterval:  2 * time.Minute,
		ReloadTimeout:    30 * time.Second,
		AppName:          "CommunityJS",
		AppVersion:       "1.0.0",
		FeeReferenceSize: 1000,
		LedgerPath:       "ledger.db",
		WalletPath:       "wallet.key",
		BasePrice:        100,
		PricePerByte:     1,
	}
}

// Load returns the configuration read from the file, if it exists, and from
// the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return cfg, xerrors.Errorf("failed to read config: %v", err)
		}

		if err == nil {
			err = yaml.Unmarshal(data, &cfg)
			if err != nil {
				return cfg, xerrors.Errorf("failed to decode config: %v", err)
			}
		}
	}

	err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix})
	if err != nil {
		return cfg, xerrors.Errorf("failed to parse environment: %v", err)
	}

	err = cfg.Validate()
	if err != nil {
		return cfg, xerrors.Errorf("invalid config: %v", err)
	}

	return cfg, nil
}

// FromFlags loads the configuration of a node. The file is either given by
// the config-file flag or found in the folder of the node. The relative paths
// of the configuration are resolved against that folder.
func FromFlags(flags cli.Flags) (Config, error) {
	dir := flags.Path("config")

	path := flags.Path(FlagConfigFile)
	if path == "" {
		path = filepath.Join(dir, DefaultFileName)
	}

	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}

	cfg.LedgerPath = resolve(dir, cfg.LedgerPath)
	cfg.WalletPath = resolve(dir, cfg.WalletPath)

	return cfg, nil
}

// Validate returns an error if a field is invalid.
func (c Config) Validate() error {
	if c.FeeContract == "" {
		return xerrors.New("missing fee contract")
	}

	if c.RefreshInterval <= 0 {
		return xerrors.Errorf("refresh interval must be positive but got %v", c.RefreshInterval)
	}

	if c.ReloadTimeout <= 0 {
		return xerrors.Errorf("reload timeout must be positive but got %v", c.ReloadTimeout)
	}

	if c.FeeReferenceSize <= 0 {
		return xerrors.Errorf("fee reference size must be positive but got %d", c.FeeReferenceSize)
	}

	if c.LedgerPath == "" || c.WalletPath == "" {
		return xerrors.New("missing ledger or wallet path")
	}

	if c.BasePrice < 0 || c.PricePerByte < 0 {
		return xerrors.New("prices must not be negative")
	}

	return nil
}

func resolve(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(dir, path)
}
