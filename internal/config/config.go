// Package config layers the runtime settings: built-in defaults, then the
// yaml config file, then environment variables, then command-line flags.
// Later layers win.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type GlobalFlags struct {
	ConfigPath string
	Network    string
	RPCURL     string
	Address    string
	Model      string
	Timeout    string
	Retries    int
	NoSnapshot bool
	Verbose    bool
}

type Settings struct {
	Network         string
	RPCURL          string
	LendingEndpoint string
	Timeout         time.Duration
	Retries         int
	PoolTTL         time.Duration
	SnapshotEnabled bool
	SnapshotPath    string
	SnapshotLock    string
	ModelAPIKey     string
	ModelBaseURL    string
	ModelName       string
	WalletAddress   string
	Verbose         bool
}

type fileConfig struct {
	Network string `yaml:"network"`
	RPCURL  string `yaml:"rpc_url"`
	Timeout string `yaml:"timeout"`
	Retries *int   `yaml:"retries"`
	Lending struct {
		Endpoint string `yaml:"endpoint"`
		PoolTTL  string `yaml:"pool_ttl"`
	} `yaml:"lending"`
	Snapshot struct {
		Enabled  *bool  `yaml:"enabled"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"snapshot"`
	Model struct {
		APIKey    string `yaml:"api_key"`
		APIKeyEnv string `yaml:"api_key_env"`
		BaseURL   string `yaml:"base_url"`
		Name      string `yaml:"name"`
	} `yaml:"model"`
	Wallet struct {
		Address string `yaml:"address"`
	} `yaml:"wallet"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}
	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.Timeout <= 0 {
		settings.Timeout = 15 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.PoolTTL <= 0 {
		settings.PoolTTL = 5 * time.Minute
	}
	if settings.RPCURL == "" {
		settings.RPCURL = rpcURLForNetwork(settings.Network)
	}
	return settings, nil
}

func defaultSettings() (Settings, error) {
	snapshotPath, lockPath, err := defaultSnapshotPaths()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		Network:         "mainnet",
		Timeout:         15 * time.Second,
		Retries:         2,
		PoolTTL:         5 * time.Minute,
		SnapshotEnabled: true,
		SnapshotPath:    snapshotPath,
		SnapshotLock:    lockPath,
	}, nil
}

func rpcURLForNetwork(network string) string {
	switch strings.ToLower(network) {
	case "testnet":
		return "https://fullnode.testnet.sui.io:443"
	case "devnet":
		return "https://fullnode.devnet.sui.io:443"
	default:
		return "https://fullnode.mainnet.sui.io:443"
	}
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "suilend-agent", "config.yaml"), nil
}

func defaultSnapshotPaths() (string, string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, "suilend-agent")
	return filepath.Join(dir, "pools.db"), filepath.Join(dir, "pools.lock"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Network != "" {
		settings.Network = strings.ToLower(cfg.Network)
	}
	if cfg.RPCURL != "" {
		settings.RPCURL = cfg.RPCURL
	}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
		settings.Timeout = d
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if cfg.Lending.Endpoint != "" {
		settings.LendingEndpoint = cfg.Lending.Endpoint
	}
	if cfg.Lending.PoolTTL != "" {
		d, err := time.ParseDuration(cfg.Lending.PoolTTL)
		if err != nil {
			return fmt.Errorf("config lending.pool_ttl: %w", err)
		}
		settings.PoolTTL = d
	}
	if cfg.Snapshot.Enabled != nil {
		settings.SnapshotEnabled = *cfg.Snapshot.Enabled
	}
	if cfg.Snapshot.Path != "" {
		settings.SnapshotPath = cfg.Snapshot.Path
	}
	if cfg.Snapshot.LockPath != "" {
		settings.SnapshotLock = cfg.Snapshot.LockPath
	}
	if cfg.Model.APIKey != "" {
		settings.ModelAPIKey = cfg.Model.APIKey
	}
	if cfg.Model.APIKeyEnv != "" {
		settings.ModelAPIKey = os.Getenv(cfg.Model.APIKeyEnv)
	}
	if cfg.Model.BaseURL != "" {
		settings.ModelBaseURL = cfg.Model.BaseURL
	}
	if cfg.Model.Name != "" {
		settings.ModelName = cfg.Model.Name
	}
	if cfg.Wallet.Address != "" {
		settings.WalletAddress = cfg.Wallet.Address
	}
	return nil
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("SUILEND_NETWORK"); v != "" {
		settings.Network = strings.ToLower(v)
	}
	if v := os.Getenv("SUILEND_RPC_URL"); v != "" {
		settings.RPCURL = v
	}
	if v := os.Getenv("SUILEND_LENDING_ENDPOINT"); v != "" {
		settings.LendingEndpoint = v
	}
	if v := os.Getenv("SUILEND_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("SUILEND_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := os.Getenv("SUILEND_POOL_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.PoolTTL = d
		}
	}
	if v := os.Getenv("SUILEND_NO_SNAPSHOT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.SnapshotEnabled = !b
		}
	}
	if v := os.Getenv("SUILEND_SNAPSHOT_PATH"); v != "" {
		settings.SnapshotPath = v
	}
	if v := os.Getenv("SUILEND_SNAPSHOT_LOCK_PATH"); v != "" {
		settings.SnapshotLock = v
	}
	if v := os.Getenv("SUILEND_API_KEY"); v != "" {
		settings.ModelAPIKey = v
	}
	if v := os.Getenv("SUILEND_API_URL"); v != "" {
		settings.ModelBaseURL = v
	}
	if v := os.Getenv("SUILEND_MODEL"); v != "" {
		settings.ModelName = v
	}
	if v := os.Getenv("SUILEND_ADDRESS"); v != "" {
		settings.WalletAddress = v
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.Network != "" {
		settings.Network = strings.ToLower(flags.Network)
	}
	if flags.RPCURL != "" {
		settings.RPCURL = flags.RPCURL
	}
	if flags.Address != "" {
		settings.WalletAddress = flags.Address
	}
	if flags.Model != "" {
		settings.ModelName = flags.Model
	}
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("flag timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if flags.NoSnapshot {
		settings.SnapshotEnabled = false
	}
	if flags.Verbose {
		settings.Verbose = true
	}
	return nil
}
