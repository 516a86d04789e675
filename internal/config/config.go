// Package config centralizes runtime configuration for vdk. It loads a
// JSON configuration file, applies a .env file and VDK_* environment
// overrides, and exposes a process-wide configuration with sensible
// defaults. Development runs work with no file at all against a local node
// on 127.0.0.1:8545. Operators can point VDK_CONFIG_FILE (or --config) at a
// JSON file, and a deployment record written by the deployer fills in the
// contract address when none is configured.
package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultContractAddress is the address of the first contract deployed on a
// fresh local development chain.
const DefaultContractAddress = "0x0fee2908afda3d25e876c05ed5a6b9e40c37d909"

// Config holds configurable options for the vdk client.
type Config struct {
	RPCURL              string `json:"rpc_url"`
	ContractAddress     string `json:"contract_address"`
	ABIFile             string `json:"abi_file"`
	DeploymentFile      string `json:"deployment_file"`
	WalletMode          string `json:"wallet_mode"` // none, rpc or keyfile
	KeyFile             string `json:"key_file"`
	Port                int    `json:"port"`
	PollIntervalSeconds int    `json:"poll_interval_seconds"`
	WalletPollSeconds   int    `json:"wallet_poll_seconds"`
	ReceiptPollMillis   int    `json:"receipt_poll_millis"`
	CandidateSource     string `json:"candidate_source"` // list or indexed
	AutoConnect         bool   `json:"auto_connect"`
	PollRequiresWallet  bool   `json:"poll_requires_wallet"`
	NotificationBuffer  int    `json:"notification_buffer"`
	LogLevel            string `json:"log_level"`
}

var cfg *Config

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		RPCURL:              "http://127.0.0.1:8545",
		ContractAddress:     "",
		DeploymentFile:      "deployment.json",
		WalletMode:          "rpc",
		KeyFile:             "vdk_wallet.key",
		Port:                8080,
		PollIntervalSeconds: 10,
		WalletPollSeconds:   2,
		ReceiptPollMillis:   1000,
		CandidateSource:     "list",
		NotificationBuffer:  100,
		LogLevel:            "info",
	}
}

// LoadConfig reads a JSON file at path (or VDK_CONFIG_FILE when path is
// empty). A missing or unparsable file yields defaults, so development
// needs no setup. Environment overrides are applied afterwards, then the
// deployment record, then DefaultContractAddress as a last resort.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("config: ignoring unreadable .env", "error", err)
	}
	if path == "" {
		path = os.Getenv("VDK_CONFIG_FILE")
	}

	def := Defaults()
	c := *def
	if path != "" {
		if b, err := os.ReadFile(path); err != nil {
			slog.Warn("config: file not readable, using defaults", "path", path, "error", err)
		} else {
			var fileCfg Config
			if err := json.Unmarshal(b, &fileCfg); err != nil {
				slog.Warn("config: file not parsable, using defaults", "path", path, "error", err)
			} else {
				c = fileCfg
				merge(&c, def)
			}
		}
	}

	applyEnv(&c)

	if c.ContractAddress == "" && c.DeploymentFile != "" {
		if d, err := ReadDeployment(c.DeploymentFile); err == nil && d.Address != "" {
			c.ContractAddress = d.Address
		}
	}
	if c.ContractAddress == "" {
		c.ContractAddress = DefaultContractAddress
	}

	cfg = &c
	return cfg, nil
}

// merge fills zero-valued fields of c from def.
func merge(c, def *Config) {
	if c.RPCURL == "" {
		c.RPCURL = def.RPCURL
	}
	if c.DeploymentFile == "" {
		c.DeploymentFile = def.DeploymentFile
	}
	if c.WalletMode == "" {
		c.WalletMode = def.WalletMode
	}
	if c.KeyFile == "" {
		c.KeyFile = def.KeyFile
	}
	if c.Port == 0 {
		c.Port = def.Port
	}
	if c.PollIntervalSeconds == 0 {
		c.PollIntervalSeconds = def.PollIntervalSeconds
	}
	if c.WalletPollSeconds == 0 {
		c.WalletPollSeconds = def.WalletPollSeconds
	}
	if c.ReceiptPollMillis == 0 {
		c.ReceiptPollMillis = def.ReceiptPollMillis
	}
	if c.CandidateSource == "" {
		c.CandidateSource = def.CandidateSource
	}
	if c.NotificationBuffer == 0 {
		c.NotificationBuffer = def.NotificationBuffer
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
}

func applyEnv(c *Config) {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			} else {
				slog.Warn("config: ignoring non-numeric override", "key", key, "value", v)
			}
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	str("VDK_RPC_URL", &c.RPCURL)
	str("VDK_CONTRACT_ADDRESS", &c.ContractAddress)
	str("VDK_ABI_FILE", &c.ABIFile)
	str("VDK_DEPLOYMENT_FILE", &c.DeploymentFile)
	str("VDK_WALLET_MODE", &c.WalletMode)
	str("VDK_KEY_FILE", &c.KeyFile)
	str("VDK_CANDIDATE_SOURCE", &c.CandidateSource)
	str("VDK_LOG_LEVEL", &c.LogLevel)
	num("VDK_PORT", &c.Port)
	num("VDK_POLL_INTERVAL", &c.PollIntervalSeconds)
	flag("VDK_AUTO_CONNECT", &c.AutoConnect)
	flag("VDK_POLL_REQUIRES_WALLET", &c.PollRequiresWallet)
}

// Get returns the loaded configuration. If LoadConfig hasn't been called
// yet, it returns defaults.
func Get() *Config {
	if cfg == nil {
		// initialize with defaults
		LoadConfig("")
	}
	return cfg
}

// PollInterval is the contract polling period.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// WalletPollInterval is how often the wallet watcher checks the node.
func (c *Config) WalletPollInterval() time.Duration {
	return time.Duration(c.WalletPollSeconds) * time.Second
}

// ReceiptPollInterval is how often a pending transaction is checked.
func (c *Config) ReceiptPollInterval() time.Duration {
	return time.Duration(c.ReceiptPollMillis) * time.Millisecond
}

// SlogLevel maps LogLevel onto a slog level; unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
