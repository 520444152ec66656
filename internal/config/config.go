// Package config centralizes wallet-service configuration. ALL runtime
// parameters (listen address, database paths, peers, tokens) MUST be
// defined here — no hardcoded values should exist elsewhere.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// TokenInfo describes a token id's display characteristics. The
// per-token *minimum fee* is not listed here: §4.3/§9 of the spec
// require fees to be resolved against the network's currently
// advertised fee map, never a cached/static value.
type TokenInfo struct {
	ID       uint64
	Symbol   string
	Decimals uint8
}

// KnownTokens lists tokens the wallet recognizes for display purposes.
// An unrecognized token id is still fully usable (TXOs/sends work) —
// it is simply shown with 0 decimals and its numeric id as a symbol.
var KnownTokens = map[uint64]TokenInfo{
	0: {ID: 0, Symbol: "NATIVE", Decimals: 12},
}

// LookupToken returns known display info for a token id, defaulting to
// an opaque integer-unit token when the id is not in KnownTokens.
func LookupToken(tokenID uint64) TokenInfo {
	if t, ok := KnownTokens[tokenID]; ok {
		return t
	}
	return TokenInfo{ID: tokenID, Symbol: fmt.Sprintf("TOKEN-%d", tokenID), Decimals: 0}
}

// Config holds every flag/env-mirrored runtime parameter.
type Config struct {
	ListenHost string
	ListenPort int

	WalletDB string
	LedgerDB string

	Peers        []string
	TxSourceURLs []string
	Validator    string

	ChainID               string
	FogIngestEnclaveCSS   string
	Offline               bool

	APIKey   string
	LogLevel string

	// WalletPassword unlocks the Persistence Layer's encrypted account
	// secrets at startup. Deliberately not a fileConfig/YAML field —
	// unlike the other settings, this one should never be committed to
	// a config file on disk; --wallet-password or MC_WALLET_PASSWORD
	// are the only ways to set it.
	WalletPassword string

	// ConfigFile is the path a --config/MC_CONFIG_FILE flag named, if
	// any, so diagnostics can report which file a running instance
	// loaded. It is not itself settable from within a config file.
	ConfigFile string
}

// fileConfig mirrors Config's YAML-loadable fields. Loaded values seed
// the flag defaults before flag.Parse runs, so the precedence is
// explicit flag > MC_ environment variable > config file > built-in
// default.
type fileConfig struct {
	ListenHost string   `yaml:"listen_host"`
	ListenPort int      `yaml:"listen_port"`
	WalletDB   string   `yaml:"wallet_db"`
	LedgerDB   string   `yaml:"ledger_db"`
	Peers      []string `yaml:"peers"`
	TxSourceURLs []string `yaml:"tx_source_urls"`
	Validator  string   `yaml:"validator"`
	ChainID    string   `yaml:"chain_id"`
	FogIngestEnclaveCSS string `yaml:"fog_ingest_enclave_css"`
	Offline    bool     `yaml:"offline"`
	APIKey     string   `yaml:"api_key"`
	LogLevel   string   `yaml:"log_level"`
}

// loadConfigFile reads and applies a YAML config file's fields onto
// cfg, leaving any field the file omits untouched.
func loadConfigFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	// Seed from the current defaults so a field the file omits keeps
	// its built-in value rather than being zeroed by Unmarshal.
	fc.ListenHost = cfg.ListenHost
	fc.ListenPort = cfg.ListenPort
	fc.WalletDB = cfg.WalletDB
	fc.LedgerDB = cfg.LedgerDB
	fc.Peers = cfg.Peers
	fc.TxSourceURLs = cfg.TxSourceURLs
	fc.Validator = cfg.Validator
	fc.ChainID = cfg.ChainID
	fc.FogIngestEnclaveCSS = cfg.FogIngestEnclaveCSS
	fc.Offline = cfg.Offline
	fc.APIKey = cfg.APIKey
	fc.LogLevel = cfg.LogLevel

	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	cfg.ListenHost = fc.ListenHost
	cfg.ListenPort = fc.ListenPort
	cfg.WalletDB = fc.WalletDB
	cfg.LedgerDB = fc.LedgerDB
	cfg.Peers = fc.Peers
	cfg.TxSourceURLs = fc.TxSourceURLs
	cfg.Validator = fc.Validator
	cfg.ChainID = fc.ChainID
	cfg.FogIngestEnclaveCSS = fc.FogIngestEnclaveCSS
	cfg.Offline = fc.Offline
	cfg.APIKey = fc.APIKey
	cfg.LogLevel = fc.LogLevel
	return nil
}

// findConfigFlag scans args for an explicit --config/-config value
// ahead of the full flag.Parse pass, since the config file's values
// must seed the other flags' defaults before those flags are defined.
func findConfigFlag(args []string) string {
	for i, a := range args {
		switch {
		case a == "--config" || a == "-config":
			if i+1 < len(args) {
				return args[i+1]
			}
		case strings.HasPrefix(a, "--config="):
			return strings.TrimPrefix(a, "--config=")
		case strings.HasPrefix(a, "-config="):
			return strings.TrimPrefix(a, "-config=")
		}
	}
	if v, ok := os.LookupEnv("MC_CONFIG_FILE"); ok {
		return v
	}
	return ""
}

// exitCode mirrors the spec's §6 CLI exit-code contract so cmd/walletd
// can translate a Load error directly into os.Exit(1).
const (
	ExitOK              = 0
	ExitConfigError     = 1
	ExitDatabaseError   = 2
	ExitLedgerFailure   = 3
)

// Default returns the baseline configuration before flags/env are applied.
func Default() *Config {
	return &Config{
		ListenHost: "127.0.0.1",
		ListenPort: 9090,
		WalletDB:   "./wallet.db",
		LedgerDB:   "./ledger.db",
		LogLevel:   "info",
	}
}

// stringFlag defines a flag whose default may be overridden by an
// MC_-prefixed environment variable, mirroring the spec's §6 CLI
// contract ("Environment variables mirror flags in SCREAMING_SNAKE_CASE
// prefixed MC_").
func stringFlag(fs *flag.FlagSet, p *string, name, envName, def, usage string) {
	if v, ok := os.LookupEnv("MC_" + envName); ok {
		def = v
	}
	fs.StringVar(p, name, def, usage)
}

func boolFlag(fs *flag.FlagSet, p *bool, name, envName string, def bool, usage string) {
	if v, ok := os.LookupEnv("MC_" + envName); ok {
		if parsed, err := strconv.ParseBool(v); err == nil {
			def = parsed
		}
	}
	fs.BoolVar(p, name, def, usage)
}

func intFlag(fs *flag.FlagSet, p *int, name, envName string, def int, usage string) {
	if v, ok := os.LookupEnv("MC_" + envName); ok {
		if parsed, err := strconv.Atoi(v); err == nil {
			def = parsed
		}
	}
	fs.IntVar(p, name, def, usage)
}

// repeatedFlag collects repeated occurrences of a flag into a slice,
// falling back to a comma-separated MC_-prefixed env var.
type repeatedFlag struct {
	values *[]string
	set    bool
}

func (r *repeatedFlag) String() string {
	if r.values == nil {
		return ""
	}
	return strings.Join(*r.values, ",")
}

func (r *repeatedFlag) Set(v string) error {
	// The first occurrence replaces any env- or file-supplied list.
	if !r.set {
		*r.values = nil
		r.set = true
	}
	*r.values = append(*r.values, v)
	return nil
}

func repeatedFlagVar(fs *flag.FlagSet, p *[]string, name, envName, usage string) {
	if v, ok := os.LookupEnv("MC_" + envName); ok && v != "" {
		*p = strings.Split(v, ",")
	}
	fs.Var(&repeatedFlag{values: p}, name, usage)
}

// Load parses CLI flags (with MC_-prefixed environment fallback) into a
// Config. It never calls os.Exit — callers decide the process exit
// code using the Exit* constants.
func Load(args []string) (*Config, error) {
	cfg := Default()

	if path := findConfigFlag(args); path != "" {
		if err := loadConfigFile(path, cfg); err != nil {
			return nil, err
		}
		cfg.ConfigFile = path
	}

	fs := flag.NewFlagSet("walletd", flag.ContinueOnError)

	stringFlag(fs, &cfg.ConfigFile, "config", "CONFIG_FILE", cfg.ConfigFile, "path to an optional YAML config file")
	stringFlag(fs, &cfg.ListenHost, "listen-host", "LISTEN_HOST", cfg.ListenHost, "JSON-RPC listen host")
	intFlag(fs, &cfg.ListenPort, "listen-port", "LISTEN_PORT", cfg.ListenPort, "JSON-RPC listen port")
	stringFlag(fs, &cfg.WalletDB, "wallet-db", "WALLET_DB", cfg.WalletDB, "path to the wallet SQLite file")
	stringFlag(fs, &cfg.LedgerDB, "ledger-db", "LEDGER_DB", cfg.LedgerDB, "path to the ledger bbolt file")
	repeatedFlagVar(fs, &cfg.Peers, "peer", "PEER", "consensus peer URL (repeatable)")
	repeatedFlagVar(fs, &cfg.TxSourceURLs, "tx-source-url", "TX_SOURCE_URL", "tx-source archive URL (repeatable)")
	stringFlag(fs, &cfg.Validator, "validator", "VALIDATOR", cfg.Validator, "trusted validator endpoint (mutually exclusive with --peer/--tx-source-url)")
	stringFlag(fs, &cfg.ChainID, "chain-id", "CHAIN_ID", cfg.ChainID, "chain id the wallet expects the ledger source to serve")
	stringFlag(fs, &cfg.FogIngestEnclaveCSS, "fog-ingest-enclave-css", "FOG_INGEST_ENCLAVE_CSS", cfg.FogIngestEnclaveCSS, "path to the fog ingest enclave measurement")
	boolFlag(fs, &cfg.Offline, "offline", "OFFLINE", cfg.Offline, "disable the ledger sync engine and submission pipeline")
	stringFlag(fs, &cfg.APIKey, "api-key", "API_KEY", cfg.APIKey, "required X-API-KEY header value; empty disables the check")
	stringFlag(fs, &cfg.LogLevel, "log-level", "LOG_LEVEL", cfg.LogLevel, "log level (debug, info, warn, error)")
	stringFlag(fs, &cfg.WalletPassword, "wallet-password", "WALLET_PASSWORD", cfg.WalletPassword, "passphrase that unlocks encrypted account secrets")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the CLI's mutual-exclusion contract.
func (c *Config) Validate() error {
	if c.Validator != "" && (len(c.Peers) > 0 || len(c.TxSourceURLs) > 0) {
		return fmt.Errorf("--validator is mutually exclusive with --peer/--tx-source-url")
	}
	if c.Validator == "" && len(c.Peers) == 0 && !c.Offline {
		return fmt.Errorf("at least one of --peer or --validator is required unless --offline is set")
	}
	return nil
}

// Addr returns the "host:port" listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.ListenHost, c.ListenPort)
}
