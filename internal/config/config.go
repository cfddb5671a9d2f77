package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds configuration for the vaultserv binary.
type ServerConfig struct {
	Addr       string
	LogLevel   string
	LogJSON    bool
	ConfigFile string

	// Sink (blob storage) settings.
	BucketURL    string // gocloud.dev bucket URL, e.g. "file:///var/lib/mediavault" or "s3://bucket?region=..."
	BucketPrefix string
	SignedURLTTL time.Duration

	// Source (media gateway) settings.
	GatewayURL string

	// Staging settings.
	StagingDir string

	// Slot allocation.
	BulkSlots        int
	InteractiveSlots int

	// Adaptive chunking.
	MinChunkBytes     int
	DefaultChunkBytes int
	MaxChunkBytes     int
	SampleWindow      time.Duration
	LowBps            int64
	MediumBps         int64
	HighBps           int64

	// Optional bandwidth cap for bulk transfers (bytes/sec, 0 disables).
	BulkRateBps int64

	// Completed-upload registry.
	RegistryPath  string
	SweepInterval time.Duration
}

// ClientConfig holds configuration for the vaultctl binary.
type ClientConfig struct {
	ServerURL string
	LogLevel  string
}

// fileConfig is the YAML shape of an optional config file.
// Only server settings can be set from a file; flags and env still win.
type fileConfig struct {
	Addr             string `yaml:"addr"`
	LogLevel         string `yaml:"log_level"`
	BucketURL        string `yaml:"bucket_url"`
	BucketPrefix     string `yaml:"bucket_prefix"`
	GatewayURL       string `yaml:"gateway_url"`
	StagingDir       string `yaml:"staging_dir"`
	BulkSlots        int    `yaml:"bulk_slots"`
	InteractiveSlots int    `yaml:"interactive_slots"`
	MinChunkMB       int    `yaml:"min_chunk_mb"`
	DefaultChunkMB   int    `yaml:"default_chunk_mb"`
	MaxChunkMB       int    `yaml:"max_chunk_mb"`
	SampleWindow     string `yaml:"sample_window"`
	LowMBps          int    `yaml:"low_mbps"`
	MediumMBps       int    `yaml:"medium_mbps"`
	HighMBps         int    `yaml:"high_mbps"`
	BulkRateMBps     int    `yaml:"bulk_rate_mbps"`
	RegistryPath     string `yaml:"registry_path"`
	SweepInterval    string `yaml:"sweep_interval"`
}

const mib = 1024 * 1024

// ParseServerConfig parses server configuration from flags, environment
// variables and an optional YAML config file. Precedence: flags > env > file > defaults.
func ParseServerConfig() (ServerConfig, error) {
	return parseServerConfigWithFlagSet(flag.CommandLine, os.Args[1:])
}

// parseServerConfigWithFlagSet is an internal helper for testing with isolated flag sets.
func parseServerConfigWithFlagSet(fs *flag.FlagSet, args []string) (ServerConfig, error) {
	cfg := ServerConfig{
		Addr:              ":8080",
		LogLevel:          "info",
		BucketURL:         "file://./store",
		SignedURLTTL:      15 * time.Minute,
		StagingDir:        os.TempDir(),
		BulkSlots:         3,
		InteractiveSlots:  1,
		MinChunkBytes:     2 * mib,
		DefaultChunkBytes: 5 * mib,
		MaxChunkBytes:     50 * mib,
		SampleWindow:      5 * time.Second,
		LowBps:            2 * mib,
		MediumBps:         5 * mib,
		HighBps:           10 * mib,
		RegistryPath:      "uploads.json",
		SweepInterval:     10 * time.Minute,
	}

	// Config file first: --config flag or VAULT_CONFIG env.
	cfg.ConfigFile = os.Getenv("VAULT_CONFIG")
	if path := peekFlag(args, "config"); path != "" {
		cfg.ConfigFile = path
	}
	if cfg.ConfigFile != "" {
		if err := applyFile(&cfg, cfg.ConfigFile); err != nil {
			return cfg, err
		}
	}

	// Environment overrides the file.
	applyEnvString(&cfg.Addr, "VAULT_ADDR")
	applyEnvString(&cfg.LogLevel, "VAULT_LOG_LEVEL")
	if v := os.Getenv("VAULT_LOG_JSON"); v == "1" || v == "true" {
		cfg.LogJSON = true
	}
	applyEnvString(&cfg.BucketURL, "VAULT_BUCKET_URL")
	applyEnvString(&cfg.BucketPrefix, "VAULT_BUCKET_PREFIX")
	applyEnvString(&cfg.GatewayURL, "VAULT_GATEWAY_URL")
	applyEnvString(&cfg.StagingDir, "VAULT_STAGING_DIR")
	applyEnvString(&cfg.RegistryPath, "VAULT_REGISTRY_PATH")
	applyEnvInt(&cfg.BulkSlots, "VAULT_BULK_SLOTS")
	applyEnvInt(&cfg.InteractiveSlots, "VAULT_INTERACTIVE_SLOTS")

	// Flags override everything.
	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "path to YAML config file")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "server address")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.BoolVar(&cfg.LogJSON, "log-json", cfg.LogJSON, "emit JSON log records")
	fs.StringVar(&cfg.BucketURL, "bucket-url", cfg.BucketURL, "blob bucket URL (gocloud.dev syntax)")
	fs.StringVar(&cfg.BucketPrefix, "bucket-prefix", cfg.BucketPrefix, "key prefix inside the bucket")
	fs.StringVar(&cfg.GatewayURL, "gateway-url", cfg.GatewayURL, "media gateway base URL")
	fs.StringVar(&cfg.StagingDir, "staging-dir", cfg.StagingDir, "directory for staging files")
	fs.StringVar(&cfg.RegistryPath, "registry-path", cfg.RegistryPath, "path of the completed-upload registry file")
	fs.IntVar(&cfg.BulkSlots, "bulk-slots", cfg.BulkSlots, "execution slots reserved for bulk transfers")
	fs.IntVar(&cfg.InteractiveSlots, "interactive-slots", cfg.InteractiveSlots, "execution slots reserved for interactive transfers")
	fs.DurationVar(&cfg.SampleWindow, "sample-window", cfg.SampleWindow, "throughput sampling window")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "registry sweep interval")
	fs.DurationVar(&cfg.SignedURLTTL, "signed-url-ttl", cfg.SignedURLTTL, "lifetime of signed streaming URLs")

	minChunkMB := fs.Int("min-chunk-mb", cfg.MinChunkBytes/mib, "minimum transfer chunk size in MiB")
	defaultChunkMB := fs.Int("default-chunk-mb", cfg.DefaultChunkBytes/mib, "initial transfer chunk size in MiB")
	maxChunkMB := fs.Int("max-chunk-mb", cfg.MaxChunkBytes/mib, "maximum transfer chunk size in MiB")
	lowMBps := fs.Int("low-mbps", int(cfg.LowBps/mib), "low throughput threshold in MiB/s")
	mediumMBps := fs.Int("medium-mbps", int(cfg.MediumBps/mib), "medium throughput threshold in MiB/s")
	highMBps := fs.Int("high-mbps", int(cfg.HighBps/mib), "high throughput threshold in MiB/s")
	bulkRateMBps := fs.Int("bulk-rate-mbps", int(cfg.BulkRateBps/mib), "bandwidth cap for bulk transfers in MiB/s (0 disables)")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	cfg.MinChunkBytes = *minChunkMB * mib
	cfg.DefaultChunkBytes = *defaultChunkMB * mib
	cfg.MaxChunkBytes = *maxChunkMB * mib
	cfg.LowBps = int64(*lowMBps) * mib
	cfg.MediumBps = int64(*mediumMBps) * mib
	cfg.HighBps = int64(*highMBps) * mib
	cfg.BulkRateBps = int64(*bulkRateMBps) * mib

	if cfg.BulkSlots < 0 {
		cfg.BulkSlots = 0
	}
	if cfg.InteractiveSlots < 1 {
		cfg.InteractiveSlots = 1
	}
	if cfg.BulkSlots+cfg.InteractiveSlots < 1 {
		return cfg, fmt.Errorf("at least one execution slot is required")
	}

	return cfg, nil
}

// ParseClientConfig parses client configuration from flags and environment variables.
// Flags take precedence over environment variables.
func ParseClientConfig() (ClientConfig, error) {
	return parseClientConfigWithFlagSet(flag.CommandLine, os.Args[1:])
}

// ParseClientConfigWith registers the client flags on an existing flag
// set and parses it. Subcommand-style CLIs add their own flags to fs
// first, then hand over the remaining arguments.
func ParseClientConfigWith(fs *flag.FlagSet, args []string) (ClientConfig, error) {
	return parseClientConfigWithFlagSet(fs, args)
}

// parseClientConfigWithFlagSet is an internal helper for testing with isolated flag sets.
func parseClientConfigWithFlagSet(fs *flag.FlagSet, args []string) (ClientConfig, error) {
	cfg := ClientConfig{
		ServerURL: "http://localhost:8080",
		LogLevel:  "info",
	}

	applyEnvString(&cfg.ServerURL, "VAULT_SERVER_URL")
	applyEnvString(&cfg.LogLevel, "VAULT_LOG_LEVEL")

	fs.StringVar(&cfg.ServerURL, "server-url", cfg.ServerURL, "vaultserv base URL")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func applyFile(cfg *ServerConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if fc.Addr != "" {
		cfg.Addr = fc.Addr
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	if fc.BucketURL != "" {
		cfg.BucketURL = fc.BucketURL
	}
	if fc.BucketPrefix != "" {
		cfg.BucketPrefix = fc.BucketPrefix
	}
	if fc.GatewayURL != "" {
		cfg.GatewayURL = fc.GatewayURL
	}
	if fc.StagingDir != "" {
		cfg.StagingDir = fc.StagingDir
	}
	if fc.RegistryPath != "" {
		cfg.RegistryPath = fc.RegistryPath
	}
	if fc.BulkSlots > 0 {
		cfg.BulkSlots = fc.BulkSlots
	}
	if fc.InteractiveSlots > 0 {
		cfg.InteractiveSlots = fc.InteractiveSlots
	}
	if fc.MinChunkMB > 0 {
		cfg.MinChunkBytes = fc.MinChunkMB * mib
	}
	if fc.DefaultChunkMB > 0 {
		cfg.DefaultChunkBytes = fc.DefaultChunkMB * mib
	}
	if fc.MaxChunkMB > 0 {
		cfg.MaxChunkBytes = fc.MaxChunkMB * mib
	}
	if fc.LowMBps > 0 {
		cfg.LowBps = int64(fc.LowMBps) * mib
	}
	if fc.MediumMBps > 0 {
		cfg.MediumBps = int64(fc.MediumMBps) * mib
	}
	if fc.HighMBps > 0 {
		cfg.HighBps = int64(fc.HighMBps) * mib
	}
	if fc.BulkRateMBps > 0 {
		cfg.BulkRateBps = int64(fc.BulkRateMBps) * mib
	}
	if fc.SampleWindow != "" {
		d, err := time.ParseDuration(fc.SampleWindow)
		if err != nil {
			return fmt.Errorf("parse sample_window: %w", err)
		}
		cfg.SampleWindow = d
	}
	if fc.SweepInterval != "" {
		d, err := time.ParseDuration(fc.SweepInterval)
		if err != nil {
			return fmt.Errorf("parse sweep_interval: %w", err)
		}
		cfg.SweepInterval = d
	}
	return nil
}

func applyEnvString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func applyEnvInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// peekFlag scans raw args for -name/--name before the flag set parses them,
// so the config file can be loaded first and still lose to explicit flags.
func peekFlag(args []string, name string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "-"+name || arg == "--"+name {
			if i+1 < len(args) {
				return args[i+1]
			}
			return ""
		}
		if v, ok := cutPrefix(arg, "-"+name+"="); ok {
			return v
		}
		if v, ok := cutPrefix(arg, "--"+name+"="); ok {
			return v
		}
	}
	return ""
}

func cutPrefix(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && s[:len(prefix)] == prefix {
		return s[len(prefix):], true
	}
	return "", false
}
