package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultGatewayURL = "http://127.0.0.1:7433"
	DefaultDataDir    = ".blobguard"
	DefaultDBFileName = "vault.db"
	DefaultLogLevel   = "info"
	DefaultBackend    = BackendLocal

	BackendLocal   = "local"
	BackendGateway = "gateway"

	DefaultUploadEpochs       int64 = 5
	DefaultMinProviders             = 1
	DefaultPollInterval             = 2 * time.Second
	DefaultWaitTimeout              = 2 * time.Minute
	DefaultMonitorInterval          = 5 * time.Second
	DefaultMonitorMaxAttempts       = 10
	DefaultMonitorTimeout           = 5 * time.Minute
	DefaultCheckInterval            = time.Hour
	DefaultWarningDays              = 7
	DefaultAutoRenewDays            = 3
	DefaultRenewalEpochs      int64 = 5
	DefaultEpochDuration            = 24 * time.Hour

	configFileName  = ".blobguard.toml"
	configDirEnvKey = "BLOBGUARD_CONFIG_DIR"
	dbEnvKey        = "BLOBGUARD_DB"
	gatewayEnvKey   = "BLOBGUARD_GATEWAY_URL"
	signerEnvKey    = "BLOBGUARD_SIGNER_KEY"
	logLevelEnvKey  = "BLOBGUARD_LOG_LEVEL"
	backendEnvKey   = "BLOBGUARD_BACKEND"
)

// VerifyConfig holds defaults for upload and verification.
type VerifyConfig struct {
	UploadEpochs int64    `toml:"upload_epochs"`
	MinProviders int      `toml:"min_providers"`
	PollInterval Duration `toml:"poll_interval"`
	WaitTimeout  Duration `toml:"wait_timeout"`
}

// MonitorConfig holds availability monitor defaults.
type MonitorConfig struct {
	Interval    Duration `toml:"interval"`
	MaxAttempts int      `toml:"max_attempts"`
	Timeout     Duration `toml:"timeout"`
}

// ExpiryConfig holds expiry monitor thresholds. Days are calendar days;
// epoch_duration converts them to epochs.
type ExpiryConfig struct {
	CheckInterval Duration `toml:"check_interval"`
	WarningDays   int      `toml:"warning_days"`
	AutoRenewDays int      `toml:"auto_renew_days"`
	RenewalEpochs int64    `toml:"renewal_epochs"`
	EpochDuration Duration `toml:"epoch_duration"`
}

// LocalnetConfig tunes the in-process network behind the local backend.
type LocalnetConfig struct {
	CertifyDelay  Duration `toml:"certify_delay"`
	EpochDuration Duration `toml:"epoch_duration"`
}

// Config defines runtime configuration for blobguard.
type Config struct {
	Backend    string         `toml:"backend"`
	GatewayURL string         `toml:"gateway_url"`
	DBPath     string         `toml:"db_path"`
	LogLevel   string         `toml:"log_level"`
	SignerKey  string         `toml:"signer_key"`
	Verify     VerifyConfig   `toml:"verify"`
	Monitor    MonitorConfig  `toml:"monitor"`
	Expiry     ExpiryConfig   `toml:"expiry"`
	Localnet   LocalnetConfig `toml:"localnet"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		Backend:    DefaultBackend,
		GatewayURL: DefaultGatewayURL,
		DBPath:     "",
		LogLevel:   DefaultLogLevel,
		Verify: VerifyConfig{
			UploadEpochs: DefaultUploadEpochs,
			MinProviders: DefaultMinProviders,
			PollInterval: D(DefaultPollInterval),
			WaitTimeout:  D(DefaultWaitTimeout),
		},
		Monitor: MonitorConfig{
			Interval:    D(DefaultMonitorInterval),
			MaxAttempts: DefaultMonitorMaxAttempts,
			Timeout:     D(DefaultMonitorTimeout),
		},
		Expiry: ExpiryConfig{
			CheckInterval: D(DefaultCheckInterval),
			WarningDays:   DefaultWarningDays,
			AutoRenewDays: DefaultAutoRenewDays,
			RenewalEpochs: DefaultRenewalEpochs,
			EpochDuration: D(DefaultEpochDuration),
		},
		Localnet: LocalnetConfig{
			EpochDuration: D(DefaultEpochDuration),
		},
	}
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, configFileName), true
}

var allowedKeys = []string{
	"backend",
	"gateway_url",
	"db_path",
	"log_level",
	"signer_key",
	"verify.upload_epochs",
	"verify.min_providers",
	"verify.poll_interval",
	"verify.wait_timeout",
	"monitor.interval",
	"monitor.max_attempts",
	"monitor.timeout",
	"expiry.check_interval",
	"expiry.warning_days",
	"expiry.auto_renew_days",
	"expiry.renewal_epochs",
	"expiry.epoch_duration",
	"localnet.certify_delay",
	"localnet.epoch_duration",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key. The signer key is redacted.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "backend":
		return c.Backend, nil
	case "gateway_url":
		return c.GatewayURL, nil
	case "db_path":
		return c.DBPath, nil
	case "log_level":
		return c.LogLevel, nil
	case "signer_key":
		if c.SignerKey == "" {
			return "", nil
		}
		return "(set)", nil
	case "verify.upload_epochs":
		return strconv.FormatInt(c.Verify.UploadEpochs, 10), nil
	case "verify.min_providers":
		return strconv.Itoa(c.Verify.MinProviders), nil
	case "verify.poll_interval":
		return c.Verify.PollInterval.String(), nil
	case "verify.wait_timeout":
		return c.Verify.WaitTimeout.String(), nil
	case "monitor.interval":
		return c.Monitor.Interval.String(), nil
	case "monitor.max_attempts":
		return strconv.Itoa(c.Monitor.MaxAttempts), nil
	case "monitor.timeout":
		return c.Monitor.Timeout.String(), nil
	case "expiry.check_interval":
		return c.Expiry.CheckInterval.String(), nil
	case "expiry.warning_days":
		return strconv.Itoa(c.Expiry.WarningDays), nil
	case "expiry.auto_renew_days":
		return strconv.Itoa(c.Expiry.AutoRenewDays), nil
	case "expiry.renewal_epochs":
		return strconv.FormatInt(c.Expiry.RenewalEpochs, 10), nil
	case "expiry.epoch_duration":
		return c.Expiry.EpochDuration.String(), nil
	case "localnet.certify_delay":
		return c.Localnet.CertifyDelay.String(), nil
	case "localnet.epoch_duration":
		return c.Localnet.EpochDuration.String(), nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// GlobalPath returns the path to the config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads the config file and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	path, err := GlobalPath()
	if err == nil {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	if cfg.DBPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.DBPath = filepath.Join(home, DefaultDataDir, DefaultDBFileName)
		}
	}

	if gatewayURL := os.Getenv(gatewayEnvKey); gatewayURL != "" {
		cfg.GatewayURL = gatewayURL
	}
	if dbPath := os.Getenv(dbEnvKey); dbPath != "" {
		cfg.DBPath = dbPath
	}
	if key := strings.TrimSpace(os.Getenv(signerEnvKey)); key != "" {
		cfg.SignerKey = key
	}
	if backend := strings.TrimSpace(os.Getenv(backendEnvKey)); backend != "" {
		cfg.Backend = backend
	}

	cfg.normalizeDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendLocal, BackendGateway:
	default:
		return fmt.Errorf("backend must be %q or %q, got %q", BackendLocal, BackendGateway, c.Backend)
	}
	if c.Expiry.AutoRenewDays > c.Expiry.WarningDays {
		return fmt.Errorf("expiry.auto_renew_days (%d) exceeds expiry.warning_days (%d)", c.Expiry.AutoRenewDays, c.Expiry.WarningDays)
	}
	return nil
}

// LocalnetDir is where the local backend keeps its blobs and state.
func (c *Config) LocalnetDir() string {
	return filepath.Join(filepath.Dir(c.DBPath), "localnet")
}

// LogLevelEnvKey names the env var overriding log_level.
func LogLevelEnvKey() string {
	return logLevelEnvKey
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "verify.upload_epochs", "expiry.renewal_epochs":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "verify.min_providers", "monitor.max_attempts":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "expiry.warning_days", "expiry.auto_renew_days":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("%s must be a non-negative integer", key)
		}
		return parsed, nil
	case "verify.poll_interval", "verify.wait_timeout", "monitor.interval", "monitor.timeout",
		"expiry.check_interval", "expiry.epoch_duration", "localnet.epoch_duration", "localnet.certify_delay":
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be a duration like 30s or 24h", key)
		}
		if parsed <= 0 && key != "localnet.certify_delay" {
			return nil, fmt.Errorf("%s must be positive", key)
		}
		return parsed.String(), nil
	case "backend":
		if value != BackendLocal && value != BackendGateway {
			return nil, fmt.Errorf("backend must be %q or %q", BackendLocal, BackendGateway)
		}
		return value, nil
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func (c *Config) normalizeDefaults() {
	defaults := Default()
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
	if strings.TrimSpace(c.Backend) == "" {
		c.Backend = DefaultBackend
	}
	if c.Verify.UploadEpochs <= 0 {
		c.Verify.UploadEpochs = defaults.Verify.UploadEpochs
	}
	if c.Verify.MinProviders <= 0 {
		c.Verify.MinProviders = defaults.Verify.MinProviders
	}
	if c.Verify.PollInterval.Duration <= 0 {
		c.Verify.PollInterval = defaults.Verify.PollInterval
	}
	if c.Verify.WaitTimeout.Duration <= 0 {
		c.Verify.WaitTimeout = defaults.Verify.WaitTimeout
	}
	if c.Monitor.Interval.Duration <= 0 {
		c.Monitor.Interval = defaults.Monitor.Interval
	}
	if c.Monitor.MaxAttempts <= 0 {
		c.Monitor.MaxAttempts = defaults.Monitor.MaxAttempts
	}
	if c.Expiry.CheckInterval.Duration <= 0 {
		c.Expiry.CheckInterval = defaults.Expiry.CheckInterval
	}
	if c.Expiry.RenewalEpochs <= 0 {
		c.Expiry.RenewalEpochs = defaults.Expiry.RenewalEpochs
	}
	if c.Expiry.EpochDuration.Duration <= 0 {
		c.Expiry.EpochDuration = defaults.Expiry.EpochDuration
	}
}
