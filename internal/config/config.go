package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all mimir configuration.
type Config struct {
	// Workspace is the root directory everything else lives under.
	Workspace string `yaml:"workspace"`

	// Examiner is recorded on every case this session creates.
	Examiner string `yaml:"examiner"`

	// History log settings
	HistoryFile string `yaml:"history_file"`
	HistoryMax  int    `yaml:"history_max"`

	// FollowCaseDir chdirs the process into the active case's directory
	// on open and back out on close. Off by default: external commands
	// receive the case directory explicitly instead.
	FollowCaseDir bool `yaml:"follow_case_dir"`

	// StrictCaseCreate makes `case create` fail on an existing case
	// instead of activating it with a warning.
	StrictCaseCreate bool `yaml:"strict_case_create"`

	// Lookup providers
	Lookup LookupConfig `yaml:"lookup"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LookupConfig configures the reputation lookup providers.
type LookupConfig struct {
	// AbuseIPDB (IP reputation)
	AbuseIPDBKey string `yaml:"abuseipdb_key"`
	AbuseIPDBURL string `yaml:"abuseipdb_url"`

	// abuse.ch key, shared by URLHaus and MalwareBazaar
	AbuseCHKey       string `yaml:"abusech_key"`
	URLHausURL       string `yaml:"urlhaus_url"`
	MalwareBazaarURL string `yaml:"malwarebazaar_url"`

	// Per-call timeout for provider requests
	Timeout string `yaml:"timeout"`

	// Response cache. CachePath "off" disables it.
	CachePath string `yaml:"cache_path"`
	CacheTTL  string `yaml:"cache_ttl"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // off, debug, info, warn, error
	File  string `yaml:"file"`
}

// ConfigFileName is looked up under the workspace root.
const ConfigFileName = "config.yaml"

// Default returns the default configuration. Workspace and the paths
// derived from it are filled in by Load.
func Default() *Config {
	return &Config{
		Examiner:   currentUser(),
		HistoryMax: 200,

		Lookup: LookupConfig{
			AbuseIPDBURL:     "https://api.abuseipdb.com/api/v2",
			URLHausURL:       "https://urlhaus-api.abuse.ch/v1",
			MalwareBazaarURL: "https://mb-api.abuse.ch/api/v1",
			Timeout:          "10s",
			CacheTTL:         "24h",
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration: defaults, then the optional YAML file
// under the workspace, then environment overrides. The workspace itself
// comes from workspaceOverride (a flag) or WORKSPACE_PATH; neither being
// set is a fatal startup condition.
func Load(workspaceOverride string) (*Config, error) {
	ws := workspaceOverride
	if ws == "" {
		ws = os.Getenv("WORKSPACE_PATH")
	}
	if ws == "" {
		return nil, fmt.Errorf("no workspace configured: set WORKSPACE_PATH or pass --workspace")
	}
	ws, err := normalizePath(ws)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace path: %w", err)
	}

	// Keys kept in the workspace .env become visible here. godotenv
	// never overrides variables already set, so real environment and
	// any .env the caller loaded earlier still win.
	_ = godotenv.Load(filepath.Join(ws, ".env"))

	cfg := Default()

	data, err := os.ReadFile(filepath.Join(ws, ConfigFileName))
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", ConfigFileName, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", ConfigFileName, err)
	}

	// The flag/env workspace wins over whatever the file says.
	cfg.Workspace = ws

	cfg.applyEnvOverrides()

	if cfg.HistoryFile == "" {
		cfg.HistoryFile = filepath.Join(ws, ".mhistory")
	}
	if cfg.Lookup.CachePath == "" {
		cfg.Lookup.CachePath = filepath.Join(ws, ".cache", "intel.db")
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(ws, "logs", "mimir.log")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("EXAMINER"); v != "" {
		c.Examiner = v
	}
	if v := os.Getenv("HISTORY_FILE"); v != "" {
		c.HistoryFile = v
	}
	if n, ok := envInt("HISTORY_MAX"); ok {
		c.HistoryMax = n
	}
	if b, ok := envBool("FOLLOW_CASE_DIR"); ok {
		c.FollowCaseDir = b
	}
	if b, ok := envBool("STRICT_CASE_CREATE"); ok {
		c.StrictCaseCreate = b
	}

	if v := os.Getenv("ABUSE_API_KEY"); v != "" {
		c.Lookup.AbuseIPDBKey = v
	}
	if v := os.Getenv("ACH_API_KEY"); v != "" {
		c.Lookup.AbuseCHKey = v
	}
	if v := os.Getenv("LOOKUP_TIMEOUT"); v != "" {
		c.Lookup.Timeout = v
	}
	if v := os.Getenv("LOOKUP_CACHE"); v != "" {
		c.Lookup.CachePath = v
	}
	if v := os.Getenv("LOOKUP_CACHE_TTL"); v != "" {
		c.Lookup.CacheTTL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		c.Logging.File = v
	}
}

// ValidLogLevels lists the accepted logging levels.
var ValidLogLevels = []string{"off", "debug", "info", "warn", "error"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Workspace == "" {
		return fmt.Errorf("workspace not configured")
	}
	if c.HistoryMax < 1 {
		return fmt.Errorf("history_max must be at least 1, got %d", c.HistoryMax)
	}

	validLevel := false
	for _, l := range ValidLogLevels {
		if c.Logging.Level == l {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("invalid log level: %s (valid: %v)", c.Logging.Level, ValidLogLevels)
	}

	return nil
}

// CasesDir returns the investigations root all cases live under.
func (c *Config) CasesDir() string {
	return filepath.Join(c.Workspace, "Investigations")
}

// ReportsDir returns the directory exported reports are written to.
func (c *Config) ReportsDir() string {
	return filepath.Join(c.Workspace, "Reports")
}

// GetLookupTimeout returns the provider timeout as a duration.
func (c *Config) GetLookupTimeout() time.Duration {
	d, err := time.ParseDuration(c.Lookup.Timeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// GetCacheTTL returns the lookup cache TTL as a duration.
func (c *Config) GetCacheTTL() time.Duration {
	d, err := time.ParseDuration(c.Lookup.CacheTTL)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// CacheEnabled reports whether the lookup response cache is on.
func (c *LookupConfig) CacheEnabled() bool {
	return c.CachePath != "" && !strings.EqualFold(c.CachePath, "off")
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		// Windows reports DOMAIN\name.
		if i := strings.LastIndexByte(u.Username, '\\'); i >= 0 {
			return u.Username[i+1:]
		}
		return u.Username
	}
	if v := os.Getenv("USER"); v != "" {
		return v
	}
	return "examiner"
}

func normalizePath(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return filepath.Abs(p)
}
