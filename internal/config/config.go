// ABOUTME: Configuration loading and parsing for psy-bot
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete psy-bot configuration
type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Database DatabaseConfig `yaml:"database"`
	Exports  ExportsConfig  `yaml:"exports"`
	Survey   SurveyConfig   `yaml:"survey"`
	Topics   TopicsConfig   `yaml:"topics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// TelegramConfig holds Bot API credentials and the admin group wiring
type TelegramConfig struct {
	Token string `yaml:"token"`
	// AdminGroupID is the forum supergroup all client topics live in
	AdminGroupID int64 `yaml:"admin_group_id"`
	// OperatorIDs lists who may relay from the group; nobody can if empty
	OperatorIDs        []int64 `yaml:"operator_ids"`
	DropPendingUpdates bool    `yaml:"drop_pending_updates"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ExportsConfig holds export output and retention configuration
type ExportsConfig struct {
	Dir string `yaml:"dir"`
	// Deliver sends each finished workbook into the client's topic
	Deliver                 bool `yaml:"deliver"`
	KeepTotal               int  `yaml:"keep_total"`
	KeepLivePerConversation int  `yaml:"keep_live_per_conversation"`
}

// SurveyConfig holds the optional questionnaire override
type SurveyConfig struct {
	// File overrides the embedded questionnaire when set
	File string `yaml:"file"`
}

// TopicsConfig holds topic binding cache configuration
type TopicsConfig struct {
	CacheTTL time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	CacheTTLRaw string `yaml:"cache_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in values a minimal config file may omit.
func (c *Config) applyDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = "data/bot.sqlite"
	}
	if c.Exports.Dir == "" {
		c.Exports.Dir = "exports"
	}
	if c.Exports.KeepTotal == 0 {
		c.Exports.KeepTotal = 200
	}
	if c.Exports.KeepLivePerConversation == 0 {
		c.Exports.KeepLivePerConversation = 30
	}
	if c.Topics.CacheTTLRaw == "" {
		c.Topics.CacheTTLRaw = "10m"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if c.Telegram.AdminGroupID == 0 {
		return fmt.Errorf("telegram.admin_group_id is required")
	}
	if c.Exports.KeepTotal < 0 || c.Exports.KeepLivePerConversation < 0 {
		return fmt.Errorf("export retention caps must not be negative")
	}
	return nil
}

// OperatorSet returns the allowed operator ids as a lookup set. Only the
// listed users may act in the admin group; an empty set admits no one.
func (c *Config) OperatorSet() map[int64]bool {
	set := make(map[int64]bool, len(c.Telegram.OperatorIDs))
	for _, id := range c.Telegram.OperatorIDs {
		set[id] = true
	}
	return set
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Topics.CacheTTLRaw != "" {
		cfg.Topics.CacheTTL, err = time.ParseDuration(cfg.Topics.CacheTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing cache_ttl %q: %w", cfg.Topics.CacheTTLRaw, err)
		}
	}

	return nil
}
