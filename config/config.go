// Package config loads the enricher settings from an optional .env file, an optional YAML
// file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/ortelius/pdvd-enricher/util"
	"gopkg.in/yaml.v2"
)

// MaxEPSSBatchSize is the page size of the EPSS API; larger batches would be truncated.
const MaxEPSSBatchSize = 100

// Validation errors
var (
	ErrMissingCredentials  = errors.New("GitHub credentials missing: set GITHUB_TOKEN or GITHUB_APP_ID, GITHUB_INSTALLATION_ID and GITHUB_PRIVATE_KEY")
	ErrMissingOrganization = errors.New("GitHub organization missing: set GITHUB_ORG")
)

// GitHub holds the remote API settings.
type GitHub struct {
	Token          string `yaml:"token"`
	AppID          string `yaml:"app_id"`
	InstallationID string `yaml:"installation_id"`
	PrivateKey     string `yaml:"private_key"`
	Org            string `yaml:"org"`
	APIURL         string `yaml:"api_url"`
	GraphQLURL     string `yaml:"graphql_url"`
}

// HasApp reports a complete App credential triple.
func (g GitHub) HasApp() bool {
	return g.AppID != "" && g.InstallationID != "" && g.PrivateKey != ""
}

// EPSS holds the exploit score lookup settings.
type EPSS struct {
	URL               string  `yaml:"url"`
	BatchSize         int     `yaml:"batch_size"`
	SignificantChange float64 `yaml:"significant_change"`
}

// AlertSync holds the alert orchestrator settings.
type AlertSync struct {
	Interval       time.Duration `yaml:"interval"`
	RateLimitFloor float64       `yaml:"rate_limit_floor"`
}

// Kafka holds the re-triage event settings.
type Kafka struct {
	Brokers       []string `yaml:"brokers"`
	TopicRetriage string   `yaml:"topic_retriage"`
	GroupID       string   `yaml:"group_id"`
	APIKey        string   `yaml:"api_key"`
	APISecret     string   `yaml:"api_secret"`
}

// Config is the complete enricher configuration.
type Config struct {
	GitHub            GitHub        `yaml:"github"`
	EPSS              EPSS          `yaml:"epss"`
	AlertSync         AlertSync     `yaml:"alert_sync"`
	Kafka             Kafka         `yaml:"kafka"`
	HTTPTimeout       time.Duration `yaml:"http_timeout"`
	AutoTriageEnabled bool          `yaml:"auto_triage_enabled"`
	Port              string        `yaml:"port"`
	LogLevel          string        `yaml:"log_level"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		GitHub: GitHub{
			APIURL:     "https://api.github.com",
			GraphQLURL: "https://api.github.com/graphql",
		},
		EPSS: EPSS{
			URL:               "https://api.first.org/data/v1/epss",
			BatchSize:         100,
			SignificantChange: 0.2,
		},
		AlertSync: AlertSync{
			Interval:       time.Hour,
			RateLimitFloor: 0.2,
		},
		Kafka: Kafka{
			Brokers:       []string{"localhost:9092"},
			TopicRetriage: "finding-retriage",
			GroupID:       "pdvd-enricher-worker",
		},
		HTTPTimeout:       30 * time.Second,
		AutoTriageEnabled: true,
		Port:              "8080",
		LogLevel:          "info",
	}
}

// Load reads .env (if present), then path (if non-empty), then the environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Default()
	if path == "" {
		path = os.Getenv("PDVD_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.GitHub.Token = util.GetEnvDefault("GITHUB_TOKEN", c.GitHub.Token)
	c.GitHub.AppID = util.GetEnvDefault("GITHUB_APP_ID", c.GitHub.AppID)
	c.GitHub.InstallationID = util.GetEnvDefault("GITHUB_INSTALLATION_ID", c.GitHub.InstallationID)
	c.GitHub.PrivateKey = util.GetEnvDefault("GITHUB_PRIVATE_KEY", c.GitHub.PrivateKey)
	c.GitHub.Org = util.GetEnvDefault("GITHUB_ORG", c.GitHub.Org)
	c.GitHub.APIURL = util.GetEnvDefault("GITHUB_API_URL", c.GitHub.APIURL)
	c.GitHub.GraphQLURL = util.GetEnvDefault("GITHUB_GRAPHQL_URL", c.GitHub.GraphQLURL)

	c.EPSS.URL = util.GetEnvDefault("EPSS_API_URL", c.EPSS.URL)
	c.EPSS.BatchSize = util.GetEnvInt("EPSS_BATCH_SIZE", c.EPSS.BatchSize)
	c.EPSS.SignificantChange = util.GetEnvFloat("EPSS_SIGNIFICANT_CHANGE", c.EPSS.SignificantChange)

	c.AlertSync.Interval = util.GetEnvDuration("ALERT_SYNC_INTERVAL", c.AlertSync.Interval)
	c.AlertSync.RateLimitFloor = util.GetEnvFloat("RATE_LIMIT_FLOOR", c.AlertSync.RateLimitFloor)

	if brokers := util.SplitList(util.GetEnvDefault("KAFKA_BROKERS", "")); len(brokers) > 0 {
		c.Kafka.Brokers = brokers
	}
	c.Kafka.TopicRetriage = util.GetEnvDefault("KAFKA_TOPIC_RETRIAGE", c.Kafka.TopicRetriage)
	c.Kafka.GroupID = util.GetEnvDefault("KAFKA_GROUP_ID", c.Kafka.GroupID)
	c.Kafka.APIKey = util.GetEnvDefault("KAFKA_API_KEY", c.Kafka.APIKey)
	c.Kafka.APISecret = util.GetEnvDefault("KAFKA_API_SECRET", c.Kafka.APISecret)

	c.HTTPTimeout = util.GetEnvDuration("HTTP_TIMEOUT", c.HTTPTimeout)
	c.AutoTriageEnabled = util.GetEnvBool("AUTO_TRIAGE_ENABLED", c.AutoTriageEnabled)
	c.Port = util.GetEnvDefault("MS_PORT", c.Port)
	c.LogLevel = strings.ToLower(util.GetEnvDefault("LOG_LEVEL", c.LogLevel))
}

// Validate requires credentials and an organization on top of ValidateTuning.
func (c *Config) Validate() error {
	if c.GitHub.Token == "" && !c.GitHub.HasApp() {
		return ErrMissingCredentials
	}
	if c.GitHub.Org == "" {
		return ErrMissingOrganization
	}
	return c.ValidateTuning()
}

// ValidateTuning checks the settings used by commands that only work on stored data.
func (c *Config) ValidateTuning() error {
	if c.EPSS.BatchSize <= 0 || c.EPSS.BatchSize > MaxEPSSBatchSize {
		return fmt.Errorf("EPSS batch size must be between 1 and %d, got %d", MaxEPSSBatchSize, c.EPSS.BatchSize)
	}
	if c.AlertSync.RateLimitFloor < 0 || c.AlertSync.RateLimitFloor >= 1 {
		return fmt.Errorf("rate limit floor must be in [0, 1), got %v", c.AlertSync.RateLimitFloor)
	}
	return nil
}
