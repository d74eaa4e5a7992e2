// Package config loads application configuration from an optional YAML file
// and CIHEALTH_ environment variables, which take precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported values for DBDriver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds the validated application configuration. It is built once by
// Load and treated as read-only afterwards.
type Config struct {
	GitHubToken         string
	GitHubRepos         []string
	GitHubWebhookSecret string

	JenkinsURL          string
	JenkinsUser         string
	JenkinsToken        string
	JenkinsWebhookToken string

	PollInterval     time.Duration
	PollInitialDelay time.Duration
	ProviderTimeout  time.Duration
	ProviderRetries  uint64

	ListenAddr  string
	DBDriver    string
	DBPath      string
	DatabaseURL string

	AlertFrom       string
	AlertRecipients []string
	SMTPHost        string
	SMTPPort        int
	SMTPUsername    string
	SMTPPassword    string

	KafkaBrokers []string
	KafkaTopic   string

	LogLevel  slog.Level
	LogFormat string
}

// HasGitHubCredentials reports whether the GitHub source can be enabled.
func (c *Config) HasGitHubCredentials() bool {
	return c.GitHubToken != "" && len(c.GitHubRepos) > 0
}

// HasJenkinsCredentials reports whether the Jenkins source can be enabled.
func (c *Config) HasJenkinsCredentials() bool {
	return c.JenkinsURL != "" && c.JenkinsUser != "" && c.JenkinsToken != ""
}

// DSN returns the connection string for the configured driver.
func (c *Config) DSN() string {
	if c.DBDriver == DriverPostgres {
		return c.DatabaseURL
	}
	return c.DBPath
}

// fileConfig is the YAML file layout. Every field is optional.
type fileConfig struct {
	GitHub struct {
		Token         string   `yaml:"token"`
		Repos         []string `yaml:"repos"`
		WebhookSecret string   `yaml:"webhook_secret"`
	} `yaml:"github"`
	Jenkins struct {
		URL          string `yaml:"url"`
		User         string `yaml:"user"`
		Token        string `yaml:"token"`
		WebhookToken string `yaml:"webhook_token"`
	} `yaml:"jenkins"`
	Poll struct {
		Interval        string `yaml:"interval"`
		InitialDelay    string `yaml:"initial_delay"`
		ProviderTimeout string `yaml:"provider_timeout"`
		ProviderRetries *int   `yaml:"provider_retries"`
	} `yaml:"poll"`
	Server struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"server"`
	Database struct {
		Driver string `yaml:"driver"`
		Path   string `yaml:"path"`
		URL    string `yaml:"url"`
	} `yaml:"database"`
	Alerts struct {
		From       string   `yaml:"from"`
		Recipients []string `yaml:"recipients"`
		SMTP       struct {
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			Username string `yaml:"username"`
			Password string `yaml:"password"`
		} `yaml:"smtp"`
	} `yaml:"alerts"`
	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load reads the optional YAML file named by CIHEALTH_CONFIG_FILE, applies
// CIHEALTH_ environment overrides and validates the result.
// Provider credentials are optional; a provider without them is disabled.
// Defaults: CIHEALTH_POLL_INTERVAL (60s), CIHEALTH_POLL_INITIAL_DELAY (5s),
// CIHEALTH_PROVIDER_TIMEOUT (15s), CIHEALTH_PROVIDER_RETRIES (2),
// CIHEALTH_LISTEN_ADDR (127.0.0.1:8080), CIHEALTH_DB_DRIVER (sqlite),
// CIHEALTH_DB_PATH (cihealth.db), CIHEALTH_SMTP_PORT (587),
// CIHEALTH_KAFKA_TOPIC (ci.builds), CIHEALTH_LOG_LEVEL (info).
func Load() (*Config, error) {
	var fc fileConfig
	if path := os.Getenv("CIHEALTH_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	l := &loader{}

	retries := 2
	if fc.Poll.ProviderRetries != nil {
		retries = *fc.Poll.ProviderRetries
	}
	retries = l.getInt("CIHEALTH_PROVIDER_RETRIES", retries)
	if retries < 0 {
		l.errs = append(l.errs, fmt.Errorf("CIHEALTH_PROVIDER_RETRIES must not be negative, got %d", retries))
		retries = 0
	}

	cfg := &Config{
		GitHubToken:         l.getString("CIHEALTH_GITHUB_TOKEN", fc.GitHub.Token),
		GitHubRepos:         l.getList("CIHEALTH_GITHUB_REPOS", fc.GitHub.Repos),
		GitHubWebhookSecret: l.getString("CIHEALTH_GITHUB_WEBHOOK_SECRET", fc.GitHub.WebhookSecret),

		JenkinsURL:          l.getString("CIHEALTH_JENKINS_URL", fc.Jenkins.URL),
		JenkinsUser:         l.getString("CIHEALTH_JENKINS_USER", fc.Jenkins.User),
		JenkinsToken:        l.getString("CIHEALTH_JENKINS_TOKEN", fc.Jenkins.Token),
		JenkinsWebhookToken: l.getString("CIHEALTH_JENKINS_WEBHOOK_TOKEN", fc.Jenkins.WebhookToken),

		PollInterval:     l.getDuration("CIHEALTH_POLL_INTERVAL", fc.Poll.Interval, time.Minute),
		PollInitialDelay: l.getDuration("CIHEALTH_POLL_INITIAL_DELAY", fc.Poll.InitialDelay, 5*time.Second),
		ProviderTimeout:  l.getDuration("CIHEALTH_PROVIDER_TIMEOUT", fc.Poll.ProviderTimeout, 15*time.Second),
		ProviderRetries:  uint64(retries),

		ListenAddr:  l.getString("CIHEALTH_LISTEN_ADDR", orDefault(fc.Server.ListenAddr, "127.0.0.1:8080")),
		DBDriver:    strings.ToLower(l.getString("CIHEALTH_DB_DRIVER", orDefault(fc.Database.Driver, DriverSQLite))),
		DBPath:      l.getString("CIHEALTH_DB_PATH", orDefault(fc.Database.Path, "cihealth.db")),
		DatabaseURL: l.getString("CIHEALTH_DATABASE_URL", fc.Database.URL),

		AlertFrom:       l.getString("CIHEALTH_ALERT_FROM", orDefault(fc.Alerts.From, "cihealth@localhost")),
		AlertRecipients: l.getList("CIHEALTH_ALERT_RECIPIENTS", fc.Alerts.Recipients),
		SMTPHost:        l.getString("CIHEALTH_SMTP_HOST", fc.Alerts.SMTP.Host),
		SMTPPort:        l.getInt("CIHEALTH_SMTP_PORT", orDefaultInt(fc.Alerts.SMTP.Port, 587)),
		SMTPUsername:    l.getString("CIHEALTH_SMTP_USERNAME", fc.Alerts.SMTP.Username),
		SMTPPassword:    l.getString("CIHEALTH_SMTP_PASSWORD", fc.Alerts.SMTP.Password),

		KafkaBrokers: l.getList("CIHEALTH_KAFKA_BROKERS", fc.Kafka.Brokers),
		KafkaTopic:   l.getString("CIHEALTH_KAFKA_TOPIC", orDefault(fc.Kafka.Topic, "ci.builds")),

		LogLevel:  l.getLevel("CIHEALTH_LOG_LEVEL", orDefault(fc.Log.Level, "info")),
		LogFormat: strings.ToLower(l.getString("CIHEALTH_LOG_FORMAT", orDefault(fc.Log.Format, "text"))),
	}

	cfg.validate(l)

	if err := errors.Join(l.errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate(l *loader) {
	if c.PollInterval <= 0 {
		l.errs = append(l.errs, fmt.Errorf("CIHEALTH_POLL_INTERVAL must be positive, got %s", c.PollInterval))
	}
	if c.PollInitialDelay < 0 {
		l.errs = append(l.errs, fmt.Errorf("CIHEALTH_POLL_INITIAL_DELAY must not be negative, got %s", c.PollInitialDelay))
	}
	if c.ProviderTimeout <= 0 {
		l.errs = append(l.errs, fmt.Errorf("CIHEALTH_PROVIDER_TIMEOUT must be positive, got %s", c.ProviderTimeout))
	}

	switch c.DBDriver {
	case DriverSQLite:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			l.errs = append(l.errs, errors.New("CIHEALTH_DATABASE_URL is required when CIHEALTH_DB_DRIVER=postgres"))
		}
	default:
		l.errs = append(l.errs, fmt.Errorf("CIHEALTH_DB_DRIVER must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.DBDriver))
	}

	for _, repo := range c.GitHubRepos {
		owner, name, ok := strings.Cut(repo, "/")
		if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
			l.errs = append(l.errs, fmt.Errorf("CIHEALTH_GITHUB_REPOS entry %q must be owner/repo", repo))
		}
	}

	if c.SMTPPort <= 0 || c.SMTPPort > 65535 {
		l.errs = append(l.errs, fmt.Errorf("CIHEALTH_SMTP_PORT out of range: %d", c.SMTPPort))
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		l.errs = append(l.errs, fmt.Errorf("CIHEALTH_LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
}

// loader reads environment overrides and collects every parse error so a
// misconfigured deployment reports all problems at once.
type loader struct {
	errs []error
}

func (l *loader) getString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func (l *loader) getList(key string, fallback []string) []string {
	raw := fallback
	if v, ok := os.LookupEnv(key); ok {
		raw = strings.Split(v, ",")
	}

	out := []string{}
	for _, item := range raw {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (l *loader) getInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s has invalid integer %q: %w", key, v, err))
		return fallback
	}
	return n
}

func (l *loader) getDuration(key, fileValue string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		if fileValue == "" {
			return fallback
		}
		v = fileValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s has invalid duration %q: %w", key, v, err))
		return fallback
	}
	return d
}

func (l *loader) getLevel(key, fallback string) slog.Level {
	v := l.getString(key, fallback)
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(v)); err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s has invalid level %q: %w", key, v, err))
		return slog.LevelInfo
	}
	return lvl
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func orDefaultInt(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}
