package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the application configuration, read once from the environment at
// startup and passed around by value afterwards.
type Config struct {
	RunInterval          int    `env:"RUN_INTERVAL" envDefault:"300" yaml:"run_interval"`
	PaperlessURL         string `env:"PAPERLESSNGX_URL" yaml:"paperlessngx_url"`
	PaperlessToken       string `env:"PAPERLESSNGX_TOKEN" yaml:"paperlessngx_token"`
	FilterTagID          int64  `env:"PAPERLESSNGX_FILTER_TAG_ID" yaml:"paperlessngx_filter_tag_id"`
	FilterDocumentTypeID int64  `env:"PAPERLESSNGX_FILTER_DOCUMENT_TYPE_ID" yaml:"paperlessngx_filter_document_type_id"`
	LookbackDays         int    `env:"PAPERLESSNGX_LOOKBACK_DAYS" yaml:"paperlessngx_lookback_days"`
	Recipient            string `env:"EMAIL_ACCOUNT" yaml:"email_account"`
	Subject              string `env:"EMAIL_SUBJECT" envDefault:"Invoice" yaml:"email_subject"`
	Body                 string `env:"EMAIL_BODY" envDefault:"Invoice" yaml:"email_body"`
	SMTPServer           string `env:"SMTP_SERVER" yaml:"smtp_server"`
	SMTPPort             int    `env:"SMTP_PORT" yaml:"smtp_port"`
	SMTPSecurity         string `env:"SMTP_SECURITY" envDefault:"starttls" yaml:"smtp_security"`
	Login                string `env:"LOGIN" yaml:"login"`
	Password             string `env:"PASSWORD" yaml:"password"`
	DataDir              string `env:"DATA_DIR" envDefault:"data" yaml:"data_dir"`
	LogLevel             string `env:"LOG_LEVEL" envDefault:"info" yaml:"log_level"`
}

// Parse reads the configuration from the environment without validating it.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Load reads and validates the configuration from the environment.
func Load() (Config, error) {
	cfg, err := Parse()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports all missing required settings at once, then checks value
// ranges. Filters are optional; 0 means unset.
func (c Config) Validate() error {
	var missing []string
	if c.PaperlessURL == "" {
		missing = append(missing, "PAPERLESSNGX_URL")
	}
	if c.PaperlessToken == "" {
		missing = append(missing, "PAPERLESSNGX_TOKEN")
	}
	if c.Recipient == "" {
		missing = append(missing, "EMAIL_ACCOUNT")
	}
	if c.SMTPServer == "" {
		missing = append(missing, "SMTP_SERVER")
	}
	if c.SMTPPort == 0 {
		missing = append(missing, "SMTP_PORT")
	}
	if c.Login == "" {
		missing = append(missing, "LOGIN")
	}
	if c.Password == "" {
		missing = append(missing, "PASSWORD")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if c.SMTPPort < 0 || c.SMTPPort > 65535 {
		return fmt.Errorf("SMTP_PORT must be a valid port number, got %d", c.SMTPPort)
	}
	if c.SMTPSecurity != "" && c.SMTPSecurity != "starttls" && c.SMTPSecurity != "ssl" {
		return fmt.Errorf("SMTP_SECURITY must be starttls or ssl, got %q", c.SMTPSecurity)
	}
	return nil
}

// Interval returns the poll interval, defaulting to 300 seconds.
func (c Config) Interval() time.Duration {
	if c.RunInterval <= 0 {
		return 300 * time.Second
	}
	return time.Duration(c.RunInterval) * time.Second
}

// Security returns the SMTP security mode, defaulting to "starttls".
func (c Config) Security() string {
	if c.SMTPSecurity == "" {
		return "starttls"
	}
	return c.SMTPSecurity
}

// SeenDBPath returns the location of the seen-document database inside the
// data directory.
func (c Config) SeenDBPath() string {
	dir := c.DataDir
	if dir == "" {
		dir = "data"
	}
	return filepath.Join(dir, "seen.db")
}

// Redacted returns a copy of the configuration with secrets masked, suitable
// for printing.
func (c Config) Redacted() Config {
	if c.PaperlessToken != "" {
		c.PaperlessToken = "[redacted]"
	}
	if c.Password != "" {
		c.Password = "[redacted]"
	}
	return c
}
