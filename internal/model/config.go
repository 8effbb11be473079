package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// IMAPConfig holds the mailbox server settings.
type IMAPConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port string `mapstructure:"port" yaml:"port"`
}

// SMTPConfig holds the mail-submission server settings.
type SMTPConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port string `mapstructure:"port" yaml:"port"`
}

// ScanConfig holds defaults for the scan phase.
type ScanConfig struct {
	// Months is the default lookback window (30-day months).
	Months int `mapstructure:"months" yaml:"months"`

	// ReportPath is where the domain report CSV is written.
	ReportPath string `mapstructure:"report_path" yaml:"report_path"`

	// SeenPath is the previously-seen identifier file carried across runs.
	SeenPath string `mapstructure:"seen_path" yaml:"seen_path"`
}

// UnsubscribeConfig holds defaults for the unsubscribe phase.
type UnsubscribeConfig struct {
	// Days is the default lookback window for the mailbox fallback search.
	Days int `mapstructure:"days" yaml:"days"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	IMAP        IMAPConfig        `mapstructure:"imap" yaml:"imap"`
	SMTP        SMTPConfig        `mapstructure:"smtp" yaml:"smtp"`
	Scan        ScanConfig        `mapstructure:"scan" yaml:"scan"`
	Unsubscribe UnsubscribeConfig `mapstructure:"unsubscribe" yaml:"unsubscribe"`

	// DBPath is the run-history SQLite database. Empty disables history.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailsweep/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailsweep", "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	dataDir := "."
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".config", "mailsweep")
	}
	return &AppConfig{
		IMAP: IMAPConfig{Host: "imap.gmail.com", Port: "993"},
		SMTP: SMTPConfig{Host: "smtp.gmail.com", Port: "587"},
		Scan: ScanConfig{
			Months:     6,
			ReportPath: "email_domain_report.csv",
			SeenPath:   "previously_scanned.txt",
		},
		Unsubscribe: UnsubscribeConfig{Days: 30},
		DBPath:      filepath.Join(dataDir, "mailsweep.db"),
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns the default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	defaults := defaultAppConfig()
	v.SetDefault("imap.host", defaults.IMAP.Host)
	v.SetDefault("imap.port", defaults.IMAP.Port)
	v.SetDefault("smtp.host", defaults.SMTP.Host)
	v.SetDefault("smtp.port", defaults.SMTP.Port)
	v.SetDefault("scan.months", defaults.Scan.Months)
	v.SetDefault("scan.report_path", defaults.Scan.ReportPath)
	v.SetDefault("scan.seen_path", defaults.Scan.SeenPath)
	v.SetDefault("unsubscribe.days", defaults.Unsubscribe.Days)
	v.SetDefault("db_path", defaults.DBPath)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaults, nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaults, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}
