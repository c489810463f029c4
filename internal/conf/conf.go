package conf

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration for the cmd tools.
type Config struct {
	// Chatter configuration
	Chatter ChatterConfig

	// Session configuration
	Session SessionConfig

	// Debug mode
	Debug bool
}

// ChatterConfig contains transport configuration.
type ChatterConfig struct {
	BaseURL string
	Token   string
	Pass    string
	Retries int
}

// SessionConfig contains polling session configuration.
type SessionConfig struct {
	Users         []string
	PollInterval  time.Duration
	ArchiveDBPath string // empty disables the archive
}

// LoadFromEnv loads configuration from environment variables. An accounts
// file, when present, fills in whatever the environment left unset.
func LoadFromEnv() *Config {
	retries := 2
	if val := os.Getenv("CHATTER_RETRIES"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			retries = parsed
		}
	}

	pollSeconds := 2
	if val := os.Getenv("CHATTER_POLL_SECONDS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			pollSeconds = parsed
		}
	}

	var users []string
	if val := os.Getenv("CHATTER_USERS"); val != "" {
		for _, u := range strings.Split(val, ",") {
			if u = strings.TrimSpace(u); u != "" {
				users = append(users, u)
			}
		}
	}

	archivePath := os.Getenv("CHATTER_ARCHIVE_DB")
	if archivePath == "" && os.Getenv("CHATTER_ARCHIVE") == "true" {
		homeDir, _ := os.UserHomeDir()
		archivePath = filepath.Join(homeDir, ".chattergo", "archive.db")
	}

	cfg := &Config{
		Chatter: ChatterConfig{
			BaseURL: os.Getenv("CHATTER_BASE_URL"),
			Token:   os.Getenv("CHATTER_TOKEN"),
			Pass:    os.Getenv("CHATTER_PASS"),
			Retries: retries,
		},
		Session: SessionConfig{
			Users:         users,
			PollInterval:  time.Duration(pollSeconds) * time.Second,
			ArchiveDBPath: archivePath,
		},
		Debug: os.Getenv("CHATTER_DEBUG") == "true" || os.Getenv("DEBUG") == "true",
	}

	accounts, _ := LoadAccountsConfig(os.Getenv("CHATTER_ACCOUNTS_PATH"))
	if accounts != nil {
		cfg.applyAccounts(accounts, os.Getenv("CHATTER_ACCOUNT"))
	}

	return cfg
}

// applyAccounts fills unset fields from the accounts file. Environment
// variables always win.
func (c *Config) applyAccounts(accounts *AccountsConfig, name string) {
	if c.Chatter.BaseURL == "" {
		c.Chatter.BaseURL = accounts.BaseURL
	}

	account := accounts.Find(name)
	if account == nil {
		return
	}
	if c.Chatter.Token == "" && c.Chatter.Pass == "" {
		c.Chatter.Token = account.Token
		c.Chatter.Pass = account.Pass
	}
	if len(c.Session.Users) == 0 {
		c.Session.Users = account.Users
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Chatter.BaseURL == "" {
		return &ConfigError{Field: "CHATTER_BASE_URL", Message: "required"}
	}
	if c.Chatter.Token == "" && c.Chatter.Pass == "" {
		return &ConfigError{Field: "CHATTER_TOKEN/CHATTER_PASS", Message: "one is required"}
	}
	if c.Chatter.Token != "" && c.Chatter.Pass != "" {
		return &ConfigError{Field: "CHATTER_TOKEN/CHATTER_PASS", Message: "mutually exclusive"}
	}
	return nil
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
