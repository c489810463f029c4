package conf

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// AccountsConfig is the optional YAML accounts file shared by the cmd
// tools: the server base URL plus one credential set per named account.
type AccountsConfig struct {
	BaseURL  string    `yaml:"base_url"`
	Accounts []Account `yaml:"accounts"`
}

// Account is one credential set. Token and Pass are mutually exclusive.
type Account struct {
	Name  string   `yaml:"name"`
	Token string   `yaml:"token,omitempty"`
	Pass  string   `yaml:"pass,omitempty"`
	Users []string `yaml:"users,omitempty"`
}

// Find returns the account with the given name, the first account when name
// is empty, or nil.
func (c *AccountsConfig) Find(name string) *Account {
	if len(c.Accounts) == 0 {
		return nil
	}
	if name == "" {
		return &c.Accounts[0]
	}
	for i := range c.Accounts {
		if c.Accounts[i].Name == name {
			return &c.Accounts[i]
		}
	}
	return nil
}

// LoadAccountsConfig loads the accounts file from configPath, or from the
// usual locations when configPath is empty.
func LoadAccountsConfig(configPath string) (*AccountsConfig, error) {
	paths := []string{configPath}
	if configPath == "" {
		paths = []string{
			"configs/accounts.yaml",
			"./accounts.yaml",
		}
		if homeDir, err := os.UserHomeDir(); err == nil {
			paths = append(paths, filepath.Join(homeDir, ".chattergo", "accounts.yaml"))
		}
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var cfg AccountsConfig
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse accounts config %s: %w", path, err)
		}
		return &cfg, nil
	}
	return nil, fmt.Errorf("no accounts config found")
}
