package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix               = "MYBRANCH"
	defaultHTTPAddress      = "0.0.0.0:8080"
	defaultLogLevel         = "info"
	defaultTrunkBranch      = "main"
	defaultRootIdentity     = "MFDOGE"
	defaultBudgetPerMinute  = 600
	defaultStatsConcurrency = 16
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress      string
	LogLevel         string
	GitHubOwner      string
	GitHubRepo       string
	GitHubToken      string
	TrunkBranch      string
	RootIdentity     string
	BudgetPerMinute  int
	StatsConcurrency int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("github.trunk", defaultTrunkBranch)
	configViper.SetDefault("root.identity", defaultRootIdentity)
	configViper.SetDefault("github.budget_per_minute", defaultBudgetPerMinute)
	configViper.SetDefault("stats.concurrency", defaultStatsConcurrency)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:      configViper.GetString("http.address"),
		LogLevel:         configViper.GetString("log.level"),
		GitHubOwner:      configViper.GetString("github.owner"),
		GitHubRepo:       configViper.GetString("github.repo"),
		GitHubToken:      configViper.GetString("github.token"),
		TrunkBranch:      configViper.GetString("github.trunk"),
		RootIdentity:     configViper.GetString("root.identity"),
		BudgetPerMinute:  configViper.GetInt("github.budget_per_minute"),
		StatsConcurrency: configViper.GetInt("stats.concurrency"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.GitHubOwner) == "" {
		return fmt.Errorf("github.owner is required")
	}
	if strings.TrimSpace(c.GitHubRepo) == "" {
		return fmt.Errorf("github.repo is required")
	}
	if strings.TrimSpace(c.RootIdentity) == "" {
		return fmt.Errorf("root.identity is required")
	}
	if strings.TrimSpace(c.TrunkBranch) == "" {
		return fmt.Errorf("github.trunk is required")
	}
	if c.BudgetPerMinute <= 0 {
		return fmt.Errorf("github.budget_per_minute must be positive")
	}
	if c.StatsConcurrency <= 0 {
		return fmt.Errorf("stats.concurrency must be positive")
	}
	return nil
}
