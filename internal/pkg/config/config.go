// Package config loads spendgate configuration from a YAML file and
// SPENDGATE_-prefixed environment variables. Environment values win.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/promptmeter/spendgate/internal/spendlogs"
)

// envPrefix namespaces spendgate environment variables.
const envPrefix = "SPENDGATE_"

// storePromptsEnvVar is the secret-store override for the store-prompts
// policy. It can only turn the policy on: the effective policy is the OR
// of the config flag and this variable.
const storePromptsEnvVar = "SPENDGATE_STORE_PROMPTS_IN_SPEND_LOGS"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Storage   StorageConfig   `koanf:"storage"`
	SpendLogs SpendLogsConfig `koanf:"spend_logs"`
	Rollup    RollupConfig    `koanf:"rollup"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

type StorageConfig struct {
	// Driver selects the database dialect: sqlite, postgres, mysql
	Driver string `koanf:"driver"`
	// DSN is the data source name / connection string
	DSN string `koanf:"dsn"`
}

type SpendLogsConfig struct {
	// MasterKey is the gateway master credential, used only to classify
	// presented keys. Empty disables classification.
	MasterKey string `koanf:"master_key"`
	// DisableMasterKeyStorage stores a fixed alias instead of the master
	// key's hash.
	DisableMasterKeyStorage bool `koanf:"disable_master_key_storage"`
	// StorePromptsInSpendLogs gates storage of request/response bodies.
	StorePromptsInSpendLogs bool `koanf:"store_prompts_in_spend_logs"`
}

type RollupConfig struct {
	// Schedule is a cron expression for the daily spend rollup job.
	// Empty disables the job.
	Schedule string `koanf:"schedule"`
}

type TelemetryConfig struct {
	Enabled bool `koanf:"enabled"`
}

// Load reads configuration from path (optional) and the environment.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, err
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	// Default values
	if !k.Exists("server.port") {
		k.Set("server.port", 8080)
	}
	if !k.Exists("storage.driver") {
		k.Set("storage.driver", "sqlite")
	}
	if !k.Exists("storage.dsn") {
		k.Set("storage.dsn", "./data/spendgate.db")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// BuilderSettings derives the spend log builder settings, combining the
// config store-prompts flag with the secret-store override: either one
// being true enables body storage.
func (c *Config) BuilderSettings() spendlogs.Settings {
	return spendlogs.Settings{
		MasterKey:               c.SpendLogs.MasterKey,
		DisableMasterKeyStorage: c.SpendLogs.DisableMasterKeyStorage,
		StorePromptsInSpendLogs: c.SpendLogs.StorePromptsInSpendLogs || envBool(storePromptsEnvVar),
	}
}

func envBool(name string) bool {
	v, err := strconv.ParseBool(os.Getenv(name))
	return err == nil && v
}
