// Package config loads k9db's process-level settings from environment
// variables (with config-file and default fallbacks), the way
// other_examples' kubevirt-shepherd internal/config package binds
// github.com/spf13/viper to a typed struct.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is k9db's root configuration, bound to the K9DB_* environment
// variables spec.md section 5 names: the dataflow partition count, whether
// writes default to consistent (blocking) mode, the database's name, its
// on-disk data directory, and whether row values are AES-256-GCM encrypted
// or left in the clear (the Noop crypto.Encryptor, for tests and the
// documented no-encryption deployment mode).
type Config struct {
	Workers    int    `mapstructure:"workers"`
	Consistent bool   `mapstructure:"consistent"`
	DBName     string `mapstructure:"db_name"`
	DataDir    string `mapstructure:"data_dir"`
	Encryption bool   `mapstructure:"encryption"`
}

// InMemoryDataDir is the sentinel data_dir value (along with the empty
// string) that selects kvstore's in-memory Store instead of opening a
// PebbleStore on disk — the documented no-durability mode tests and quick
// experiments use.
const InMemoryDataDir = ":memory:"

// UseMemoryStore reports whether c selects the in-memory backend rather
// than a PebbleStore rooted at DataDir/DBName.
func (c *Config) UseMemoryStore() bool {
	return c.DataDir == "" || c.DataDir == InMemoryDataDir
}

// Load reads Config from (in increasing precedence) built-in defaults, an
// optional config.yaml, and K9DB_-prefixed environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/k9db")

	v.SetEnvPrefix("K9DB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// Validate rejects settings the engine cannot start with.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("config: workers must be >= 1, got %d", c.Workers)
	}
	if c.DBName == "" {
		return fmt.Errorf("config: db_name must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir must not be empty")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("workers", 3)
	v.SetDefault("consistent", true)
	v.SetDefault("db_name", "k9db")
	v.SetDefault("data_dir", "./k9db-data")
	v.SetDefault("encryption", true)
}
