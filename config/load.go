package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/cordate/datastore/errors"
)

var (
	globalConfig  *Config
	viperInstance *viper.Viper
)

// Load reads the datastore configuration. The result is cached; call Reset
// to force a reload.
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	var config Config
	if err := initViper().Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	globalConfig = &config
	return globalConfig, nil
}

// LoadFromFile loads configuration from a specific file, bypassing the
// search path and the cache.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "read config file %s", path)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrapf(err, "unmarshal config from %s", path)
	}
	return &config, nil
}

// GetViper returns the viper instance for advanced configuration access.
func GetViper() *viper.Viper {
	return initViper()
}

// Reset clears the cached configuration. Useful for testing.
func Reset() {
	globalConfig = nil
	viperInstance = nil
}

// SetDefaults configures default values for every configuration option.
// Registering a default also makes the key visible to environment overrides.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "datastore.db")
	v.SetDefault("export.dir", ".")
	v.SetDefault("export.delimiter", ",")
	v.SetDefault("actor.key", "")
	v.SetDefault("log.json", false)
}

func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()
	v.SetEnvPrefix("DATASTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	mergeConfigFiles(v)

	viperInstance = v
	return v
}

// mergeConfigFiles merges config files lowest to highest precedence: the
// user config under the home directory, then a project-local datastore.toml.
func mergeConfigFiles(v *viper.Viper) {
	var paths []string
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".datastore", "config.toml"))
	}
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, "datastore.toml"))
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		file := viper.New()
		file.SetConfigFile(path)
		file.SetConfigType("toml")
		if err := file.ReadInConfig(); err != nil {
			continue
		}
		// MergeConfigMap keeps env vars above file values
		v.MergeConfigMap(file.AllSettings())
	}
}
