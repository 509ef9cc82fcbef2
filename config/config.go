// Package config loads the datastore configuration with viper. Precedence,
// lowest to highest: built-in defaults, the user config file
// (~/.datastore/config.toml), a project-local datastore.toml, then
// DATASTORE_* environment variables.
package config

// Config is the datastore configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Export   ExportConfig   `mapstructure:"export"`
	Actor    ActorConfig    `mapstructure:"actor"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig configures the SQLite database.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ExportConfig configures the CSV export command.
type ExportConfig struct {
	// Dir is the directory report and codebook files are written to.
	Dir string `mapstructure:"dir"`
	// Delimiter is the CSV delimiter, a single character.
	Delimiter string `mapstructure:"delimiter"`
}

// ActorConfig binds the user key blamed for mutations made through the CLI.
type ActorConfig struct {
	Key string `mapstructure:"key"`
}

// LogConfig configures logger output.
type LogConfig struct {
	JSON bool `mapstructure:"json"`
}

// DelimiterRune returns the configured export delimiter as a rune, falling
// back to comma when unset or not a single character.
func DelimiterRune(c *Config) rune {
	runes := []rune(c.Export.Delimiter)
	if len(runes) != 1 {
		return ','
	}
	return runes[0]
}
