package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is the entityq configuration from entityq.yaml, ENTITYQ_* variables and flags.
type Config struct {
	Model    string `mapstructure:"model"`
	LogLevel string `mapstructure:"log_level"`
	Format   string `mapstructure:"format"`
	Color    bool   `mapstructure:"color"`
	MaxDepth int    `mapstructure:"max_depth"`
}

// configFlags maps configuration keys to the flags that override them.
var configFlags = map[string]string{
	"model":     "model",
	"log_level": "log-level",
	"format":    "format",
	"color":     "color",
	"max_depth": "max-depth",
}

// LoadConfig loads configuration with the precedence flags > env > config file > defaults.
// cmd supplies the flags; it may be nil. Returns the config and the path of the config file
// that was read (empty if none was found).
func LoadConfig(explicitConfigPath string, cmd *cobra.Command) (*Config, string, error) {
	v := viper.New()

	v.SetDefault("model", "")
	v.SetDefault("log_level", "warn")
	v.SetDefault("format", "text")
	v.SetDefault("color", true)
	v.SetDefault("max_depth", 0)

	v.SetEnvPrefix("ENTITYQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if cmd != nil {
		for key, name := range configFlags {
			flag := cmd.Flags().Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, "", fmt.Errorf("binding flag %s: %w", name, err)
			}
		}
	}

	configPath, err := findConfigFile(explicitConfigPath)
	if err != nil {
		return nil, "", err
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, configPath, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, configPath, fmt.Errorf("unmarshaling config: %w", err)
	}
	if !isValidFormat(cfg.Format) {
		return nil, configPath, fmt.Errorf("invalid format %q: must be one of %v", cfg.Format, ValidFormats)
	}
	if cfg.MaxDepth < 0 {
		return nil, configPath, fmt.Errorf("max_depth must not be negative, got %d", cfg.MaxDepth)
	}

	// Relative model paths in a config file are relative to that file.
	if configPath != "" && cfg.Model != "" && !filepath.IsAbs(cfg.Model) && !modelFromFlag(cmd) {
		cfg.Model = filepath.Join(filepath.Dir(configPath), cfg.Model)
	}

	return &cfg, configPath, nil
}

func modelFromFlag(cmd *cobra.Command) bool {
	if cmd == nil {
		return false
	}
	flag := cmd.Flags().Lookup("model")
	return flag != nil && flag.Changed
}

// findConfigFile returns explicitPath if it exists, or entityq.yaml / entityq.yml in the
// working directory. An empty path means no config file.
func findConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting cwd: %w", err)
	}
	for _, name := range []string{"entityq.yaml", "entityq.yml"} {
		path := filepath.Join(cwd, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", nil
}

// newLogger builds the diagnostic logger. JSON output gets JSON logs.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
