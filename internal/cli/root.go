package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags and the configuration resolved before a subcommand runs.
type RootOptions struct {
	ConfigPath string

	Config *Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the entityq CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "entityq",
		Short: "Rewrite entity comparisons in query documents",
		Long: `entityq loads a YAML query document and a YAML model document and shows how
entity comparisons in the query are lowered to primary-key comparisons.

Settings are read from flags, ENTITYQ_* environment variables and entityq.yaml.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := LoadConfig(opts.ConfigPath, cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.Format)
			if err != nil {
				return err
			}
			if path != "" {
				logger.Debug("Loaded config file", "path", path)
			}
			opts.Config = cfg
			opts.Logger = logger
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.ConfigPath, "config", "", "config file (default: ./entityq.yaml)")
	flags.StringP("model", "m", "", "YAML model document")
	flags.String("log-level", "warn", "log level (debug|info|warn|error)")
	flags.String("format", "text", "output format (json|text)")
	flags.Bool("color", true, "colour text output when the terminal supports it")
	flags.Int("max-depth", 0, "maximum query tree depth (0 uses the default)")

	cmd.AddCommand(NewRewriteCommand(opts))
	cmd.AddCommand(NewModelCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func requireModel(opts *RootOptions) (string, error) {
	if opts.Config == nil || opts.Config.Model == "" {
		return "", fmt.Errorf("no model document: pass --model or set model in entityq.yaml")
	}
	return opts.Config.Model, nil
}
