package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-avatar/internal/config"
	"github.com/teslashibe/go-avatar/internal/log"
)

// commandContext carries persistent flags and the lazily loaded config.
type commandContext struct {
	configFlag   string
	logLevelFlag string

	cfg      *config.Config
	cfgPath  string
	cfgFound bool
}

// config loads configuration once. Flag overrides are applied by callers.
func (c *commandContext) config() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, path, found, err := config.Load(c.configFlag)
	if err != nil {
		return nil, err
	}
	if c.logLevelFlag != "" {
		cfg.Log.Level = c.logLevelFlag
	}
	c.cfg, c.cfgPath, c.cfgFound = cfg, path, found
	return cfg, nil
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	root := &cobra.Command{
		Use:           "avatar",
		Short:         "Drive a 3D avatar from face tracking",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations["skipConfigLoad"] == "true" {
				log.InitWriter(os.Stderr, ctx.logLevelFlag)
				return nil
			}
			cfg, err := ctx.config()
			if err != nil {
				return err
			}
			log.InitWriter(os.Stderr, cfg.Log.Level)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVarP(&ctx.configFlag, "config", "c", "", "Configuration file path (default ./avatar.toml)")
	root.PersistentFlags().StringVar(&ctx.logLevelFlag, "log-level", "", "Log level: debug, info, warn, error")

	root.AddCommand(newRunCommand(ctx))
	root.AddCommand(newInspectCommand(ctx))
	root.AddCommand(newConfigCommand(ctx))
	return root
}
