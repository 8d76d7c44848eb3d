package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-avatar/internal/config"
	"github.com/teslashibe/go-avatar/internal/log"
	"github.com/teslashibe/go-avatar/pkg/avatar"
)

type runFlags struct {
	source     string
	landmarker string
	signalling string
	model      string
	addr       string
	channel    string
	noWeb      bool
	detect     bool
	rate       float64
}

func (r *runFlags) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&r.source, "source", "", "Frame source: camera or webrtc")
	f.StringVar(&r.landmarker, "landmarker", "", "Landmarker websocket URL")
	f.StringVar(&r.signalling, "signalling", "", "WebRTC signalling URL")
	f.StringVar(&r.model, "model", "", "Avatar GLB path")
	f.StringVar(&r.addr, "addr", "", "Status and stream listen address")
	f.StringVar(&r.channel, "channel", "", "Channel name (generated when empty)")
	f.BoolVar(&r.noWeb, "no-web", false, "Disable the status and stream server")
	f.BoolVar(&r.detect, "detect", false, "Gate inference on a local face detector")
	f.Float64Var(&r.rate, "rate", 0, "Display refresh rate in Hz")
}

// apply copies explicitly set flags over cfg.
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	set := cmd.Flags().Changed
	if set("source") {
		cfg.Camera.Source = f.source
	}
	if set("landmarker") {
		cfg.Landmarker.URL = f.landmarker
	}
	if set("signalling") {
		cfg.WebRTC.SignallingURL = f.signalling
	}
	if set("model") {
		cfg.Model.Path = f.model
	}
	if set("addr") {
		cfg.Web.Addr = f.addr
	}
	if set("channel") {
		cfg.Session.Channel = f.channel
	}
	if set("no-web") {
		cfg.Web.Enabled = !f.noWeb
	}
	if set("detect") {
		cfg.Detection.Enabled = f.detect
	}
	if set("rate") {
		cfg.Display.Rate = f.rate
	}
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Join a channel and animate the avatar until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.config()
			if err != nil {
				return err
			}
			flags.apply(cmd, cfg)

			logger := log.Component("avatar")
			if ctx.cfgFound {
				logger.Info("loaded config", "path", ctx.cfgPath)
			}

			app, err := avatar.New(*cfg, avatar.WithLogger(logger))
			if err != nil {
				return err
			}
			// Init may open the camera or a landmarker before failing.
			defer app.Shutdown()
			if err := app.Init(); err != nil {
				return err
			}

			runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return app.Run(runCtx)
		},
	}

	flags.bind(cmd)
	return cmd
}
