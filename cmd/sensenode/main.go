// Command sensenode runs the sensing node: it polls the configured sensors,
// streams prioritised telemetry to the collector and keeps the hardware
// watchdog fed while acquisition is healthy.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"sensenode/errcode"
	"sensenode/logger"
	"sensenode/mailbox"
	"sensenode/metrics"
	"sensenode/services/config"
	"sensenode/services/hal"
	_ "sensenode/services/hal/linux"
	_ "sensenode/services/hal/sim"
	"sensenode/services/network"
	"sensenode/services/sensors"
	_ "sensenode/services/sensors/devices/all"
	"sensenode/services/supervisor"
	"sensenode/services/watchdog"
	"sensenode/types"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sensenode",
		Short: "Environmental sensing node",
		Long: `sensenode polls light, buttons, climate, CO2 and particulate sensors,
batches the results by priority and streams them to a collector.

Configuration starts from the embedded defaults for --board, then a
--config file, then SENSENODE_* environment variables (SENSENODE_NETWORK_ADDRESS),
then flags.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd.Flags())
		},
	}
	f := cmd.Flags()
	f.String("board", config.DefaultBoard, "board defaults ("+strings.Join(config.Boards(), ", ")+")")
	f.String("config", "", "YAML file layered over the board defaults")
	f.String("node", "", "node identity carried in every frame")
	f.String("network.address", "", "collector host:port")
	f.String("log.level", "", "debug, info, warn or error")
	f.String("log.format", "", "json or console")
	f.String("metrics.listen", "", "address for the Prometheus /metrics endpoint")

	cmd.AddCommand(&cobra.Command{
		Use:   "sensors",
		Short: "List supported sensor types and platforms",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "sensors:  ", strings.Join(sensors.Types(), " "))
			fmt.Fprintln(cmd.OutOrStdout(), "platforms:", strings.Join(hal.Platforms(), " "))
		},
	})
	return cmd
}

func run(ctx context.Context, flags *pflag.FlagSet) error {
	board, _ := flags.GetString("board")
	file, _ := flags.GetString("config")
	cfg, err := config.Load(config.Options{Board: board, File: file, Flags: flags})
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	log = log.With(zap.String(logger.FieldNode, cfg.Node))
	log.Info("starting", zap.String("board", board), zap.String("platform", cfg.Platform.Name))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	plat, err := hal.Open(cfg.Platform, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := plat.Close(); err != nil {
			log.Warn("platform close", zap.Error(err))
		}
	}()

	box := mailbox.New[types.Item](cfg.Mailbox.Capacity)
	pipe, err := sensors.Build(sensors.Options{
		Config:    cfg.Sensors,
		Platform:  plat,
		Publisher: box,
		Metrics:   m,
		Log:       log,
	})
	if err != nil {
		return err
	}
	tr, err := network.NewTransport(cfg.Network)
	if err != nil {
		return err
	}
	wd, err := plat.Watchdog()
	if err != nil {
		return err
	}

	sup := supervisor.New(supervisor.Options{
		Link:             network.New(cfg.Network, box, tr, m, log),
		Watchdog:         watchdog.New(cfg.Watchdog, wd, m, log),
		Acquisition:      pipe,
		Out:              box,
		Metrics:          m,
		Log:              log,
		DisarmOnShutdown: cfg.DisarmOnShutdown,
	})

	if cfg.Metrics.Listen != "" {
		mctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := m.Serve(mctx, cfg.Metrics.Listen, log); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("metrics endpoint stopped", zap.Error(err))
			}
		}()
	}

	err = sup.Run(ctx)
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		log.Info("stopped")
		return nil
	}
	log.Error("node stopped", zap.String(logger.FieldErrorCode, string(errcode.Of(err))), zap.Error(err))
	return err
}
