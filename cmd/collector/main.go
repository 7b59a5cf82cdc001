// Command collector receives node telemetry and forwards it to MQTT and
// Kafka as JSON.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sensenode/logger"
	"sensenode/metrics"
	"sensenode/services/collector"
	"sensenode/services/config"
	"sensenode/services/forward"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "collector",
		Short:        "Receive sensenode telemetry and forward it downstream",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd.Flags())
		},
	}
	f := cmd.Flags()
	f.String("config", "", "YAML file layered over the defaults")
	f.String("listen", "", "address nodes connect to")
	f.String("log.level", "", "debug, info, warn or error")
	f.String("metrics.listen", "", "address for the Prometheus /metrics endpoint")
	f.String("mqtt.broker", "", "MQTT broker URL; empty disables MQTT")
	f.StringSlice("kafka.brokers", nil, "Kafka brokers; empty disables Kafka")
	f.String("kafka.topic", "", "Kafka topic")
	return cmd
}

func run(ctx context.Context, flags *pflag.FlagSet) error {
	file, _ := flags.GetString("config")
	cfg, err := config.LoadCollector(config.Options{File: file, Flags: flags})
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	var sinks []collector.Sink
	if cfg.MQTT.Enabled() {
		mq, err := forward.DialMQTT(cfg.MQTT, log)
		if err != nil {
			return err
		}
		defer mq.Close()
		sinks = append(sinks, mq)
	}
	if cfg.Kafka.Enabled() {
		k := forward.NewKafka(cfg.Kafka)
		defer func() {
			if err := k.Close(); err != nil {
				log.Warn("kafka close", zap.Error(err))
			}
		}()
		sinks = append(sinks, k)
	}
	if len(sinks) == 0 {
		log.Warn("no sinks configured, frames are only logged")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return collector.New(cfg.Server, sinks, m, log).Run(gctx) })
	if cfg.Metrics.Listen != "" {
		g.Go(func() error { return m.Serve(gctx, cfg.Metrics.Listen, log) })
	}
	err = g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		log.Info("stopped")
		return nil
	}
	return err
}
