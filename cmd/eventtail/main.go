// Command eventtail tails the usage event topic and prints aggregated
// totals at a fixed interval. Intended for ad-hoc observation of traffic.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"parasearch/internal/events"
	"parasearch/pkg/config"
	"parasearch/pkg/kafka"
	"parasearch/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	interval := flag.Duration("interval", 10*time.Second, "stats print interval")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup("parasearch-eventtail", cfg.Logging.Level, cfg.Logging.Format)

	if !cfg.Kafka.Enabled() {
		fmt.Fprintln(os.Stderr, "no kafka brokers configured")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agg := events.NewAggregator()
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.EventsTopic, agg.HandleMessage)
	defer consumer.Close()

	go func() {
		ticker := time.NewTicker(*interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				out, _ := json.Marshal(agg.Stats())
				fmt.Println(string(out))
			}
		}
	}()

	slog.Info("tailing events", "topic", cfg.Kafka.EventsTopic, "brokers", cfg.Kafka.Brokers)
	if err := consumer.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
		os.Exit(1)
	}

	out, _ := json.Marshal(agg.Stats())
	fmt.Println(string(out))
}
