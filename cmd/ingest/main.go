package main

import (
	"context"
	"fmt"
	"os"

	"attendance/internal/app"
	"attendance/internal/config"
	"attendance/internal/ingest"
	"attendance/internal/logging"
	"attendance/pkg/graceful"
	"attendance/pkg/kafkaclient"
)

func main() {
	config.LoadEnv()
	config.MustGetEnv("KAFKA_BROKERS")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Logging)

	ctx, cancel := graceful.Context(context.Background(), logger)
	defer cancel()

	rt, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialise backends", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	logger.Info("connecting to kafka",
		"brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.CheckinTopic, "group_id", cfg.Kafka.GroupID)
	consumer := kafkaclient.NewKafkaConsumer(cfg.Kafka.Brokers, cfg.Kafka.CheckinTopic, cfg.Kafka.GroupID, logger)
	consumer.StartConsuming(ctx)

	ingest.NewProcessor(consumer.NewIterator(), rt.Service, logger).Run(ctx)

	consumer.Stop()
	logger.Info("ingest finished, application exiting")
}
