package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/kafka"
	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/processor"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Consume fetch requests from Kafka and refresh the requested selections",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := wire(cfg, cfg.Kafka.PublishEvents)
		if err != nil {
			return err
		}
		// Closed explicitly after the consumers and workers have stopped.

		proc := processor.NewProcessor(a.engine, a.influx, cfg.Processor, logger)

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		var wg sync.WaitGroup
		consumers := make([]*kafka.Consumer, 0, cfg.Kafka.ConsumerCount)
		logger.Infof("Starting %d Kafka consumers...", cfg.Kafka.ConsumerCount)

		for i := 0; i < cfg.Kafka.ConsumerCount; i++ {
			c, err := kafka.NewConsumer(fmt.Sprintf("consumer-%d", i), cfg.Kafka, proc.ProcessRequests, logger)
			if err != nil {
				cancel()
				wg.Wait()
				closeConsumers(consumers)
				proc.Abort()
				a.Close()
				return fmt.Errorf("create consumer %d: %w", i, err)
			}
			consumers = append(consumers, c)

			wg.Add(1)
			go func(c *kafka.Consumer, id int) {
				defer wg.Done()
				log := logger.WithField("consumer", id)
				log.Info("consumer started")
				if err := c.Consume(ctx); err != nil {
					log.WithError(err).Error("consumer stopped with error")
				}
				log.Info("consumer stopped")
			}(c, i)
		}

		select {
		case <-sigChan:
			logger.Info("Received termination signal. Shutting down...")
		case <-ctx.Done():
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		done := make(chan struct{})
		go func() {
			wg.Wait()
			closeConsumers(consumers)
			proc.Stop()
			close(done)
		}()

		select {
		case <-done:
			logger.Info("All consumers and workers stopped")
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timed out, forcing exit")
		}

		a.Close()
		logger.Info("Shutdown complete.")
		return nil
	},
}

func closeConsumers(consumers []*kafka.Consumer) {
	for _, c := range consumers {
		if err := c.Close(); err != nil {
			logger.WithError(err).Warn("leaving consumer group failed")
		}
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
