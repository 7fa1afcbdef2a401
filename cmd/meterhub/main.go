package main

import (
	"os"

	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfg    *config.Config
	logger = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:           "meterhub",
	Short:         "Ingest remote meter readings and rebuild site meter hierarchies",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger.SetLevel(level)
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.WithError(err).Error("meterhub failed")
		os.Exit(1)
	}
}
