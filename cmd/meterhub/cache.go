package main

import (
	"fmt"

	"github.com/kanna-karuppasamy/smart-grid-meter-hierarchy/internal/models"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or reset the ingestion cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [source-type]",
	Short: "Forget ingested files so the next fetch picks them up again",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var source models.SourceType
		if len(args) == 1 {
			source = models.SourceType(args[0])
		}
		c, err := openCache(cfg.Cache)
		if err != nil {
			return err
		}
		defer c.Close()

		n, err := c.Clear(cmd.Context(), source)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cleared %d entries\n", n)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
