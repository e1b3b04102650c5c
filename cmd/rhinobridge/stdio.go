package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"rhinobridge/mcpbridge"
	"rhinobridge/rhinoclient"
)

var stdioCmd = &cobra.Command{
	Use:   "stdio",
	Short: "Run the stdio front-end",
	Long: `Run the stdio front-end of the bridge.

One JSON-RPC message per line on stdin, one per line on stdout. This is the
transport desktop assistants launch as a subprocess. Logs go to stderr.`,
	RunE: runStdio,
}

func init() {
	rootCmd.AddCommand(stdioCmd)
}

func runStdio(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Close()

	table, err := mcpbridge.NewCapabilityTable()
	if err != nil {
		return err
	}

	client := rhinoclient.New(rhinoConfig(), logger)
	translator := mcpbridge.NewTranslator(client, table, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return mcpbridge.NewStdioServer(translator, logger).Run(ctx)
}
