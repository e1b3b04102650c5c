package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"rhinobridge/relay"
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Forward stdio to a running WebSocket front-end",
	Long: `Forward between this process's stdio and a running WebSocket
front-end, without inspecting traffic. Use this when the assistant can only
launch stdio subprocesses but the bridge runs as a WebSocket server.`,
	RunE: runRelay,
}

func init() {
	relayCmd.Flags().String("url", relay.DefaultConfig().URL, "WebSocket URL of the MCP server")
	_ = viper.BindPFlag("relay.url", relayCmd.Flags().Lookup("url"))
	rootCmd.AddCommand(relayCmd)
}

func runRelay(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return relay.Run(ctx, relay.Config{URL: viper.GetString("relay.url")}, os.Stdin, os.Stdout, logger)
}
