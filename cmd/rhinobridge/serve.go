package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"rhinobridge/mcpbridge"
	"rhinobridge/rhinoclient"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the WebSocket front-end",
	Long: `Run the WebSocket front-end of the bridge.

Each WebSocket text frame carries one JSON-RPC message. Connections are
served concurrently; the single backend connection to Rhino is shared and
serialized.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("host", "127.0.0.1", "hostname to bind the MCP server to")
	serveCmd.Flags().Int("port", 5000, "port to bind the MCP server to")
	_ = viper.BindPFlag("serve.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("serve.port", serveCmd.Flags().Lookup("port"))
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
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

	server := mcpbridge.NewWSServer(mcpbridge.WSConfig{
		Host: viper.GetString("serve.host"),
		Port: viper.GetInt("serve.port"),
	}, translator, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return server.ListenAndServe(ctx)
}
