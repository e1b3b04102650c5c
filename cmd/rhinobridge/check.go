package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"rhinobridge/rhinoclient"
)

var checkRefresh bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Probe the Rhino bridge connection",
	Long: `Connect to the Rhino bridge, ping it, and print the reported
server info. With --refresh, also ask Rhino to redraw its viewport.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&checkRefresh, "refresh", false, "also refresh the Rhino viewport")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Close()

	client := rhinoclient.New(rhinoConfig(), logger)
	defer client.Disconnect()

	ctx := context.Background()
	if err := client.Connect(ctx); err != nil {
		return err
	}

	reply, err := client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	if !reply.IsSuccess() {
		return fmt.Errorf("ping rejected: %s", reply.Message)
	}

	fmt.Println("Connection successful! Server info:")
	keys := make([]string, 0, len(reply.Data))
	for k := range reply.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %s: %v\n", k, reply.Data[k])
	}

	if checkRefresh {
		if _, err := client.RefreshView(ctx); err != nil {
			return fmt.Errorf("refresh_view failed: %w", err)
		}
		fmt.Println("Viewport refreshed")
	}
	return nil
}
