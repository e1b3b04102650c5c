// rhinobridge bridges AI assistants speaking JSON-RPC tool invocation
// (stdio or WebSocket) to a running Rhino instance reachable over the
// bridge TCP socket.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	loggerv2 "rhinobridge/logger/v2"
	"rhinobridge/rhinoclient"
)

var (
	logLevel  string
	logFormat string
	logFile   string
	debug     bool

	rhinoHost    string
	rhinoPort    int
	rhinoTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "rhinobridge",
	Short: "Bridge between AI assistants and Rhino",
	Long: `rhinobridge connects AI assistants to a running Rhino instance.

The assistant side speaks JSON-RPC tool invocation over stdio or WebSocket;
the Rhino side is the bridge TCP socket served by the Rhino plugin.

Examples:
  # stdio front-end for desktop assistants
  rhinobridge stdio

  # WebSocket front-end
  rhinobridge serve --port 5000

  # forward a stdio-only client to a running WebSocket front-end
  rhinobridge relay --url ws://127.0.0.1:5000

  # probe the Rhino bridge
  rhinobridge check`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also append logs to this file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.PersistentFlags().StringVar(&rhinoHost, "rhino-host", "127.0.0.1", "hostname of the Rhino bridge server")
	rootCmd.PersistentFlags().IntVar(&rhinoPort, "rhino-port", 8888, "port of the Rhino bridge server")
	rootCmd.PersistentFlags().DurationVar(&rhinoTimeout, "timeout", 30*time.Second, "timeout per backend call")

	for flag, key := range map[string]string{
		"log-level":  "log.level",
		"log-format": "log.format",
		"log-file":   "log.file",
		"rhino-host": "rhino.host",
		"rhino-port": "rhino.port",
		"timeout":    "rhino.timeout",
	} {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			// Viper binding is not critical; the flag value still applies.
			continue
		}
	}
}

func initConfig() {
	// .env is a convenience for desktop launchers that cannot set env vars.
	_ = godotenv.Load()

	viper.SetEnvPrefix("RHINOBRIDGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
}

// newLogger builds the process logger from the persistent flags. Logs go
// to stderr: stdout belongs to the protocol on the stdio and relay paths.
func newLogger() (loggerv2.Logger, error) {
	level := viper.GetString("log.level")
	if debug {
		level = "debug"
	}
	return loggerv2.New(loggerv2.Config{
		Level:    level,
		Format:   viper.GetString("log.format"),
		Output:   "stderr",
		FilePath: viper.GetString("log.file"),
	})
}

func rhinoConfig() rhinoclient.Config {
	return rhinoclient.Config{
		Host:    viper.GetString("rhino.host"),
		Port:    viper.GetInt("rhino.port"),
		Timeout: viper.GetDuration("rhino.timeout"),
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
