package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ravi-parthasarathy/fidi/pkg/config"
	"github.com/ravi-parthasarathy/fidi/pkg/logging"
	"github.com/ravi-parthasarathy/fidi/pkg/server"
)

const version = "1.0.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		cfgPath string
		port    uint16
		logDir  string
		logFile string
	)

	root := &cobra.Command{
		Use:   "fidi",
		Short: "fidi — service mock node",
		Long: `Fidi mocks a single node of an arbitrarily complex distributed service.

Each inbound request describes both the response this node should give and
the downstream calls it should fan out to peer fidi instances, so a set of
instances reproduces the topology, latency, and error envelope of a real
service without any business logic.`,
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Default()
			if cfgPath != "" {
				loaded, err := config.Load(cfgPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			// Flags given on the command line win over the config file.
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("log-dir") {
				cfg.LogDir = logDir
			}
			if cmd.Flags().Changed("log-file") {
				cfg.LogFile = logFile
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, closeLog, err := logging.New(cfg.LogDir, cfg.LogFile)
			if err != nil {
				return err
			}
			defer func() { _ = closeLog() }()

			ctx := signalContext(cmd.Context())
			return server.New(cfg, logger).Run(ctx)
		},
	}

	root.Flags().Uint16VarP(&port, "port", "p", 9001, "local port to listen on")
	root.Flags().StringVarP(&logDir, "log-dir", "d", ".", "directory the log file is written to")
	root.Flags().StringVarP(&logFile, "log-file", "f", "fidi_server.log", "log file name")
	root.Flags().StringVarP(&cfgPath, "config", "c", "", "optional YAML configuration file")
	root.Flags().BoolP("version", "v", false, "display version number")
	return root
}

// signalContext cancels the returned context on SIGINT or SIGTERM.
func signalContext(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx
}
