package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"playrelay/internal/config"
	"playrelay/internal/engine"
	"playrelay/internal/logging"
	"playrelay/internal/transport"

	_ "playrelay/sink/memory"
	_ "playrelay/sink/mongo"
	_ "playrelay/sink/postgres"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "playrelay",
	Short: "Relay the currently playing track through Kafka into a document store",
	Long: `playrelay runs one side of the relay per process:

  produce  polls the Spotify player and publishes each track, keyed by track id
  consume  stores relayed tracks and commits offsets once the store acknowledged

Settings come from --config (YAML) and PLAYRELAY__SECTION__KEY variables.`,
	SilenceUsage: true,
}

var produceCmd = &cobra.Command{
	Use:   "produce",
	Short: "Poll the session API and publish playback events",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := load("producer")
		if err != nil {
			return err
		}
		return engine.RunProducer(cmd.Context(), cfg)
	},
}

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Store relayed playback events with at-least-once delivery",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := load("consumer")
		if err != nil {
			return err
		}
		return engine.RunConsumer(cmd.Context(), cfg)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return config.Dump(cmd.OutOrStdout(), cfg)
	},
}

var healthCmd = &cobra.Command{
	Use:   "health [addr]",
	Short: "Query a running relay's gRPC health service",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		addr := cfg.Telemetry.HealthAddr
		if len(args) == 1 {
			addr = args[0]
		}
		if addr == "" {
			return fmt.Errorf("no health address: pass one or set telemetry.health_addr")
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		// "" asks for the overall status of whichever loop is running there.
		st, err := transport.Check(ctx, addr, "")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), st.String())
		return nil
	},
}

func load(role string) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	logging.Configure(logging.FromEnv(logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON, Role: role}))
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yml", "path to the YAML config (optional)")
	rootCmd.AddCommand(produceCmd, consumeCmd, configCmd, healthCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
