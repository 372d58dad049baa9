// gateway is the HTTP front of the completion gateway.
// It accepts POST /api/chat from chat sessions, dispatches to the selected
// provider adapter, publishes completion events to RabbitMQ when AMQP_URL is
// set, and relays those events to browsers over WebSocket.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/forge-ai/uigen/internal/api"
	"github.com/forge-ai/uigen/internal/config"
	"github.com/forge-ai/uigen/internal/credstore"
	"github.com/forge-ai/uigen/internal/llm"
	"github.com/forge-ai/uigen/shared/events"
	"github.com/forge-ai/uigen/shared/mq"
)

var (
	envFile string
	port    string
	origin  string
)

// Without a subcommand the gateway serves.
var rootCmd = &cobra.Command{
	Use:           "gateway",
	Short:         "Multi-provider UI component completion gateway",
	Args:          cobra.NoArgs,
	RunE:          runServe,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP gateway",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List configured providers and models",
	Args:  cobra.NoArgs,
	RunE:  runProviders,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load")
	for _, f := range []*pflag.FlagSet{rootCmd.Flags(), serveCmd.Flags()} {
		f.StringVar(&port, "port", "", "listen port (overrides PORT)")
		f.StringVar(&origin, "origin", "", "allowed CORS origin (overrides ALLOWED_ORIGIN)")
	}
	rootCmd.AddCommand(serveCmd, providersCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("gateway exited")
	}
}

func setup() config.Config {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	_ = godotenv.Load(envFile)

	cfg := config.ConfigFromEnv()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if port != "" {
		cfg.Port = port
	}
	if origin != "" {
		cfg.AllowedOrigin = origin
	}
	return cfg
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := setup()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := credstore.New(cfg.CredentialsFile)
	if err != nil {
		return err
	}
	reg, err := cfg.Registry()
	if err != nil {
		return fmt.Errorf("build registry: %w", err)
	}

	hub := api.NewHub(cfg.AllowedOrigin)
	var publisher events.Publisher = hub
	var broker *mq.Broker
	if cfg.AMQPURL != "" {
		broker, err = mq.New(cfg.AMQPURL, cfg.AMQPAttempts)
		if err != nil {
			return fmt.Errorf("mq connect: %w", err)
		}
		defer broker.Close()
		// the relay feeds the hub from the exchange
		publisher = broker
	}

	instr, err := cfg.Instruction()
	if err != nil {
		return err
	}
	gw := llm.New(reg, store, llm.WithPublisher(publisher), llm.WithInstruction(instr))
	srv := api.NewServer(gw, hub,
		api.WithAddr(":"+cfg.Port),
		api.WithAllowedOrigin(cfg.AllowedOrigin),
		api.WithServerCredentials(store),
		api.WithBroker(broker),
		api.WithWriteTimeout(cfg.StreamTimeout+cfg.Timeout),
	)

	for _, p := range reg.List() {
		_, configured := store.Credential(p.ID)
		log.Info().
			Str("provider", string(p.ID)).
			Str("default_model", p.DefaultModel).
			Bool("key", configured).
			Bool("disabled", cfg.Disabled[p.ID]).
			Msg("provider ready")
	}
	log.Info().
		Str("port", cfg.Port).
		Bool("amqp", broker != nil).
		Dur("timeout", cfg.Timeout).
		Msg("gateway online")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })
	g.Go(func() error { return store.Watch(ctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("gateway stopped")
	return nil
}

func runProviders(cmd *cobra.Command, args []string) error {
	cfg := setup()
	store, err := credstore.New(cfg.CredentialsFile)
	if err != nil {
		return err
	}
	reg, err := cfg.Registry()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, p := range reg.List() {
		_, configured := store.Credential(p.ID)
		status := "ready"
		switch {
		case cfg.Disabled[p.ID]:
			status = "disabled"
		case !configured:
			status = "no key"
		}
		fmt.Fprintf(out, "%-10s %-8s default=%s models=%v\n", p.ID, status, p.DefaultModel, p.Models)
	}
	return nil
}
