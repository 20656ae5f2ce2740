// Command crm-stub serves the CRM list API from a local SQL database for
// development and integration testing.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/crm-client/internal/config"
	"github.com/Sternrassler/crm-client/internal/store"
	"github.com/Sternrassler/crm-client/internal/stub"
	"github.com/Sternrassler/crm-client/pkg/logging"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configFile string
		debug      bool
		addr       string
		issueFor   string
		tokenTTL   time.Duration
	)

	cmd := &cobra.Command{
		Use:          "crm-stub",
		Short:        "Local CRM list backend",
		Version:      version,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if debug {
				cfg.Log.Level = string(logging.LevelDebug)
			}
			if addr != "" {
				cfg.Stub.Addr = addr
			}

			if issueFor != "" {
				return issueToken(cmd, cfg, issueFor, tokenTTL)
			}
			return serve(cmd.Context(), cfg, debug)
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "config file (default: ./config.yml or ./configs/config.yml)")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging and gin debug mode")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides stub.addr)")
	cmd.Flags().StringVar(&issueFor, "issue-token", "", "print a bearer token for this subject and exit")
	cmd.Flags().DurationVar(&tokenTTL, "token-ttl", 24*time.Hour, "lifetime of issued tokens")

	return cmd
}

func issueToken(cmd *cobra.Command, cfg config.Config, subject string, ttl time.Duration) error {
	if cfg.Stub.JWTSecret == "" {
		return fmt.Errorf("stub.jwt_secret is not set")
	}
	token, err := stub.IssueToken([]byte(cfg.Stub.JWTSecret), subject, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func serve(ctx context.Context, cfg config.Config, debug bool) error {
	logging.Setup(cfg.LoggingConfig(os.Stderr))
	logger := logging.NewLogger("crm-stub")

	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s, err := store.Open(ctx, cfg.Stub.DBDriver, cfg.Stub.DSN)
	if err != nil {
		return err
	}
	defer s.Close()

	logger.Info().
		Str("driver", cfg.Stub.DBDriver).
		Bool("auth", cfg.Stub.JWTSecret != "").
		Int("throttle", cfg.Stub.Throttle).
		Msg("Store ready")

	router := stub.NewRouter(s, stub.Config{
		JWTSecret:   cfg.Stub.JWTSecret,
		CORSOrigins: cfg.Stub.CORSOrigins,
		Throttle:    cfg.Stub.Throttle,
		Logger:      logger,
	})
	return stub.Serve(ctx, cfg.Stub.Addr, router, logger)
}
