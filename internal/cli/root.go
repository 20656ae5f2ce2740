// Package cli implements the crmctl command tree.
package cli

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/crm-client/internal/config"
	"github.com/Sternrassler/crm-client/pkg/client"
	"github.com/Sternrassler/crm-client/pkg/crm"
	"github.com/Sternrassler/crm-client/pkg/logging"
)

// app holds what the persistent pre-run resolves for every subcommand.
type app struct {
	configFile string
	debug      bool
	baseURL    string
	token      string

	cfg    config.Config
	logger zerolog.Logger
}

// NewRootCmd creates the crmctl root command.
func NewRootCmd(version string) *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:     "crmctl",
		Short:   "Browse and export CRM lists",
		Long:    "crmctl lists, exports and interactively browses CRM blogs, customers and property owners.",
		Version: version,
		Example: rootCmdExample,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&a.configFile, "config", "", "config file (default: ./config.yml or ./configs/config.yml)")
	cmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&a.baseURL, "base-url", "", "backend API base URL (overrides api.base_url)")
	cmd.PersistentFlags().StringVar(&a.token, "token", "", "bearer token (overrides api.token)")

	for _, name := range crm.Names() {
		cmd.AddCommand(newEntityCmd(a, name))
	}
	return cmd
}

const rootCmdExample = `  # First page of customers in a city
  crmctl customers list --city 3

  # Search owners and print YAML
  crmctl owners list --q haddad -o yaml

  # Export every published blog post as JSON
  crmctl blogs export --status published -o json > blogs.json

  # Browse customers interactively
  crmctl customers browse`

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	if a.baseURL != "" {
		cfg.API.BaseURL = a.baseURL
	}
	if a.token != "" {
		cfg.API.Token = a.token
	}
	if a.debug {
		cfg.Log.Level = string(logging.LevelDebug)
	}
	a.cfg = cfg

	logging.Setup(cfg.LoggingConfig(cmd.ErrOrStderr()))
	a.logger = logging.NewLogger("crmctl")
	return nil
}

// newClient builds the backend client. The returned cleanup closes the
// client and the optional Redis connection.
func (a *app) newClient() (*client.Client, func(), error) {
	var rdb *redis.Client
	if rdb = a.cfg.RedisClient(); rdb != nil {
		a.logger.Debug().Str("addr", a.cfg.Redis.Addr).Msg("Using Redis for cache and throttle tracking")
	}

	c, err := client.New(a.cfg.ClientConfig(rdb))
	if err != nil {
		if rdb != nil {
			rdb.Close()
		}
		return nil, nil, fmt.Errorf("create client: %w", err)
	}

	return c, func() {
		c.Close()
		if rdb != nil {
			rdb.Close()
		}
	}, nil
}

func (a *app) controllerOptions() []crm.Option {
	return []crm.Option{
		crm.WithPerPage(a.cfg.List.PerPage),
		crm.WithDebounce(a.cfg.List.Debounce),
		crm.WithLanguage(a.cfg.Language()),
		crm.WithLogger(a.logger),
	}
}
