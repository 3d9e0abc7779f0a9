package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"fleetops/internal/client"
	"fleetops/internal/config"
)

var (
	cfg    config.Config
	logger *slog.Logger

	serverURL string
	token     string
	operator  string
	role      string
)

// Execute runs the root command. Interrupts cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "fleetctl",
		Short:         "Train fleet induction planning tools",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.Load(); err != nil {
				return err
			}
			logger = cfg.Log.Logger(os.Stderr)
			if serverURL != "" {
				cfg.Client.BaseURL = serverURL
			}
			if token != "" {
				cfg.Client.Token = token
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&serverURL, "server", "", "API base URL (default from config, http://localhost:8080)")
	root.PersistentFlags().StringVar(&token, "token", "", "bearer token for the API")
	root.PersistentFlags().StringVar(&operator, "operator", "", "operator name sent in dev auth mode")
	root.PersistentFlags().StringVar(&role, "role", "", "role sent in dev auth mode (viewer, planner, admin)")

	root.AddCommand(generateCmd(), importCmd(), optimizeCmd(), watchCmd(), dashCmd())
	return root
}

// apiClient builds a client from the loaded config and the auth flags.
func apiClient() *client.Client {
	c := client.New(cfg.Client)
	c.Operator = operator
	c.Role = strings.ToLower(role)
	return c
}
