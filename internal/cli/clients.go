package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/triage-ai/sqlgate/internal/auth"
	"github.com/triage-ai/sqlgate/internal/config"
)

// NewClientsCommand creates the clients command group for managing API
// keys in Postgres.
func NewClientsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clients",
		Short: "Manage gateway API clients (requires POSTGRES_DSN)",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the gateway_clients table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClientAdmin(cmd.Context(), rootOpts, func(ctx context.Context, admin *auth.ClientAdmin) error {
				if err := admin.EnsureSchema(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "gateway_clients ready")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Create a client and print its API key once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClientAdmin(cmd.Context(), rootOpts, func(ctx context.Context, admin *auth.ClientAdmin) error {
				c, key, err := admin.CreateClient(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "id:      %s\n", c.ID)
				fmt.Fprintf(out, "name:    %s\n", c.Name)
				fmt.Fprintf(out, "api key: %s\n", key)
				fmt.Fprintln(out, "Store the key now; it cannot be shown again.")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List clients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClientAdmin(cmd.Context(), rootOpts, func(ctx context.Context, admin *auth.ClientAdmin) error {
				clients, err := admin.ListClients(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tPREFIX\tCREATED\tSTATUS")
				for _, c := range clients {
					status := "active"
					if c.RevokedAt != nil {
						status = "revoked " + c.RevokedAt.Format(time.RFC3339)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
						c.ID, c.Name, c.KeyPrefix, c.CreatedAt.Format(time.RFC3339), status)
				}
				return tw.Flush()
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke a client's API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClientAdmin(cmd.Context(), rootOpts, func(ctx context.Context, admin *auth.ClientAdmin) error {
				if err := admin.RevokeClient(ctx, args[0]); err != nil {
					if errors.Is(err, sql.ErrNoRows) {
						return fmt.Errorf("no active client with id %s", args[0])
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
				return nil
			})
		},
	})

	return cmd
}

func withClientAdmin(ctx context.Context, rootOpts *RootOptions, fn func(context.Context, *auth.ClientAdmin) error) error {
	cfg, err := config.Load(rootOpts.ConfigPath)
	if err != nil {
		return err
	}
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN (or postgres_dsn in config) is required")
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	db, err := openPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(ctx, auth.NewClientAdmin(db))
}
