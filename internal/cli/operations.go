package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/triage-ai/sqlgate/internal/catalog"
	"github.com/triage-ai/sqlgate/internal/config"
	"github.com/triage-ai/sqlgate/internal/policy"
)

// NewOperationsCommand creates the operations command.
func NewOperationsCommand(rootOpts *RootOptions) *cobra.Command {
	remote := &remoteOptions{}

	cmd := &cobra.Command{
		Use:   "operations",
		Short: "Print the advertised operations as JSON",
		Long: `Print the operations a caller would see, with their input schemas.

Without --addr the list is computed from local configuration and no
database connection is made.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var descriptors []catalog.Descriptor

			if remote.remote() {
				client, ctx, cleanup, err := remote.dial(cmd.Context())
				if err != nil {
					return err
				}
				defer cleanup()
				if descriptors, err = client.ListOperations(ctx); err != nil {
					return fmt.Errorf("list operations: %w", err)
				}
			} else {
				cfg, err := config.Load(rootOpts.ConfigPath)
				if err != nil {
					return err
				}
				cat, err := catalog.New()
				if err != nil {
					return err
				}
				descriptors = cat.Descriptors(policy.New(cfg.ReadOnly))
			}

			out, err := json.MarshalIndent(map[string]any{"operations": descriptors}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	remote.register(cmd)
	return cmd
}
