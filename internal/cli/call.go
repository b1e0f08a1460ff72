package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/triage-ai/sqlgate/internal/config"
	"github.com/triage-ai/sqlgate/internal/dispatch"
	"google.golang.org/protobuf/types/known/structpb"
)

// errOperationFailed is returned after the failure text has been printed.
var errOperationFailed = errors.New("operation failed")

// NewCallCommand creates the call command.
func NewCallCommand(rootOpts *RootOptions) *cobra.Command {
	remote := &remoteOptions{}

	cmd := &cobra.Command{
		Use:   "call <operation> [arguments-json]",
		Short: "Run one operation and print its result",
		Long: `Run one operation and print its text result.

Arguments are a JSON object; omit them for operations that take none.
Without --addr the operation runs against the configured database.

Example:
  sqlgate call describe_table '{"tableName":"orders"}'
  sqlgate call list_table --addr localhost:50061 --api-key sgk_...`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			op := args[0]

			var arguments map[string]any
			if len(args) == 2 {
				var err error
				if arguments, err = dispatch.DecodeArguments([]byte(args[1])); err != nil {
					return err
				}
			}

			var res dispatch.Result
			if remote.remote() {
				client, ctx, cleanup, err := remote.dial(cmd.Context())
				if err != nil {
					return err
				}
				defer cleanup()
				// gRPC carries a Struct, so numbers travel as float64.
				in, err := structpb.NewStruct(arguments)
				if err != nil {
					return fmt.Errorf("encode arguments: %w", err)
				}
				if res, err = client.CallOperation(ctx, op, in); err != nil {
					return fmt.Errorf("call %s: %w", op, err)
				}
			} else {
				cfg, err := config.Load(rootOpts.ConfigPath)
				if err != nil {
					return err
				}
				logger, err := buildLogger(cfg.LogLevel, true)
				if err != nil {
					return err
				}
				defer logger.Sync() //nolint:errcheck // best-effort flush

				a, err := newApp(cfg, logger)
				if err != nil {
					return err
				}
				defer a.Close()

				res = a.dispatcher.Handle(cmd.Context(), dispatch.Call{
					Operation: op,
					Arguments: arguments,
					ClientID:  "cli:" + currentUser(),
					Transport: "cli",
				})
			}

			fmt.Fprintln(cmd.OutOrStdout(), res.Text)
			if res.IsError {
				return errOperationFailed
			}
			return nil
		},
	}

	remote.register(cmd)
	return cmd
}

func currentUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "local"
}

func envOrEmpty(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
