package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/triage-ai/sqlgate/internal/server"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// remoteOptions select a running gateway instead of the local database.
type remoteOptions struct {
	Addr    string
	APIKey  string
	Timeout time.Duration
}

func (o *remoteOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Addr, "addr", "", "gRPC address of a running gateway (default: run locally)")
	cmd.Flags().StringVar(&o.APIKey, "api-key", "", "sgk_ API key for --addr (default $SQLGATE_API_KEY)")
	cmd.Flags().DurationVar(&o.Timeout, "timeout", 60*time.Second, "deadline for a remote call")
}

func (o *remoteOptions) remote() bool {
	return o.Addr != ""
}

// dial connects to the gateway and returns a context carrying the
// bearer key. The caller must call the returned cleanup.
func (o *remoteOptions) dial(ctx context.Context) (*server.GatewayClient, context.Context, func(), error) {
	key := o.APIKey
	if key == "" {
		key = envOrEmpty("SQLGATE_API_KEY")
	}
	if key == "" {
		return nil, nil, nil, fmt.Errorf("--api-key or SQLGATE_API_KEY is required with --addr")
	}

	cc, err := grpc.NewClient(o.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("dial %s: %w", o.Addr, err)
	}

	ctx, cancel := context.WithTimeout(ctx, o.Timeout)
	ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+key)
	cleanup := func() {
		cancel()
		_ = cc.Close()
	}
	return server.NewGatewayClient(cc), ctx, cleanup, nil
}
