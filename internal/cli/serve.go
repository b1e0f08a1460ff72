package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/triage-ai/sqlgate/internal/api"
	"github.com/triage-ai/sqlgate/internal/auth"
	"github.com/triage-ai/sqlgate/internal/config"
	"github.com/triage-ai/sqlgate/internal/mcp"
	"github.com/triage-ai/sqlgate/internal/server"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Transport string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve operations over stdio, gRPC, HTTP or all three",
		Long: `Serve operations until interrupted.

stdio speaks MCP (JSON-RPC 2.0, one message per line) on stdin/stdout and
logs to stderr. grpc and http require a Bearer sgk_ API key.

Example:
  READONLY=true sqlgate serve --transport all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			if opts.Transport != "" {
				cfg.Transport = opts.Transport
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			return runServe(cmd.Context(), cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.Transport, "transport", "t", "", "stdio, grpc, http or all (overrides config)")

	return cmd
}

func runServe(ctx context.Context, cfg config.Config, stdin io.Reader, stdout io.Writer) error {
	useStdio := cfg.Transport == config.TransportStdio || cfg.Transport == config.TransportAll
	useGRPC := cfg.Transport == config.TransportGRPC || cfg.Transport == config.TransportAll
	useHTTP := cfg.Transport == config.TransportHTTP || cfg.Transport == config.TransportAll

	logger, err := buildLogger(cfg.LogLevel, useStdio)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var authn auth.Authenticator
	if useGRPC || useHTTP {
		if authn, err = a.authenticator(ctx); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	if useGRPC {
		if err := serveGRPC(ctx, g, a, authn); err != nil {
			return err
		}
	}
	if useHTTP {
		serveHTTP(ctx, g, a, authn)
	}
	if useStdio {
		if stdin == os.Stdin && stdinIsTerminal() {
			logger.Warn("stdin is a terminal, expecting newline-delimited JSON-RPC from an MCP client")
		}
		srv := mcp.NewServer(a.dispatcher, "sqlgate", Version, logger)
		g.Go(func() error {
			logger.Info("serving mcp on stdio", zap.String("policy", policyMode(cfg)))
			return srv.Serve(ctx, stdin, stdout)
		})
	}

	err = g.Wait()
	logger.Info("gateway stopped")
	return err
}

func serveGRPC(ctx context.Context, g *errgroup.Group, a *app, authn auth.Authenticator) error {
	grpcServer, healthServer := server.NewGRPCServer(server.NewGatewayServer(a.dispatcher, a.logger), authn, a.logger)

	lis, err := net.Listen("tcp", ":"+strconv.Itoa(a.cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	g.Go(func() error {
		a.logger.Info("grpc server listening", zap.String("addr", lis.Addr().String()))
		return grpcServer.Serve(lis)
	})
	// Graceful shutdown
	g.Go(func() error {
		<-ctx.Done()
		a.logger.Info("shutting down grpc server")
		healthServer.SetServingStatus(server.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
		grpcServer.GracefulStop()
		return nil
	})
	return nil
}

func serveHTTP(ctx context.Context, g *errgroup.Group, a *app, authn auth.Authenticator) {
	httpServer := &http.Server{
		Addr: ":" + strconv.Itoa(a.cfg.HTTPPort),
		Handler: api.NewRouter(&api.Dependencies{
			Dispatcher: a.dispatcher,
			Auth:       authn,
			Logger:     a.logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		a.logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		a.logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
}

func policyMode(cfg config.Config) string {
	if cfg.ReadOnly {
		return "read_only"
	}
	return "read_write"
}

// stdinIsTerminal reports whether stdin is an interactive terminal rather
// than a pipe from an MCP client.
func stdinIsTerminal() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
