package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/durabletask-sidecar/internal/backend/memory"
	"github.com/cuemby/durabletask-sidecar/internal/config"
	"github.com/cuemby/durabletask-sidecar/internal/correlation"
	"github.com/cuemby/durabletask-sidecar/internal/dispatch"
	"github.com/cuemby/durabletask-sidecar/internal/healthsrv"
	"github.com/cuemby/durabletask-sidecar/internal/history"
	"github.com/cuemby/durabletask-sidecar/internal/log"
	sidecarrpc "github.com/cuemby/durabletask-sidecar/internal/rpc"
	sigpkg "github.com/cuemby/durabletask-sidecar/internal/signal"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

var cfgPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "sidecar",
	Short:   "Durable task sidecar dispatcher",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("sidecar version %s\ncommit: %s\n", Version, Commit))
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (optional)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gRPC bridge and dispatcher host until terminated",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log.Init(log.Config{Level: cfg.LogLevel(), JSONOutput: cfg.Log.JSON})

	traffic := sigpkg.New()
	orchestratorRouter := correlation.NewOrchestratorRouter()
	activityRouter := correlation.NewActivityRouter()
	historyBuffer := history.NewBuffer()

	bridge := sidecarrpc.NewBridge(
		traffic, orchestratorRouter, activityRouter, historyBuffer,
		cfg.Dispatcher.EmbedThresholdBytes, cfg.Dispatcher.ChunkBytes, sidecarrpc.ApproxSize,
	)

	svc := memory.New(cfg.Dispatcher.MaxConcurrentOrchestratorWorkItems, cfg.Dispatcher.MaxConcurrentActivityWorkItems)

	orchestratorDispatcher := dispatch.NewOrchestratorDispatcher(svc, bridge, cfg.Dispatcher.ReplyTimeout, traffic)
	activityDispatcher := dispatch.NewActivityDispatcher(svc, bridge, cfg.Dispatcher.ReplyTimeout, traffic)
	host := dispatch.NewHost(orchestratorDispatcher, activityDispatcher, traffic)
	host.StopGracePeriod = cfg.Dispatcher.StopGracePeriod

	grpcServer := grpc.NewServer()
	sidecarrpc.RegisterWorkItemsServer(grpcServer, bridge)

	listener, err := net.Listen("tcp", cfg.GRPC.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %q: %w", cfg.GRPC.ListenAddr, err)
	}

	grpcErrCh := make(chan error, 1)
	go func() {
		log.Logger.Info().Str("addr", cfg.GRPC.ListenAddr).Msg("gRPC bridge listening")
		grpcErrCh <- grpcServer.Serve(listener)
	}()

	health := healthsrv.New(traffic, Version)
	healthErrCh := make(chan error, 1)
	go func() {
		log.Logger.Info().Str("addr", cfg.Health.ListenAddr).Msg("health server listening")
		healthErrCh <- health.Start(cfg.Health.ListenAddr)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go host.Start(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("shutdown signal received")
	case err := <-grpcErrCh:
		if err != nil {
			log.Logger.Error().Err(err).Msg("gRPC server exited")
		}
	case err := <-healthErrCh:
		if err != nil {
			log.Logger.Error().Err(err).Msg("health server exited")
		}
	}

	cancel()
	host.Stop()
	grpcServer.GracefulStop()
	log.Info("shutdown complete")
	return nil
}
