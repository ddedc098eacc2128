package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	pb "github.com/predictgrid/predictgrid/gen/go/predictgrid/v1"
	"github.com/predictgrid/predictgrid/internal/config"
	"github.com/predictgrid/predictgrid/internal/discovery/mdns"
	"github.com/predictgrid/predictgrid/internal/logging"
	"github.com/predictgrid/predictgrid/internal/master/facade"
	"github.com/predictgrid/predictgrid/internal/master/frontend/grpcapi"
	"github.com/predictgrid/predictgrid/internal/master/frontend/httpapi"
	"github.com/predictgrid/predictgrid/internal/master/registry"
	"github.com/predictgrid/predictgrid/internal/observability/metrics"
	"github.com/predictgrid/predictgrid/internal/observability/tracing"
	"github.com/predictgrid/predictgrid/internal/rpccodec"
	"github.com/predictgrid/predictgrid/internal/security/auth"
	pgtls "github.com/predictgrid/predictgrid/internal/security/tls"
)

var version = "v0.0.0-dev"

func main() {
	logging.Configure()

	rootCmd := &cobra.Command{
		Use:   "pg-master",
		Short: "predictgrid inference serving master",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pg-master %s\n", version)
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the master server",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if v, _ := cmd.Flags().GetInt("grpc-port"); v != 0 {
				cfg.Master.GRPCPort = v
			}
			if v, _ := cmd.Flags().GetInt("http-port"); v != 0 {
				cfg.Master.HTTPPort = v
			}
			if v, _ := cmd.Flags().GetString("token"); v != "" {
				cfg.Master.AuthToken = v
			}

			log.Info().Int("grpc_port", cfg.Master.GRPCPort).Int("http_port", cfg.Master.HTTPPort).
				Str("version", version).Msg("starting predictgrid master")

			tp, err := tracing.Init(context.Background(), cfg.Master.Tracing)
			if err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			if tp != nil {
				defer tp.Shutdown(context.Background())
			}

			reg := registry.New(registry.Config{
				AuthToken:    cfg.Master.AuthToken,
				MaxPingTimes: cfg.Master.MaxPingTimes,
				PingTimeout:  cfg.Master.PingTimeout,
			})

			m := metrics.Default()

			d := facade.New(facade.Config{
				Registry:     reg,
				Round:        cfg.Master.WorkerRound,
				AdmissionCap: int64(cfg.Master.AdmissionCap),
				Metrics:      m,
			})

			lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Master.GRPCPort))
			if err != nil {
				return fmt.Errorf("listen on grpc port: %w", err)
			}

			authInterceptor := auth.NewInterceptor(auth.Config{
				Enabled: cfg.Master.AuthToken != "",
				Token:   cfg.Master.AuthToken,
				SkipMethods: []string{
					"/predictgrid.v1.PredictService/Predict",
					"/predictgrid.v1.PredictService/GetModelInfo",
					"/predictgrid.v1.MasterService/Register",
				},
			})
			grpcOpts := append([]grpc.ServerOption{rpccodec.ServerOption(), grpc.ChainUnaryInterceptor(authInterceptor.UnaryServerInterceptor())}, tracing.ServerOptions()...)
			tlsCreds, err := pgtls.ServerCredentials(cfg.Master.TLS)
			if err != nil {
				return fmt.Errorf("load master tls config: %w", err)
			}
			if tlsCreds != nil {
				grpcOpts = append(grpcOpts, grpc.Creds(tlsCreds))
			}
			grpcServer := grpc.NewServer(grpcOpts...)
			pb.RegisterPredictServiceServer(grpcServer, grpcapi.NewPredictServer(d, cfg.Master.RequestTimeout))
			pb.RegisterMasterServiceServer(grpcServer, grpcapi.NewMasterServer(d, cfg.Master.AuthToken, cfg.Master.TLS))

			var announcer *mdns.CoordAnnouncer
			if cfg.Master.MDNSEnable {
				hostname, _ := os.Hostname()
				announcer = mdns.NewCoordAnnouncer(mdns.CoordAnnouncerConfig{
					Instance:   hostname,
					GRPCPort:   cfg.Master.GRPCPort,
					HTTPPort:   cfg.Master.HTTPPort,
					Version:    version,
					InstanceID: hostname,
				})
				if err := announcer.Start(); err != nil {
					log.Warn().Err(err).Msg("failed to start mDNS announcer")
					announcer = nil
				}
			}

			httpServer := httpapi.New(d, cfg.Master.RequestTimeout)

			metricsMux := http.NewServeMux()
			metricsMux.Handle("/metrics", metrics.Handler())
			metricsServer := &http.Server{
				Addr:    fmt.Sprintf(":%d", cfg.Master.MetricsPort),
				Handler: metricsMux,
			}

			errCh := make(chan error, 3)
			go func() {
				if err := grpcServer.Serve(lis); err != nil {
					errCh <- fmt.Errorf("grpc server: %w", err)
				}
			}()
			go func() {
				if err := httpServer.ListenAndServe(fmt.Sprintf(":%d", cfg.Master.HTTPPort)); err != nil {
					errCh <- fmt.Errorf("http server: %w", err)
				}
			}()
			go func() {
				if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- fmt.Errorf("metrics server: %w", err)
				}
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case sig := <-sigCh:
				log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
				if announcer != nil {
					announcer.Stop()
				}
				d.Shutdown()
				grpcServer.GracefulStop()
				metricsServer.Close()
				return nil
			case err := <-errCh:
				return err
			}
		},
	}

	serveCmd.Flags().Int("grpc-port", 0, "gRPC server port (overrides config)")
	serveCmd.Flags().Int("http-port", 0, "HTTP server port (overrides config)")
	serveCmd.Flags().String("config", "", "Path to config file")
	serveCmd.Flags().String("token", "", "Worker auth token")

	rootCmd.AddCommand(versionCmd, serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
