// Command pg-worker is the worker process: it registers a servable with a
// pg-master, serves predict requests against a runner.Registry, and
// heartbeats the master over MasterServiceClient.Ping.
//
// Serving uses mDNS discovery with an env/flag fallback, a goroutine per
// long-running concern (RPC server, heartbeat loop), and a select over an
// error channel and shutdown signals.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	pb "github.com/predictgrid/predictgrid/gen/go/predictgrid/v1"
	"github.com/predictgrid/predictgrid/internal/discovery/mdns"
	"github.com/predictgrid/predictgrid/internal/logging"
	"github.com/predictgrid/predictgrid/internal/observability/tracing"
	"github.com/predictgrid/predictgrid/internal/retry"
	"github.com/predictgrid/predictgrid/internal/rpccodec"
	"github.com/predictgrid/predictgrid/internal/security/auth"
	pgtls "github.com/predictgrid/predictgrid/internal/security/tls"
	"github.com/predictgrid/predictgrid/internal/worker/runner"
	"github.com/predictgrid/predictgrid/internal/worker/service"
)

var version = "v0.0.0-dev"

func main() {
	logging.Configure()

	rootCmd := &cobra.Command{
		Use:   "pg-worker",
		Short: "predictgrid inference serving worker",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pg-worker %s\n", version)
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the worker agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			master, _ := cmd.Flags().GetString("master")
			port, _ := cmd.Flags().GetInt("port")
			token, _ := cmd.Flags().GetString("token")
			servableName, _ := cmd.Flags().GetString("servable")
			batchSize, _ := cmd.Flags().GetInt("batch-size")
			discoveryTimeout, _ := cmd.Flags().GetDuration("discovery-timeout")
			heartbeat, _ := cmd.Flags().GetDuration("heartbeat")
			tlsEnabled, _ := cmd.Flags().GetBool("tls")
			tlsCert, _ := cmd.Flags().GetString("tls-cert")
			tlsKey, _ := cmd.Flags().GetString("tls-key")
			tlsCA, _ := cmd.Flags().GetString("tls-ca")
			tracingEnable, _ := cmd.Flags().GetBool("tracing")
			tracingEndpoint, _ := cmd.Flags().GetString("tracing-endpoint")

			tlsCfg := pgtls.Config{Enabled: tlsEnabled, CertFile: tlsCert, KeyFile: tlsKey, ClientCA: tlsCA}

			tracingCfg := tracing.WorkerConfig()
			tracingCfg.Enable = tracingEnable
			if tracingEndpoint != "" {
				tracingCfg.Endpoint = tracingEndpoint
			}
			tp, err := tracing.Init(context.Background(), tracingCfg)
			if err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			if tp != nil {
				defer tp.Shutdown(context.Background())
			}

			if master == "" {
				log.Info().Dur("timeout", discoveryTimeout).Msg("no master specified, trying mDNS discovery")
				browser := mdns.NewCoordBrowser(mdns.CoordBrowserConfig{Timeout: discoveryTimeout})
				addr, err := browser.DiscoverWithFallback(context.Background(), os.Getenv("PG_MASTER"))
				if err != nil {
					return fmt.Errorf("master discovery failed: %w\n\nHint: start pg-master with mDNS enabled, or pass --master, or set PG_MASTER", err)
				}
				master = addr
			}

			hostname, _ := os.Hostname()
			workerPid := uint64(os.Getpid())
			workerAddr := fmt.Sprintf("%s:%d", hostname, port)

			registry := runner.NewRegistry(map[string]runner.ModelRunner{
				"add_common": runner.NewAddRunner(),
			})

			lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
			if err != nil {
				return fmt.Errorf("listen on worker port: %w", err)
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			masterCreds, err := pgtls.ClientCredentials(tlsCfg)
			if err != nil {
				return fmt.Errorf("load master tls config: %w", err)
			}
			if masterCreds == nil {
				masterCreds = insecure.NewCredentials()
			}
			clientOpts := append([]grpc.DialOption{
				grpc.WithTransportCredentials(masterCreds),
				rpccodec.DialOption(),
			}, tracing.DialOptions()...)
			if token != "" {
				clientOpts = append(clientOpts, grpc.WithUnaryInterceptor(auth.UnaryClientInterceptor(token)))
			}
			masterConn, err := grpc.NewClient(master, clientOpts...)
			if err != nil {
				return fmt.Errorf("dial master %s: %w", master, err)
			}
			defer masterConn.Close()
			masterClient := pb.NewMasterServiceClient(masterConn)

			srv := service.New(registry, func() { sigCh <- syscall.SIGTERM })

			serverOpts := append([]grpc.ServerOption{rpccodec.ServerOption()}, tracing.ServerOptions()...)
			if token != "" {
				authInterceptor := auth.NewInterceptor(auth.Config{Enabled: true, Token: token})
				serverOpts = append(serverOpts, grpc.ChainUnaryInterceptor(authInterceptor.UnaryServerInterceptor()))
			}
			workerTLSCreds, err := pgtls.ServerCredentials(tlsCfg)
			if err != nil {
				return fmt.Errorf("load worker tls config: %w", err)
			}
			if workerTLSCreds != nil {
				serverOpts = append(serverOpts, grpc.Creds(workerTLSCreds))
			}
			grpcServer := grpc.NewServer(serverOpts...)
			srv.Register(grpcServer)

			errCh := make(chan error, 1)
			go func() {
				log.Info().Int("port", port).Msg("worker gRPC server starting")
				if err := grpcServer.Serve(lis); err != nil {
					errCh <- fmt.Errorf("worker grpc server: %w", err)
				}
			}()

			var resp *pb.RegisterReply
			err = retry.Do(context.Background(), retry.DefaultConfig(), func() error {
				regCtx, regCancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer regCancel()
				r, regErr := masterClient.Register(regCtx, &pb.RegisterRequest{
					Spec: &pb.WorkerRegSpec{
						WorkerAddress: workerAddr,
						WorkerPid:     workerPid,
						ServableName:  servableName,
						BatchSize:     uint64(batchSize),
						Methods:       registry.MethodInfos(),
					},
					AuthToken: token,
				})
				if regErr != nil {
					return regErr
				}
				resp = r
				return nil
			})
			if err != nil {
				return fmt.Errorf("register with master: %w", err)
			}
			if !resp.Accepted {
				return fmt.Errorf("worker registration rejected: %s", resp.Message)
			}
			log.Info().Str("master", master).Str("servable", servableName).Msg("registered with master")

			if mdnsAnnounce, _ := cmd.Flags().GetBool("mdns-announce"); mdnsAnnounce {
				announcer := mdns.NewAnnouncer(mdns.AnnouncerConfig{Instance: fmt.Sprintf("%s-%d", hostname, workerPid), Port: port})
				if err := announcer.Start(&mdns.WorkerInfo{
					WorkerPid:    workerPid,
					ServableName: servableName,
					BatchSize:    uint64(batchSize),
					Version:      version,
				}); err != nil {
					log.Warn().Err(err).Msg("failed to start worker mDNS announcer")
				} else {
					defer announcer.Stop()
				}
			}

			go func() {
				ticker := time.NewTicker(heartbeat)
				defer ticker.Stop()
				for {
					select {
					case <-ticker.C:
						ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
						_, err := masterClient.Ping(ctx, &pb.PingRequest{FromAddress: workerAddr, SentUnixNano: time.Now().UnixNano()})
						cancel()
						if err != nil {
							log.Warn().Err(err).Msg("heartbeat to master failed")
						}
					case <-sigCh:
						return
					}
				}
			}()

			select {
			case sig := <-sigCh:
				log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
				exitCtx, exitCancel := context.WithTimeout(context.Background(), 5*time.Second)
				if _, err := masterClient.Exit(exitCtx, &pb.ExitRequest{WorkerPid: workerPid}); err != nil {
					log.Warn().Err(err).Msg("failed to notify master of exit")
				}
				exitCancel()
				grpcServer.GracefulStop()
				return nil
			case err := <-errCh:
				return err
			}
		},
	}

	serveCmd.Flags().String("master", "", "Master address (empty for mDNS auto-discovery)")
	serveCmd.Flags().Int("port", 50052, "Worker gRPC port")
	serveCmd.Flags().String("token", "", "Authentication token")
	serveCmd.Flags().String("servable", "test_servable", "Servable name this worker serves")
	serveCmd.Flags().Int("batch-size", 1, "Declared batch size")
	serveCmd.Flags().Duration("discovery-timeout", 10*time.Second, "mDNS discovery timeout")
	serveCmd.Flags().Duration("heartbeat", 10*time.Second, "Interval between Ping heartbeats to the master")
	serveCmd.Flags().Bool("tls", false, "Enable TLS for the master connection and worker server")
	serveCmd.Flags().String("tls-cert", "", "TLS certificate file")
	serveCmd.Flags().String("tls-key", "", "TLS key file")
	serveCmd.Flags().String("tls-ca", "", "TLS client CA file (mTLS)")
	serveCmd.Flags().Bool("tracing", false, "Enable OpenTelemetry tracing")
	serveCmd.Flags().String("tracing-endpoint", "", "OTLP gRPC endpoint (overrides default)")
	serveCmd.Flags().Bool("mdns-announce", false, "Advertise this worker via mDNS in addition to gRPC registration")

	rootCmd.AddCommand(versionCmd, serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
