package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hollowdb/hollow/cmd/hollowd/schemas"
	"github.com/hollowdb/hollow/internal/log"
	"github.com/hollowdb/hollow/pkg/connection"
	"github.com/hollowdb/hollow/pkg/metrics"
	"github.com/hollowdb/hollow/pkg/rpc"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the hollowd gRPC listener",
	Long: `serve starts the hollowd process: a connection.Manager over
cfg.DataDir, the rpc.Server facade in front of it, and the metrics/health
HTTP endpoints. Databases are created against the running process with
"hollowd database create", the same Connection/storage-facade surface a
remote client would use.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		registry, err := schemas.Registry()
		if err != nil {
			return fmt.Errorf("build schema registry: %w", err)
		}
		mgr := connection.NewManager(cfg.DataDir, registry)

		var collector *metrics.Collector
		if bootstrap, _ := cmd.Flags().GetString("bootstrap-database"); bootstrap != "" {
			bootstrapSchema, _ := cmd.Flags().GetString("bootstrap-schema")
			conn, err := mgr.CreateDatabase(bootstrap, bootstrapSchema, true)
			if err != nil {
				return fmt.Errorf("bootstrap database %q: %w", bootstrap, err)
			}
			collector = metrics.NewCollector(conn.Database())
			collector.Start()
			log.Info(fmt.Sprintf("bootstrapped database %q with schema %q", bootstrap, bootstrapSchema))
		}

		metrics.SetVersion(Version)
		metrics.RegisterComponent("storage", true, "ready")
		metrics.RegisterComponent("api", false, "starting")

		srv := rpc.NewServer(mgr)
		errCh := make(chan error, 1)
		go func() {
			if err := srv.Serve(cfg.Listen.Address); err != nil {
				errCh <- fmt.Errorf("rpc server: %w", err)
			}
		}()
		log.Info(fmt.Sprintf("hollowd listening on %s", cfg.Listen.Address))
		metrics.RegisterComponent("api", true, "ready")

		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/health", metrics.HealthHandler())
		mux.Handle("/ready", metrics.ReadyHandler())
		mux.Handle("/live", metrics.LivenessHandler())
		metricsSrv := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorf("metrics server", err)
			}
		}()
		log.Info(fmt.Sprintf("metrics endpoint on http://%s/metrics", metricsAddr))

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		select {
		case <-sigCh:
			log.Info("shutting down")
		case err := <-errCh:
			log.Errorf("server error", err)
		}

		srv.Stop()
		if collector != nil {
			collector.Stop()
		}
		_ = metricsSrv.Close()
		return nil
	},
}

func init() {
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "address for the /metrics, /health, /ready, /live endpoints")
	serveCmd.Flags().String("bootstrap-database", "", "create this database at startup if it does not already exist")
	serveCmd.Flags().String("bootstrap-schema", "shop.v1", "schema used for --bootstrap-database")
}
