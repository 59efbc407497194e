// Command fleetd is the cloud-side control plane: the HTTPS boundary
// edge devices pull secrets and commands from, the telemetry ingestion
// and promotion jobs, and the Prometheus/health surface.
package main

import (
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fleetcore/minerfleet/pkg/audit"
	"github.com/fleetcore/minerfleet/pkg/cloudapi"
	"github.com/fleetcore/minerfleet/pkg/log"
	"github.com/fleetcore/minerfleet/pkg/metrics"
	"github.com/fleetcore/minerfleet/pkg/scanner"
	"github.com/fleetcore/minerfleet/pkg/storage"
	"github.com/fleetcore/minerfleet/pkg/telemetry"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fleetd",
	Short: "fleetd - mining-fleet cloud control plane",
	Long: `fleetd is the cloud side of the mining-fleet control plane: it
hands envelope-encrypted per-miner credentials to exactly one edge
device, queues commands for pull-based dispatch, and ingests telemetry
through the raw/live/5-minute/daily layering.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"fleetd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the cloud control plane HTTP server and telemetry jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		apiAddr, _ := cmd.Flags().GetString("api-addr")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		enablePprof, _ := cmd.Flags().GetBool("enable-pprof")

		logger := log.WithComponent("fleetd")

		store, err := storage.NewBoltStore(dataDir)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer store.Close()

		auditLogger := audit.NewLogger(store)
		sc := scanner.New(store)
		reader := telemetry.NewReader(store)

		promoter := telemetry.NewPromoter(store)
		promoter.Start()
		defer promoter.Stop()

		collector := metrics.NewCollector(store)
		collector.Start()
		defer collector.Stop()

		metrics.SetVersion(Version)
		metrics.RegisterComponent("storage", true, "ready")
		metrics.RegisterComponent("telemetry_promoter", true, "running")

		server := cloudapi.NewServer(store, auditLogger, sc, reader)

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/health", metrics.HealthHandler())
		mux.Handle("/ready", metrics.ReadyHandler())
		mux.Handle("/live", metrics.LivenessHandler())

		if enablePprof {
			mux.HandleFunc("/debug/pprof/", pprof.Index)
			mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
			mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
			mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
			mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
			logger.Info().Str("addr", metricsAddr).Msg("pprof endpoints enabled at /debug/pprof/")
		}

		errCh := make(chan error, 2)

		go func() {
			logger.Info().Str("addr", apiAddr).Msg("cloud↔edge API listening")
			if err := http.ListenAndServe(apiAddr, server.Router()); err != nil {
				errCh <- fmt.Errorf("api server error: %w", err)
			}
		}()

		go func() {
			logger.Info().Str("addr", metricsAddr).Msg("metrics/health listening")
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()

		metrics.RegisterComponent("cloudapi", true, "ready")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			logger.Info().Msg("shutting down")
		case err := <-errCh:
			logger.Error().Err(err).Msg("server error, shutting down")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().String("data-dir", "./fleetd-data", "Data directory for the BoltDB store")
	serveCmd.Flags().String("api-addr", "0.0.0.0:8443", "Cloud↔edge HTTPS API bind address")
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Metrics/health bind address")
	serveCmd.Flags().Bool("enable-pprof", false, "Enable pprof profiling endpoints")
}
