// Command edged is the per-site edge collector runtime: it
// decrypts per-miner credentials with a site-local private key, pulls
// secrets and commands from the cloud, executes them against miners over
// the CGMiner-API, and runs IP-range discovery sweeps on request.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fleetcore/minerfleet/pkg/edge"
	"github.com/fleetcore/minerfleet/pkg/edgeclient"
	"github.com/fleetcore/minerfleet/pkg/log"
	"github.com/fleetcore/minerfleet/pkg/metrics"
	"github.com/fleetcore/minerfleet/pkg/scanner"
	"github.com/fleetcore/minerfleet/pkg/security"
	"github.com/fleetcore/minerfleet/pkg/storage"
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
	Use:   "edged",
	Short: "edged - per-site mining-fleet edge collector",
	Long: `edged is the only component of the fleet control plane with
network reach to the miners themselves: it decrypts per-miner
credentials with this site's private key, polls the cloud for secrets
and commands, and executes them over the CGMiner-API.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"edged version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(keygenCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// envOr returns the environment variable named key, or def if unset.
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new device X25519 key pair and write it to --key-path",
	RunE: func(cmd *cobra.Command, args []string) error {
		keyPath, _ := cmd.Flags().GetString("key-path")
		pub, priv, err := security.GenerateDeviceKeyPair()
		if err != nil {
			return fmt.Errorf("generate key pair: %w", err)
		}
		if err := writeDeviceKey(keyPath, priv); err != nil {
			return err
		}
		fmt.Printf("device public key (register this with the cloud): %s\n", hex.EncodeToString(pub[:]))
		return nil
	},
}

func init() {
	keygenCmd.Flags().String("key-path", "./edged-device.key", "Where to write the hex-encoded device private key")
}

func writeDeviceKey(path string, priv *[32]byte) error {
	return os.WriteFile(path, []byte(hex.EncodeToString(priv[:])), 0600)
}

func loadDeviceKey(path string) (pub, priv *[32]byte, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read device key %s: %w", path, err)
	}
	raw, err := hex.DecodeString(string(data))
	if err != nil || len(raw) != 32 {
		return nil, nil, fmt.Errorf("device key %s is not 32 hex-encoded bytes", path)
	}
	priv = new([32]byte)
	copy(priv[:], raw)
	pub, err = security.DerivePublicKey(priv)
	if err != nil {
		return nil, nil, fmt.Errorf("derive public key: %w", err)
	}
	return pub, priv, nil
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the edge collector poll/heartbeat/execute/ack loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		deviceID, _ := cmd.Flags().GetString("device-id")
		siteID, _ := cmd.Flags().GetString("site-id")
		apiBaseURL, _ := cmd.Flags().GetString("api-base-url")
		authToken, _ := cmd.Flags().GetString("auth-token")
		minerMode, _ := cmd.Flags().GetString("miner-mode")
		executionEnabled, _ := cmd.Flags().GetBool("execution-enabled")
		pollIntervalStr, _ := cmd.Flags().GetString("poll-interval")
		keyPath, _ := cmd.Flags().GetString("key-path")
		dataDir, _ := cmd.Flags().GetString("data-dir")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		passphrase := os.Getenv("SITE_MASTER_PASSPHRASE")

		if deviceID == "" || siteID == "" || apiBaseURL == "" || authToken == "" {
			return fmt.Errorf("device-id, site-id, api-base-url, and auth-token are all required")
		}

		logger := log.WithDeviceID(deviceID)

		pub, priv, err := loadDeviceKey(keyPath)
		if err != nil {
			return err
		}

		pollInterval, err := time.ParseDuration(pollIntervalStr)
		if err != nil {
			return fmt.Errorf("invalid poll-interval %q: %w", pollIntervalStr, err)
		}

		crypto := security.NewCryptoContext(pub, priv)
		if passphrase != "" {
			crypto = crypto.WithPassphrase(passphrase)
		}

		store, err := storage.NewBoltStore(dataDir)
		if err != nil {
			return fmt.Errorf("open local store: %w", err)
		}
		defer store.Close()

		cloud := edgeclient.New(apiBaseURL, authToken)

		rt := edge.NewRuntime(edge.Config{
			DeviceID:         deviceID,
			SiteID:           siteID,
			MinerMode:        edge.MinerMode(minerMode),
			ExecutionEnabled: executionEnabled,
			PollInterval:     pollInterval,
		}, cloud, store, crypto)

		rt.Start()
		defer rt.Stop()

		metrics.SetVersion(Version)
		metrics.RegisterComponent("runtime", true, "running")

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/health", metrics.HealthHandler())

		go func() {
			logger.Info().Str("addr", metricsAddr).Msg("metrics/health listening")
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				logger.Error().Err(err).Msg("metrics server error")
			}
		}()

		logger.Info().Str("site_id", siteID).Str("miner_mode", minerMode).Bool("execution_enabled", executionEnabled).Msg("edge collector running")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		logger.Info().Msg("shutting down")
		return nil
	},
}

func init() {
	runCmd.Flags().String("device-id", envOr("EDGE_DEVICE_ID", ""), "This edge device's id (EDGE_DEVICE_ID)")
	runCmd.Flags().String("site-id", envOr("EDGE_SITE_ID", ""), "Site this edge serves (EDGE_SITE_ID)")
	runCmd.Flags().String("api-base-url", envOr("EDGE_API_BASE_URL", ""), "Cloud API base URL (EDGE_API_BASE_URL)")
	runCmd.Flags().String("auth-token", envOr("EDGE_AUTH_TOKEN", ""), "Device bearer token (EDGE_AUTH_TOKEN)")
	runCmd.Flags().String("miner-mode", envOr("EDGE_MINER_MODE", "simulated"), "simulated|cgminer (EDGE_MINER_MODE)")
	runCmd.Flags().Bool("execution-enabled", envOr("EDGE_EXECUTION_ENABLED", "true") == "true", "Whether polled commands actually run (EDGE_EXECUTION_ENABLED)")
	runCmd.Flags().String("poll-interval", envOr("EDGE_POLL_INTERVAL", "5s"), "Command poll interval (EDGE_POLL_INTERVAL)")
	runCmd.Flags().String("key-path", "./edged-device.key", "Path to this device's hex-encoded X25519 private key")
	runCmd.Flags().String("data-dir", "./edged-data", "Local BoltDB data directory (secret cache, discovered miners)")
	runCmd.Flags().String("metrics-addr", "127.0.0.1:9091", "Metrics/health bind address")
}

var scanCmd = &cobra.Command{
	Use:   "scan [start-ip] [end-ip]",
	Short: "Run a bounded IP-range discovery sweep and report it to the cloud",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		siteID, _ := cmd.Flags().GetString("site-id")
		deviceID, _ := cmd.Flags().GetString("device-id")
		apiBaseURL, _ := cmd.Flags().GetString("api-base-url")
		authToken, _ := cmd.Flags().GetString("auth-token")
		dataDir, _ := cmd.Flags().GetString("data-dir")
		maxIPsStr, _ := cmd.Flags().GetString("max-ips")

		maxIPs, err := strconv.Atoi(maxIPsStr)
		if err != nil {
			return fmt.Errorf("invalid max-ips %q: %w", maxIPsStr, err)
		}

		store, err := storage.NewBoltStore(dataDir)
		if err != nil {
			return fmt.Errorf("open local store: %w", err)
		}
		defer store.Close()

		cloud := edgeclient.New(apiBaseURL, authToken)
		sc := scanner.New(store)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		job, err := edge.RunScan(ctx, sc, cloud, store, scanner.Request{
			SiteID:   siteID,
			DeviceID: deviceID,
			Range:    scanner.Range{Start: args[0], End: args[1]},
			MaxIPs:   maxIPs,
		})
		if err != nil {
			return err
		}

		fmt.Printf("scan %s: %s (%d/%d scanned, %d discovered)\n", job.ID, job.Status, job.ScannedIPs, job.TotalIPs, job.DiscoveredMiners)
		return nil
	},
}

func init() {
	scanCmd.Flags().String("site-id", envOr("EDGE_SITE_ID", ""), "Site this scan belongs to")
	scanCmd.Flags().String("device-id", envOr("EDGE_DEVICE_ID", ""), "This edge device's id")
	scanCmd.Flags().String("api-base-url", envOr("EDGE_API_BASE_URL", ""), "Cloud API base URL")
	scanCmd.Flags().String("auth-token", envOr("EDGE_AUTH_TOKEN", ""), "Device bearer token")
	scanCmd.Flags().String("data-dir", "./edged-data", "Local BoltDB data directory")
	scanCmd.Flags().String("max-ips", "10000", "Largest range this scan will accept")
}
