// Command mprobe makes one CGMiner-API call against a miner and prints
// the parsed JSON response, exiting with a code that distinguishes failure classes:
// 0 ok, 1 connection failure, 2 parse/validation error, 3 other.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fleetcore/minerfleet/pkg/log"
	"github.com/fleetcore/minerfleet/pkg/minerclient"
)

const (
	exitOK         = 0
	exitConnection = 1
	exitParse      = 2
	exitOther      = 3
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

var rootCmd = &cobra.Command{
	Use:   "mprobe HOST COMMAND [PARAMETER]",
	Short: "Issue one CGMiner-API call and print the JSON response",
	Long: `mprobe opens a single connection to a miner's control-port API,
sends one command, and prints the parsed JSON response — useful for
diagnosing a miner's reachability and firmware quirks without standing
up the full edge collector.`,
	Version:       Version,
	Args:          cobra.RangeArgs(2, 3),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"mprobe version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.Flags().Int("port", minerclient.DefaultPort, "Miner control-port TCP port")
	rootCmd.Flags().Duration("timeout", 5*time.Second, "Per-call timeout")
	rootCmd.Flags().Int("retries", 2, "Retry budget for timeout/connection errors")
	rootCmd.Flags().Bool("allow-control", false, "Permit sending a control (mutating) command")

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
}

// run executes the root command and maps the result to the documented exit
// codes, returning the code instead of calling os.Exit directly so tests
// (and RunE, via a returned error) stay in control of process lifetime.
func run() int {
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		host := args[0]
		command := args[1]
		parameter := ""
		if len(args) == 3 {
			parameter = args[2]
		}

		port, _ := cmd.Flags().GetInt("port")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		retries, _ := cmd.Flags().GetInt("retries")
		allowControl, _ := cmd.Flags().GetBool("allow-control")

		client, err := minerclient.New(host,
			minerclient.WithPort(port),
			minerclient.WithTimeout(timeout),
			minerclient.WithMaxRetries(retries),
			minerclient.WithAllowControl(allowControl),
		)
		if err != nil {
			return &exitError{code: exitParse, err: err}
		}

		// Budget enough wall-clock for every retry attempt plus backoff.
		ctx, cancel := context.WithTimeout(context.Background(), timeout*time.Duration(retries+2))
		defer cancel()

		resp, err := client.SendCommand(ctx, command, parameter)
		if err != nil {
			if clientErr, ok := err.(*minerclient.ClientError); ok {
				switch clientErr.Kind {
				case minerclient.ErrConnection, minerclient.ErrDNS, minerclient.ErrTimeout:
					return &exitError{code: exitConnection, err: err}
				case minerclient.ErrParse:
					return &exitError{code: exitParse, err: err}
				default:
					return &exitError{code: exitOther, err: err}
				}
			}
			// Not a *ClientError: a validation failure (bad host/port,
			// disallowed command) caught before any network I/O.
			return &exitError{code: exitParse, err: err}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			return &exitError{code: exitOther, err: err}
		}
		return nil
	}

	if err := rootCmd.Execute(); err != nil {
		if ee, ok := err.(*exitError); ok {
			fmt.Fprintf(os.Stderr, "Error: %v\n", ee.err)
			return ee.code
		}
		// cobra's own argument-count/flag-parsing errors are validation
		// failures, same bucket as a malformed host or unknown command.
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitParse
	}
	return exitOK
}

// exitError carries the process exit code alongside the underlying error
// so run can map it without re-inspecting the error. SilenceErrors keeps
// cobra from printing it; run prints it once.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
