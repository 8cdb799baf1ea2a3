package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"

	"github.com/fatih/color"
	jsonitor "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tansive/wdaclient/internal/common/logtrace"
	"github.com/tansive/wdaclient/pkg/wda"
	"github.com/tansive/wdaclient/pkg/wda/recovery"
)

var json = jsonitor.ConfigCompatibleWithStandardLibrary

var (
	// Global flags
	jsonOutput   bool
	configFile   string
	urlFlag      string
	udidFlag     string
	timeoutFlag  string
	logLevelFlag string
)

var ErrAlreadyHandled = errors.New("already handled")

var okLabel = color.New(color.FgGreen)
var errorLabel = color.New(color.FgRed)

// NewRootCmd builds the wdactl command tree.
func NewRootCmd() *cobra.Command {
	config = nil
	rootCmd := &cobra.Command{
		Use:   "wdactl [command] [flags]",
		Short: "wdactl - A command line client for WebDriverAgent",
		Long: `wdactl drives an iOS device through a running WebDriverAgent.
Sessions are created and regenerated on demand, and an unreachable agent can be
relaunched automatically when recovery is configured.

Examples:
  # Configure the agent address
  wdactl config create --url localhost:8100

  # Tap a point and type some text
  wdactl tap 200 400
  wdactl keys "hello"

  # Replay an action file
  wdactl actions -f swipe.yaml

  # Serve device tools to an MCP client
  wdactl mcp`,
		PersistentPreRunE: preRunHandlePersistents,
		SilenceErrors:     true, // Prevent Cobra from printing the error
		SilenceUsage:      true, // Prevent Cobra from printing usage on error
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	// Set up persistent flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "", "", "Path to configuration file to override default")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&urlFlag, "url", "", "Agent URL, overrides the config file and "+EnvURL)
	rootCmd.PersistentFlags().StringVar(&udidFlag, "udid", "", "Device UDID, overrides the config file and "+EnvUDID)
	rootCmd.PersistentFlags().StringVar(&timeoutFlag, "timeout", "", "Request timeout (e.g., 30s)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error")

	// Add commands
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd())
	addDeviceCmds(rootCmd)
	rootCmd.AddCommand(newAppCmd())
	rootCmd.AddCommand(newAlertCmd())
	rootCmd.AddCommand(newActionsCmd())
	rootCmd.AddCommand(newTouchCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newMCPCmd())
	return rootCmd
}

// Execute builds the command tree and runs it. This is called by
// main.main().
func Execute(ctx context.Context) {
	err := NewRootCmd().ExecuteContext(ctx)
	if err != nil {
		if errors.Is(err, ErrAlreadyHandled) {
			os.Exit(1)
		}
		if jsonOutput {
			printJSON(os.Stdout, errorOutput(err))
		} else {
			errorLabel.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// errorOutput describes err for --json output, including the agent's
// error code when there is one.
func errorOutput(err error) map[string]any {
	kv := map[string]any{
		"error": err.Error(),
	}
	var apiErr *wda.APIError
	if errors.As(err, &apiErr) {
		kv["code"] = apiErr.Code
		kv["status"] = apiErr.StatusCode
	}
	return kv
}

// skipsConfig reports whether cmd runs without a loaded configuration.
func skipsConfig(cmd *cobra.Command) bool {
	if f := cmd.Flags().Lookup("dry-run"); f != nil && f.Changed {
		return true
	}
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "config", "version", "help", "completion":
			return true
		}
	}
	return false
}

// preRunHandlePersistents handles persistent flags and configuration loading before command execution
func preRunHandlePersistents(cmd *cobra.Command, args []string) error {
	if skipsConfig(cmd) {
		logtrace.InitLogger(logtrace.Config{Level: logLevelFlag})
		return nil
	}

	if err := LoadConfig(configFile); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		if urlFlag == "" {
			return errConfigNotFound
		}
		config = &Config{Version: ConfigFormatVersion}
	}
	cfg := GetConfig()

	if urlFlag != "" {
		cfg.URL = MorphURL(urlFlag)
	}
	if udidFlag != "" {
		cfg.UDID = udidFlag
	}
	if timeoutFlag != "" {
		cfg.Timeout = timeoutFlag
	}
	if logLevelFlag != "" {
		cfg.LogLevel = logLevelFlag
	}
	if err := cfg.ValidateConfig(); err != nil {
		return err
	}

	logtrace.InitLogger(logtrace.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.PrettyLogs,
		Out:    cmd.ErrOrStderr(),
	})
	return nil
}

// newClient builds a client for the configured agent. The returned
// recoverer is nil unless recovery is configured.
func newClient() (*wda.Client, *recovery.XCTestRecoverer, error) {
	cfg := GetConfig()
	if cfg == nil {
		return nil, nil, errConfigNotFound
	}
	timeout, err := cfg.GetTimeout()
	if err != nil {
		return nil, nil, err
	}

	opts := []wda.Option{wda.WithTimeout(timeout)}
	if cfg.BundleID != "" {
		opts = append(opts, wda.WithSessionOptions(wda.SessionOptions{BundleID: cfg.BundleID}))
	}

	var recoverer *recovery.XCTestRecoverer
	if cfg.Recover != nil {
		m := maps.Clone(cfg.Recover)
		if _, ok := m["udid"]; !ok && cfg.UDID != "" {
			m["udid"] = cfg.UDID
		}
		recoverer, err = recovery.NewFromMap(m)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid recovery configuration: %w", err)
		}
		opts = append(opts, wda.WithRecoverer(recoverer))
	}

	client, err := wda.New(cfg.URL, opts...)
	if err != nil {
		return nil, nil, err
	}
	return client, recoverer, nil
}

// deviceRunE adapts a function that needs a client to a cobra RunE.
func deviceRunE(run func(ctx context.Context, cmd *cobra.Command, client *wda.Client, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		client, _, err := newClient()
		if err != nil {
			return err
		}
		defer client.Close()
		return run(commandContext(cmd), cmd, client, args)
	}
}

// commandContext returns the command's context carrying the global logger.
func commandContext(cmd *cobra.Command) context.Context {
	return log.Logger.WithContext(cmd.Context())
}

// printResult prints v as JSON under --json, or msg otherwise.
func printResult(cmd *cobra.Command, v any, msg string, a ...any) {
	if jsonOutput {
		printJSON(cmd.OutOrStdout(), v)
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), msg+"\n", a...)
}

// printOK prints a success line, or {"result": 1} under --json.
func printOK(cmd *cobra.Command, msg string, a ...any) {
	if jsonOutput {
		printJSON(cmd.OutOrStdout(), map[string]int{"result": 1})
		return
	}
	okLabel.Fprintf(cmd.OutOrStdout(), msg+"\n", a...)
}

// newVersionCmd creates and returns a new version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of wdactl",
		Run: func(cmd *cobra.Command, args []string) {
			configPath, err := resolveConfigPath()
			if err != nil {
				configPath = "unknown"
			}

			if jsonOutput {
				kv := map[string]string{
					"version":     getCLIVersion(),
					"config_file": configPath,
				}
				printJSON(cmd.OutOrStdout(), kv)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "wdactl %s\n", getCLIVersion())
				fmt.Fprintf(cmd.OutOrStdout(), "Config file: %s\n", configPath)
			}
		},
	}
}

// printJSON prints the given value as indented JSON
func printJSON(w io.Writer, data any) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintln(w, string(jsonData))
}

// getCLIVersion returns the current CLI version
func getCLIVersion() string {
	return "v" + wda.Version
}
