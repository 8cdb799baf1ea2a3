package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tansive/wdaclient/pkg/wda"
	"github.com/tansive/wdaclient/pkg/wda/recovery"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default name of the config file
const DefaultConfigFile = "config.yaml"

// ConfigFormatVersion is the current version of the configuration file format
const ConfigFormatVersion = "0.1.0"

// Environment variables that override the config file.
const (
	EnvURL  = "WDA_URL"
	EnvUDID = "WDA_UDID"
)

// Config represents the configuration for wdactl.
// It is stored as YAML unless the file name ends in .toml.
type Config struct {
	// Version of the configuration file format
	Version string `yaml:"version" toml:"version" json:"version"`
	// URL of the agent, e.g. http://localhost:8100
	URL string `yaml:"url" toml:"url" json:"url"`
	// UDID of the device the agent runs on
	UDID string `yaml:"udid,omitempty" toml:"udid" json:"udid,omitempty"`
	// Timeout applied to every request, e.g. "30s"
	Timeout string `yaml:"timeout,omitempty" toml:"timeout" json:"timeout,omitempty"`
	// LogLevel is one of debug, info, warn, error
	LogLevel   string `yaml:"log_level,omitempty" toml:"log_level" json:"log_level,omitempty"`
	PrettyLogs bool   `yaml:"pretty_logs,omitempty" toml:"pretty_logs" json:"pretty_logs,omitempty"`
	// BundleID scopes sessions the client creates on its own
	BundleID string `yaml:"bundle_id,omitempty" toml:"bundle_id" json:"bundle_id,omitempty"`
	// Recover enables relaunching the agent when it becomes unreachable.
	// Its keys are those of recovery.Config.
	Recover map[string]any `yaml:"recover,omitempty" toml:"recover" json:"recover,omitempty"`
}

var config *Config

// GetDefaultConfigPath returns the default path for the config file
// It uses the OS-specific config directory (e.g., ~/.config/wdactl on Linux)
func GetDefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, "wdactl", DefaultConfigFile), nil
}

func isTOML(file string) bool {
	return strings.EqualFold(filepath.Ext(file), ".toml")
}

// ReadConfig parses the config file without validating it.
func ReadConfig(file string) (*Config, error) {
	content, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	var c Config
	if isTOML(file) {
		if _, err := toml.Decode(string(content), &c); err != nil {
			return nil, fmt.Errorf("unable to parse config file: %w", err)
		}
	} else if err := yaml.Unmarshal(content, &c); err != nil {
		return nil, fmt.Errorf("unable to parse config file: %w", err)
	}
	return &c, nil
}

// LoadConfig loads the configuration and applies overrides from a .env file
// in the working directory and from the environment. A missing file is not
// an error when the environment supplies the agent URL.
func LoadConfig(file string) error {
	if file == "" {
		var err error
		file, err = GetDefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to get default config path: %w", err)
		}
	}

	_ = godotenv.Load() // no error if .env doesn't exist

	c, err := ReadConfig(file)
	if err != nil {
		if !os.IsNotExist(err) || os.Getenv(EnvURL) == "" {
			return err
		}
		c = &Config{Version: ConfigFormatVersion}
	}
	c.applyEnv()

	c.URL = MorphURL(c.URL)
	config = c
	return nil
}

func (cfg *Config) applyEnv() {
	if v := os.Getenv(EnvURL); v != "" {
		cfg.URL = v
	}
	if v := os.Getenv(EnvUDID); v != "" {
		cfg.UDID = v
	}
}

// GetConfig returns the current configuration
func GetConfig() *Config {
	return config
}

// WriteConfig writes the configuration to the specified file
func (cfg *Config) WriteConfig(file string) error {
	if file == "" {
		return errors.New("file path cannot be empty")
	}

	err := os.MkdirAll(filepath.Dir(file), os.ModePerm)
	if err != nil {
		return fmt.Errorf("unable to create config directory: %w", err)
	}

	var content []byte
	if isTOML(file) {
		var sb strings.Builder
		if err := toml.NewEncoder(&sb).Encode(cfg); err != nil {
			return fmt.Errorf("unable to generate configuration: %w", err)
		}
		content = []byte(sb.String())
	} else {
		content, err = yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("unable to generate configuration: %w", err)
		}
	}

	err = os.WriteFile(file, content, os.FileMode(0600))
	if err != nil {
		return fmt.Errorf("unable to write config file: %w", err)
	}

	return nil
}

// ValidateConfig checks for required fields and proper formatting
func (cfg *Config) ValidateConfig() error {
	if cfg.URL == "" {
		return fmt.Errorf("agent url is required; set it in the config file or %s", EnvURL)
	}
	// wdactl has no device dialer, so usbmux addresses are not accepted here.
	if !strings.HasPrefix(cfg.URL, "http://") && !strings.HasPrefix(cfg.URL, "https://") {
		return errors.New("url must start with http:// or https://")
	}
	if _, err := cfg.GetTimeout(); err != nil {
		return err
	}
	return nil
}

// GetTimeout returns the request timeout, wda.DefaultTimeout if unset.
func (cfg *Config) GetTimeout() (time.Duration, error) {
	if cfg.Timeout == "" {
		return wda.DefaultTimeout, nil
	}
	d, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", cfg.Timeout, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("timeout must be positive, got %s", cfg.Timeout)
	}
	return d, nil
}

// Print prints the configuration in a human-readable format
func (cfg *Config) Print(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "URL: %s\n", cfg.URL)
	if cfg.UDID != "" {
		fmt.Fprintf(out, "UDID: %s\n", cfg.UDID)
	}
	timeout, _ := cfg.GetTimeout()
	fmt.Fprintf(out, "Timeout: %s\n", timeout)
	if cfg.BundleID != "" {
		fmt.Fprintf(out, "Bundle ID: %s\n", cfg.BundleID)
	}
	if cfg.Recover != nil {
		fmt.Fprintln(out, "Recovery: enabled")
	} else {
		fmt.Fprintln(out, "Recovery: disabled")
	}
}

// MorphURL ensures the agent URL is properly formatted
// Adds http:// prefix if missing and removes trailing slashes
func MorphURL(url string) string {
	if url == "" {
		return url
	}

	url = strings.TrimRight(url, "/")

	if !strings.Contains(url, "://") {
		url = "http://" + url
	}

	return url
}

var (
	createBundleID string
	createRecover  bool
)

// newConfigCmd creates the config command and its subcommands
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration",
		Long:  `Manage CLI configuration settings like the agent address and recovery.`,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}
	configCmd.AddCommand(newConfigCreateCmd())
	configCmd.AddCommand(newConfigShowCmd())
	return configCmd
}

func newConfigCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a configuration file",
		Long: `Create a configuration file from --url, --udid, --timeout and --log-level.
The file is written as YAML, or as TOML when --config names a .toml file.

Examples:
  # Point wdactl at an agent forwarded to localhost
  wdactl config create --url localhost:8100

  # Enable recovery through tidevice for a device
  wdactl config create --url localhost:8100 --udid 00008030-001A --recover`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, err := resolveConfigPath()
			if err != nil {
				return err
			}

			if urlFlag == "" {
				return errors.New("--url is required")
			}
			cfg := &Config{
				Version:  ConfigFormatVersion,
				URL:      MorphURL(urlFlag),
				UDID:     udidFlag,
				Timeout:  timeoutFlag,
				LogLevel: logLevelFlag,
				BundleID: createBundleID,
			}
			if createRecover {
				cfg.Recover = map[string]any{"command": recovery.DefaultCommand}
			}
			if err := cfg.ValidateConfig(); err != nil {
				return err
			}
			if err := cfg.WriteConfig(configPath); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}

			if jsonOutput {
				printJSON(cmd.OutOrStdout(), map[string]string{
					"url":         cfg.URL,
					"config_file": configPath,
				})
			} else {
				okLabel.Fprintf(cmd.OutOrStdout(), "Agent configured: %s\n", cfg.URL)
				fmt.Fprintf(cmd.OutOrStdout(), "Config file: %s\n", configPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&createBundleID, "bundle-id", "", "Application that new sessions are scoped to")
	cmd.Flags().BoolVar(&createRecover, "recover", false, "Relaunch the agent when it becomes unreachable")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := LoadConfig(configFile); err != nil {
				if os.IsNotExist(err) {
					return errConfigNotFound
				}
				return err
			}
			cfg := GetConfig()
			if jsonOutput {
				printJSON(cmd.OutOrStdout(), cfg)
				return nil
			}
			cfg.Print(cmd)
			return nil
		},
	}
}

var errConfigNotFound = errors.New(`wdactl config file not found. Configure wdactl with "wdactl config create" first`)

func resolveConfigPath() (string, error) {
	if configFile != "" {
		return configFile, nil
	}
	configPath, err := GetDefaultConfigPath()
	if err != nil {
		return "", fmt.Errorf("failed to get default config path: %w", err)
	}
	return configPath, nil
}
