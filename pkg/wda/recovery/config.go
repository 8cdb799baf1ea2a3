package recovery

import (
	"time"

	"github.com/mitchellh/mapstructure"
)

const (
	DefaultCommand       = "tidevice"
	DefaultLaunchTimeout = 20 * time.Second
	DefaultDrainWindow   = 10 * time.Second

	// ReadyMarker is the line the launcher prints once the agent accepts
	// connections.
	ReadyMarker = "WebDriverAgent start successfully"
)

// Config describes how to relaunch the agent on a device.
type Config struct {
	Command string            `mapstructure:"command"` // launcher binary, DefaultCommand if empty
	UDID    string            `mapstructure:"udid"`
	Args    []string          `mapstructure:"args"` // replaces "-u <udid> xctest" when set
	Env     map[string]string `mapstructure:"env"`

	// LaunchTimeout bounds how long Recover waits for a verdict.
	LaunchTimeout time.Duration `mapstructure:"launch_timeout"`
	// DrainWindow bounds how long the output is searched for ReadyMarker.
	DrainWindow time.Duration `mapstructure:"drain_window"`
}

// DecodeConfig builds a Config from a free-form map, as found in the
// "recover" section of the wdactl configuration. Durations may be given as
// strings such as "15s".
func DecodeConfig(m map[string]any) (Config, error) {
	var cfg Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(" "),
		),
	})
	if err != nil {
		return Config{}, ErrInvalidConfig.MsgErr("unable to create decoder", err)
	}
	if err := dec.Decode(m); err != nil {
		return Config{}, ErrInvalidConfig.MsgErr("unable to decode recovery config", err)
	}
	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.Command == "" {
		c.Command = DefaultCommand
	}
	if c.LaunchTimeout == 0 {
		c.LaunchTimeout = DefaultLaunchTimeout
	}
	if c.DrainWindow == 0 {
		c.DrainWindow = DefaultDrainWindow
	}
}

// Validate checks the config after defaults are applied.
func (c *Config) Validate() error {
	if c.UDID == "" && len(c.Args) == 0 {
		return ErrInvalidConfig.Msg("udid is required")
	}
	if c.LaunchTimeout < 0 || c.DrainWindow < 0 {
		return ErrInvalidConfig.Msg("timeouts must not be negative")
	}
	return nil
}

func (c *Config) args() []string {
	if len(c.Args) > 0 {
		return c.Args
	}
	return []string{"-u", c.UDID, "xctest"}
}
