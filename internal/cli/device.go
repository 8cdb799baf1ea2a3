package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/tansive/wdaclient/pkg/wda"
)

// newStatusCmd creates the status command
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Get agent status",
		Long: `Get agent status. This command never creates a session.

Examples:
  # Get agent status
  wdactl status

  # Get agent status in JSON format
  wdactl status -j`,
		RunE: deviceRunE(getStatus),
	}
}

// getStatus handles retrieving agent status information
func getStatus(ctx context.Context, cmd *cobra.Command, client *wda.Client, args []string) error {
	status, err := client.Status(ctx)
	if err != nil {
		if jsonOutput {
			kv := errorOutput(err)
			kv["version_cli"] = getCLIVersion()
			printJSON(cmd.OutOrStdout(), kv)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "wdactl %s\n", getCLIVersion())
			errorLabel.Fprintf(cmd.OutOrStdout(), "Error: Unable to reach agent at %s: %v\n", client.URL(), err)
		}
		return ErrAlreadyHandled
	}

	if jsonOutput {
		printJSON(cmd.OutOrStdout(), map[string]any{
			"result":      1,
			"version_cli": getCLIVersion(),
			"value": map[string]any{
				"state":         status.State,
				"ready":         status.Ready,
				"ip":            status.IP,
				"session_id":    status.SessionID,
				"agent_version": status.Build.Version,
			},
		})
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wdactl %s\n", getCLIVersion())
	printStatusPretty(cmd, status)
	return nil
}

// printStatusPretty prints the status information in a human-readable format
func printStatusPretty(cmd *cobra.Command, status *wda.StatusInfo) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "State: %s\n", status.State)
	fmt.Fprintf(out, "Ready: %t\n", status.Ready)
	if status.IP != "" {
		fmt.Fprintf(out, "IP: %s\n", status.IP)
	}
	if status.Build.Version != "" {
		fmt.Fprintf(out, "Agent Version: %s\n", status.Build.Version)
	}
	if status.SessionID != "" {
		fmt.Fprintf(out, "Session: %s\n", status.SessionID)
	}
}

func newSessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "session",
		Short: "Print the current session id, creating a session if needed",
		Args:  cobra.NoArgs,
		RunE: deviceRunE(func(ctx context.Context, cmd *cobra.Command, client *wda.Client, args []string) error {
			id, err := client.SessionID(ctx)
			if err != nil {
				return err
			}
			printResult(cmd, map[string]string{"session_id": id}, "%s", id)
			return nil
		}),
	}
}

// intArgs parses every positional argument as an integer.
func intArgs(args []string) ([]int, error) {
	out := make([]int, len(args))
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("invalid coordinate %q", a)
		}
		out[i] = v
	}
	return out, nil
}

func newTapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tap X Y",
		Short: "Tap a point on the screen",
		Args:  cobra.ExactArgs(2),
		RunE: deviceRunE(func(ctx context.Context, cmd *cobra.Command, client *wda.Client, args []string) error {
			p, err := intArgs(args)
			if err != nil {
				return err
			}
			if err := client.Tap(ctx, p[0], p[1]); err != nil {
				return err
			}
			printOK(cmd, "Tapped (%d, %d)", p[0], p[1])
			return nil
		}),
	}
}

var swipeDuration time.Duration

func newSwipeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "swipe FROM_X FROM_Y TO_X TO_Y",
		Short: "Swipe between two points",
		Long: `Swipe between two points.

Examples:
  # Scroll up over half a second
  wdactl swipe 200 600 200 200 --duration 500ms`,
		Args: cobra.ExactArgs(4),
		RunE: deviceRunE(func(ctx context.Context, cmd *cobra.Command, client *wda.Client, args []string) error {
			p, err := intArgs(args)
			if err != nil {
				return err
			}
			if err := client.Swipe(ctx, p[0], p[1], p[2], p[3], swipeDuration); err != nil {
				return err
			}
			printOK(cmd, "Swiped (%d, %d) -> (%d, %d)", p[0], p[1], p[2], p[3])
			return nil
		}),
	}
	cmd.Flags().DurationVar(&swipeDuration, "duration", 500*time.Millisecond, "Swipe duration")
	return cmd
}

var pressDuration time.Duration

func newPressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "press BUTTON",
		Short: "Press a hardware button",
		Long: `Press a hardware button: home, volumeUp or volumeDown. With --duration the
button is held, and power, snapshot and power_plus_home are also accepted.`,
		Args: cobra.ExactArgs(1),
		RunE: deviceRunE(func(ctx context.Context, cmd *cobra.Command, client *wda.Client, args []string) error {
			var err error
			if pressDuration > 0 {
				err = client.PressDuration(ctx, args[0], pressDuration)
			} else {
				err = client.Press(ctx, wda.Keycode(args[0]))
			}
			if err != nil {
				return err
			}
			printOK(cmd, "Pressed %s", args[0])
			return nil
		}),
	}
	cmd.Flags().DurationVar(&pressDuration, "duration", 0, "Hold the button for this long")
	return cmd
}

func newKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys TEXT",
		Short: "Type text into the focused element",
		Args:  cobra.ExactArgs(1),
		RunE: deviceRunE(func(ctx context.Context, cmd *cobra.Command, client *wda.Client, args []string) error {
			if err := client.SendKeys(ctx, args[0]); err != nil {
				return err
			}
			printOK(cmd, "Typed %d characters", len([]rune(args[0])))
			return nil
		}),
	}
}

func newWindowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "window",
		Short: "Print the window size in points",
		Args:  cobra.NoArgs,
		RunE: deviceRunE(func(ctx context.Context, cmd *cobra.Command, client *wda.Client, args []string) error {
			size, err := client.WindowSize(ctx)
			if err != nil {
				return err
			}
			printResult(cmd, map[string]int{"width": size.Width, "height": size.Height}, "%dx%d", size.Width, size.Height)
			return nil
		}),
	}
}

var screenshotOutput string

func newScreenshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "screenshot",
		Short: "Save a screenshot",
		Long: `Save a screenshot. The file extension follows the detected image format
unless -o names the file.`,
		Args: cobra.NoArgs,
		RunE: deviceRunE(func(ctx context.Context, cmd *cobra.Command, client *wda.Client, args []string) error {
			shot, err := client.Screenshot(ctx)
			if err != nil {
				return err
			}
			path := screenshotOutput
			if path == "" {
				path = "screenshot." + shot.Extension
			}
			if err := os.WriteFile(path, shot.Data, 0644); err != nil {
				return fmt.Errorf("unable to write screenshot: %w", err)
			}
			printResult(cmd, map[string]any{
				"file":  path,
				"mime":  shot.MIME,
				"bytes": len(shot.Data),
			}, "Saved %s (%s, %d bytes)", path, shot.MIME, len(shot.Data))
			return nil
		}),
	}
	cmd.Flags().StringVarP(&screenshotOutput, "output", "o", "", "Output file")
	return cmd
}

func newSourceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "source",
		Short: "Print the UI hierarchy",
		Args:  cobra.NoArgs,
		RunE: deviceRunE(func(ctx context.Context, cmd *cobra.Command, client *wda.Client, args []string) error {
			tree, err := client.Source(ctx)
			if err != nil {
				return err
			}
			printResult(cmd, map[string]string{"source": tree.Value}, "%s", tree.Value)
			return nil
		}),
	}
}

// simpleCmd builds a command around a single argument-less client call.
func simpleCmd(use, short, done string, call func(*wda.Client, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: deviceRunE(func(ctx context.Context, cmd *cobra.Command, client *wda.Client, args []string) error {
			if err := call(client, ctx); err != nil {
				return err
			}
			printOK(cmd, "%s", done)
			return nil
		}),
	}
}

// addDeviceCmds adds the commands that operate the device directly.
func addDeviceCmds(root *cobra.Command) {
	root.AddCommand(newStatusCmd())
	root.AddCommand(newSessionCmd())
	root.AddCommand(newTapCmd())
	root.AddCommand(newSwipeCmd())
	root.AddCommand(newPressCmd())
	root.AddCommand(newKeysCmd())
	root.AddCommand(newWindowCmd())
	root.AddCommand(newScreenshotCmd())
	root.AddCommand(newSourceCmd())
	root.AddCommand(simpleCmd("lock", "Lock the screen", "Locked", (*wda.Client).Lock))
	root.AddCommand(simpleCmd("unlock", "Unlock the screen", "Unlocked", (*wda.Client).Unlock))
	root.AddCommand(simpleCmd("home", "Go to the home screen", "Home", (*wda.Client).Homescreen))
}
