package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tansive/wdaclient/pkg/wda"
)

func newAppCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "app [command]",
		Short: "Launch, terminate and inspect applications",
		Long: `Launch, terminate and inspect applications.

Available Commands:
  launch     Launch an application
  terminate  Terminate an application
  state      Print the run state of an application
  current    Print the foreground application
  list       List running applications`,
	}
	cmd.AddCommand(newAppLaunchCmd())
	cmd.AddCommand(newAppTerminateCmd())
	cmd.AddCommand(newAppStateCmd())
	cmd.AddCommand(newAppCurrentCmd())
	cmd.AddCommand(newAppListCmd())
	return cmd
}

var (
	launchArgs []string
	launchEnv  map[string]string
)

func newAppLaunchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "launch BUNDLE_ID [flags]",
		Short: "Launch an application",
		Long: `Launch an application.

Examples:
  # Launch Settings
  wdactl app launch com.apple.Preferences

  # Launch with arguments and environment
  wdactl app launch com.example.app --arg -debug --env MODE=test`,
		Args: cobra.ExactArgs(1),
		RunE: deviceRunE(func(ctx context.Context, cmd *cobra.Command, client *wda.Client, args []string) error {
			if err := client.AppLaunch(ctx, args[0], launchArgs, launchEnv); err != nil {
				return err
			}
			printOK(cmd, "Launched %s", args[0])
			return nil
		}),
	}
	cmd.Flags().StringArrayVar(&launchArgs, "arg", nil, "Launch argument, may be repeated")
	cmd.Flags().StringToStringVar(&launchEnv, "env", nil, "Environment variable as KEY=VALUE, may be repeated")
	return cmd
}

func newAppTerminateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "terminate BUNDLE_ID",
		Short: "Terminate an application",
		Args:  cobra.ExactArgs(1),
		RunE: deviceRunE(func(ctx context.Context, cmd *cobra.Command, client *wda.Client, args []string) error {
			if err := client.AppTerminate(ctx, args[0]); err != nil {
				return err
			}
			printOK(cmd, "Terminated %s", args[0])
			return nil
		}),
	}
}

func newAppStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state BUNDLE_ID",
		Short: "Print the run state of an application",
		Args:  cobra.ExactArgs(1),
		RunE: deviceRunE(func(ctx context.Context, cmd *cobra.Command, client *wda.Client, args []string) error {
			state, err := client.AppState(ctx, args[0])
			if err != nil {
				return err
			}
			printResult(cmd, map[string]any{
				"bundle_id": args[0],
				"state":     int(state),
				"label":     state.String(),
			}, "%s: %s", args[0], state)
			return nil
		}),
	}
}

func newAppCurrentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "current",
		Short: "Print the foreground application",
		Args:  cobra.NoArgs,
		RunE: deviceRunE(func(ctx context.Context, cmd *cobra.Command, client *wda.Client, args []string) error {
			app, err := client.AppCurrent(ctx)
			if err != nil {
				return err
			}
			printResult(cmd, map[string]any{
				"name":      app.Name,
				"bundle_id": app.BundleID,
				"pid":       app.PID,
			}, "%s (%s, pid %d)", app.BundleID, app.Name, app.PID)
			return nil
		}),
	}
}

func newAppListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List running applications",
		Args:  cobra.NoArgs,
		RunE: deviceRunE(func(ctx context.Context, cmd *cobra.Command, client *wda.Client, args []string) error {
			apps, err := client.AppList(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				out := make([]map[string]any, 0, len(apps))
				for _, app := range apps {
					out = append(out, map[string]any{"bundle_id": app.BundleID, "pid": app.PID})
				}
				printJSON(cmd.OutOrStdout(), out)
				return nil
			}
			for _, app := range apps {
				fmt.Fprintf(cmd.OutOrStdout(), "%-40s %d\n", app.BundleID, app.PID)
			}
			return nil
		}),
	}
}
