package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tansive/wdaclient/pkg/wda"
)

func newAlertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alert [command]",
		Short: "Inspect and answer system alerts",
	}
	cmd.AddCommand(newAlertTextCmd())
	cmd.AddCommand(newAlertAcceptCmd())
	cmd.AddCommand(newAlertDismissCmd())
	cmd.AddCommand(newAlertClickCmd())
	return cmd
}

func newAlertTextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "text",
		Short: "Print the text and buttons of the visible alert",
		Args:  cobra.NoArgs,
		RunE: deviceRunE(func(ctx context.Context, cmd *cobra.Command, client *wda.Client, args []string) error {
			alert := client.Alert()
			text, err := alert.Text(ctx)
			if err != nil {
				return err
			}
			buttons, err := alert.Buttons(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				printJSON(cmd.OutOrStdout(), map[string]any{"text": text, "buttons": buttons})
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			if len(buttons) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Buttons: %s\n", strings.Join(buttons, ", "))
			}
			return nil
		}),
	}
}

func newAlertAcceptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accept",
		Short: "Accept the visible alert",
		Args:  cobra.NoArgs,
		RunE: deviceRunE(func(ctx context.Context, cmd *cobra.Command, client *wda.Client, args []string) error {
			if err := client.Alert().Accept(ctx); err != nil {
				return err
			}
			printOK(cmd, "Accepted")
			return nil
		}),
	}
}

func newAlertDismissCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dismiss",
		Short: "Dismiss the visible alert",
		Args:  cobra.NoArgs,
		RunE: deviceRunE(func(ctx context.Context, cmd *cobra.Command, client *wda.Client, args []string) error {
			if err := client.Alert().Dismiss(ctx); err != nil {
				return err
			}
			printOK(cmd, "Dismissed")
			return nil
		}),
	}
}

func newAlertClickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "click BUTTON [BUTTON...]",
		Short: "Tap the first listed button present on the alert",
		Long: `Tap the first listed button present on the alert. Nothing is tapped when
none of the buttons is present.

Examples:
  wdactl alert click Allow "Allow While Using App"`,
		Args: cobra.MinimumNArgs(1),
		RunE: deviceRunE(func(ctx context.Context, cmd *cobra.Command, client *wda.Client, args []string) error {
			clicked, err := client.Alert().ClickFirst(ctx, args...)
			if err != nil {
				return err
			}
			if clicked == "" {
				if jsonOutput {
					printJSON(cmd.OutOrStdout(), map[string]any{"result": 0})
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "No matching button")
				}
				return nil
			}
			printResult(cmd, map[string]any{"result": 1, "clicked": clicked}, "Clicked %s", clicked)
			return nil
		}),
	}
}
