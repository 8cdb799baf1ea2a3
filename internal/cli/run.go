package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tansive/wdaclient/internal/common/jsruntime"
	"github.com/tansive/wdaclient/pkg/wda"
)

var (
	scriptArgs    map[string]string
	scriptTimeout time.Duration
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run SCRIPT [flags]",
		Short: "Run a gesture script",
		Long: `Run a gesture script. The script is a JavaScript function receiving the
device and the arguments given with --arg. Argument values that parse as JSON
are passed decoded, anything else is passed as a string.

Example script:
  function(device, args) {
    var size = device.windowSize();
    device.swipe(size.width / 2, size.height * 0.8, size.width / 2, size.height * 0.2);
    return { swiped: true };
  }

Examples:
  wdactl run scroll.js
  wdactl run tap.js --arg x=120 --arg y=640`,
		Args: cobra.ExactArgs(1),
		RunE: deviceRunE(runScript),
	}
	cmd.Flags().StringToStringVar(&scriptArgs, "arg", nil, "Script argument as NAME=VALUE, may be repeated")
	cmd.Flags().DurationVar(&scriptTimeout, "script-timeout", jsruntime.DefaultTimeout, "Maximum run time of the script")
	return cmd
}

func runScript(ctx context.Context, cmd *cobra.Command, client *wda.Client, args []string) error {
	code, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("unable to read script: %w", err)
	}
	fn, jsErr := jsruntime.New(ctx, string(code))
	if jsErr != nil {
		return jsErr
	}
	result, jsErr := fn.Run(ctx, client, scriptArguments(scriptArgs), jsruntime.Options{Timeout: scriptTimeout})
	if jsErr != nil {
		return jsErr
	}

	if jsonOutput {
		printJSON(cmd.OutOrStdout(), map[string]any{"result": result})
		return nil
	}
	if result != nil {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("unable to format script result: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
	}
	return nil
}

// scriptArguments decodes each value as JSON when it parses, keeping it as
// a string otherwise.
func scriptArguments(raw map[string]string) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err == nil {
			out[k] = decoded
		} else {
			out[k] = v
		}
	}
	return out
}
