package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/tansive/wdaclient/pkg/wda"
	"github.com/tansive/wdaclient/pkg/wda/actions"
)

var (
	actionFile string
	dryRun     bool
	fileVars   map[string]string
)

func newActionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actions -f FILE [flags]",
		Short: "Perform W3C actions from a file",
		Long: `Perform W3C actions from a YAML or JSON file. A YAML file may hold several
documents separated by ---, which are performed in order. The file may
reference environment variables as {{ .ENV.NAME }} and command line values as
{{ .VARS.NAME }}.

Examples:
  # Perform the actions in swipe.yaml
  wdactl actions -f swipe.yaml

  # Print the request bodies without contacting the agent
  wdactl actions -f swipe.yaml --dry-run

  # Fill in a coordinate
  wdactl actions -f tap.yaml --set x=120 --set y=640`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return performFile(cmd, "actions", func(f *actions.File) (any, error) {
				if len(f.Actions) == 0 {
					return nil, errors.New("document has no actions; use \"wdactl touch\" for gestures")
				}
				return actions.NewRequest(f.Actions...)
			}, func(ctx context.Context, client *wda.Client, f *actions.File) error {
				return client.PerformActions(ctx, f.Actions...)
			})
		},
	}
	addFileFlags(cmd)
	return cmd
}

func newTouchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "touch -f FILE [flags]",
		Short: "Perform legacy touch gestures from a file",
		Long: `Perform legacy touch gestures from a YAML or JSON file. Files are handled
as for "wdactl actions".

Example file:
  gestures:
    - action: press
      options: {x: 100, y: 200}
    - action: wait
      options: {ms: 300}
    - action: moveTo
      options: {x: 100, y: 600}
    - action: release`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return performFile(cmd, "gestures", func(f *actions.File) (any, error) {
				if len(f.Gestures) == 0 {
					return nil, errors.New("document has no gestures; use \"wdactl actions\" for W3C actions")
				}
				return actions.NewTouchRequest(f.Gestures...)
			}, func(ctx context.Context, client *wda.Client, f *actions.File) error {
				return client.TouchPerform(ctx, f.Gestures...)
			})
		},
	}
	addFileFlags(cmd)
	return cmd
}

// performFile loads the action file and performs each document with
// perform, or prints the request built by build for each under --dry-run.
func performFile(cmd *cobra.Command, what string,
	build func(*actions.File) (any, error),
	perform func(context.Context, *wda.Client, *actions.File) error,
) error {
	files, err := loadActionFile(cmd)
	if err != nil {
		return err
	}
	for i, f := range files {
		req, err := build(f)
		if err != nil {
			return fmt.Errorf("document %d: %w", i+1, err)
		}
		if dryRun {
			if err := printCanonical(cmd, req); err != nil {
				return err
			}
		}
	}
	if dryRun {
		return nil
	}

	client, _, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()
	ctx := commandContext(cmd)
	for i, f := range files {
		if err := perform(ctx, client, f); err != nil {
			return fmt.Errorf("document %d: %w", i+1, err)
		}
	}
	printOK(cmd, "Performed %d %s documents", len(files), what)
	return nil
}

// loadActionFile reads -f, "-" meaning stdin, renders its template and
// parses every document.
func loadActionFile(cmd *cobra.Command) ([]*actions.File, error) {
	if actionFile == "" {
		return nil, errors.New("an action file is required (-f)")
	}
	var (
		data []byte
		err  error
	)
	if actionFile == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(actionFile)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read action file: %w", err)
	}
	data, err = PreprocessActionFile(data, fileVars)
	if err != nil {
		return nil, err
	}
	return ParseActionDocuments(data)
}

func printCanonical(cmd *cobra.Command, v any) error {
	out, err := actions.Canonical(v)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func addFileFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&actionFile, "file", "f", "", "Action file, - for stdin")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the canonical request body and exit")
	cmd.Flags().StringToStringVar(&fileVars, "set", nil, "Template value as NAME=VALUE, may be repeated")
}
