package cli

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tansive/wdaclient/internal/mcpservice"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve device tools over MCP on stdin and stdout",
		Long: `Serve device tools over MCP on stdin and stdout, so an MCP client can
drive the device. Logs go to stderr.

Example client configuration:
  {"command": "wdactl", "args": ["mcp"]}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			client, recoverer, err := newClient()
			if err != nil {
				return err
			}
			defer client.Close()
			if recoverer != nil {
				// a launcher started while serving does not outlive the server
				defer recoverer.Close()
			}

			svc, svcErr := mcpservice.New(ctx, client, getCLIVersion())
			if svcErr != nil {
				return svcErr
			}
			log.Ctx(ctx).Info().Str("agent", client.URL()).Msg("serving MCP on stdio")
			return svc.ServeStdio(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
