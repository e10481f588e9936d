// Package configcmder provides the config command for managing persistent
// textgen configuration stored in the .textgen/ directory.
package configcmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/textgen/pkg/cliui"
	"github.com/papercomputeco/textgen/pkg/config"
)

const configLongDesc string = `Manage persistent textgen configuration.

Configuration is stored as config.toml in the .textgen/ directory and provides
default values for command flags. CLI flags and TEXTGEN_ environment variables
take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  server.listen, server.request_timeout, server.rate_limit, server.rate_burst,
  engine.backend, engine.upstream, engine.model, engine.api_key,
  engine.encoding, engine.queue_size, engine.workers,
  devices.cuda, devices.mps,
  events.provider, events.brokers, events.topic,
  mcp.enabled, log.json, log.pretty, log.debug, client.target

Use subcommands to create, get, set, or list configuration values:
  textgen config init               Create a config.toml
  textgen config set <key> <value>  Set a configuration value
  textgen config get <key>          Get a configuration value
  textgen config list               List all configuration values

Examples:
  textgen config init --preset vllm
  textgen config set engine.model gpt2-medium
  textgen config get server.listen
  textgen config list`

const configShortDesc string = "Manage persistent textgen configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func printTarget(w io.Writer, cfger *config.Configer) {
	if target := cfger.GetTarget(); target != "" {
		fmt.Fprintf(w, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
		return
	}
	fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
}

func keyArgs(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}
