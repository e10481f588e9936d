// Package textgencmder is the root textgen command.
package textgencmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/textgen/cmd/textgen/config"
	devicescmder "github.com/papercomputeco/textgen/cmd/textgen/devices"
	predictcmder "github.com/papercomputeco/textgen/cmd/textgen/predict"
	servecmder "github.com/papercomputeco/textgen/cmd/textgen/serve"
	versioncmder "github.com/papercomputeco/textgen/cmd/textgen/version"
)

const textgenLongDesc string = `textgen serves text generation over HTTP.

Run the service and talk to it using:
  textgen serve              Run the HTTP service
  textgen predict <prompt>   Send a prompt to a running service
  textgen devices            Show which devices this host can serve
  textgen config             Manage persistent configuration`

const textgenShortDesc string = "textgen - text generation service"

func NewTextgenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "textgen",
		Short:        textgenShortDesc,
		Long:         textgenLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to the .textgen/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(predictcmder.NewPredictCmd())
	cmd.AddCommand(devicescmder.NewDevicesCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
