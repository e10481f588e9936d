// Package devicescmder provides the devices command, which reports the
// devices this host can serve generations on.
package devicescmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/textgen/pkg/cliui"
	"github.com/papercomputeco/textgen/pkg/config"
	"github.com/papercomputeco/textgen/pkg/devices"
	"github.com/papercomputeco/textgen/pkg/generation"
)

var devicesFlags = config.FlagSet{
	config.FlagCUDA: {Name: "cuda", ViperKey: "devices.cuda", Description: "CUDA availability (auto, on, off)"},
	config.FlagMPS:  {Name: "mps", ViperKey: "devices.mps", Description: "MPS availability (auto, on, off)"},
}

var devicesFlagKeys = []string{config.FlagCUDA, config.FlagMPS}

type devicesCommander struct {
	cuda string
	mps  string

	viper *viper.Viper
}

const devicesLongDesc string = `Show which devices this host can serve.

cpu is always available. cuda and mps follow devices.cuda and devices.mps:
"auto" probes the host, "on" and "off" force the answer. The same settings
decide which "device" values textgen serve accepts.

Examples:
  textgen devices
  textgen devices --cuda off`

const devicesShortDesc string = "Show available devices"

func NewDevicesCmd() *cobra.Command {
	cmder := &devicesCommander{}

	cmd := &cobra.Command{
		Use:   "devices",
		Short: devicesShortDesc,
		Long:  devicesLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, devicesFlags, devicesFlagKeys)
			cmder.viper = v
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.OutOrStdout())
		},
	}

	config.AddStringFlag(cmd, devicesFlags, config.FlagCUDA, &cmder.cuda)
	config.AddStringFlag(cmd, devicesFlags, config.FlagMPS, &cmder.mps)

	return cmd
}

func (c *devicesCommander) run(w io.Writer) error {
	cuda, err := devices.ParseMode(c.viper.GetString("devices.cuda"))
	if err != nil {
		return fmt.Errorf("devices.cuda: %w", err)
	}
	mps, err := devices.ParseMode(c.viper.GetString("devices.mps"))
	if err != nil {
		return fmt.Errorf("devices.mps: %w", err)
	}

	prober := devices.NewProber(devices.Config{CUDA: cuda, MPS: mps})
	modes := map[generation.Device]devices.Mode{
		generation.DeviceCUDA: cuda,
		generation.DeviceMPS:  mps,
	}

	fmt.Fprintln(w)
	for _, d := range generation.Devices {
		line := fmt.Sprintf("  %-6s %s", cliui.KeyStyle.Render(d.String()), cliui.Availability(prober.Available(d)))
		if m, ok := modes[d]; ok && m != devices.ModeAuto {
			line += " " + cliui.DimStyle.Render("(forced "+string(m)+")")
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w)

	return nil
}
