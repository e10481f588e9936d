// Package versioncmder prints build information.
package versioncmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/textgen/pkg/cliui"
	"github.com/papercomputeco/textgen/pkg/utils"
)

func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the textgen version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s %s\n", cliui.KeyStyle.Render("version:"), utils.Version)
			fmt.Fprintf(w, "%s %s\n", cliui.KeyStyle.Render("commit: "), utils.Sha)
			fmt.Fprintf(w, "%s %s\n", cliui.KeyStyle.Render("built:  "), utils.Buildtime)
			return nil
		},
	}
}
