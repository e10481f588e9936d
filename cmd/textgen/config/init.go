package configcmder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/textgen/pkg/cliui"
	"github.com/papercomputeco/textgen/pkg/config"
	"github.com/papercomputeco/textgen/pkg/dotdir"
)

const initLongDesc string = `Create a config.toml.

Writes the default configuration, optionally pointed at a backend preset,
into a .textgen/ directory. The directory is ./.textgen unless --global
(~/.textgen) or --config-dir is given. An existing config.toml is left
alone unless --force is passed.

Presets:
  ollama   Ollama on localhost:11434 (default backend)
  vllm     vLLM OpenAI-compatible server on localhost:8001
  openai   OpenAI completions API (set engine.api_key afterwards)

Examples:
  textgen config init
  textgen config init --preset vllm
  textgen config init --global --preset openai`

const initShortDesc string = "Create a config.toml"

type initCommander struct {
	preset string
	global bool
	force  bool
}

func newInitCmd() *cobra.Command {
	cmder := &initCommander{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return cmder.run(cmd.OutOrStdout(), configDir)
		},
	}

	cmd.Flags().StringVarP(&cmder.preset, "preset", "p", "", "Backend preset ("+strings.Join(config.ValidPresetNames(), ", ")+")")
	cmd.Flags().BoolVarP(&cmder.global, "global", "g", false, "Write to ~/.textgen instead of ./.textgen")
	cmd.Flags().BoolVarP(&cmder.force, "force", "f", false, "Overwrite an existing config.toml")

	_ = cmd.RegisterFlagCompletionFunc("preset", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return config.ValidPresetNames(), cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func (c *initCommander) run(w io.Writer, configDir string) error {
	dir, err := c.resolveDir(configDir)
	if err != nil {
		return err
	}

	cfg := config.NewDefaultConfig()
	if c.preset != "" {
		cfg, err = config.PresetConfig(c.preset)
		if err != nil {
			return err
		}
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	path := cfger.GetTarget()
	if _, err := os.Stat(path); err == nil && !c.force {
		return fmt.Errorf("%s already exists: pass --force to overwrite", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking config: %w", err)
	}

	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n  %s Wrote %s\n", cliui.SuccessMark, cliui.ValueStyle.Render(path))
	fmt.Fprintf(w, "  %s %s\n\n",
		cliui.KeyStyle.Render("Backend:"),
		cliui.DimStyle.Render(cfg.Engine.Backend+" @ "+cfg.Engine.Upstream+" ("+cfg.Engine.Model+")"),
	)
	return nil
}

func (c *initCommander) resolveDir(configDir string) (string, error) {
	if configDir != "" {
		return configDir, nil
	}

	if c.global {
		return dotdir.NewManager().HomeDir()
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	return filepath.Join(cwd, ".textgen"), nil
}
