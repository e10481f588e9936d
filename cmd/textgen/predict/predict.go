// Package predictcmder provides the predict command, a client for a running
// textgen service.
package predictcmder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/papercomputeco/textgen/api"
	"github.com/papercomputeco/textgen/pkg/cliui"
	"github.com/papercomputeco/textgen/pkg/config"
	"github.com/papercomputeco/textgen/pkg/generation"
	"github.com/papercomputeco/textgen/pkg/logger"
	"github.com/papercomputeco/textgen/pkg/utils"
)

var predictFlags = config.FlagSet{
	config.FlagTarget: {Name: "target", Shorthand: "t", ViperKey: "client.target", Description: "textgen service URL"},
}

var predictFlagKeys = []string{config.FlagTarget}

type predictCommander struct {
	target string

	maxLength   int
	temperature float64
	topK        int
	topP        float64
	doSample    bool
	device      string
	timeout     float64
	markdown    bool

	viper  *viper.Viper
	logger *slog.Logger
}

const predictLongDesc string = `Send a prompt to a running textgen service.

The prompt is taken from the arguments, or read from stdin when no
arguments are given. Only the sampling flags you pass are sent; the
service applies its defaults to the rest.

Examples:
  textgen predict "Once upon a time"
  textgen predict "The answer is" --max-length 20 --do-sample=false
  echo "Hello world" | textgen predict --device cuda
  textgen predict "# Title" --markdown`

const predictShortDesc string = "Generate text from a prompt"

func NewPredictCmd() *cobra.Command {
	cmder := &predictCommander{}

	cmd := &cobra.Command{
		Use:   "predict [prompt]",
		Short: predictShortDesc,
		Long:  predictLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, predictFlags, predictFlagKeys)
			cmder.viper = v
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := readPrompt(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			debug, _ := cmd.Flags().GetBool("debug")
			cmder.logger = logger.New(
				logger.WithDebug(debug),
				logger.WithPretty(true),
				logger.WithWriter(cmd.ErrOrStderr()),
			)

			return cmder.run(cmd, prompt)
		},
	}

	config.AddStringFlag(cmd, predictFlags, config.FlagTarget, &cmder.target)

	cmd.Flags().IntVar(&cmder.maxLength, "max-length", generation.DefaultMaxLength, "Total length of the output in tokens, prompt included")
	cmd.Flags().Float64Var(&cmder.temperature, "temperature", generation.DefaultTemperature, "Sampling temperature")
	cmd.Flags().IntVar(&cmder.topK, "top-k", generation.DefaultTopK, "Top-k cutoff (0 disables)")
	cmd.Flags().Float64Var(&cmder.topP, "top-p", generation.DefaultTopP, "Nucleus sampling mass")
	cmd.Flags().BoolVar(&cmder.doSample, "do-sample", generation.DefaultDoSample, "Sample instead of greedy decoding")
	cmd.Flags().StringVar(&cmder.device, "device", "cpu", "Device to generate on (cpu, cuda, mps)")
	cmd.Flags().Float64Var(&cmder.timeout, "timeout", 0, "Per-request timeout in seconds (0 uses the server default)")
	cmd.Flags().BoolVar(&cmder.markdown, "markdown", false, "Render the generated text as markdown")

	return cmd
}

func (c *predictCommander) run(cmd *cobra.Command, prompt string) error {
	target := c.viper.GetString("client.target")
	req := c.buildRequest(cmd, prompt)

	c.logger.Debug("sending prompt",
		"target", target,
		"prompt", utils.Truncate(prompt, 60),
	)

	var text string
	call := func() error {
		var err error
		text, err = Predict(cmd.Context(), target, req)
		return err
	}

	var err error
	if isTerminal(cmd.ErrOrStderr()) {
		err = cliui.Step(cmd.ErrOrStderr(), "Generating", call)
	} else {
		err = call()
	}
	if err != nil {
		return err
	}

	if c.markdown {
		rendered, err := cliui.RenderMarkdown(text)
		if err != nil {
			c.logger.Debug("markdown render failed", "error", err)
		}
		text = rendered
	}

	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}

// buildRequest copies the flags the user set into a request.
func (c *predictCommander) buildRequest(cmd *cobra.Command, prompt string) *generation.Request {
	req := generation.NewRequest(prompt)
	flags := cmd.Flags()

	if flags.Changed("max-length") {
		req.MaxLength = &c.maxLength
	}
	if flags.Changed("temperature") {
		req.Temperature = &c.temperature
	}
	if flags.Changed("top-k") {
		req.TopK = &c.topK
	}
	if flags.Changed("top-p") {
		req.TopP = &c.topP
	}
	if flags.Changed("do-sample") {
		req.DoSample = &c.doSample
	}
	if flags.Changed("device") {
		req.Device = &c.device
	}
	if flags.Changed("timeout") {
		req.Timeout = &c.timeout
	}

	return req
}

// Predict posts req to the /predict route of the service at target and
// returns the generated text. Non-200 responses become errors carrying the
// service's detail message.
func Predict(ctx context.Context, target string, req *generation.Request) (string, error) {
	predictURL, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid target URL: %w", err)
	}
	predictURL.Path = strings.TrimRight(predictURL.Path, "/") + "/predict"

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, predictURL.String(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating predict request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to connect to textgen at %s: %w", target, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp api.ErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Detail != "" {
			return "", fmt.Errorf("predict failed (HTTP %d): %s", resp.StatusCode, errResp.Detail)
		}
		return "", fmt.Errorf("predict failed (HTTP %d): %s", resp.StatusCode, string(respBody))
	}

	var out api.PredictResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("failed to parse predict response: %w", err)
	}

	return out.GeneratedText, nil
}

func readPrompt(stdin io.Reader, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}

	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "", errors.New("no prompt given: pass it as an argument or pipe it on stdin")
	}

	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading prompt from stdin: %w", err)
	}

	return strings.TrimRight(string(data), "\n"), nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
