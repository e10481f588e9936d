// Package devices probes the host for accelerator support.
package devices

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/papercomputeco/textgen/pkg/generation"
)

// Mode controls how a device's availability is decided.
type Mode string

const (
	ModeAuto Mode = "auto"
	ModeOn   Mode = "on"
	ModeOff  Mode = "off"
)

// ParseMode accepts auto, on and off plus the usual boolean spellings.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ModeAuto, nil
	case "on", "true", "yes", "1":
		return ModeOn, nil
	case "off", "false", "no", "0":
		return ModeOff, nil
	default:
		return "", fmt.Errorf("invalid device mode %q (expected auto, on, or off)", s)
	}
}

// nvidiaPaths exist when the NVIDIA kernel driver is loaded.
var nvidiaPaths = []string{
	"/proc/driver/nvidia/version",
	"/dev/nvidiactl",
}

// Config configures a Prober.
type Config struct {
	CUDA Mode
	MPS  Mode
}

// Prober answers availability questions from probes run once at
// construction.
type Prober struct {
	available map[generation.Device]bool
}

// NewProber probes the host, honoring the per-device modes in c.
func NewProber(c Config) *Prober {
	return newProber(c, hostProbe{})
}

// probe is the host inspection behind auto mode.
type probe interface {
	cuda() bool
	mps() bool
}

func newProber(c Config, p probe) *Prober {
	return &Prober{
		available: map[generation.Device]bool{
			generation.DeviceCPU:  true,
			generation.DeviceCUDA: resolve(c.CUDA, p.cuda),
			generation.DeviceMPS:  resolve(c.MPS, p.mps),
		},
	}
}

func resolve(m Mode, auto func() bool) bool {
	switch m {
	case ModeOn:
		return true
	case ModeOff:
		return false
	default:
		return auto()
	}
}

// Available reports whether d can be used.
func (p *Prober) Available(d generation.Device) bool {
	return p.available[d]
}

// Report returns the availability of every device.
func (p *Prober) Report() map[generation.Device]bool {
	out := make(map[generation.Device]bool, len(p.available))
	for d, ok := range p.available {
		out[d] = ok
	}
	return out
}

type hostProbe struct{}

func (hostProbe) cuda() bool {
	for _, path := range nvidiaPaths {
		if _, err := os.Stat(path); err == nil {
			return true
		}
	}
	_, err := exec.LookPath("nvidia-smi")
	return err == nil
}

func (hostProbe) mps() bool {
	return runtime.GOOS == "darwin" && runtime.GOARCH == "arm64"
}
