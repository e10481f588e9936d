package generation

import (
	"fmt"
	"strings"
)

// Device is the compute target a generation runs on.
type Device int

const (
	DeviceCPU Device = iota
	DeviceCUDA
	DeviceMPS
)

// Devices lists every supported device in declaration order.
var Devices = []Device{DeviceCPU, DeviceCUDA, DeviceMPS}

// ParseDevice maps a wire name ("cpu", "cuda", "mps") to a Device. Names are
// case-sensitive.
func ParseDevice(name string) (Device, error) {
	switch name {
	case "cpu":
		return DeviceCPU, nil
	case "cuda":
		return DeviceCUDA, nil
	case "mps":
		return DeviceMPS, nil
	default:
		return DeviceCPU, fmt.Errorf("unknown device: %q", name)
	}
}

func (d Device) String() string {
	switch d {
	case DeviceCPU:
		return "cpu"
	case DeviceCUDA:
		return "cuda"
	case DeviceMPS:
		return "mps"
	default:
		return fmt.Sprintf("device(%d)", int(d))
	}
}

// displayName is the name used in user-facing availability errors.
func (d Device) displayName() string {
	switch d {
	case DeviceCUDA:
		return "CUDA"
	case DeviceMPS:
		return "MPS"
	default:
		return strings.ToUpper(d.String())
	}
}
