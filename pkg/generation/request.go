package generation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"
)

const (
	DefaultMaxLength   = 50
	DefaultTemperature = 1.0
	DefaultTopK        = 50
	DefaultTopP        = 1.0
	DefaultDoSample    = true

	MaxMaxLength   = 1000
	MaxTemperature = 2.0
	MaxTopK        = 1000
	MaxTopP        = 1.0

	// MaxTimeout bounds the per-request timeout, in seconds.
	MaxTimeout = 3600
)

// Request is the wire form of a generation request. Optional fields are
// pointers so omitted values can take their defaults.
type Request struct {
	Prompt      *string  `json:"prompt"`
	MaxLength   *int     `json:"max_length,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	DoSample    *bool    `json:"do_sample,omitempty"`
	Device      *string  `json:"device,omitempty"`

	// Timeout is in seconds. Zero defers to the server default.
	Timeout *float64 `json:"timeout,omitempty"`
}

// Params are the sampling parameters handed to the engine.
type Params struct {
	MaxLength   int
	Temperature float64
	TopK        int
	TopP        float64
	DoSample    bool
}

// Greedy reports whether the engine should decode deterministically.
// A zero temperature with sampling enabled is treated as greedy.
func (p Params) Greedy() bool {
	return !p.DoSample || p.Temperature == 0
}

// Options is a validated Request with every default applied.
type Options struct {
	Prompt  string
	Device  Device
	Timeout time.Duration
	Params  Params
}

// NewRequest builds a Request for prompt with every other field left to
// its default.
func NewRequest(prompt string) *Request {
	return &Request{Prompt: &prompt}
}

// DecodeRequest parses a JSON request body. Malformed JSON and fields of the
// wrong JSON type are reported as InvalidArgument errors naming the field.
func DecodeRequest(body []byte) (*Request, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, InvalidArgument("Request body must be a JSON object.")
	}

	req := &Request{}
	if err := json.Unmarshal(body, req); err != nil {
		return nil, DecodeError(err)
	}

	return req, nil
}

// DecodeError converts a JSON decoding error for a Request body into an
// InvalidArgument error naming the offending field.
func DecodeError(err error) *Error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		if typeErr.Field == "" {
			return InvalidArgument("Request body must be a JSON object.")
		}
		return InvalidArgument(fmt.Sprintf("%s must be %s.", typeErr.Field, jsonTypeName(typeErr.Type)))
	}

	return InvalidArgument("Request body is not valid JSON.")
}

func jsonTypeName(t reflect.Type) string {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "a valid value"
	}

	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "an integer"
	case reflect.Float32, reflect.Float64:
		return "a number"
	case reflect.Bool:
		return "a boolean"
	case reflect.String:
		return "a string"
	default:
		return "a valid value"
	}
}

// Validate checks bounds and the device name, then the prompt content, and
// returns the request with defaults applied. Only the first violation is
// reported.
func (r *Request) Validate() (*Options, error) {
	if r.Prompt == nil {
		return nil, InvalidArgument("prompt is required.")
	}

	opts := &Options{
		Prompt: *r.Prompt,
		Device: DeviceCPU,
		Params: Params{
			MaxLength:   DefaultMaxLength,
			Temperature: DefaultTemperature,
			TopK:        DefaultTopK,
			TopP:        DefaultTopP,
			DoSample:    DefaultDoSample,
		},
	}

	if r.MaxLength != nil {
		if *r.MaxLength <= 0 || *r.MaxLength > MaxMaxLength {
			return nil, InvalidArgument(fmt.Sprintf("max_length must be greater than 0 and less than or equal to %d.", MaxMaxLength))
		}
		opts.Params.MaxLength = *r.MaxLength
	}

	if r.Temperature != nil {
		if !inRange(*r.Temperature, 0, MaxTemperature) {
			return nil, InvalidArgument("temperature must be between 0.0 and 2.0.")
		}
		opts.Params.Temperature = *r.Temperature
	}

	if r.TopK != nil {
		if *r.TopK < 0 || *r.TopK > MaxTopK {
			return nil, InvalidArgument(fmt.Sprintf("top_k must be between 0 and %d.", MaxTopK))
		}
		opts.Params.TopK = *r.TopK
	}

	if r.TopP != nil {
		if !inRange(*r.TopP, 0, MaxTopP) {
			return nil, InvalidArgument("top_p must be between 0.0 and 1.0.")
		}
		opts.Params.TopP = *r.TopP
	}

	if r.DoSample != nil {
		opts.Params.DoSample = *r.DoSample
	}

	if r.Device != nil {
		d, err := ParseDevice(*r.Device)
		if err != nil {
			return nil, InvalidArgument("device must be one of 'cpu', 'cuda', 'mps'.")
		}
		opts.Device = d
	}

	if r.Timeout != nil {
		if !inRange(*r.Timeout, 0, MaxTimeout) {
			return nil, InvalidArgument(fmt.Sprintf("timeout must be between 0 and %d seconds.", MaxTimeout))
		}
		opts.Timeout = time.Duration(*r.Timeout * float64(time.Second))
		if *r.Timeout > 0 && opts.Timeout < time.Nanosecond {
			// 0 means the server default
			opts.Timeout = time.Nanosecond
		}
	}

	if strings.TrimSpace(opts.Prompt) == "" {
		return nil, InvalidArgument("Prompt must not be empty.")
	}

	return opts, nil
}

func inRange(v, lo, hi float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	return v >= lo && v <= hi
}
