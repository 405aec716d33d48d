// Package scenario provides timed driver input scripts.
package scenario

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/OCAP2/vehicledyn/pkg/core"
	"github.com/spf13/viper"
)

// ErrUnknownScenario is returned for a name that is not built in.
var ErrUnknownScenario = errors.New("unknown scenario")

// Step holds one input from At until At+Duration. A zero Duration holds the
// input until the next step.
type Step struct {
	At       time.Duration `json:"at" mapstructure:"at"`
	Duration time.Duration `json:"duration" mapstructure:"duration"`
	Input    core.Input    `json:"input" mapstructure:"input"`
	OffRoad  bool          `json:"offRoad,omitempty" mapstructure:"offRoad"`
}

func (s Step) active(t time.Duration) bool {
	if t < s.At {
		return false
	}
	return s.Duration == 0 || t < s.At+s.Duration
}

// Script is an ordered list of steps.
type Script struct {
	Name        string        `json:"name" mapstructure:"name"`
	Description string        `json:"description" mapstructure:"description"`
	Length      time.Duration `json:"length" mapstructure:"length"` // zero means the end of the last step
	Steps       []Step        `json:"steps" mapstructure:"steps"`
}

// InputAt returns the input and surface at simulated time t. When steps
// overlap the one starting last wins. Outside every step the driver is idle
// on the road.
func (s Script) InputAt(t time.Duration) (core.Input, core.SurfaceInfo) {
	for i := len(s.Steps) - 1; i >= 0; i-- {
		step := s.Steps[i]
		if step.active(t) {
			return step.Input, core.SurfaceInfo{OnRoad: !step.OffRoad}
		}
	}
	return core.Input{}, core.Road
}

// End returns how long the script runs.
func (s Script) End() time.Duration {
	if s.Length > 0 {
		return s.Length
	}
	var end time.Duration
	for _, step := range s.Steps {
		end = max(end, step.At+step.Duration)
	}
	return end
}

// validate sorts the steps by start time and rejects negative timings.
func (s *Script) validate() error {
	for i, step := range s.Steps {
		if step.At < 0 || step.Duration < 0 {
			return fmt.Errorf("scenario %q: step %d has negative timing", s.Name, i)
		}
	}
	if s.Length < 0 {
		return fmt.Errorf("scenario %q: negative length", s.Name)
	}
	sort.SliceStable(s.Steps, func(i, j int) bool { return s.Steps[i].At < s.Steps[j].At })
	return nil
}

// Load decodes a JSON script. Durations are Go duration strings such as
// "1.5s".
func Load(r io.Reader) (Script, error) {
	v := viper.New()
	v.SetConfigType("json")
	if err := v.ReadConfig(r); err != nil {
		return Script{}, fmt.Errorf("error reading scenario: %w", err)
	}
	return decode(v)
}

// LoadFile decodes the JSON script at path.
func LoadFile(path string) (Script, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return Script{}, fmt.Errorf("error reading scenario file: %w", err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (Script, error) {
	var s Script
	if err := v.Unmarshal(&s); err != nil {
		return Script{}, fmt.Errorf("error decoding scenario: %w", err)
	}
	if err := s.validate(); err != nil {
		return Script{}, err
	}
	return s, nil
}
