package scenario

import (
	"fmt"
	"sort"
	"time"

	"github.com/OCAP2/vehicledyn/pkg/core"
	"github.com/samber/lo"
)

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func step(at, duration float64, in core.Input) Step {
	return Step{At: seconds(at), Duration: seconds(duration), Input: in}
}

var builtins = map[string]func() Script{
	"launch":     launch,
	"trailbrake": trailbrake,
	"reverse":    reverse,
	"slalom":     slalom,
}

// Straight-line launch from standstill at full throttle.
func launch() Script {
	return Script{
		Name:        "launch",
		Description: "full throttle from standstill in a straight line",
		Steps: []Step{
			step(0, 8, core.Input{Throttle: 1}),
		},
	}
}

// Trail-braking into a left turn after a straight.
func trailbrake() Script {
	return Script{
		Name:        "trailbrake",
		Description: "straight at full throttle, then brake while turning in",
		Steps: []Step{
			step(0, 5, core.Input{Throttle: 1}),
			step(5, 1.5, core.Input{Brake: 0.6, Steer: 0.5}),
			step(6.5, 2, core.Input{Steer: 0.5}),
		},
	}
}

// Reverse entry from forward motion and exit with the throttle.
func reverse() Script {
	return Script{
		Name:        "reverse",
		Description: "brake to a stop, keep braking to reverse, then drive forward again",
		Steps: []Step{
			step(0, 2, core.Input{Throttle: 0.6}),
			step(2, 7, core.Input{Brake: 1}),
			step(9, 3, core.Input{Throttle: 0.6}),
		},
	}
}

// Alternating steer at part throttle.
func slalom() Script {
	steps := []Step{step(0, 2, core.Input{Throttle: 0.6})}
	for i := range 8 {
		steer := 0.6
		if i%2 == 1 {
			steer = -0.6
		}
		steps = append(steps, step(2+float64(i), 1, core.Input{Throttle: 0.6, Steer: steer}))
	}
	return Script{
		Name:        "slalom",
		Description: "part throttle with alternating one second steer inputs",
		Steps:       steps,
	}
}

// Builtin returns the named built-in script.
func Builtin(name string) (Script, error) {
	build, ok := builtins[name]
	if !ok {
		return Script{}, fmt.Errorf("%w: %s", ErrUnknownScenario, name)
	}
	return build(), nil
}

// Names lists the built-in scripts in sorted order.
func Names() []string {
	names := lo.Keys(builtins)
	sort.Strings(names)
	return names
}
