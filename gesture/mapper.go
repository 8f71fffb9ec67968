// Package gesture maps camera gesture classifications to device changes.
package gesture

import (
	"errors"
	"fmt"

	"github.com/elijahnyp/casa_inteligente/state"
)

var ErrUnknownLabel = errors.New("unknown gesture label")

type Label string

const (
	LuzOn         Label = "luz_on"
	LuzOff        Label = "luz_off"
	VentiladorOn  Label = "ventilador_on"
	VentiladorOff Label = "ventilador_off"
)

var Labels = []Label{LuzOn, LuzOff, VentiladorOn, VentiladorOff}

func ParseLabel(s string) (Label, error) {
	for _, l := range Labels {
		if string(l) == s {
			return l, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLabel, s)
}

// Classification is one classifier verdict for a frame. Confidence is only
// reported back to the caller, it never gates the mapping.
type Classification struct {
	Label      Label   `json:"label"`
	Confidence float64 `json:"confidence"`
}

// TargetRoom is the only room gestures act on, whatever room the UI shows.
const TargetRoom = state.Sala

type Mutator interface {
	Update(room state.Room, fn func(*state.DeviceState)) error
}

var effects = map[Label]func(*state.DeviceState){
	LuzOn:  func(s *state.DeviceState) { s.LightOn = true },
	LuzOff: func(s *state.DeviceState) { s.LightOn = false },
	VentiladorOn: func(s *state.DeviceState) {
		s.FanSpeed = max(s.FanSpeed, 1)
	},
	VentiladorOff: func(s *state.DeviceState) { s.FanSpeed = 0 },
}

// Apply maps label onto TargetRoom and returns the room it touched.
func Apply(label Label, home Mutator) (state.Room, error) {
	effect, ok := effects[label]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownLabel, string(label))
	}
	if err := home.Update(TargetRoom, effect); err != nil {
		return "", err
	}
	return TargetRoom, nil
}
