package state

const (
	MinBrightness = 0
	MaxBrightness = 100
	MinFanSpeed   = 0
	MaxFanSpeed   = 3
)

// DeviceState is the attribute bundle of a single room. A fan speed of 0 means
// the fan is off; there is no separate power flag.
type DeviceState struct {
	LightOn          bool `json:"light_on"`
	Brightness       int  `json:"brightness"`
	FanSpeed         int  `json:"fan_speed"`
	DoorClosed       bool `json:"door_closed"`
	PresenceDetected bool `json:"presence_detected"`
}

// DefaultState is the state every room starts a session with.
func DefaultState() DeviceState {
	return DeviceState{
		LightOn:          false,
		Brightness:       50,
		FanSpeed:         1,
		DoorClosed:       true,
		PresenceDetected: false,
	}
}

func ClampBrightness(v int) int {
	return clamp(v, MinBrightness, MaxBrightness)
}

func ClampFanSpeed(v int) int {
	return clamp(v, MinFanSpeed, MaxFanSpeed)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// normalize pulls every ranged attribute back into range.
func (s *DeviceState) normalize() {
	s.Brightness = ClampBrightness(s.Brightness)
	s.FanSpeed = ClampFanSpeed(s.FanSpeed)
}
