package wire

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const DefaultPeerTopic = "cmqtt_a"

const (
	MaxAnalog    = 100
	MaxDoorAngle = 180
	NoDoorMove   = -1
)

// PeerCommand is the combined command the embedded peer listens for. Act1
// drives the light output, Analog the door servo.
//
// A missing Analog decodes to 0 and therefore moves the door to 0 degrees,
// the same as the firmware's JSON library does. Senders that only want to
// switch the light set Analog to NoDoorMove.
type PeerCommand struct {
	Act1   string  `json:"Act1,omitempty"`
	Analog float64 `json:"Analog"`
}

// UnmarshalJSON reads each field on its own. A field of the wrong type only
// loses that field: a non-string Act1 leaves the light alone, a numeric
// string Analog is parsed and anything else unusable reads as 0.
func (c *PeerCommand) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	*c = PeerCommand{}
	if raw, ok := fields["Act1"]; ok {
		var act string
		if json.Unmarshal(raw, &act) == nil {
			c.Act1 = act
		}
	}
	if raw, ok := fields["Analog"]; ok {
		c.Analog = analogValue(raw)
	}
	return nil
}

func analogValue(raw json.RawMessage) float64 {
	var v float64
	if json.Unmarshal(raw, &v) == nil {
		return v
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return v
		}
	}
	return 0
}

// DecodePeerCommand parses an inbound payload. Only a payload that is not a
// JSON object is rejected.
func DecodePeerCommand(payload []byte) (PeerCommand, error) {
	var c PeerCommand
	if err := json.Unmarshal(payload, &c); err != nil {
		return PeerCommand{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return c, nil
}

func EncodePeerCommand(c PeerCommand) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Light reports the light level requested by Act1. ok is false when Act1 is
// neither "ON" nor "OFF", in which case the output keeps its level.
func (c PeerCommand) Light() (on bool, ok bool) {
	switch c.Act1 {
	case PayloadOn:
		return true, true
	case PayloadOff:
		return false, true
	}
	return false, false
}

// DoorAngle maps Analog 0-100 onto 0-180 degrees. Negative values request no
// movement at all rather than being clamped to 0. Values above 100 stop at
// the servo's 180 degree limit.
func (c PeerCommand) DoorAngle() (angle int, ok bool) {
	if c.Analog < 0 || math.IsNaN(c.Analog) {
		return 0, false
	}
	if c.Analog >= MaxAnalog {
		return MaxDoorAngle, true
	}
	return int(math.Round(c.Analog * MaxDoorAngle / MaxAnalog)), true
}
