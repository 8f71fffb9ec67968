// Package wire encodes room telemetry topics and the peer's command payload.
package wire

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/elijahnyp/casa_inteligente/state"
)

const DefaultBase = "casa_oscar"

var (
	ErrUnknownTopic     = errors.New("unknown telemetry topic")
	ErrMalformedPayload = errors.New("malformed payload")
)

// Attribute is the last topic segment of a telemetry message.
type Attribute string

const (
	Luz        Attribute = "luz"
	Ventilador Attribute = "ventilador"
	Puerta     Attribute = "puerta"
	Presencia  Attribute = "presencia"
)

// Attributes is the publish order of a snapshot.
var Attributes = []Attribute{Luz, Ventilador, Puerta, Presencia}

const (
	PayloadOn      = "ON"
	PayloadOff     = "OFF"
	PayloadClosed  = "CERRADA"
	PayloadOpen    = "ABIERTA"
	PayloadPresent = "1"
	PayloadAbsent  = "0"
)

// Message is one outbound MQTT publication.
type Message struct {
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
}

// Topic builds base/room/attribute.
func Topic(base string, room state.Room, attr Attribute) string {
	return base + "/" + string(room) + "/" + string(attr)
}

// RoomBase is the topic prefix shared by a room's telemetry.
func RoomBase(base string, room state.Room) string {
	return base + "/" + string(room)
}

// EncodeTelemetry renders the full snapshot of a room as one message per
// attribute group. Brightness is not part of the telemetry.
func EncodeTelemetry(base string, room state.Room, s state.DeviceState) []Message {
	return []Message{
		{Topic(base, room, Luz), boolPayload(s.LightOn, PayloadOn, PayloadOff)},
		{Topic(base, room, Ventilador), strconv.Itoa(s.FanSpeed)},
		{Topic(base, room, Puerta), boolPayload(s.DoorClosed, PayloadClosed, PayloadOpen)},
		{Topic(base, room, Presencia), boolPayload(s.PresenceDetected, PayloadPresent, PayloadAbsent)},
	}
}

func boolPayload(v bool, yes, no string) string {
	if v {
		return yes
	}
	return no
}

// ParseTopic splits a telemetry topic into its room and attribute.
func ParseTopic(base, topic string) (state.Room, Attribute, error) {
	rest, ok := strings.CutPrefix(topic, base+"/")
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	roomPart, attrPart, ok := strings.Cut(rest, "/")
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	room := state.Room(roomPart)
	if !room.Valid() {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	for _, a := range Attributes {
		if string(a) == attrPart {
			return room, a, nil
		}
	}
	return "", "", fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
}

// DecodeInto applies a single telemetry payload to s.
func DecodeInto(attr Attribute, payload string, s *state.DeviceState) error {
	switch attr {
	case Luz:
		return decodeBool(payload, PayloadOn, PayloadOff, &s.LightOn)
	case Ventilador:
		v, err := strconv.Atoi(payload)
		if err != nil || v != state.ClampFanSpeed(v) {
			return fmt.Errorf("%w: fan speed %q", ErrMalformedPayload, payload)
		}
		s.FanSpeed = v
		return nil
	case Puerta:
		return decodeBool(payload, PayloadClosed, PayloadOpen, &s.DoorClosed)
	case Presencia:
		return decodeBool(payload, PayloadPresent, PayloadAbsent, &s.PresenceDetected)
	}
	return fmt.Errorf("%w: attribute %q", ErrUnknownTopic, attr)
}

func decodeBool(payload, yes, no string, dst *bool) error {
	switch payload {
	case yes:
		*dst = true
	case no:
		*dst = false
	default:
		return fmt.Errorf("%w: %q is neither %s nor %s", ErrMalformedPayload, payload, yes, no)
	}
	return nil
}

// DecodeTelemetry rebuilds a room snapshot from its telemetry messages. Fields
// that are not on the wire keep their value from base. All messages must
// belong to the same room.
func DecodeTelemetry(topicBase string, msgs []Message, base state.DeviceState) (state.Room, state.DeviceState, error) {
	var room state.Room
	out := base
	for _, m := range msgs {
		r, attr, err := ParseTopic(topicBase, m.Topic)
		if err != nil {
			return "", state.DeviceState{}, err
		}
		if room == "" {
			room = r
		} else if r != room {
			return "", state.DeviceState{}, fmt.Errorf("%w: mixed rooms %s and %s", ErrUnknownTopic, room, r)
		}
		if err := DecodeInto(attr, m.Payload, &out); err != nil {
			return "", state.DeviceState{}, err
		}
	}
	return room, out, nil
}
