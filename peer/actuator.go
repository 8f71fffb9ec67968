// Package peer simulates the embedded device that listens on the combined
// command topic and drives a light output and the door servo.
package peer

import (
	"sync"

	MQTT "github.com/eclipse/paho.mqtt.golang"

	"github.com/elijahnyp/casa_inteligente/util"
	"github.com/elijahnyp/casa_inteligente/wire"
)

// Actuator is the hardware side of the peer.
type Actuator interface {
	SetLight(on bool)
	SetDoorAngle(degrees int)
}

// LogActuator records and logs the outputs instead of driving pins.
type LogActuator struct {
	mu    sync.Mutex
	light bool
	angle int
}

func (a *LogActuator) SetLight(on bool) {
	a.mu.Lock()
	a.light = on
	a.mu.Unlock()
	util.PeerActuations.WithLabelValues("light").Inc()
	util.Logger.Info().Bool("on", on).Msg("light output")
}

func (a *LogActuator) SetDoorAngle(degrees int) {
	a.mu.Lock()
	a.angle = degrees
	a.mu.Unlock()
	util.PeerActuations.WithLabelValues("door").Inc()
	util.Logger.Info().Int("degrees", degrees).Msg("door servo")
}

func (a *LogActuator) Light() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.light
}

func (a *LogActuator) DoorAngle() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.angle
}

// Apply drives act from one decoded command. Unknown Act1 values leave the
// light alone; negative Analog leaves the door alone.
func Apply(c wire.PeerCommand, act Actuator) {
	if on, ok := c.Light(); ok {
		act.SetLight(on)
	}
	if angle, ok := c.DoorAngle(); ok {
		act.SetDoorAngle(angle)
	}
}

// HandlePayload decodes and applies one inbound payload. Malformed payloads
// are logged and dropped.
func HandlePayload(topic string, payload []byte, act Actuator) {
	util.Logger.Debug().Msgf("message on %s: %s", topic, payload)
	c, err := wire.DecodePeerCommand(payload)
	if err != nil {
		util.PeerDropped.Inc()
		util.Logger.Warn().Msgf("dropping payload on %s: %v", topic, err)
		return
	}
	Apply(c, act)
}

func MessageHandler(act Actuator) MQTT.MessageHandler {
	return func(client MQTT.Client, msg MQTT.Message) {
		HandlePayload(msg.Topic(), msg.Payload(), act)
	}
}
