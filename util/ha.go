package util

import (
	"encoding/json"
	"fmt"

	MQTT "github.com/eclipse/paho.mqtt.golang"
)

type HAAvdvertisementAvailability struct {
	Topic               string `json:"topic"`                 // : "casa_oscar/online"
	PayloadAvailable    string `json:"payload_available"`     // : "online"
	PayloadNotAvailable string `json:"payload_not_available"` // : "offline"
}

type HADeviceSpec struct {
	Name        string   `json:"name"` // : "casa_inteligente sala"
	Identifiers []string `json:"ids"`  // : ["casa_inteligente_sala"]
}

type HAAdvertisement struct { //nolint:govet // struct layout optimized for JSON field order
	HAAvdvertisementAvailability []HAAvdvertisementAvailability `json:"availability"`
	Device                       HADeviceSpec                   `json:"device"`
	UniqueID                     string                         `json:"uniq_id"`
	Name                         string                         `json:"name"`
	StateTopic                   string                         `json:"state_topic"`
	PayloadOn                    string                         `json:"payload_on,omitempty"`
	PayloadOff                   string                         `json:"payload_off,omitempty"`
	DeviceClass                  string                         `json:"device_class,omitempty"`
	Platform                     string                         `json:"platform"`
	Qos                          int                            `json:"qos"`

	component string
	object    string
}

func (ha HAAdvertisement) ToJson() string {
	data, err := json.Marshal(ha)
	if err != nil {
		Logger.Error().Msgf("Error marshalling HAAdvertisement: %v", err)
		return ""
	}
	return string(data)
}

// ConfigTopic is where Home Assistant looks for this entity's discovery config.
func (ha HAAdvertisement) ConfigTopic() string {
	return fmt.Sprintf("homeassistant/%s/%s/config", ha.component, ha.UniqueID)
}

// HAEntity describes one telemetry topic of a room.
type HAEntity struct {
	Object      string // luz, ventilador, puerta, presencia
	StateTopic  string
	Component   string // binary_sensor or sensor
	DeviceClass string
	PayloadOn   string
	PayloadOff  string
}

func ConstructHAAdvertisement(room string, e HAEntity) HAAdvertisement {
	id := "casa_inteligente_" + room
	return HAAdvertisement{
		Name:       room + " " + e.Object,
		StateTopic: e.StateTopic,
		PayloadOn:  e.PayloadOn,
		PayloadOff: e.PayloadOff,
		HAAvdvertisementAvailability: []HAAvdvertisementAvailability{
			{
				Topic:               AvailabilityTopic(),
				PayloadAvailable:    "online",
				PayloadNotAvailable: "offline",
			},
		},
		Qos:         0,
		UniqueID:    id + "_" + e.Object,
		DeviceClass: e.DeviceClass,
		Platform:    e.Component,
		Device: HADeviceSpec{
			Name:        "casa_inteligente " + room,
			Identifiers: []string{id},
		},
		component: e.Component,
		object:    e.Object,
	}
}

// AdvertiseHA publishes retained discovery configs for every room's entities.
func AdvertiseHA(rooms map[string][]HAEntity, client MQTT.Client) {
	for room, entities := range rooms {
		for _, e := range entities {
			ha := ConstructHAAdvertisement(room, e)
			if token := client.Publish(ha.ConfigTopic(), 0, true, ha.ToJson()); token.Wait() && token.Error() != nil {
				Logger.Error().Msgf("Error Publishing: %v", fmt.Errorf("%v", token.Error()))
			}
		}
	}
}
