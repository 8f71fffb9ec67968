package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	. "github.com/elijahnyp/casa_inteligente/util"

	"github.com/elijahnyp/casa_inteligente/gesture"
	"github.com/elijahnyp/casa_inteligente/publisher"
	"github.com/elijahnyp/casa_inteligente/state"
	"github.com/elijahnyp/casa_inteligente/wire"
)

var cam_forwarder CamForwarder

// haEntities lists the discovery entities of every room's telemetry topics.
func haEntities(base string) map[string][]HAEntity {
	rooms := make(map[string][]HAEntity)
	for _, room := range state.Rooms {
		topic := func(a wire.Attribute) string { return wire.Topic(base, room, a) }
		rooms[string(room)] = []HAEntity{
			{Object: string(wire.Luz), StateTopic: topic(wire.Luz), Component: "binary_sensor", DeviceClass: "light", PayloadOn: wire.PayloadOn, PayloadOff: wire.PayloadOff},
			{Object: string(wire.Ventilador), StateTopic: topic(wire.Ventilador), Component: "sensor"},
			{Object: string(wire.Puerta), StateTopic: topic(wire.Puerta), Component: "binary_sensor", DeviceClass: "door", PayloadOn: wire.PayloadOpen, PayloadOff: wire.PayloadClosed},
			{Object: string(wire.Presencia), StateTopic: topic(wire.Presencia), Component: "binary_sensor", DeviceClass: "occupancy", PayloadOn: wire.PayloadPresent, PayloadOff: wire.PayloadAbsent},
		}
	}
	return rooms
}

// gestureClassifier checks the classifier once. A nil result disables
// gesture control for the lifetime of the process.
func gestureClassifier() gesture.Classifier {
	url := Config.GetString("classifier_url")
	if url == "" {
		Logger.Info().Msg("no classifier_url, gesture control disabled")
		return nil
	}
	timeout := time.Duration(Config.GetInt("classifier_timeout_ms")) * time.Millisecond
	c := gesture.NewHTTPClassifier(url, timeout)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := c.Available(ctx); err != nil {
		Logger.Warn().Msgf("gesture control disabled: %v", err)
		return nil
	}
	return c
}

// sessionsFromConfig builds the session store from strict_validation,
// shared_state, session_ttl_minutes and max_sessions.
func sessionsFromConfig() (state.Validation, *SessionStore) {
	validation := state.ParseValidation(Config.GetBool("strict_validation"))
	sessions := NewSessionStore(Config.GetBool("shared_state"), validation,
		time.Duration(Config.GetInt("session_ttl_minutes"))*time.Minute)
	sessions.SetLimit(Config.GetInt("max_sessions"))
	return validation, sessions
}

func main() {
	LogInit("trace", "console")
	SetupConfig()
	RegisterNewConfigListener(func() { LogInit(Config.GetString("log_level"), Config.GetString("log_format")) })

	var broker *EmbeddedBroker
	if Config.GetBool("embedded_broker") {
		broker = NewEmbeddedBroker(Config.GetString("embedded_broker_addr"))
		if err := broker.Start(); err != nil {
			Logger.Error().Msgf("Error starting embedded broker: %v", err)
			broker = nil
		} else {
			defer broker.Close()
		}
	}

	validation, sessions := sessionsFromConfig()

	pub := publisher.New(MQTTTransport{
		Timeout: time.Duration(Config.GetInt("publish_timeout_ms")) * time.Millisecond,
	}, publisher.OptionsFromConfig())
	pub.Start()

	if Config.GetBool("ha_discovery") {
		RegisterMQTTConnectHook("haadvertise", func(client MQTT.Client) {
			AdvertiseHA(haEntities(pub.Base()), client)
		})
		// Home Assistant announces restarts with a birth message
		RegisterMQTTSubscription("homeassistant/status", func(client MQTT.Client, msg MQTT.Message) {
			if string(msg.Payload()) == "online" {
				AdvertiseHA(haEntities(pub.Base()), client)
			}
		})
	}
	if shared := sessions.Shared(); shared != nil {
		// telemetry is not retained, resend the shared snapshot after every reconnect
		RegisterMQTTConnectHook("snapshot", func(client MQTT.Client) {
			for _, room := range state.Rooms {
				if err := pub.Publish(room, shared); err != nil {
					Logger.Warn().Msgf("snapshot of %s not published: %v", room, err)
				}
			}
		})
	}

	hub := NewHub()
	go hub.Run()
	ctl := NewController(pub, hub, gestureClassifier())
	sessions.OnExpire(ctl.Forget)

	peerTopic := Config.GetString("peer_topic")
	if broker != nil {
		if err := broker.Subscribe(peerTopic, 1, func(topic string, payload []byte) {
			ctl.ObservePeer(payload)
		}); err != nil {
			Logger.Warn().Msgf("Error watching %s: %v", peerTopic, err)
		}
	} else {
		RegisterMQTTSubscription(peerTopic, func(client MQTT.Client, msg MQTT.Message) {
			ctl.ObservePeer(msg.Payload())
		})
	}
	RegisterNewConfigListener(MqttInit)
	OnNewConfig()

	monitor := NewMonitorServer()
	monitor.AddHandler("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	monitor.AddRawHandler("/metrics", MetricsHandler())
	monitor.AddHandler("/ws", ServeWebSocket(hub, sessions))
	monitor.AddRawHandler("/api/", NewAPI(ctl, sessions, validation))
	if err := monitor.Start(); err != nil {
		Logger.Error().Msgf("Error starting monitor server: %v", err)
	}
	RegisterNewConfigListener(func() { monitor.Restart() })

	if shared := sessions.Shared(); shared != nil && ctl.GesturesEnabled() {
		cam_forwarder.MakeCamForwarder(ctl.CameraFrames(shared))
		cam_forwarder.Start()
	} else {
		Logger.Debug().Msg("cam forwarder needs shared_state and a classifier")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if Config.GetBool("ha_discovery") {
		go HAAdvertiser(ctx, pub.Base())
	}
	Logger.Info().Msg("ready")
	<-ctx.Done()

	Logger.Info().Msg("shutting down")
	cam_forwarder.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pub.Close(shutdownCtx); err != nil {
		Logger.Warn().Msgf("publish queue not drained: %v", err)
	}
	monitor.Stop(shutdownCtx)
	if c := CurrentClient(); c != nil && c.IsConnected() {
		c.Publish(AvailabilityTopic(), 0, true, "offline").WaitTimeout(time.Second)
		c.Disconnect(250)
	}
}

// HAAdvertiser re-advertises Home Assistant discovery messages every 5 minutes
func HAAdvertiser(ctx context.Context, base string) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c := CurrentClient(); c != nil && c.IsConnected() {
				Logger.Debug().Msg("Advertising Home Assistant discovery messages")
				AdvertiseHA(haEntities(base), c)
			}
		}
	}
}
