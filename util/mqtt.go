package util

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	MQTT "github.com/eclipse/paho.mqtt.golang"
)

var (
	ErrNotConnected   = errors.New("mqtt client not connected")
	ErrPublishTimeout = errors.New("mqtt publish not acknowledged in time")
)

var Client MQTT.Client
var clientMu sync.RWMutex

var subscriptions map[string]MQTT.MessageHandler

var connectHandlers map[string]func(MQTT.Client)

// AvailabilityTopic carries "online"/"offline" for this controller.
func AvailabilityTopic() string {
	return Config.GetString("topic_base") + "/online"
}

var connectHandler MQTT.OnConnectHandler = func(client MQTT.Client) {
	Logger.Info().Msg("Connected")
	subscribe(client)
	client.Publish(AvailabilityTopic(), 0, true, "online")
	if connectHandlers == nil {
		connectHandlers = make(map[string]func(client MQTT.Client))
	}
	for _, handler := range connectHandlers {
		handler(client)
	}
}

func RegisterMQTTConnectHook(name string, handler func(MQTT.Client)) {
	if connectHandlers == nil {
		connectHandlers = make(map[string]func(client MQTT.Client))
	}
	if handler == nil {
		delete(connectHandlers, name)
	} else {
		connectHandlers[name] = handler
	}
}

func subscribe(client MQTT.Client) {
	if subscriptions == nil {
		subscriptions = make(map[string]MQTT.MessageHandler)
	}
	for topic, handler := range subscriptions {
		if token := client.Subscribe(topic, 0, handler); token.Wait() && token.Error() != nil {
			Logger.Error().Msgf("Error Subscribing to %v: %v", topic, token.Error())
		}
	}
}

func RegisterMQTTSubscription(topic string, handler MQTT.MessageHandler) {
	if subscriptions == nil {
		subscriptions = make(map[string]MQTT.MessageHandler)
	}
	if handler == nil {
		delete(subscriptions, topic)
	} else {
		subscriptions[topic] = handler
	}
}

func receiver(client MQTT.Client, message MQTT.Message) {
	Logger.Warn().Msgf("Received message on %v but no handler", message.Topic())
}

var connectLostHandler MQTT.ConnectionLostHandler = func(client MQTT.Client, err error) {
	Logger.Info().Msgf("Connect lost: %v", err)
}

// CurrentClient returns the client built by the last MqttInit.
func CurrentClient() MQTT.Client {
	clientMu.RLock()
	defer clientMu.RUnlock()
	return Client
}

func SetClient(c MQTT.Client) {
	clientMu.Lock()
	defer clientMu.Unlock()
	Client = c
}

func clientOptions() *MQTT.ClientOptions {
	opts := MQTT.NewClientOptions()
	opts.AddBroker(Config.GetString("broker_uri"))
	opts.SetClientID(Config.GetString("id_base") + "_" + GetRandString(6))
	opts.SetUsername(Config.GetString("username"))
	opts.SetPassword(Config.GetString("password"))
	opts.SetCleanSession(Config.GetBool("cleansess"))
	opts.SetAutoReconnect(true)
	opts.SetWill(AvailabilityTopic(), "offline", 0, true)
	opts.OnConnectionLost = connectLostHandler
	opts.OnConnect = connectHandler
	opts.SetDefaultPublishHandler(receiver)
	return opts
}

// MqttInit replaces the global client and connects it in the background so
// that a missing broker never blocks startup or the control path.
func MqttInit() {
	old := CurrentClient()
	if old != nil {
		Logger.Debug().Msg("Client exists - destroying")
		if old.IsConnected() {
			old.Disconnect(1000)
		}
	}

	c := MQTT.NewClient(clientOptions())
	SetClient(c)
	go connectWithBackoff(c, Config.GetString("broker_uri"))
}

func connectWithBackoff(c MQTT.Client, uri string) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = time.Minute
	bo.MaxElapsedTime = 0

	err := backoff.RetryNotify(func() error {
		if CurrentClient() != c {
			return backoff.Permanent(errors.New("client replaced"))
		}
		token := c.Connect()
		token.Wait()
		return token.Error()
	}, bo, func(err error, next time.Duration) {
		Logger.Warn().Msgf("Unable to connect to %v: %v (retry in %v)", uri, err, next)
	})
	if err != nil {
		Logger.Debug().Msgf("giving up connecting stale client: %v", err)
	}
}

// MQTTTransport publishes through the current global client and waits up to
// Timeout for the broker to accept the message.
type MQTTTransport struct {
	Timeout  time.Duration
	QoS      byte
	Retained bool
}

func (t MQTTTransport) Publish(ctx context.Context, topic string, payload string) error {
	c := CurrentClient()
	if c == nil || !c.IsConnectionOpen() {
		return ErrNotConnected
	}
	token := c.Publish(topic, t.QoS, t.Retained, payload)

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("publishing %s: %w", topic, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w: %s", ErrPublishTimeout, topic)
	}
}
