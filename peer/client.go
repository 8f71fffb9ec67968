package peer

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	MQTT "github.com/eclipse/paho.mqtt.golang"

	"github.com/elijahnyp/casa_inteligente/util"
	"github.com/elijahnyp/casa_inteligente/wire"
)

const DefaultClientID = "ESP32_Casa_Inteligente"

type Options struct {
	Broker         string
	Topic          string
	ClientID       string
	Username       string
	Password       string
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (o *Options) defaults() {
	if o.Broker == "" {
		o.Broker = "tcp://broker.hivemq.com:1883"
	}
	if o.Topic == "" {
		o.Topic = wire.DefaultPeerTopic
	}
	if o.ClientID == "" {
		o.ClientID = DefaultClientID
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 5 * time.Second
	}
	if o.MaxBackoff < o.InitialBackoff {
		o.MaxBackoff = time.Minute
	}
}

// Run keeps a session to the broker alive until ctx ends, resubscribing to
// the command topic on every connect.
func Run(ctx context.Context, opts Options, act Actuator) error {
	opts.defaults()
	lost := make(chan error, 1)

	mqttOpts := MQTT.NewClientOptions()
	mqttOpts.AddBroker(opts.Broker)
	mqttOpts.SetClientID(opts.ClientID)
	mqttOpts.SetUsername(opts.Username)
	mqttOpts.SetPassword(opts.Password)
	mqttOpts.SetCleanSession(true)
	mqttOpts.SetAutoReconnect(false)
	mqttOpts.OnConnect = func(c MQTT.Client) {
		util.Logger.Info().Msgf("connected to %s, subscribing to %s", opts.Broker, opts.Topic)
		if token := c.Subscribe(opts.Topic, 0, MessageHandler(act)); token.Wait() && token.Error() != nil {
			util.Logger.Error().Msgf("Error Subscribing to %v: %v", opts.Topic, token.Error())
		}
	}
	mqttOpts.OnConnectionLost = func(c MQTT.Client, err error) {
		util.Logger.Warn().Msgf("Connect lost: %v", err)
		select {
		case lost <- err:
		default:
		}
	}
	client := MQTT.NewClient(mqttOpts)

	for {
		if err := connect(ctx, client, opts); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			client.Disconnect(250)
			return nil
		case <-lost:
		}
	}
}

func connect(ctx context.Context, client MQTT.Client, opts Options) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = opts.InitialBackoff
	bo.MaxInterval = opts.MaxBackoff
	bo.MaxElapsedTime = 0

	err := backoff.RetryNotify(func() error {
		token := client.Connect()
		token.Wait()
		return token.Error()
	}, backoff.WithContext(bo, ctx), func(err error, next time.Duration) {
		util.Logger.Warn().Msgf("Unable to connect to %v: %v (retry in %v)", opts.Broker, err, next)
	})
	if err != nil && errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return err
}
