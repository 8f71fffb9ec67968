package util

import (
	"fmt"
	"log/slog"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
)

// EmbeddedBroker is an in-process MQTT broker for running the controller and
// the peer without an external broker.
type EmbeddedBroker struct {
	server *mochi.Server
	addr   string
}

func NewEmbeddedBroker(addr string) *EmbeddedBroker {
	server := mochi.New(&mochi.Options{
		InlineClient: true,
		Logger: slog.New(slog.NewTextHandler(Logger, &slog.HandlerOptions{
			Level: slog.LevelWarn,
		})),
	})
	return &EmbeddedBroker{server: server, addr: addr}
}

// Start accepts every client and listens on addr.
func (b *EmbeddedBroker) Start() error {
	if err := b.server.AddHook(new(auth.AllowHook), nil); err != nil {
		return fmt.Errorf("adding auth hook: %w", err)
	}
	tcp := listeners.NewTCP(listeners.Config{ID: "tcp", Address: b.addr})
	if err := b.server.AddListener(tcp); err != nil {
		return fmt.Errorf("adding listener on %s: %w", b.addr, err)
	}
	if err := b.server.Serve(); err != nil {
		return fmt.Errorf("starting broker: %w", err)
	}
	Logger.Info().Msgf("embedded broker listening on %s", b.addr)
	return nil
}

func (b *EmbeddedBroker) Close() error {
	return b.server.Close()
}

// Publish sends through the inline client.
func (b *EmbeddedBroker) Publish(topic string, payload string, retain bool) error {
	return b.server.Publish(topic, []byte(payload), retain, 0)
}

// Subscribe registers an inline subscriber. id must be unique per filter.
func (b *EmbeddedBroker) Subscribe(filter string, id int, fn func(topic string, payload []byte)) error {
	return b.server.Subscribe(filter, id, func(cl *mochi.Client, sub packets.Subscription, pk packets.Packet) {
		fn(pk.TopicName, pk.Payload)
	})
}
