// Package publisher mirrors room state to the broker. Callers hand over a
// snapshot and return immediately; a single worker drains a bounded queue so
// messages leave in the order they were accepted.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/elijahnyp/casa_inteligente/state"
	"github.com/elijahnyp/casa_inteligente/util"
	"github.com/elijahnyp/casa_inteligente/wire"
)

var (
	ErrQueueFull = errors.New("publish queue full")
	ErrClosed    = errors.New("publisher closed")
)

const (
	channelTelemetry = "telemetry"
	channelPeer      = "peer"
)

// Transport hands one message to the broker.
type Transport interface {
	Publish(ctx context.Context, topic string, payload string) error
}

// Source is anything that can report a room's current state.
type Source interface {
	State(state.Room) (state.DeviceState, error)
}

type Options struct {
	Base            string
	PeerTopic       string
	QueueSize       int
	Timeout         time.Duration
	BreakerFailures int
	BreakerOpen     time.Duration
}

func OptionsFromConfig() Options {
	return Options{
		Base:            util.Config.GetString("topic_base"),
		PeerTopic:       util.Config.GetString("peer_topic"),
		QueueSize:       util.Config.GetInt("publish_queue"),
		Timeout:         time.Duration(util.Config.GetInt("publish_timeout_ms")) * time.Millisecond,
		BreakerFailures: util.Config.GetInt("breaker_failures"),
		BreakerOpen:     time.Duration(util.Config.GetInt("breaker_open_ms")) * time.Millisecond,
	}
}

func (o *Options) defaults() {
	if o.Base == "" {
		o.Base = wire.DefaultBase
	}
	if o.PeerTopic == "" {
		o.PeerTopic = wire.DefaultPeerTopic
	}
	if o.QueueSize < 1 {
		o.QueueSize = 64
	}
	if o.Timeout <= 0 {
		o.Timeout = 2 * time.Second
	}
	if o.BreakerFailures < 1 {
		o.BreakerFailures = 5
	}
	if o.BreakerOpen <= 0 {
		o.BreakerOpen = 10 * time.Second
	}
}

type batch struct {
	channel  string
	messages []wire.Message
}

type Publisher struct {
	transport Transport
	opts      Options
	cb        *gobreaker.CircuitBreaker

	mu     sync.RWMutex // guards closed and sends on queue
	closed bool
	queue  chan batch

	start sync.Once
	done  chan struct{}
}

func New(t Transport, opts Options) *Publisher {
	opts.defaults()
	return &Publisher{
		transport: t,
		opts:      opts,
		cb:        mkCB("mqtt-publish", opts.BreakerFailures, opts.BreakerOpen),
		queue:     make(chan batch, opts.QueueSize),
		done:      make(chan struct{}),
	}
}

func mkCB(name string, fails int, open time.Duration) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: open,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(fails)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			util.Logger.Warn().Str("breaker", name).Msgf("circuit %v -> %v", from, to)
		},
	})
}

func (p *Publisher) Base() string      { return p.opts.Base }
func (p *Publisher) PeerTopic() string { return p.opts.PeerTopic }

// Start launches the worker. Calling it more than once is a no-op.
func (p *Publisher) Start() {
	p.start.Do(func() {
		go p.run()
	})
}

// Publish queues the full snapshot of room as read from model. It never
// blocks on the network.
func (p *Publisher) Publish(room state.Room, model Source) error {
	s, err := model.State(room)
	if err != nil {
		return err
	}
	return p.PublishState(room, s)
}

func (p *Publisher) PublishState(room state.Room, s state.DeviceState) error {
	return p.enqueue(batch{
		channel:  channelTelemetry,
		messages: wire.EncodeTelemetry(p.opts.Base, room, s),
	})
}

// PublishPeer queues a combined command for the peer actuator.
func (p *Publisher) PublishPeer(c wire.PeerCommand) error {
	payload, err := wire.EncodePeerCommand(c)
	if err != nil {
		return err
	}
	return p.enqueue(batch{
		channel:  channelPeer,
		messages: []wire.Message{{Topic: p.opts.PeerTopic, Payload: payload}},
	})
}

func (p *Publisher) enqueue(b batch) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queue <- b:
		util.PublishQueueDepth.Inc()
		return nil
	default:
		util.PublishFailures.WithLabelValues("queue_full").Add(float64(len(b.messages)))
		util.Logger.Warn().Msgf("publish queue full, dropping %d %s messages", len(b.messages), b.channel)
		return ErrQueueFull
	}
}

// Close stops accepting work and waits for the queue to drain or ctx to end.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.Start()
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("draining publish queue: %w", ctx.Err())
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for b := range p.queue {
		util.PublishQueueDepth.Dec()
		p.send(b)
	}
}

func (p *Publisher) send(b batch) {
	for _, m := range b.messages {
		_, err := p.cb.Execute(func() (interface{}, error) {
			ctx, cancel := context.WithTimeout(context.Background(), p.opts.Timeout)
			defer cancel()
			return nil, p.transport.Publish(ctx, m.Topic, m.Payload)
		})
		if err != nil {
			reason := failureReason(err)
			util.PublishFailures.WithLabelValues(reason).Inc()
			util.Logger.Warn().Str("reason", reason).Msgf("unable to publish %s: %v", m.Topic, err)
			continue
		}
		util.MessagesPublished.WithLabelValues(b.channel).Inc()
		util.Logger.Trace().Msgf("published %s=%s", m.Topic, m.Payload)
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "breaker_open"
	case errors.Is(err, util.ErrNotConnected):
		return "not_connected"
	case errors.Is(err, util.ErrPublishTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "transport"
	}
}
