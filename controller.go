package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	. "github.com/elijahnyp/casa_inteligente/util"

	"github.com/elijahnyp/casa_inteligente/command"
	"github.com/elijahnyp/casa_inteligente/gesture"
	"github.com/elijahnyp/casa_inteligente/publisher"
	"github.com/elijahnyp/casa_inteligente/state"
	"github.com/elijahnyp/casa_inteligente/wire"
)

var ErrUnknownAttribute = errors.New("unknown attribute")

type statePublisher interface {
	Publish(room state.Room, model publisher.Source) error
	PublishPeer(c wire.PeerCommand) error
}

type broadcaster interface {
	BroadcastUpdate(home *state.Home, messageType string, data interface{})
}

// RoomUpdate is what dashboards receive after every change.
type RoomUpdate struct {
	Room  state.Room        `json:"room"`
	State state.DeviceState `json:"state"`
}

// GestureOutcome is the result of running one frame through the classifier.
type GestureOutcome struct {
	Label      gesture.Label     `json:"label"`
	Confidence float64           `json:"confidence"`
	Room       state.Room        `json:"room"`
	State      state.DeviceState `json:"state"`
}

// Controller ties the inputs to the Home they mutate and mirrors every change
// to the broker and the dashboards.
type Controller struct {
	pub        statePublisher
	hub        broadcaster
	classifier gesture.Classifier

	// held from reading a snapshot until it is queued, so the last
	// snapshot queued for a room is never older than its state
	publishMu sync.Mutex

	frameMu sync.RWMutex
	frames  map[*state.Home][]byte

	peerMu   sync.RWMutex
	lastPeer *PeerObservation
}

// PeerObservation is the last combined command seen on the peer topic.
type PeerObservation struct {
	Command wire.PeerCommand `json:"command"`
	Seen    time.Time        `json:"seen"`
}

func NewController(pub statePublisher, hub broadcaster, classifier gesture.Classifier) *Controller {
	return &Controller{pub: pub, hub: hub, classifier: classifier, frames: make(map[*state.Home][]byte)}
}

// GesturesEnabled is false when the classifier was unavailable at startup.
func (c *Controller) GesturesEnabled() bool {
	return c.classifier != nil
}

func (c *Controller) changed(home *state.Home, room state.Room, source string) {
	MutationsTotal.WithLabelValues(string(room), source).Inc()
	c.publishMu.Lock()
	defer c.publishMu.Unlock()
	if err := c.pub.Publish(room, home); err != nil {
		Logger.Warn().Msgf("state of %s not published: %v", room, err)
	}
	if c.hub != nil {
		if s, err := home.State(room); err == nil {
			c.hub.BroadcastUpdate(home, "room_state", RoomUpdate{Room: room, State: s})
		}
	}
}

// SetAttribute applies a direct control change. value is a bool for light,
// door and presence and an int for brightness and fan.
func (c *Controller) SetAttribute(home *state.Home, room state.Room, attr string, value interface{}) error {
	var err error
	switch attr {
	case "light":
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf("%w: light expects a bool", state.ErrOutOfRange)
		}
		err = home.SetLight(room, v)
	case "door":
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf("%w: door expects a bool", state.ErrOutOfRange)
		}
		err = home.SetDoorClosed(room, v)
	case "presence":
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf("%w: presence expects a bool", state.ErrOutOfRange)
		}
		err = home.SetPresence(room, v)
	case "brightness":
		v, ok := value.(int)
		if !ok {
			return fmt.Errorf("%w: brightness expects an int", state.ErrOutOfRange)
		}
		err = home.SetBrightness(room, v)
	case "fan":
		v, ok := value.(int)
		if !ok {
			return fmt.Errorf("%w: fan expects an int", state.ErrOutOfRange)
		}
		err = home.SetFanSpeed(room, v)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownAttribute, attr)
	}
	if err != nil {
		return err
	}
	c.changed(home, room, "ui")
	return nil
}

// RunCommand interprets text against home and publishes the affected room.
func (c *Controller) RunCommand(home *state.Home, text string) (command.Result, error) {
	res, err := command.Interpret(text, home)
	switch {
	case err != nil:
		CommandsTotal.WithLabelValues("rejected").Inc()
		Logger.Debug().Msgf("command %q rejected: %v", text, err)
		return res, err
	case !res.Changed():
		CommandsTotal.WithLabelValues("unrecognized").Inc()
		return res, nil
	}
	CommandsTotal.WithLabelValues("applied").Inc()
	Logger.Info().Str("room", string(res.Room)).Msgf("command applied: %s", strings.Join(res.Applied, ", "))
	c.changed(home, res.Room, "command")
	return res, nil
}

// Gesture classifies frame and applies the label to home. The annotated
// frame is kept for home's dashboard.
func (c *Controller) Gesture(ctx context.Context, home *state.Home, frame []byte) (GestureOutcome, error) {
	if c.classifier == nil {
		return GestureOutcome{}, gesture.ErrClassifierUnavailable
	}
	cl, err := c.classifier.Classify(ctx, frame)
	if err != nil {
		return GestureOutcome{}, err
	}
	room, err := gesture.Apply(cl.Label, home)
	if err != nil {
		return GestureOutcome{}, err
	}
	GesturesTotal.WithLabelValues(string(cl.Label)).Inc()
	Logger.Info().Str("label", string(cl.Label)).Msgf("gesture applied with confidence %.03f", cl.Confidence)
	c.changed(home, room, "gesture")

	if marked, err := gesture.MarkupJPEG(frame, cl); err == nil {
		c.frameMu.Lock()
		c.frames[home] = marked
		c.frameMu.Unlock()
	} else {
		Logger.Debug().Msgf("frame not annotated: %v", err)
	}

	s, _ := home.State(room)
	return GestureOutcome{Label: cl.Label, Confidence: cl.Confidence, Room: room, State: s}, nil
}

// LastFrame returns the most recent annotated gesture frame of home, if any.
func (c *Controller) LastFrame(home *state.Home) []byte {
	c.frameMu.RLock()
	defer c.frameMu.RUnlock()
	return c.frames[home]
}

// Forget drops what the controller keeps for a Home whose session ended.
func (c *Controller) Forget(home *state.Home) {
	c.frameMu.Lock()
	delete(c.frames, home)
	c.frameMu.Unlock()
}

// CameraFrames feeds polled camera snapshots into the gesture pipeline of home.
func (c *Controller) CameraFrames(home *state.Home) FrameHandler {
	return func(camera string, frame []byte) {
		if _, err := c.Gesture(context.Background(), home, frame); err != nil {
			Logger.Debug().Msgf("no gesture from %s: %v", camera, err)
		}
	}
}

// SendPeer forwards a combined command to the embedded peer. It does not
// touch any Home.
func (c *Controller) SendPeer(cmd wire.PeerCommand) error {
	return c.pub.PublishPeer(cmd)
}

// ObservePeer records a payload seen on the peer topic, whoever sent it.
func (c *Controller) ObservePeer(payload []byte) {
	cmd, err := wire.DecodePeerCommand(payload)
	if err != nil {
		Logger.Debug().Msgf("unreadable peer command: %v", err)
		return
	}
	c.peerMu.Lock()
	c.lastPeer = &PeerObservation{Command: cmd, Seen: time.Now()}
	c.peerMu.Unlock()
}

// LastPeer returns the last observed peer command, or nil.
func (c *Controller) LastPeer() *PeerObservation {
	c.peerMu.RLock()
	defer c.peerMu.RUnlock()
	return c.lastPeer
}
