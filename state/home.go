package state

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrUnknownRoom = errors.New("unknown room")
	ErrOutOfRange  = errors.New("value out of range")
)

// Validation selects how the direct setters treat out-of-range input.
//
// Clamp is the default: input is silently pulled into range and no error is
// ever returned for it. Strict rejects the value and leaves state untouched.
type Validation int

const (
	Clamp Validation = iota
	Strict
)

func (v Validation) String() string {
	if v == Strict {
		return "strict"
	}
	return "clamp"
}

// ParseValidation maps the strict_validation config flag to a policy.
func ParseValidation(strict bool) Validation {
	if strict {
		return Strict
	}
	return Clamp
}

type roomState struct {
	mu    sync.Mutex
	state DeviceState
}

// Home holds the device state of both rooms for one session. Every mutation is
// a read-modify-write under the room's lock, so readers never observe an
// attribute outside its range and concurrent writers never lose updates.
type Home struct {
	validation Validation
	rooms      map[Room]*roomState
}

// NewHome creates both rooms with their default state.
func NewHome(v Validation) *Home {
	h := &Home{
		validation: v,
		rooms:      make(map[Room]*roomState, len(Rooms)),
	}
	for _, r := range Rooms {
		h.rooms[r] = &roomState{state: DefaultState()}
	}
	return h
}

func (h *Home) Validation() Validation {
	return h.validation
}

func (h *Home) room(r Room) (*roomState, error) {
	rs, ok := h.rooms[r]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRoom, string(r))
	}
	return rs, nil
}

// State returns a copy of the room's current state.
func (h *Home) State(r Room) (DeviceState, error) {
	rs, err := h.room(r)
	if err != nil {
		return DeviceState{}, err
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.state, nil
}

// Snapshot returns a copy of every room's state.
func (h *Home) Snapshot() map[Room]DeviceState {
	out := make(map[Room]DeviceState, len(h.rooms))
	for r, rs := range h.rooms {
		rs.mu.Lock()
		out[r] = rs.state
		rs.mu.Unlock()
	}
	return out
}

// Update applies fn to the room's state atomically. Ranged attributes are
// clamped after fn returns and before the lock is released.
func (h *Home) Update(r Room, fn func(*DeviceState)) error {
	rs, err := h.room(r)
	if err != nil {
		return err
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	next := rs.state
	fn(&next)
	next.normalize()
	rs.state = next
	return nil
}

func (h *Home) SetLight(r Room, on bool) error {
	return h.Update(r, func(s *DeviceState) { s.LightOn = on })
}

func (h *Home) SetBrightness(r Room, v int) error {
	if h.validation == Strict && v != ClampBrightness(v) {
		return fmt.Errorf("%w: brightness %d not in [%d,%d]", ErrOutOfRange, v, MinBrightness, MaxBrightness)
	}
	return h.Update(r, func(s *DeviceState) { s.Brightness = v })
}

func (h *Home) SetFanSpeed(r Room, v int) error {
	if h.validation == Strict && v != ClampFanSpeed(v) {
		return fmt.Errorf("%w: fan speed %d not in [%d,%d]", ErrOutOfRange, v, MinFanSpeed, MaxFanSpeed)
	}
	return h.Update(r, func(s *DeviceState) { s.FanSpeed = v })
}

func (h *Home) SetDoorClosed(r Room, closed bool) error {
	return h.Update(r, func(s *DeviceState) { s.DoorClosed = closed })
}

func (h *Home) SetPresence(r Room, detected bool) error {
	return h.Update(r, func(s *DeviceState) { s.PresenceDetected = detected })
}
