// Package command turns free-text Spanish commands into room mutations.
package command

import (
	"errors"
	"fmt"
	"strings"

	"github.com/elijahnyp/casa_inteligente/state"
)

var (
	ErrEmptyCommand    = errors.New("empty command")
	ErrNoRoomSpecified = errors.New("no room specified")
)

// Mutator is the part of state.Home the interpreter needs.
type Mutator interface {
	Update(room state.Room, fn func(*state.DeviceState)) error
}

// Result describes what a command did.
type Result struct {
	Room    state.Room
	Applied []string
	Message string
}

// Changed reports whether any rule fired.
func (r Result) Changed() bool {
	return len(r.Applied) > 0
}

type rule struct {
	phrase string
	apply  func(*state.DeviceState)
}

// rules are tested independently and in this order; every match is applied,
// so a later rule wins when two of them write the same attribute.
var rules = []rule{
	{"encender luz", func(s *state.DeviceState) { s.LightOn = true }},
	{"apagar luz", func(s *state.DeviceState) { s.LightOn = false }},
	{"subir ventilador", func(s *state.DeviceState) { s.FanSpeed = min(state.MaxFanSpeed, s.FanSpeed+1) }},
	{"bajar ventilador", func(s *state.DeviceState) { s.FanSpeed = max(state.MinFanSpeed, s.FanSpeed-1) }},
	{"apagar ventilador", func(s *state.DeviceState) { s.FanSpeed = 0 }},
	{"encender ventilador", func(s *state.DeviceState) {
		// keep a speed the user already chose
		if s.FanSpeed == 0 {
			s.FanSpeed = 1
		}
	}},
	{"abrir puerta", func(s *state.DeviceState) { s.DoorClosed = false }},
	{"cerrar puerta", func(s *state.DeviceState) { s.DoorClosed = true }},
}

var bedroomWords = []string{"habitacion", "habitación", "cuarto"}

// ResolveRoom finds the room a normalized command refers to. The living room
// wins when both are mentioned.
func ResolveRoom(text string) (state.Room, bool) {
	if strings.Contains(text, "sala") {
		return state.Sala, true
	}
	for _, w := range bedroomWords {
		if strings.Contains(text, w) {
			return state.Habitacion, true
		}
	}
	return "", false
}

// Interpret applies every rule matched by command to its room in one atomic
// update. No mutation happens when the command is blank or names no room.
func Interpret(command string, home Mutator) (Result, error) {
	text := strings.ToLower(strings.TrimSpace(command))
	if text == "" {
		return Result{}, ErrEmptyCommand
	}

	room, ok := ResolveRoom(text)
	if !ok {
		return Result{}, fmt.Errorf("%w in %q", ErrNoRoomSpecified, command)
	}

	var matched []rule
	for _, r := range rules {
		if strings.Contains(text, r.phrase) {
			matched = append(matched, r)
		}
	}

	res := Result{Room: room}
	if len(matched) == 0 {
		res.Message = fmt.Sprintf("ninguna acción reconocida para %s", room)
		return res, nil
	}

	err := home.Update(room, func(s *state.DeviceState) {
		for _, r := range matched {
			r.apply(s)
		}
	})
	if err != nil {
		return Result{}, err
	}

	for _, r := range matched {
		res.Applied = append(res.Applied, r.phrase)
	}
	res.Message = fmt.Sprintf("%s: %s", room, strings.Join(res.Applied, ", "))
	return res, nil
}
