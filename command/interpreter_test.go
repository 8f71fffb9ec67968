package command

import (
	"errors"
	"testing"

	"github.com/elijahnyp/casa_inteligente/state"
)

func mustState(t *testing.T, home *state.Home, r state.Room) state.DeviceState {
	t.Helper()
	s, err := home.State(r)
	if err != nil {
		t.Fatalf("State(%s) returned error: %v", r, err)
	}
	return s
}

func TestInterpret_LightOnLivingRoom(t *testing.T) {
	home := state.NewHome(state.Clamp)

	res, err := Interpret("encender luz sala", home)
	if err != nil {
		t.Fatalf("Interpret returned error: %v", err)
	}
	if res.Room != state.Sala {
		t.Errorf("Room = %s, expected sala", res.Room)
	}
	if !res.Changed() {
		t.Error("expected a rule to fire")
	}
	if !mustState(t, home, state.Sala).LightOn {
		t.Error("sala light should be on")
	}
	if mustState(t, home, state.Habitacion) != state.DefaultState() {
		t.Error("habitacion should be untouched")
	}
}

func TestInterpret_RoomResolution(t *testing.T) {
	tests := []struct {
		command string
		want    state.Room
	}{
		{"encender luz habitacion", state.Habitacion},
		{"encender luz habitación", state.Habitacion},
		{"ENCENDER LUZ HABITACIÓN", state.Habitacion},
		{"encender luz cuarto", state.Habitacion},
		{"  Encender Luz Sala  ", state.Sala},
		{"encender luz sala y cuarto", state.Sala},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			home := state.NewHome(state.Clamp)
			res, err := Interpret(tt.command, home)
			if err != nil {
				t.Fatalf("Interpret(%q) returned error: %v", tt.command, err)
			}
			if res.Room != tt.want {
				t.Errorf("Room = %s, expected %s", res.Room, tt.want)
			}
			if !mustState(t, home, tt.want).LightOn {
				t.Errorf("%s light should be on", tt.want)
			}
		})
	}
}

func TestInterpret_Errors(t *testing.T) {
	tests := []struct {
		command string
		want    error
	}{
		{"", ErrEmptyCommand},
		{"   ", ErrEmptyCommand},
		{"\t\n", ErrEmptyCommand},
		{"encender luz", ErrNoRoomSpecified},
		{"encender luz cocina", ErrNoRoomSpecified},
	}

	for _, tt := range tests {
		home := state.NewHome(state.Clamp)
		_, err := Interpret(tt.command, home)
		if !errors.Is(err, tt.want) {
			t.Errorf("Interpret(%q) error = %v, expected %v", tt.command, err, tt.want)
		}
		for _, r := range state.Rooms {
			if mustState(t, home, r) != state.DefaultState() {
				t.Errorf("Interpret(%q) mutated %s", tt.command, r)
			}
		}
	}
}

func TestInterpret_FanUpIsClamped(t *testing.T) {
	home := state.NewHome(state.Clamp)

	for i := 0; i < 5; i++ {
		if _, err := Interpret("subir ventilador sala", home); err != nil {
			t.Fatalf("Interpret returned error: %v", err)
		}
	}
	if got := mustState(t, home, state.Sala).FanSpeed; got != 3 {
		t.Errorf("FanSpeed = %d, expected 3", got)
	}
}

func TestInterpret_FanDownStopsAtZero(t *testing.T) {
	home := state.NewHome(state.Clamp)

	for i := 0; i < 4; i++ {
		_, _ = Interpret("bajar ventilador habitacion", home)
	}
	if got := mustState(t, home, state.Habitacion).FanSpeed; got != 0 {
		t.Errorf("FanSpeed = %d, expected 0", got)
	}
}

func TestInterpret_FanOnIsGuarded(t *testing.T) {
	home := state.NewHome(state.Clamp)
	_ = home.SetFanSpeed(state.Sala, 2)

	res, err := Interpret("encender ventilador sala", home)
	if err != nil {
		t.Fatalf("Interpret returned error: %v", err)
	}
	if !res.Changed() {
		t.Error("the rule matched and should be reported")
	}
	if got := mustState(t, home, state.Sala).FanSpeed; got != 2 {
		t.Errorf("FanSpeed = %d, expected 2", got)
	}

	_ = home.SetFanSpeed(state.Sala, 0)
	_, _ = Interpret("encender ventilador sala", home)
	if got := mustState(t, home, state.Sala).FanSpeed; got != 1 {
		t.Errorf("FanSpeed = %d, expected 1", got)
	}
}

func TestInterpret_FanOffThenOnInOneCommand(t *testing.T) {
	home := state.NewHome(state.Clamp)
	_ = home.SetFanSpeed(state.Sala, 3)

	_, _ = Interpret("apagar ventilador y encender ventilador sala", home)
	if got := mustState(t, home, state.Sala).FanSpeed; got != 1 {
		t.Errorf("FanSpeed = %d, expected 1", got)
	}
}

func TestInterpret_LastRuleWins(t *testing.T) {
	home := state.NewHome(state.Clamp)

	res, err := Interpret("encender luz y apagar luz sala", home)
	if err != nil {
		t.Fatalf("Interpret returned error: %v", err)
	}
	if len(res.Applied) != 2 {
		t.Errorf("Applied = %v, expected both light rules", res.Applied)
	}
	if mustState(t, home, state.Sala).LightOn {
		t.Error("light should be off, apagar luz is evaluated after encender luz")
	}

	// text order does not matter, rule order does
	_, _ = Interpret("apagar luz y encender luz sala", home)
	if mustState(t, home, state.Sala).LightOn {
		t.Error("light should still be off")
	}
}

func TestInterpret_Doors(t *testing.T) {
	home := state.NewHome(state.Clamp)

	_, _ = Interpret("abrir puerta cuarto", home)
	if mustState(t, home, state.Habitacion).DoorClosed {
		t.Error("door should be open")
	}
	_, _ = Interpret("cerrar puerta cuarto", home)
	if !mustState(t, home, state.Habitacion).DoorClosed {
		t.Error("door should be closed")
	}
}

func TestInterpret_UnionOfEffects(t *testing.T) {
	home := state.NewHome(state.Clamp)

	res, err := Interpret("encender luz, subir ventilador y abrir puerta de la sala", home)
	if err != nil {
		t.Fatalf("Interpret returned error: %v", err)
	}
	s := mustState(t, home, state.Sala)
	want := state.DeviceState{LightOn: true, Brightness: 50, FanSpeed: 2, DoorClosed: false}
	if s != want {
		t.Errorf("state = %+v, expected %+v", s, want)
	}
	if len(res.Applied) != 3 {
		t.Errorf("Applied = %v, expected 3 rules", res.Applied)
	}
}

func TestInterpret_NoRuleMatched(t *testing.T) {
	home := state.NewHome(state.Clamp)

	res, err := Interpret("hola sala", home)
	if err != nil {
		t.Fatalf("Interpret returned error: %v", err)
	}
	if res.Changed() {
		t.Errorf("Applied = %v, expected none", res.Applied)
	}
	if res.Room != state.Sala {
		t.Errorf("Room = %s, expected sala", res.Room)
	}
	if res.Message == "" {
		t.Error("expected a message")
	}
}
