package state

import (
	"fmt"
	"strings"
)

// Room is one of the two fixed control zones of the house.
type Room string

const (
	Sala       Room = "sala"       // living room
	Habitacion Room = "habitacion" // bedroom
)

// Rooms lists every room in publish order.
var Rooms = []Room{Sala, Habitacion}

func (r Room) Valid() bool {
	return r == Sala || r == Habitacion
}

func (r Room) String() string {
	return string(r)
}

// ParseRoom accepts a room id, case-insensitively.
func ParseRoom(s string) (Room, error) {
	r := Room(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRoom, s)
	}
	return r, nil
}
