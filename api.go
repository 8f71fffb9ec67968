package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	. "github.com/elijahnyp/casa_inteligente/util"

	"github.com/elijahnyp/casa_inteligente/command"
	"github.com/elijahnyp/casa_inteligente/gesture"
	"github.com/elijahnyp/casa_inteligente/publisher"
	"github.com/elijahnyp/casa_inteligente/state"
	"github.com/elijahnyp/casa_inteligente/wire"
)

const homeKey = "home"

const maxFrameBytes = 8 << 20

type attributeRequest struct {
	Value json.RawMessage `json:"value"`
}

type commandRequest struct {
	Command string `json:"command"`
}

type commandResponse struct {
	Room    state.Room `json:"room"`
	Applied []string   `json:"applied"`
	Message string     `json:"message"`
	Changed bool       `json:"changed"`
}

type peerRequest struct {
	Act1   string   `json:"Act1"`
	Analog *float64 `json:"Analog"`
}

type statusResponse struct {
	GesturesEnabled bool   `json:"gestures_enabled"`
	Validation      string `json:"validation"`
	SharedState     bool   `json:"shared_state"`
	Sessions        int    `json:"sessions"`

	LastPeer *PeerObservation `json:"last_peer,omitempty"`
}

// NewAPI builds the /api routes. Every request is bound to its session's Home.
// Reads never start a session: without one they see a default Home.
func NewAPI(ctl *Controller, sessions *SessionStore, validation state.Validation) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			Logger.Debug().Str("method", v.Method).Int("status", v.Status).Msg(v.URI)
			return nil
		},
	}))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			r := c.Request()
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				home := sessions.Lookup(r)
				if home == nil {
					home = state.NewHome(validation)
				}
				c.Set(homeKey, home)
				return next(c)
			}
			c.Set(homeKey, sessions.Home(c.Response(), r))
			return next(c)
		}
	})

	e.GET("/api/status", func(c echo.Context) error {
		return c.JSON(http.StatusOK, statusResponse{
			GesturesEnabled: ctl.GesturesEnabled(),
			Validation:      validation.String(),
			SharedState:     sessions.Shared() != nil,
			Sessions:        sessions.Len(),
			LastPeer:        ctl.LastPeer(),
		})
	})

	e.GET("/api/rooms", func(c echo.Context) error {
		return c.JSON(http.StatusOK, homeOf(c).Snapshot())
	})

	e.GET("/api/rooms/:room", func(c echo.Context) error {
		room, err := roomParam(c)
		if err != nil {
			return err
		}
		s, _ := homeOf(c).State(room)
		return c.JSON(http.StatusOK, s)
	})

	e.PUT("/api/rooms/:room/:attr", func(c echo.Context) error {
		room, err := roomParam(c)
		if err != nil {
			return err
		}
		var req attributeRequest
		if err := c.Bind(&req); err != nil {
			return err
		}
		value, err := attributeValue(c.Param("attr"), req.Value)
		if err != nil {
			return err
		}
		home := homeOf(c)
		switch err := ctl.SetAttribute(home, room, c.Param("attr"), value); {
		case errors.Is(err, state.ErrOutOfRange):
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		case err != nil:
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		s, _ := home.State(room)
		return c.JSON(http.StatusOK, s)
	})

	e.POST("/api/command", func(c echo.Context) error {
		var req commandRequest
		if err := c.Bind(&req); err != nil {
			return err
		}
		res, err := ctl.RunCommand(homeOf(c), req.Command)
		if errors.Is(err, command.ErrEmptyCommand) || errors.Is(err, command.ErrNoRoomSpecified) {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		} else if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, commandResponse{
			Room:    res.Room,
			Applied: res.Applied,
			Message: res.Message,
			Changed: res.Changed(),
		})
	})

	e.POST("/api/gesture", func(c echo.Context) error {
		if !ctl.GesturesEnabled() {
			return echo.NewHTTPError(http.StatusServiceUnavailable, gesture.ErrClassifierUnavailable.Error())
		}
		frame, err := io.ReadAll(io.LimitReader(c.Request().Body, maxFrameBytes))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		if len(frame) == 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "empty frame")
		}
		out, err := ctl.Gesture(c.Request().Context(), homeOf(c), frame)
		switch {
		case errors.Is(err, gesture.ErrClassifierUnavailable):
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		case errors.Is(err, gesture.ErrNoGesture), errors.Is(err, gesture.ErrUnknownLabel):
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		case err != nil:
			return err
		}
		return c.JSON(http.StatusOK, out)
	})

	e.GET("/api/gesture/frame", func(c echo.Context) error {
		frame := ctl.LastFrame(homeOf(c))
		if frame == nil {
			return echo.NewHTTPError(http.StatusNotFound, "no frame yet")
		}
		return c.Blob(http.StatusOK, "image/jpeg", frame)
	})

	e.POST("/api/peer", func(c echo.Context) error {
		var req peerRequest
		if err := c.Bind(&req); err != nil {
			return err
		}
		cmd := wire.PeerCommand{Act1: req.Act1, Analog: wire.NoDoorMove}
		if req.Analog != nil {
			cmd.Analog = *req.Analog
		}
		switch err := ctl.SendPeer(cmd); {
		case errors.Is(err, publisher.ErrQueueFull), errors.Is(err, publisher.ErrClosed):
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		case err != nil:
			return err
		}
		return c.JSON(http.StatusAccepted, cmd)
	})

	return e
}

func homeOf(c echo.Context) *state.Home {
	return c.Get(homeKey).(*state.Home)
}

func roomParam(c echo.Context) (state.Room, error) {
	room, err := state.ParseRoom(c.Param("room"))
	if err != nil {
		return "", echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return room, nil
}

func attributeValue(attr string, raw json.RawMessage) (interface{}, error) {
	switch attr {
	case "light", "door", "presence":
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, attr+" expects true or false")
		}
		return b, nil
	case "brightness", "fan":
		var n int
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, attr+" expects an integer")
		}
		return n, nil
	}
	return nil, echo.NewHTTPError(http.StatusNotFound, "unknown attribute "+attr)
}
