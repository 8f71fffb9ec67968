package main

import (
	"net/http"

	. "github.com/elijahnyp/casa_inteligente/util"
	"github.com/gorilla/websocket"

	"github.com/elijahnyp/casa_inteligente/state"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// WebSocketMessage represents a message sent over WebSocket
type WebSocketMessage struct {
	Data interface{} `json:"data"`
	Type string      `json:"type"`
}

type envelope struct {
	home    *state.Home
	message WebSocketMessage
}

// WSClient represents a connected WebSocket client
type WSClient struct {
	conn *websocket.Conn
	send chan WebSocketMessage
	hub  *WSHub
	home *state.Home
}

// WSHub maintains the set of active clients and broadcasts messages to the
// clients watching the same Home.
type WSHub struct {
	clients    map[*WSClient]bool
	broadcast  chan envelope
	register   chan *WSClient
	unregister chan *WSClient
}

// NewHub creates a new WebSocket hub
func NewHub() *WSHub {
	return &WSHub{
		clients:    make(map[*WSClient]bool),
		broadcast:  make(chan envelope, 64),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
	}
}

// Run starts the WebSocket hub
func (h *WSHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			Logger.Info().Msg("Client connected to WebSocket")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				Logger.Info().Msg("Client disconnected from WebSocket")
			}

		case env := <-h.broadcast:
			for client := range h.clients {
				if client.home != env.home {
					continue
				}
				select {
				case client.send <- env.message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
		}
	}
}

// BroadcastUpdate sends an update to every client of home
func (h *WSHub) BroadcastUpdate(home *state.Home, messageType string, data interface{}) {
	select {
	case h.broadcast <- envelope{home: home, message: WebSocketMessage{Type: messageType, Data: data}}:
	default:
		// Channel is full, skip this update
	}
}

// readPump pumps messages from the websocket connection to the hub
func (c *WSClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		if err := c.conn.Close(); err != nil {
			Logger.Debug().Err(err).Msg("Error closing WebSocket connection")
		}
	}()

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *WSClient) writePump() {
	defer func() {
		if err := c.conn.Close(); err != nil {
			Logger.Debug().Err(err).Msg("Error closing WebSocket connection")
		}
	}()

	for message := range c.send {
		if err := c.conn.WriteJSON(message); err != nil {
			return
		}
	}
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		Logger.Debug().Err(err).Msg("Error writing close message")
	}
}

// ServeWebSocket upgrades the request and streams room_state updates for the
// caller's session, starting with the current snapshot of every room.
func ServeWebSocket(hub *WSHub, sessions *SessionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		home := sessions.Home(w, r)

		// the upgrade writes its own response, carry over a fresh session cookie
		var header http.Header
		if cookies := w.Header().Values("Set-Cookie"); len(cookies) > 0 {
			header = http.Header{"Set-Cookie": cookies}
		}
		conn, err := upgrader.Upgrade(w, r, header)
		if err != nil {
			Logger.Error().Err(err).Msg("WebSocket upgrade failed")
			return
		}

		client := &WSClient{
			conn: conn,
			send: make(chan WebSocketMessage, 256),
			hub:  hub,
			home: home,
		}
		for _, room := range state.Rooms {
			s, _ := home.State(room)
			client.send <- WebSocketMessage{Type: "room_state", Data: RoomUpdate{Room: room, State: s}}
		}

		client.hub.register <- client

		go client.writePump()
		go client.readPump()
	}
}
