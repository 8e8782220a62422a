package websocket

import (
	"github.com/gofiber/websocket/v2"
)

// ServeWs registers the connection, queues the initial snapshot and blocks
// until the viewer goes away.
func ServeWs(hub *Hub, c *websocket.Conn, initial []byte) {
	client := newClient(hub, c)
	if initial != nil {
		client.Send <- initial
	}
	hub.register <- client

	go client.writePump()
	client.readPump()
}
