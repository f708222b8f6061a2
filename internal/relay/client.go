package relay

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// client is a single websocket connection of the hub
type client struct {
	socket *websocket.Conn
	send   chan []byte
	remote string
}

// read discards incoming messages and returns once the peer goes away
func (c *client) read() {
	for {
		if _, _, err := c.socket.ReadMessage(); err != nil {
			return
		}
	}
}

// write delivers queued messages until the hub closes the send channel
func (c *client) write(logger *slog.Logger) {
	defer c.socket.Close()

	for msg := range c.send {
		_ = c.socket.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.socket.WriteMessage(websocket.TextMessage, msg); err != nil {
			logger.Debug("writing to client", slog.String("remote", c.remote), slog.Any("error", err))
			return
		}
	}

	_ = c.socket.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
