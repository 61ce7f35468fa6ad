package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512 * 1024
)

// Client is one connected WebSocket transport. It implements
// registry.Handle so the registry and pairing store can address it.
type Client struct {
	// id is a relay-assigned transport id. Mobiles are addressed by it
	// (it is the mobileId in pairing requests) because they need not register.
	id string

	// conn is the underlying WebSocket connection.
	conn *websocket.Conn

	// send is a buffered channel for outgoing messages.
	// The write goroutine reads from this and sends to the WebSocket.
	send chan Message

	// done is closed to signal the client should shut down.
	// Used to coordinate clean shutdown without racing on send channel.
	done chan struct{}

	// sendOnce ensures done is only closed once.
	// Both Stop() and readPump() may try to close it.
	sendOnce sync.Once

	server *Server

	// limiter caps inbound events per second for this connection.
	limiter *rate.Limiter

	remote string
}

// ID returns the relay-assigned transport id.
func (c *Client) ID() string {
	return c.id
}

// Send queues an outbound event without blocking. It returns false if the
// client is shutting down or its buffer is full.
func (c *Client) Send(event string, payload interface{}) bool {
	return c.enqueue(Message{Type: MessageType(event), Payload: payload})
}

// enqueue is the single non-blocking write path into send.
func (c *Client) enqueue(msg Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case <-c.done:
		return false
	case c.send <- msg:
		return true
	default:
		c.server.log.Warn().Str("conn", c.id).Str("type", string(msg.Type)).Msg("client send buffer full, dropping message")
		return false
	}
}

// closeSend safely signals the client to shut down exactly once.
// We only close the done channel (not send) to avoid racing with
// ongoing send operations. All senders check done before sending.
func (c *Client) closeSend() {
	c.sendOnce.Do(func() {
		close(c.done)
	})
}

// writePump continuously sends messages from the send channel to the WebSocket.
// It also sends periodic pings to keep the connection alive.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			// Shutdown signaled; send close frame and exit.
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			data, err := json.Marshal(msg)
			if err != nil {
				c.server.log.Error().Err(err).Str("type", string(msg.Type)).Msg("failed to marshal message")
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.server.log.Debug().Err(err).Str("conn", c.id).Msg("write error")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads frames from the WebSocket and dispatches them.
// When it returns, the client is removed from the server and the registry.
func (c *Client) readPump() {
	defer func() {
		c.server.mu.Lock()
		delete(c.server.clients, c)
		remaining := len(c.server.clients)
		c.server.mu.Unlock()

		// Stop() may have already closed done during shutdown.
		c.closeSend()
		c.server.handleDisconnect(c)

		c.server.log.Info().Str("conn", c.id).Int("remaining", remaining).Msg("client disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	// When we receive a pong (response to our ping), we know the client is alive.
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				c.server.log.Debug().Err(err).Str("conn", c.id).Msg("read error")
			}
			return
		}

		c.dispatch(data)
	}
}
