package websocket

import (
	"context"
	"encoding/json"
	"time"

	"ai-knowledge-be/internal/dto"
	"ai-knowledge-be/internal/service"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // chat requests may carry base64 images
)

// Client is a middleman between one websocket connection and the chat
// service. Each inbound frame is a chat request; the streamed workflow
// events go back on the same connection.
type Client struct {
	Hub *Hub

	Conn *websocket.Conn

	UserID uuid.UUID

	// Buffered channel of outbound messages.
	Send chan []byte

	chatService service.IChatService

	// cancel stops in-flight generation when the connection drops.
	cancel context.CancelFunc
}

// readPump consumes chat requests until the connection closes.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.cancel()
		c.Hub.unregister <- c
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			break
		}

		var req dto.ChatRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			c.sendError("invalid request payload")
			continue
		}
		if req.Query == "" {
			c.sendError("query is required")
			continue
		}

		c.streamChat(ctx, &req)
	}
}

// streamChat runs one turn and relays its events. Requests are handled
// sequentially per connection; the stream order guarantees depend on it.
func (c *Client) streamChat(ctx context.Context, req *dto.ChatRequest) {
	events, err := c.chatService.ChatStream(ctx, c.UserID, req)
	if err != nil {
		c.sendError(err.Error())
		return
	}

	for event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		select {
		case c.Send <- data:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) sendError(message string) {
	data, _ := json.Marshal(map[string]interface{}{
		"type":  "error",
		"error": message,
	})
	select {
	case c.Send <- data:
	default:
	}
}

// writePump pumps outbound messages onto the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
