package websocket

import (
	"context"

	"ai-knowledge-be/internal/service"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// ServeWs registers the connection with the hub and starts the pumps.
// Blocks until the connection closes.
func ServeWs(hub *Hub, chatService service.IChatService, conn *websocket.Conn, userID uuid.UUID) {
	ctx, cancel := context.WithCancel(context.Background())

	client := &Client{
		Hub:         hub,
		Conn:        conn,
		UserID:      userID,
		Send:        make(chan []byte, 256),
		chatService: chatService,
		cancel:      cancel,
	}
	client.Hub.register <- client

	go client.writePump()
	client.readPump(ctx)
}
