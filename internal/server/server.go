package server

import (
	"log"

	"ai-knowledge-be/internal/bootstrap"
	"ai-knowledge-be/internal/config"
	"ai-knowledge-be/internal/pkg/serverutils"
	ws "ai-knowledge-be/internal/websocket"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

type Server struct {
	app       *fiber.App
	cfg       *config.Config
	container *bootstrap.Container
}

func New(cfg *config.Config, container *bootstrap.Container) *Server {
	app := fiber.New(fiber.Config{
		BodyLimit:    10 * 1024 * 1024, // base64 images in chat requests
		ErrorHandler: serverutils.ErrorHandler,
	})

	// Middleware
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.App.CorsAllowedOrigins,
		AllowCredentials: true,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization",
	}))

	// OpenTelemetry tracing middleware (traces all HTTP requests)
	app.Use(otelfiber.Middleware())

	// Routes
	registerRoutes(app, container)

	return &Server{
		app:       app,
		cfg:       cfg,
		container: container,
	}
}

func (s *Server) GetApp() *fiber.App {
	return s.app
}

func (s *Server) Run() error {
	log.Printf("✅ Server is running on http://localhost:%s", s.cfg.App.Port)
	return s.app.Listen(":" + s.cfg.App.Port)
}

func registerRoutes(app *fiber.App, c *bootstrap.Container) {
	api := app.Group("/api")

	c.ChatController.RegisterRoutes(api)
	c.DocumentController.RegisterRoutes(api)

	registerWebsocket(api, c)
}

// registerWebsocket exposes the chat stream over a persistent connection.
// The JWT middleware runs on the upgrade request, so Locals carries the
// authenticated user through to the socket handler.
func registerWebsocket(api fiber.Router, c *bootstrap.Container) {
	stream := api.Group("/chat/v1/ws", serverutils.JwtMiddleware)

	stream.Use(func(ctx *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(ctx) {
			return ctx.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	stream.Get("", websocket.New(func(conn *websocket.Conn) {
		userID := uuid.Nil
		if raw, ok := conn.Locals("user_id").(string); ok {
			if parsed, err := uuid.Parse(raw); err == nil {
				userID = parsed
			}
		}
		ws.ServeWs(c.WebSocketHub, c.ChatService, conn, userID)
	}))
}
