package controller

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"

	"ai-knowledge-be/internal/dto"
	"ai-knowledge-be/internal/pkg/logger"
	"ai-knowledge-be/internal/pkg/serverutils"
	"ai-knowledge-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	Chat(ctx *fiber.Ctx) error
	ChatStream(ctx *fiber.Ctx) error
	GetPersonas(ctx *fiber.Ctx) error
	GetCategories(ctx *fiber.Ctx) error
	ClearHistory(ctx *fiber.Ctx) error
}

type chatController struct {
	chatService service.IChatService
	log         logger.ILogger
}

func NewChatController(chatService service.IChatService, log logger.ILogger) IChatController {
	return &chatController{
		chatService: chatService,
		log:         log,
	}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Post("", c.Chat)
	h.Post("stream", c.ChatStream)
	h.Get("personas", c.GetPersonas)
	h.Get("categories", c.GetCategories)
	h.Delete("history/:session_id", c.ClearHistory)
}

func (c *chatController) Chat(ctx *fiber.Ctx) error {
	userIdStr, _ := ctx.Locals("user_id").(string)
	userId, _ := uuid.Parse(userIdStr)

	var req dto.ChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.chatService.Chat(ctx.Context(), userId, &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success chat", res))
}

// ChatStream frames workflow events as server-sent events, one
// "data: <json>\n\n" line per event.
func (c *chatController) ChatStream(ctx *fiber.Ctx) error {
	userIdStr, _ := ctx.Locals("user_id").(string)
	userId, _ := uuid.Parse(userIdStr)

	var req dto.ChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	ctx.Set("Content-Type", "text/event-stream")
	ctx.Set("Cache-Control", "no-cache")
	ctx.Set("Connection", "keep-alive")

	ctx.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		// The fiber context is gone by the time this runs; generation is
		// cancelled when the client stops reading.
		streamCtx, cancel := context.WithCancel(context.Background())
		defer cancel()

		events, err := c.chatService.ChatStream(streamCtx, userId, &req)
		if err != nil {
			payload, _ := json.Marshal(fiber.Map{"type": "error", "error": err.Error()})
			fmt.Fprintf(w, "data: %s\n\n", payload)
			w.Flush()
			return
		}

		for event := range events {
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				cancel()
				return
			}
			if err := w.Flush(); err != nil {
				cancel()
				return
			}
		}
	}))

	return nil
}

func (c *chatController) GetPersonas(ctx *fiber.Ctx) error {
	res := c.chatService.GetPersonas(ctx.Context())
	return ctx.JSON(serverutils.SuccessResponse("Success list personas", res))
}

func (c *chatController) GetCategories(ctx *fiber.Ctx) error {
	res := c.chatService.GetCategories(ctx.Context())
	return ctx.JSON(serverutils.SuccessResponse("Success list categories", res))
}

func (c *chatController) ClearHistory(ctx *fiber.Ctx) error {
	sessionId := ctx.Params("session_id")
	if sessionId == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing session id")
	}

	if err := c.chatService.ClearHistory(ctx.Context(), sessionId); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success clear history", nil))
}
