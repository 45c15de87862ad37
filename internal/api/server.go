package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"

	"github.com/toolbay/trade-service/internal/auth"
	"github.com/toolbay/trade-service/internal/presence"
	"github.com/toolbay/trade-service/internal/service"
	"github.com/toolbay/trade-service/internal/ws"
)

func NewServer(jv *auth.JWTValidator, offers *service.OfferService, convs *service.ConversationService, unread *presence.Cache, wsrv *ws.Server) *fiber.App {
	app := fiber.New()
	app.Use(logger.New())
	h := NewHandlers(offers, convs, unread)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	v1 := app.Group("/v1", auth.Middleware(jv))

	v1.Post("/offers", h.createOffer)
	v1.Get("/offers", h.listOffers)
	v1.Get("/offers/:id", h.getOffer)
	v1.Get("/offers/:id/messages", h.offerMessages)
	v1.Post("/offers/:id/accept", h.acceptOffer)
	v1.Post("/offers/:id/counter", h.counterOffer)
	v1.Post("/offers/:id/decline", h.declineOffer)
	v1.Post("/offers/:id/cancel", h.cancelOffer)
	v1.Post("/offers/:id/messages", h.sendOfferMessage)
	v1.Post("/offers/:id/read", h.markOfferRead)

	v1.Post("/conversations", h.openConversation)
	v1.Get("/conversations", h.listConversations)
	v1.Get("/conversations/find", h.findConversation)
	v1.Get("/conversations/:id/messages", h.conversationMessages)
	v1.Post("/conversations/:id/messages", h.sendConversationMessage)
	v1.Post("/conversations/:id/read", h.markConversationRead)
	v1.Post("/conversations/:id/archive", h.archiveConversation)

	v1.Get("/unread-count", h.unreadCount)

	app.Use("/ws", auth.Middleware(jv), func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/subscribe", websocket.New(wsrv.HandleWS))

	return app
}
