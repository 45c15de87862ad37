package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/toolbay/trade-service/internal/domain"
	"github.com/toolbay/trade-service/internal/presence"
	"github.com/toolbay/trade-service/internal/service"
)

type Handlers struct {
	offers *service.OfferService
	convs  *service.ConversationService
	unread *presence.Cache
}

func NewHandlers(offers *service.OfferService, convs *service.ConversationService, unread *presence.Cache) *Handlers {
	return &Handlers{offers: offers, convs: convs, unread: unread}
}

func actor(c *fiber.Ctx) string {
	user, _ := c.Locals("user_id").(string)
	return user
}

func opCtx(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Context(), 5*time.Second)
}

func (h *Handlers) createOffer(c *fiber.Ctx) error {
	var req struct {
		ToolID  string  `json:"tool_id"`
		Price   float64 `json:"price"`
		Message string  `json:"message"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	ctx, cancel := opCtx(c)
	defer cancel()
	o, err := h.offers.Create(ctx, actor(c), service.CreateOfferInput{
		ToolID:  req.ToolID,
		Price:   req.Price,
		Message: req.Message,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"status": "ok", "data": o})
}

func (h *Handlers) listOffers(c *fiber.Ctx) error {
	ctx, cancel := opCtx(c)
	defer cancel()
	var (
		out []*domain.Offer
		err error
	)
	if c.Query("role", "buyer") == "seller" {
		out, err = h.offers.ListBySeller(ctx, actor(c))
	} else {
		out, err = h.offers.ListByBuyer(ctx, actor(c))
	}
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": out})
}

func (h *Handlers) getOffer(c *fiber.Ctx) error {
	ctx, cancel := opCtx(c)
	defer cancel()
	o, err := h.offers.Get(ctx, c.Params("id"), actor(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": o})
}

func (h *Handlers) offerMessages(c *fiber.Ctx) error {
	ctx, cancel := opCtx(c)
	defer cancel()
	msgs, err := h.offers.Messages(ctx, c.Params("id"), actor(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": msgs})
}

type transitionReq struct {
	Price            float64 `json:"price"`
	Message          string  `json:"message"`
	Reason           string  `json:"reason"`
	ExpectedRevision int64   `json:"expected_revision"`
}

func (h *Handlers) acceptOffer(c *fiber.Ctx) error {
	var req transitionReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	ctx, cancel := opCtx(c)
	defer cancel()
	o, err := h.offers.Accept(ctx, c.Params("id"), actor(c), req.ExpectedRevision)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": o})
}

func (h *Handlers) counterOffer(c *fiber.Ctx) error {
	var req transitionReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	ctx, cancel := opCtx(c)
	defer cancel()
	o, err := h.offers.Counter(ctx, c.Params("id"), actor(c), req.Price, req.Message, req.ExpectedRevision)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": o})
}

func (h *Handlers) declineOffer(c *fiber.Ctx) error {
	var req transitionReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	ctx, cancel := opCtx(c)
	defer cancel()
	o, err := h.offers.Decline(ctx, c.Params("id"), actor(c), req.Reason, req.ExpectedRevision)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": o})
}

func (h *Handlers) cancelOffer(c *fiber.Ctx) error {
	var req transitionReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	ctx, cancel := opCtx(c)
	defer cancel()
	o, err := h.offers.Cancel(ctx, c.Params("id"), actor(c), req.ExpectedRevision)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": o})
}

func (h *Handlers) sendOfferMessage(c *fiber.Ctx) error {
	var req struct {
		Text             string `json:"text"`
		ExpectedRevision int64  `json:"expected_revision"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	ctx, cancel := opCtx(c)
	defer cancel()
	o, err := h.offers.SendThreadMessage(ctx, c.Params("id"), actor(c), req.Text, req.ExpectedRevision)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"status": "ok", "data": o})
}

func (h *Handlers) markOfferRead(c *fiber.Ctx) error {
	ctx, cancel := opCtx(c)
	defer cancel()
	o, err := h.offers.MarkRead(ctx, c.Params("id"), actor(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": o})
}

func (h *Handlers) openConversation(c *fiber.Ctx) error {
	var req struct {
		PeerID string `json:"peer_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	ctx, cancel := opCtx(c)
	defer cancel()
	conv, err := h.convs.GetOrCreate(ctx, actor(c), req.PeerID)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"status": "ok", "data": conv})
}

func (h *Handlers) findConversation(c *fiber.Ctx) error {
	peer := c.Query("peer_id")
	if peer == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "peer_id required"})
	}
	ctx, cancel := opCtx(c)
	defer cancel()
	conv, err := h.convs.FindBetween(ctx, actor(c), peer)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": conv})
}

func (h *Handlers) listConversations(c *fiber.Ctx) error {
	ctx, cancel := opCtx(c)
	defer cancel()
	out, err := h.convs.List(ctx, actor(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": out})
}

func (h *Handlers) conversationMessages(c *fiber.Ctx) error {
	ctx, cancel := opCtx(c)
	defer cancel()
	limit := int64(c.QueryInt("limit", 50))
	var before time.Time
	if v := c.Query("before"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			before = t
		}
	}
	msgs, err := h.convs.Messages(ctx, c.Params("id"), actor(c), limit, before)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": msgs})
}

func (h *Handlers) sendConversationMessage(c *fiber.Ctx) error {
	var req struct {
		Text             string `json:"text"`
		ExpectedRevision int64  `json:"expected_revision"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	ctx, cancel := opCtx(c)
	defer cancel()
	conv, msg, err := h.convs.SendMessage(ctx, c.Params("id"), actor(c), req.Text, req.ExpectedRevision)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"status": "ok", "data": msg, "conversation": conv})
}

func (h *Handlers) markConversationRead(c *fiber.Ctx) error {
	ctx, cancel := opCtx(c)
	defer cancel()
	conv, err := h.convs.MarkRead(ctx, c.Params("id"), actor(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": conv})
}

func (h *Handlers) archiveConversation(c *fiber.Ctx) error {
	var req struct {
		Status string `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if req.Status == "" {
		req.Status = string(domain.ConversationArchived)
	}
	ctx, cancel := opCtx(c)
	defer cancel()
	conv, err := h.convs.SetStatus(ctx, c.Params("id"), actor(c), domain.ConversationStatus(req.Status))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": conv})
}

func (h *Handlers) unreadCount(c *fiber.Ctx) error {
	ctx, cancel := opCtx(c)
	defer cancel()
	n, err := h.unread.UnreadCount(ctx, actor(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "unread_count": n})
}
