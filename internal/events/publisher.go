package events

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/toolbay/trade-service/internal/domain"
)

const (
	SubjectOfferUpdated        = "offer.updated"
	SubjectConversationUpdated = "conversation.updated"
)

type OfferEvent struct {
	Op    domain.ChangeOp `json:"op"`
	Offer *domain.Offer   `json:"offer"`
}

type ConversationEvent struct {
	Op           domain.ChangeOp      `json:"op"`
	Conversation *domain.Conversation `json:"conversation"`
}

// Publisher announces committed changes on the backend bus so peer
// instances can feed their own hubs. Publishing is best effort; the
// store is already committed by the time we get here.
type Publisher struct {
	nc  *nats.Conn
	log *zap.SugaredLogger
}

func NewPublisher(natsURL string, log *zap.SugaredLogger) (*Publisher, error) {
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Publisher{nc: nc, log: log}, nil
}

func (p *Publisher) PublishOffer(op domain.ChangeOp, o *domain.Offer) {
	b, _ := json.Marshal(OfferEvent{Op: op, Offer: o})
	if err := p.nc.Publish(SubjectOfferUpdated, b); err != nil {
		p.log.Warnw("nats publish failed", "subject", SubjectOfferUpdated, "err", err)
	}
}

func (p *Publisher) PublishConversation(op domain.ChangeOp, c *domain.Conversation) {
	b, _ := json.Marshal(ConversationEvent{Op: op, Conversation: c})
	if err := p.nc.Publish(SubjectConversationUpdated, b); err != nil {
		p.log.Warnw("nats publish failed", "subject", SubjectConversationUpdated, "err", err)
	}
}

func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
	}
}
