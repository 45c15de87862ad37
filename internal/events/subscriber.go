package events

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/toolbay/trade-service/internal/subscription"
)

// Subscriber feeds bus announcements into the local hub. It is the feed
// used when Mongo change streams are unavailable (standalone server).
type Subscriber struct {
	nc   *nats.Conn
	hub  *subscription.Hub
	subs []*nats.Subscription
	log  *zap.SugaredLogger
}

func NewSubscriber(natsURL string, hub *subscription.Hub, log *zap.SugaredLogger) (*Subscriber, error) {
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Subscriber{nc: nc, hub: hub, log: log}, nil
}

func (s *Subscriber) Start() error {
	sub, err := s.nc.Subscribe(SubjectOfferUpdated, func(m *nats.Msg) {
		var ev OfferEvent
		if err := json.Unmarshal(m.Data, &ev); err != nil || ev.Offer == nil {
			s.log.Warnw("invalid offer event", "err", err)
			return
		}
		s.hub.PublishOffer(ev.Op, ev.Offer)
	})
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)

	sub, err = s.nc.Subscribe(SubjectConversationUpdated, func(m *nats.Msg) {
		var ev ConversationEvent
		if err := json.Unmarshal(m.Data, &ev); err != nil || ev.Conversation == nil {
			s.log.Warnw("invalid conversation event", "err", err)
			return
		}
		s.hub.PublishConversation(ev.Op, ev.Conversation)
	})
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Drain()
	}
}
