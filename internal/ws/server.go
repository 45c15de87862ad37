package ws

import (
	"context"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/toolbay/trade-service/internal/notify"
	"github.com/toolbay/trade-service/internal/presence"
	"github.com/toolbay/trade-service/internal/subscription"
)

// Server exposes subscribe(userId) over a websocket: one snapshot frame,
// then a delta frame per post-snapshot change, plus popup frames from
// the notification gate. The subscription handle lives exactly as long
// as the connection.
type Server struct {
	hub      *subscription.Hub
	presence *presence.Cache
	popupTTL time.Duration
	log      *zap.SugaredLogger
}

func NewServer(hub *subscription.Hub, pres *presence.Cache, popupTTL time.Duration, log *zap.SugaredLogger) *Server {
	return &Server{hub: hub, presence: pres, popupTTL: popupTTL, log: log}
}

type frame struct {
	Type         string                 `json:"type"` // snapshot | delta | notification
	Snapshot     *subscription.Snapshot `json:"snapshot,omitempty"`
	Event        *subscription.Event    `json:"event,omitempty"`
	Notification *notify.Notification   `json:"notification,omitempty"`
	UnreadCount  int64                  `json:"unread_count"`
}

type clientFrame struct {
	Type string `json:"type"`
}

// HandleWS is the websocket.Handler mounted behind the auth middleware.
func (s *Server) HandleWS(conn *websocket.Conn) {
	userID, _ := conn.Locals("user_id").(string)
	if userID == "" {
		_ = conn.Close()
		return
	}
	ctx := context.Background()

	sub, err := s.hub.Subscribe(ctx, userID)
	if err != nil {
		s.log.Warnw("subscribe failed", "user_id", userID, "err", err)
		_ = conn.WriteJSON(map[string]string{"error": "subscription unavailable, retry"})
		_ = conn.Close()
		return
	}
	defer sub.Close()

	center := notify.NewCenter(userID, s.popupTTL, s.log)
	defer center.Stop()

	s.presence.SetOnline(ctx, userID)
	defer s.presence.SetOffline(ctx, userID)

	snap := sub.Snapshot()
	count, _ := s.presence.UnreadCount(ctx, userID)
	if err := conn.WriteJSON(frame{Type: "snapshot", Snapshot: &snap, UnreadCount: count}); err != nil {
		return
	}

	done := make(chan struct{})
	go s.readPump(conn, center, done)
	s.writePump(conn, sub, center, done, userID)
}

// readPump consumes client frames (dismiss, pongs) until the peer goes
// away.
func (s *Server) readPump(conn *websocket.Conn, center *notify.Center, done chan struct{}) {
	defer close(done)
	conn.SetReadLimit(16 * 1024)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})
	for {
		var cf clientFrame
		if err := conn.ReadJSON(&cf); err != nil {
			return
		}
		if cf.Type == "dismiss" {
			center.Dismiss()
		}
	}
}

func (s *Server) writePump(conn *websocket.Conn, sub *subscription.Subscription, center *notify.Center, done chan struct{}, userID string) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	ctx := context.Background()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			center.Observe(ev)
			count, _ := s.presence.Refresh(ctx, userID)
			if err := conn.WriteJSON(frame{Type: "delta", Event: &ev, UnreadCount: count}); err != nil {
				return
			}
		case n := <-center.Notifications():
			count, _ := s.presence.UnreadCount(ctx, userID)
			if err := conn.WriteJSON(frame{Type: "notification", Notification: n, UnreadCount: count}); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
