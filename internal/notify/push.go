package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/RaikyD/isp-order-intake/internal/domain"
	"github.com/RaikyD/isp-order-intake/internal/logger"
	"github.com/SherClockHolmes/webpush-go"
)

// SubscriptionStore is where browser push subscriptions live.
type SubscriptionStore interface {
	List(ctx context.Context) ([]domain.PushSubscription, error)
	Delete(ctx context.Context, endpoint string) error
}

type VAPID struct {
	PublicKey  string
	PrivateKey string
	Subscriber string
}

// SendFunc delivers one push message; webpush.SendNotificationWithContext in production.
type SendFunc func(ctx context.Context, payload []byte, sub *webpush.Subscription, opts *webpush.Options) (*http.Response, error)

type PushNotifier struct {
	store SubscriptionStore
	keys  VAPID
	send  SendFunc
}

func NewPushNotifier(store SubscriptionStore, keys VAPID) *PushNotifier {
	return &PushNotifier{store: store, keys: keys, send: webpush.SendNotificationWithContext}
}

func (n *PushNotifier) WithSender(f SendFunc) *PushNotifier {
	n.send = f
	return n
}

func (n *PushNotifier) Name() string { return "push" }

type pushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Tag   string `json:"tag"`
	URL   string `json:"url,omitempty"`
}

func (n *PushNotifier) Run(ctx context.Context, s *domain.Submission) error {
	if n.store == nil || n.keys.PublicKey == "" || n.keys.PrivateKey == "" {
		return ErrNotConfigured
	}
	subs, err := n.store.List(ctx)
	if err != nil {
		return fmt.Errorf("list push subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return ErrNotConfigured
	}

	payload, err := json.Marshal(pushPayload{
		Title: "🚨 NEW ORDER - " + s.CustomerName,
		Body: fmt.Sprintf("%s - %s\n📍 %s, %s %s\n👤 Agent: %s (%s)",
			s.SelectedProvider, s.SelectedPackage, s.StreetAddress, s.City, s.State, s.AgentName, s.AgentID),
		Tag: "new-order",
	})
	if err != nil {
		return Permanent(err)
	}

	delivered := 0
	var lastErr error
	for _, sub := range subs {
		status, err := n.deliver(ctx, payload, sub)
		switch {
		case err != nil:
			lastErr = err
		case status == http.StatusNotFound || status == http.StatusGone:
			logger.Info("push subscription expired", "submission_id", s.ID, "status", status)
			if err := n.store.Delete(ctx, sub.Endpoint); err != nil {
				logger.Warn("push subscription delete failed", "err", err)
			}
		case status/100 == 2:
			delivered++
		default:
			lastErr = classifyStatus(status, fmt.Errorf("push service returned %d", status))
		}
	}
	// one reachable browser is enough
	if delivered > 0 || lastErr == nil {
		return nil
	}
	return lastErr
}

func (n *PushNotifier) deliver(ctx context.Context, payload []byte, sub domain.PushSubscription) (int, error) {
	resp, err := n.send(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{Auth: sub.Keys.Auth, P256dh: sub.Keys.P256dh},
	}, &webpush.Options{
		Subscriber:      n.keys.Subscriber,
		VAPIDPublicKey:  n.keys.PublicKey,
		VAPIDPrivateKey: n.keys.PrivateKey,
		TTL:             3600,
		Urgency:         webpush.UrgencyHigh,
	})
	if err != nil {
		return 0, fmt.Errorf("web push: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
