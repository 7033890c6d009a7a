package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/sensus/peek/internal/logging"
	"github.com/sensus/peek/internal/models"
	"github.com/sensus/peek/internal/storage"
	"github.com/sensus/peek/internal/validation"
)

//go:generate mockgen -source=push_service.go -destination=../../mocks/mock_push.go -package=mocks

var ErrPushDisabled = errors.New("push notifications are not configured")

// Notifier delivers a title/body notification to every subscription of a user.
// It never fails: per-subscription problems are counted in the report.
type Notifier interface {
	Notify(ctx context.Context, userID, title, body string) DispatchReport
}

// PushSender delivers one encrypted Web Push message.
type PushSender interface {
	Send(ctx context.Context, sub *webpush.Subscription, payload []byte) error
}

// DispatchReport summarises one dispatch. Attempted counts every stored subscription,
// Malformed those whose stored JSON could not be decoded.
type DispatchReport struct {
	Attempted int
	Delivered int
	Failed    int
	Malformed int
}

// ValidationError carries field -> message pairs of a rejected request.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %d field(s)", len(e.Fields))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

type pushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// PushService keeps the single live push subscription of each user and fans
// notifications out to it.
type PushService struct {
	subs      storage.Subscriptions
	sender    PushSender
	publicKey string
	now       func() time.Time
}

// NewPushService creates the service. sender may be nil, in which case Notify
// reports every subscription as failed.
func NewPushService(subs storage.Subscriptions, sender PushSender, publicKey string) *PushService {
	return &PushService{
		subs:      subs,
		sender:    sender,
		publicKey: publicKey,
		now:       time.Now,
	}
}

// PublicKey returns the VAPID application server key browsers subscribe with.
func (s *PushService) PublicKey() (string, error) {
	if s.publicKey == "" {
		return "", ErrPushDisabled
	}
	return s.publicKey, nil
}

// Subscribe validates req and replaces every earlier subscription of the user with it.
func (s *PushService) Subscribe(ctx context.Context, userID string, req models.SubscribeRequest) (*models.PushSubscription, error) {
	const op = "services.PushService.Subscribe"

	if userID == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidInput)
	}
	if fields := validation.Struct(req); fields != nil {
		return nil, fmt.Errorf("%s: %w", op, &ValidationError{Fields: fields})
	}

	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sub := &models.PushSubscription{
		ID:           uuid.NewString(),
		UserID:       userID,
		Subscription: string(raw),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.subs.ReplaceSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	logging.Ctx(ctx).Info().Str("user", userID).Msg("push subscription replaced")
	return sub, nil
}

// Notify sends {"title","body"} to each stored subscription. One subscription's
// failure never stops the others.
func (s *PushService) Notify(ctx context.Context, userID, title, body string) DispatchReport {
	var rep DispatchReport
	l := logging.Ctx(ctx)

	subs, err := s.subs.Subscriptions(ctx, userID)
	if err != nil {
		l.Warn().Err(err).Str("user", userID).Msg("load push subscriptions failed")
		return rep
	}
	if len(subs) == 0 {
		return rep
	}

	payload, err := json.Marshal(pushPayload{Title: title, Body: body})
	if err != nil {
		l.Error().Err(err).Str("user", userID).Msg("encode push payload failed")
		return rep
	}

	for _, stored := range subs {
		rep.Attempted++

		var ws webpush.Subscription
		if err := json.Unmarshal([]byte(stored.Subscription), &ws); err != nil || ws.Endpoint == "" {
			rep.Malformed++
			l.Warn().Err(err).Str("user", userID).Str("subscription", stored.ID).Msg("skipping malformed push subscription")
			continue
		}

		if s.sender == nil {
			rep.Failed++
			continue
		}
		if err := s.sender.Send(ctx, &ws, payload); err != nil {
			rep.Failed++
			l.Warn().Err(err).Str("user", userID).Str("subscription", stored.ID).Msg("push delivery failed")
			continue
		}
		rep.Delivered++
	}

	l.Debug().
		Str("user", userID).
		Int("delivered", rep.Delivered).
		Int("failed", rep.Failed).
		Msg("push dispatched")
	return rep
}
