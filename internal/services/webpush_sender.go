package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/sensus/peek/internal/logging"
	"github.com/sensus/peek/internal/metrics"
)

// VAPIDConfig holds the application server identity used to sign pushes.
type VAPIDConfig struct {
	PublicKey  string
	PrivateKey string
	// Subject is a mailto: or https: contact URI.
	Subject string
	// TTL is how long (seconds) the push service keeps an undelivered message.
	TTL int
}

// VAPIDSender delivers Web Push messages through the subscriber's push service.
// Consecutive delivery failures open a circuit breaker so a dead push service does
// not hold every dispatch for the full timeout.
type VAPIDSender struct {
	opts webpush.Options
	cb   *gobreaker.CircuitBreaker[*http.Response]
}

func NewVAPIDSender(cfg VAPIDConfig, client *http.Client) *VAPIDSender {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	metrics.PushBreakerState.Set(0)
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "webpush",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			metrics.PushBreakerState.Set(breakerStateValue(to))
		},
	})

	return &VAPIDSender{
		opts: webpush.Options{
			HTTPClient: client,
			// webpush-go adds the mailto: scheme itself.
			Subscriber:      strings.TrimPrefix(cfg.Subject, "mailto:"),
			VAPIDPublicKey:  cfg.PublicKey,
			VAPIDPrivateKey: cfg.PrivateKey,
			TTL:             cfg.TTL,
		},
		cb: cb,
	}
}

// Send encrypts payload for sub and posts it. Any non-2xx answer is an error.
func (s *VAPIDSender) Send(ctx context.Context, sub *webpush.Subscription, payload []byte) error {
	opts := s.opts
	resp, err := s.cb.Execute(func() (*http.Response, error) {
		resp, err := webpush.SendNotificationWithContext(ctx, payload, sub, &opts)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		// 404/410 mean the subscription is gone, not that the push service is down.
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			return resp, nil
		}
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, fmt.Errorf("push service returned %d", resp.StatusCode)
		}
		return resp, nil
	})
	if err != nil {
		return fmt.Errorf("webpush send: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("webpush send: subscription expired (%d)", resp.StatusCode)
	}
	return nil
}

func breakerStateValue(st gobreaker.State) float64 {
	switch st {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
