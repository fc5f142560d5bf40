package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloo-solutions/converso/internal/telemetry"
	"github.com/cloo-solutions/converso/internal/whatsapp"
)

// MessageSender defines the interface for the outbound delivery provider
type MessageSender interface {
	SendText(ctx context.Context, to, body string) (map[string]any, error)
}

// DeliveryResult is the structured outcome of one send. The engine never
// returns an error past its own boundary, callers always get a result.
type DeliveryResult struct {
	OK               bool
	Attempts         int
	ProviderResponse map[string]any
	Error            string
}

// DeliveryService sends answers to correspondents with bounded retry.
// Only transient provider signals (HTTP 429 or 5xx) are retried, with
// exponential backoff starting at the initial interval and doubling each
// attempt, capped at maxAttempts total attempts.
type DeliveryService struct {
	sender          MessageSender
	maxAttempts     int
	initialInterval time.Duration
}

func NewDeliveryService(sender MessageSender, maxAttempts int, initialInterval time.Duration) *DeliveryService {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if initialInterval <= 0 {
		initialInterval = 500 * time.Millisecond
	}
	return &DeliveryService{
		sender:          sender,
		maxAttempts:     maxAttempts,
		initialInterval: initialInterval,
	}
}

// Send delivers text to the destination, retrying transient failures.
func (s *DeliveryService) Send(ctx context.Context, destination, text string) *DeliveryResult {
	ctx, span := telemetry.StartSpan(ctx, "DeliveryService.Send", telemetry.SpanAttributes{
		Operation: "deliver",
	})
	defer span.End()

	result := &DeliveryResult{}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.initialInterval
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(s.maxAttempts-1)), ctx)

	operation := func() error {
		result.Attempts++
		resp, err := s.sender.SendText(ctx, destination, text)
		if err != nil {
			var provErr *whatsapp.ProviderError
			if errors.As(err, &provErr) && provErr.IsRetryable() {
				telemetry.AddBreadcrumb(ctx, "delivery",
					fmt.Sprintf("attempt %d failed: %v", result.Attempts, err))
				return err
			}
			return backoff.Permanent(err)
		}
		result.ProviderResponse = resp
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		result.Error = err.Error()
		span.SetError(err)
		return result
	}

	result.OK = true
	return result
}
