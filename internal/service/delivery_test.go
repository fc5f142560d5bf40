package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/cloo-solutions/converso/internal/whatsapp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSender fails with the scripted statuses in order, then
// succeeds.
type scriptedSender struct {
	statuses []int
	calls    int
}

func (s *scriptedSender) SendText(ctx context.Context, to, body string) (map[string]any, error) {
	s.calls++
	if s.calls <= len(s.statuses) {
		return nil, &whatsapp.ProviderError{StatusCode: s.statuses[s.calls-1]}
	}
	return map[string]any{"messages": []any{map[string]any{"id": "wamid.1"}}}, nil
}

func TestDeliveryService_Send(t *testing.T) {
	ctx := context.Background()

	t.Run("first attempt success", func(t *testing.T) {
		sender := &scriptedSender{}
		svc := NewDeliveryService(sender, 3, time.Millisecond)

		result := svc.Send(ctx, "971501234567", "hello")

		assert.True(t, result.OK)
		assert.Equal(t, 1, result.Attempts)
		assert.NotNil(t, result.ProviderResponse)
		assert.Empty(t, result.Error)
	})

	t.Run("retries rate limiting then succeeds", func(t *testing.T) {
		sender := &scriptedSender{statuses: []int{http.StatusTooManyRequests}}
		svc := NewDeliveryService(sender, 3, time.Millisecond)

		result := svc.Send(ctx, "971501234567", "hello")

		assert.True(t, result.OK)
		assert.Equal(t, 2, result.Attempts)
	})

	t.Run("exhausts attempts on persistent server errors", func(t *testing.T) {
		sender := &scriptedSender{statuses: []int{503, 503, 503, 503}}
		svc := NewDeliveryService(sender, 3, time.Millisecond)

		result := svc.Send(ctx, "971501234567", "hello")

		assert.False(t, result.OK)
		assert.Equal(t, 3, result.Attempts)
		assert.NotEmpty(t, result.Error)
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		sender := &scriptedSender{statuses: []int{http.StatusNotFound, http.StatusNotFound}}
		svc := NewDeliveryService(sender, 3, time.Millisecond)

		result := svc.Send(ctx, "971501234567", "hello")

		assert.False(t, result.OK)
		assert.Equal(t, 1, result.Attempts)
		assert.NotEmpty(t, result.Error)
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		sender := &scriptedSender{statuses: []int{503, 503, 503}}
		svc := NewDeliveryService(sender, 3, 50*time.Millisecond)

		result := svc.Send(cancelled, "971501234567", "hello")

		require.False(t, result.OK)
		assert.Less(t, result.Attempts, 3)
	})
}

func TestProviderError_IsRetryable(t *testing.T) {
	assert.True(t, (&whatsapp.ProviderError{StatusCode: 429}).IsRetryable())
	assert.True(t, (&whatsapp.ProviderError{StatusCode: 500}).IsRetryable())
	assert.True(t, (&whatsapp.ProviderError{StatusCode: 503}).IsRetryable())
	assert.False(t, (&whatsapp.ProviderError{StatusCode: 400}).IsRetryable())
	assert.False(t, (&whatsapp.ProviderError{StatusCode: 404}).IsRetryable())
}
