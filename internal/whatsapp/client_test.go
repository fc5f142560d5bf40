package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	return NewClient(Config{
		AccessToken:   "test-token",
		PhoneNumberID: "12345",
		BaseURL:       url,
	})
}

func TestClient_SendText(t *testing.T) {
	ctx := context.Background()

	t.Run("posts the expected payload", func(t *testing.T) {
		var gotPath, gotAuth string
		var gotPayload map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotAuth = r.Header.Get("Authorization")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.test"}]}`))
		}))
		defer srv.Close()

		resp, err := newTestClient(srv.URL).SendText(ctx, "971500000001", "hello")

		require.NoError(t, err)
		assert.Equal(t, "/v21.0/12345/messages", gotPath)
		assert.Equal(t, "Bearer test-token", gotAuth)
		assert.Equal(t, "whatsapp", gotPayload["messaging_product"])
		assert.Equal(t, "971500000001", gotPayload["to"])
		assert.NotNil(t, resp["messages"])
	})

	t.Run("truncates body to the provider limit", func(t *testing.T) {
		var gotBody string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var payload textPayload
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			gotBody = payload.Text.Body
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		_, err := newTestClient(srv.URL).SendText(ctx, "971500000001", strings.Repeat("x", MaxBodyLength+100))

		require.NoError(t, err)
		assert.Len(t, gotBody, MaxBodyLength)
	})

	t.Run("truncation never splits a rune", func(t *testing.T) {
		var gotBody string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var payload textPayload
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			gotBody = payload.Text.Body
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		// "é" is two bytes, so an odd byte limit would land mid-rune.
		body := strings.Repeat("x", MaxBodyLength-1) + "ééé"
		_, err := newTestClient(srv.URL).SendText(ctx, "971500000001", body)

		require.NoError(t, err)
		assert.True(t, utf8.ValidString(gotBody))
		assert.Len(t, gotBody, MaxBodyLength-1)
		assert.LessOrEqual(t, len(gotBody), MaxBodyLength)
	})

	t.Run("non-2xx becomes a ProviderError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"try later"}}`))
		}))
		defer srv.Close()

		_, err := newTestClient(srv.URL).SendText(ctx, "971500000001", "hello")

		var provErr *ProviderError
		require.ErrorAs(t, err, &provErr)
		assert.Equal(t, http.StatusServiceUnavailable, provErr.StatusCode)
		assert.True(t, provErr.IsRetryable())
		assert.NotNil(t, provErr.Body["error"])
	})
}

func TestProviderError_IsRetryable(t *testing.T) {
	assert.True(t, (&ProviderError{StatusCode: 429}).IsRetryable())
	assert.True(t, (&ProviderError{StatusCode: 500}).IsRetryable())
	assert.True(t, (&ProviderError{StatusCode: 503}).IsRetryable())
	assert.False(t, (&ProviderError{StatusCode: 404}).IsRetryable())
	assert.False(t, (&ProviderError{StatusCode: 400}).IsRetryable())
	assert.False(t, (&ProviderError{StatusCode: 401}).IsRetryable())
}
