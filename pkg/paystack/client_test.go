package paystack

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/campusmart/pkg/config"
	"github.com/example/campusmart/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(ts *httptest.Server) *Client {
	return NewClient(&config.PaystackConfig{
		BaseURL:     ts.URL,
		SecretKey:   "sk_test_secret",
		CallbackURL: "http://localhost/callback",
	})
}

func TestInitialize(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_secret", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status": true,
			"data": {
				"reference": "ref-abc123",
				"authorization_url": "https://checkout.example.com/ref-abc123"
			}
		}`))
	}))
	defer ts.Close()

	result, err := newTestClient(ts).Initialize(context.Background(), "buyer@school.edu", 520000, map[string]string{"user_id": "u1"})
	require.NoError(t, err)
	assert.Equal(t, "ref-abc123", result.Reference)
	assert.Equal(t, "https://checkout.example.com/ref-abc123", result.AuthorizationURL)
}

func TestInitializeRejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": false, "message": "invalid amount"}`))
	}))
	defer ts.Close()

	_, err := newTestClient(ts).Initialize(context.Background(), "buyer@school.edu", -1, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrUpstream)
}

func TestVerifyStatusMapping(t *testing.T) {
	cases := []struct {
		remote string
		want   models.PaymentStatus
	}{
		{"success", models.PaymentSuccess},
		{"abandoned", models.PaymentAbandoned},
		{"pending", models.PaymentPending},
		{"ongoing", models.PaymentPending},
		{"failed", models.PaymentFailed},
		{"reversed", models.PaymentFailed},
	}

	for _, tc := range cases {
		t.Run(tc.remote, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/transaction/verify/ref-1", r.URL.Path)
				w.Write([]byte(`{
					"status": true,
					"data": {"status": "` + tc.remote + `", "amount": 520000, "paid_at": "2024-05-01T10:30:00Z"}
				}`))
			}))
			defer ts.Close()

			result, err := newTestClient(ts).Verify(context.Background(), "ref-1")
			require.NoError(t, err)
			assert.Equal(t, tc.want, result.Status)
			assert.Equal(t, int64(520000), result.Amount)
			assert.NotEmpty(t, result.Raw)
		})
	}
}

func TestVerifyUnknownReference(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"status": false, "message": "Transaction reference not found"}`))
	}))
	defer ts.Close()

	_, err := newTestClient(ts).Verify(context.Background(), "ref-missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestVerifyUpstreamFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	_, err := newTestClient(ts).Verify(context.Background(), "ref-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrUpstream)
}

func TestVerifyRequiresReference(t *testing.T) {
	client := NewClient(&config.PaystackConfig{BaseURL: "http://localhost:0"})
	_, err := client.Verify(context.Background(), "")
	assert.ErrorIs(t, err, models.ErrValidation)
}
