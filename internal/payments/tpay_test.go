package payments

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"rently/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBooking() *models.Booking {
	return &models.Booking{
		ID:          42,
		Code:        "BK-ABCD1234",
		ListingID:   7,
		TotalAmount: 4500,
		Contact:     models.ContactInfo{Email: "renter@example.com", Phone: "+48123456789"},
	}
}

func newTestClient(baseURL string) *Client {
	logger := zerolog.New(io.Discard)
	return NewClient(Config{
		BaseURL:    baseURL,
		ClientID:   "client",
		Secret:     "secret",
		MerchantID: "merchant-1",
		WebhookURL: "https://api.example.com/payments/webhook",
		Timeout:    2 * time.Second,
	}, &logger)
}

func TestCreatePaymentLink(t *testing.T) {
	var authCalls, txCalls int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/auth":
			authCalls++
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "client_credentials", r.FormValue("grant_type"))
			assert.Equal(t, "client", r.FormValue("client_id"))
			json.NewEncoder(w).Encode(map[string]any{
				"access_token": "tok-1",
				"expires_in":   7200,
			})
		case "/marketplace/v1/transaction":
			txCalls++
			assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))

			var req transactionRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "PLN", req.Currency)
			assert.Equal(t, "42", req.HiddenDescription)
			assert.InDelta(t, 45.0, req.Amount, 0.001)
			assert.Equal(t, "renter@example.com", req.BillingAddress.Email)
			require.Len(t, req.Callbacks, 1)

			json.NewEncoder(w).Encode(map[string]any{
				"transactionId": "tr-1",
				"paymentUrl":    "https://secure.tpay.com/?gtitle=tr-1",
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	ctx := context.Background()

	url, err := client.CreatePaymentLink(ctx, testBooking())
	require.NoError(t, err)
	assert.Equal(t, "https://secure.tpay.com/?gtitle=tr-1", url)

	// Second call reuses the cached token.
	_, err = client.CreatePaymentLink(ctx, testBooking())
	require.NoError(t, err)
	assert.Equal(t, 1, authCalls)
	assert.Equal(t, 2, txCalls)
}

func TestCreatePaymentLinkAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).CreatePaymentLink(context.Background(), testBooking())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth failed with status 401")
}

func TestCreatePaymentLinkMissingURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/auth" {
			json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 7200})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"transactionId": "tr-1"})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).CreatePaymentLink(context.Background(), testBooking())
	assert.ErrorIs(t, err, ErrNoPaymentURL)
}

func TestCreatePaymentLinkDropsTokenOn401(t *testing.T) {
	var authCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/auth":
			authCalls++
			json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 7200})
		default:
			http.Error(w, "revoked", http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	ctx := context.Background()

	_, err := client.CreatePaymentLink(ctx, testBooking())
	require.Error(t, err)

	_, err = client.CreatePaymentLink(ctx, testBooking())
	require.Error(t, err)
	assert.Equal(t, 2, authCalls)
}

func TestCreatePaymentLinkHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newTestClient(srv.URL).CreatePaymentLink(ctx, testBooking())
	assert.Error(t, err)
}
