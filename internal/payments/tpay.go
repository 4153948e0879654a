package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"rently/internal/models"

	"github.com/rs/zerolog"
)

const (
	defaultBaseURL = "https://openapi.sandbox.tpay.com"
	defaultTimeout = 15 * time.Second

	maxDescriptionLen = 128
)

var (
	ErrNoAccessToken = errors.New("tpay: no access token in response")
	ErrNoPaymentURL  = errors.New("tpay: no payment url in response")
)

// Config holds tpay marketplace credentials.
type Config struct {
	BaseURL    string        `yaml:"base_url"`
	ClientID   string        `yaml:"client_id"`
	Secret     string        `yaml:"secret"`
	MerchantID string        `yaml:"merchant_id"`
	WebhookURL string        `yaml:"webhook_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Client obtains checkout links from the tpay open API. Tokens from the
// client-credentials grant are cached until shortly before they expire.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zerolog.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewClient(cfg Config, logger *zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type transactionRequest struct {
	Currency          string          `json:"currency"`
	Description       string          `json:"description"`
	HiddenDescription string          `json:"hiddenDescription"`
	LanguageCode      string          `json:"languageCode"`
	Amount            float64         `json:"amount"`
	Merchant          merchantRef     `json:"merchant"`
	BillingAddress    billingAddress  `json:"billingAddress"`
	Callbacks         []callbackEntry `json:"transactionCallbacks,omitempty"`
}

type merchantRef struct {
	ID string `json:"id"`
}

type billingAddress struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type callbackEntry struct {
	Type  int    `json:"type"`
	Value string `json:"value"`
}

type transactionResponse struct {
	TransactionID string `json:"transactionId"`
	PaymentURL    string `json:"paymentUrl"`
}

// CreatePaymentLink implements domain.PaymentLinkProvider.
func (c *Client) CreatePaymentLink(ctx context.Context, booking *models.Booking) (string, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return "", err
	}

	description := fmt.Sprintf("Booking %s, listing %d", booking.Code, booking.ListingID)
	if len(description) > maxDescriptionLen {
		description = description[:maxDescriptionLen]
	}

	payload := transactionRequest{
		Currency:          "PLN",
		Description:       description,
		HiddenDescription: strconv.FormatInt(booking.ID, 10),
		LanguageCode:      "PL",
		// Amount in major units with two decimals.
		Amount:   float64(booking.TotalAmount) / 100,
		Merchant: merchantRef{ID: c.cfg.MerchantID},
		BillingAddress: billingAddress{
			Email: booking.Contact.Email,
			Phone: booking.Contact.Phone,
		},
	}
	if c.cfg.WebhookURL != "" {
		payload.Callbacks = []callbackEntry{{Type: 1, Value: c.cfg.WebhookURL}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("tpay: encode transaction: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/marketplace/v1/transaction", strings.NewReader(string(body)))
	if err != nil {
		return "", fmt.Errorf("tpay: build transaction request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("tpay: transaction request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// The cached token may have been revoked; drop it so the next
		// attempt re-authenticates.
		c.mu.Lock()
		c.token = ""
		c.mu.Unlock()
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("tpay: transaction failed with status %d: %s", resp.StatusCode, raw)
	}

	var tr transactionResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("tpay: decode transaction response: %w", err)
	}
	if tr.PaymentURL == "" {
		return "", ErrNoPaymentURL
	}

	c.logger.Debug().
		Str("transaction_id", tr.TransactionID).
		Int64("booking_id", booking.ID).
		Msg("payment link created")
	return tr.PaymentURL, nil
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	form := url.Values{}
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.Secret)
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/oauth/auth", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("tpay: build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("tpay: auth request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("tpay: auth failed with status %d: %s", resp.StatusCode, raw)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("tpay: decode auth response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", ErrNoAccessToken
	}

	expiresIn := time.Duration(tok.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		expiresIn = 2 * time.Hour
	}

	c.mu.Lock()
	c.token = tok.AccessToken
	// Refresh a minute early to avoid racing the expiry.
	c.tokenExpiry = time.Now().Add(expiresIn - time.Minute)
	c.mu.Unlock()

	return tok.AccessToken, nil
}
