package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/example/campusmart/pkg/config"
	"github.com/example/campusmart/pkg/models"
)

// Client talks to the payment processor's REST API. It holds no state beyond
// the HTTP client; all idempotency is the caller's responsibility.
type Client struct {
	baseURL     string
	secretKey   string
	callbackURL string
	httpClient  *http.Client
}

func NewClient(cfg *config.PaystackConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:     cfg.BaseURL,
		secretKey:   cfg.SecretKey,
		callbackURL: cfg.CallbackURL,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

type InitResult struct {
	Reference        string
	AuthorizationURL string
}

type VerifyResult struct {
	Status   models.PaymentStatus
	Amount   int64
	PaidAt   time.Time
	Metadata map[string]string
	Raw      string
}

type initRequest struct {
	Email       string            `json:"email"`
	Amount      int64             `json:"amount"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CallbackURL string            `json:"callback_url,omitempty"`
}

type initResponse struct {
	Status bool `json:"status"`
	Data   struct {
		Reference        string `json:"reference"`
		AuthorizationURL string `json:"authorization_url"`
	} `json:"data"`
	Message string `json:"message"`
}

type verifyResponse struct {
	Status bool `json:"status"`
	Data   struct {
		Status   string            `json:"status"`
		Amount   int64             `json:"amount"`
		PaidAt   string            `json:"paid_at"`
		Metadata map[string]string `json:"metadata"`
	} `json:"data"`
	Message string `json:"message"`
}

// Initialize starts a payment attempt and returns the processor-issued
// reference plus the URL the buyer is redirected to.
func (c *Client) Initialize(ctx context.Context, email string, amount int64, metadata map[string]string) (*InitResult, error) {
	body, err := json.Marshal(initRequest{
		Email:       email,
		Amount:      amount,
		Metadata:    metadata,
		CallbackURL: c.callbackURL,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transaction/initialize", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("initialize request failed: %w: %v", models.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("initialize returned %d: %w", resp.StatusCode, models.ErrUpstream)
	}

	var parsed initResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("initialize response malformed: %w", models.ErrUpstream)
	}
	if !parsed.Status || parsed.Data.Reference == "" {
		return nil, fmt.Errorf("initialize rejected: %s: %w", parsed.Message, models.ErrUpstream)
	}

	return &InitResult{
		Reference:        parsed.Data.Reference,
		AuthorizationURL: parsed.Data.AuthorizationURL,
	}, nil
}

// Verify fetches the current state of a payment attempt. Network failures and
// malformed payloads surface as ErrUpstream so the caller can retry; the
// remote status is mapped onto the payment status set.
func (c *Client) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	if reference == "" {
		return nil, fmt.Errorf("reference is required: %w", models.ErrValidation)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transaction/verify/"+reference, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verify request failed: %w: %v", models.ErrUpstream, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("verify response unreadable: %w", models.ErrUpstream)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("reference %s unknown to gateway: %w", reference, models.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("verify returned %d: %w", resp.StatusCode, models.ErrUpstream)
	}

	var parsed verifyResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("verify response malformed: %w", models.ErrUpstream)
	}

	result := &VerifyResult{
		Status:   mapRemoteStatus(parsed.Data.Status),
		Amount:   parsed.Data.Amount,
		Metadata: parsed.Data.Metadata,
		Raw:      string(raw),
	}
	if parsed.Data.PaidAt != "" {
		if t, err := time.Parse(time.RFC3339, parsed.Data.PaidAt); err == nil {
			result.PaidAt = t
		}
	}
	return result, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")
}

func mapRemoteStatus(remote string) models.PaymentStatus {
	switch remote {
	case "success":
		return models.PaymentSuccess
	case "abandoned":
		return models.PaymentAbandoned
	case "pending", "ongoing", "processing", "queued":
		return models.PaymentPending
	default:
		return models.PaymentFailed
	}
}
