// Package gateway talks to the payment provider's REST API to verify the
// status of a payment.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-tours/internal/payments"
)

// Client verifies payments against the provider.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient returns a Client. timeout bounds every request on top of the
// caller's context.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = payments.DefaultVerifyTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type paymentResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	StatusDetail string `json:"status_detail"`
	PaidAt       string `json:"paid_at"`
	Error        string `json:"error"`
}

// Verify fetches GET {base}/v1/payments/{id}.
func (c *Client) Verify(ctx context.Context, gatewayID string) (payments.Verification, error) {
	if c.baseURL == "" || c.token == "" {
		return payments.Verification{}, errors.New("gateway: base url and token required")
	}
	if gatewayID == "" {
		return payments.Verification{}, errors.New("gateway: payment id required")
	}

	endpoint := c.baseURL + "/v1/payments/" + url.PathEscape(gatewayID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return payments.Verification{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return payments.Verification{}, fmt.Errorf("%w: %v", payments.ErrVerifierTimeout, err)
		}
		return payments.Verification{}, fmt.Errorf("gateway: request payment %s: %w", gatewayID, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return payments.Verification{}, fmt.Errorf("gateway: payment %s status %d: %s", gatewayID, res.StatusCode, strings.TrimSpace(string(body)))
	}

	var pr paymentResponse
	if err := json.NewDecoder(res.Body).Decode(&pr); err != nil {
		if isTimeout(ctx, err) {
			return payments.Verification{}, fmt.Errorf("%w: %v", payments.ErrVerifierTimeout, err)
		}
		return payments.Verification{}, fmt.Errorf("gateway: decode payment %s: %w", gatewayID, err)
	}
	return toVerification(pr)
}

func toVerification(pr paymentResponse) (payments.Verification, error) {
	v := payments.Verification{
		Status:         MapStatus(pr.Status),
		ProviderStatus: strings.ToLower(strings.TrimSpace(pr.Status)),
	}
	if pr.PaidAt != "" {
		paidAt, err := time.Parse(time.RFC3339, pr.PaidAt)
		if err != nil {
			return payments.Verification{}, fmt.Errorf("gateway: paid_at %q: %w", pr.PaidAt, err)
		}
		v.PaidAt = &paidAt
	}
	if v.Status == payments.VerifiedFailed {
		v.Reason = firstNonEmpty(pr.Error, pr.StatusDetail)
	}
	return v, nil
}

// MapStatus folds provider status names onto the verifier outcome. Unknown
// names are inconclusive.
func MapStatus(raw string) payments.VerifiedStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "approved", "successful", "paid", "succeeded":
		return payments.VerifiedSuccessful
	case "rejected", "failed", "cancelled", "canceled", "expired", "refunded":
		return payments.VerifiedFailed
	default:
		return payments.VerifiedPending
	}
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
