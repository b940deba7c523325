// Package gateway is a client for the hosted payment checkout used for online
// donations. Amounts always travel in minor currency units.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// ErrCheckoutCancelled is returned when the donor closes the checkout. It is an
// outcome, not a failure.
var ErrCheckoutCancelled = errors.New("checkout cancelled by payer")

type Prefill struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Contact string `json:"contact,omitempty"`
}

type CheckoutRequest struct {
	AmountMinor   int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Description   string            `json:"description"`
	Prefill       Prefill           `json:"prefill"`
	CorrelationID string            `json:"receipt"`
	Notes         map[string]string `json:"notes,omitempty"`
}

type Settlement struct {
	Reference   string `json:"settlement_reference"`
	AmountMinor int64  `json:"amount"`
	Status      string `json:"status"`
}

// ErrorResponse is the gateway's error envelope.
type ErrorResponse struct {
	StatusCode int `json:"-"`
	Err        struct {
		Code        string `json:"code"`
		Description string `json:"description"`
		Reason      string `json:"reason"`
	} `json:"error"`
}

func (e *ErrorResponse) Error() string {
	if e.Err.Code == "" {
		return fmt.Sprintf("gateway error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("gateway error: %s - %s", e.Err.Code, e.Err.Description)
}

type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			// The payer completes the checkout interactively.
			Timeout: 10 * time.Minute,
		},
	}
}

// OpenCheckout blocks until the checkout is captured, cancelled or fails. Only a
// captured checkout with a settlement reference counts as success.
func (c *Client) OpenCheckout(ctx context.Context, req CheckoutRequest) (*Settlement, error) {
	if req.AmountMinor <= 0 {
		return nil, fmt.Errorf("checkout amount must be positive, got %d", req.AmountMinor)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkout request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/checkouts", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute checkout request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkout response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errResp := &ErrorResponse{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(bodyBytes, errResp); err != nil {
			log.Printf("level=warn component=gateway_client op=checkout status=%d msg=\"non-2xx response (unparsable error body)\"", resp.StatusCode)
			return nil, fmt.Errorf("failed to decode error response (status %d)", resp.StatusCode)
		}
		if errResp.Err.Reason == "payment_cancelled" {
			return nil, ErrCheckoutCancelled
		}
		log.Printf("level=warn component=gateway_client op=checkout status=%d code=%q detail=%q", resp.StatusCode, errResp.Err.Code, errResp.Err.Description)
		return nil, errResp
	}

	var settlement Settlement
	if err := json.Unmarshal(bodyBytes, &settlement); err != nil {
		return nil, fmt.Errorf("failed to decode checkout response: %w", err)
	}

	switch settlement.Status {
	case "captured":
		if settlement.Reference == "" {
			return nil, errors.New("gateway reported capture without a settlement reference")
		}
		return &settlement, nil
	case "cancelled":
		return nil, ErrCheckoutCancelled
	default:
		return nil, fmt.Errorf("checkout not captured: status %q", settlement.Status)
	}
}
