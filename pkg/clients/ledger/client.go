// Package ledger is the adapter for the external transfer API. It owns the
// transient-vs-permanent classification of transfer failures so the engine
// never has to understand the remote system's error vocabulary.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"
)

// TransientError tags a failure the caller may retry: the transfer did not
// take effect and re-submitting it is safe.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient transfer failure: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is classified as retryable by the adapter.
func IsTransient(err error) bool {
	var transient *TransientError

	return errors.As(err, &transient)
}

// Receipt is the confirmation returned by the transfer API once the transfer
// is final.
type Receipt struct {
	ID        string    `json:"id"`
	Signature string    `json:"signature"`
	Timestamp time.Time `json:"timestamp"`
}

// Client submits transfers. Implementations return a *TransientError when
// the failure is a retryable expiry/timeout condition; anything else is
// permanent.
type Client interface {
	Transfer(ctx context.Context, destination, amount string) (*Receipt, error)
}

const defaultRequestTimeout = 30 * time.Second

// HTTPClient talks to the transfer API over HTTP.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPClient(baseURL, apiKey string, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		logger:     logger.With("module", "ledger_client"),
	}
}

type transferRequest struct {
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
}

func (c *HTTPClient) Transfer(ctx context.Context, destination, amount string) (*Receipt, error) {
	value, err := strconv.ParseFloat(amount, 64)
	if err != nil || value <= 0 {
		return nil, fmt.Errorf("transfer amount must be a positive decimal, got %q", amount)
	}

	if destination == "" {
		return nil, errors.New("transfer destination is required")
	}

	payload, err := json.Marshal(transferRequest{Destination: destination, Amount: amount})
	if err != nil {
		return nil, fmt.Errorf("failed to encode transfer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transfers", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create transfer request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, &TransientError{Err: err}
		}

		return nil, fmt.Errorf("transfer request failed: %w", err)
	}

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			c.logger.Error("failed to close response body", "error", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read transfer response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		var receipt Receipt

		err = json.Unmarshal(body, &receipt)
		if err != nil {
			return nil, fmt.Errorf("failed to decode transfer receipt: %w", err)
		}

		return &receipt, nil
	case isExpiryStatus(resp.StatusCode):
		return nil, &TransientError{
			Err: fmt.Errorf("transfer expired (status %d): %s", resp.StatusCode, string(body)),
		}
	default:
		return nil, fmt.Errorf("transfer rejected (status %d): %s", resp.StatusCode, string(body))
	}
}

// isExpiryStatus marks the status codes the transfer API uses for expired or
// timed-out submissions. Everything else is a permanent rejection.
func isExpiryStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
