// Package client provides a retrying HTTP client used to call external
// services, such as the mapping/geocoding provider behind internal/geo.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ClientConfig конфигурация HTTP клиента с ретраями
type ClientConfig struct {
	Address      string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// DefaultClientConfig возвращает конфигурацию по умолчанию для внешних HTTP вызовов
func DefaultClientConfig(address string) ClientConfig {
	return ClientConfig{
		Address:      address,
		Timeout:      10 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 200 * time.Millisecond,
	}
}

// RetryingClient оборачивает http.Client линейным ретраем по статусам,
// характерным для временных сбоев (429, 502, 503, 504) и сетевым ошибкам.
type RetryingClient struct {
	cfg        ClientConfig
	httpClient *http.Client
}

// NewHTTPClient создаёт RetryingClient с заданным таймаутом и политикой ретраев.
func NewHTTPClient(cfg ClientConfig) *RetryingClient {
	return &RetryingClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Do выполняет запрос, повторяя его при временных сбоях с линейной задержкой.
func (c *RetryingClient) Do(req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(c.cfg.RetryBackoff * time.Duration(attempt)):
			}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if !isRetryableStatus(resp.StatusCode) {
			return resp, nil
		}

		lastErr = fmt.Errorf("retryable status %d from %s", resp.StatusCode, req.URL)
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // draining body before retry
		resp.Body.Close()
	}

	return nil, fmt.Errorf("request to %s failed after %d attempts: %w", c.cfg.Address, c.cfg.MaxRetries+1, lastErr)
}

// Get issues a GET request against a path under the configured base address.
func (c *RetryingClient) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Address+path, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
