package real

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/KazimAndrei/HollyProject/internal/api"
	"github.com/KazimAndrei/HollyProject/internal/appstore"
	"github.com/KazimAndrei/HollyProject/internal/interfaces"
	"github.com/KazimAndrei/HollyProject/internal/logging"
	"github.com/KazimAndrei/HollyProject/internal/metrics"
)

const (
	SandboxURL    = "https://api.storekit-sandbox.itunes.apple.com"
	ProductionURL = "https://api.storekit.itunes.apple.com"

	endpointSubscriptions = "subscriptions"
	endpointTransactions  = "transactions"
)

// DefaultBackoff is the wait before retry n, indexed by attempt and clamped to the last entry.
var DefaultBackoff = []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep is the production Sleeper.
func ContextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// AppStoreClientConfig configures the App Store Server API client.
type AppStoreClientConfig struct {
	// BaseURL overrides the environment-derived host.
	BaseURL     string
	Environment string
	Timeout     time.Duration
	MaxRetries  int
	Backoff     []time.Duration
	Sleep       Sleeper
	HTTPClient  *http.Client
}

// AppStoreClient calls the App Store Server API with bounded retries.
type AppStoreClient struct {
	baseURL    string
	issuer     interfaces.TokenIssuer
	httpClient *http.Client
	timeout    time.Duration
	maxRetries int
	backoff    []time.Duration
	sleep      Sleeper
	logger     zerolog.Logger
	metrics    *metrics.Metrics
}

func NewAppStoreClient(cfg AppStoreClientConfig, issuer interfaces.TokenIssuer, logger zerolog.Logger, m *metrics.Metrics) *AppStoreClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = BaseURLFor(cfg.Environment)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if len(cfg.Backoff) == 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.Sleep == nil {
		cfg.Sleep = ContextSleep
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}

	return &AppStoreClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		issuer:     issuer,
		httpClient: cfg.HTTPClient,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
		sleep:      cfg.Sleep,
		logger:     logger.With().Str("component", "appstore_client").Logger(),
		metrics:    m,
	}
}

// BaseURLFor maps an environment name to the vendor host. Anything but production is sandbox.
func BaseURLFor(environment string) string {
	if strings.EqualFold(strings.TrimSpace(environment), "production") {
		return ProductionURL
	}
	return SandboxURL
}

// GetSubscriptionStatuses fetches the subscription history of an original transaction.
func (c *AppStoreClient) GetSubscriptionStatuses(ctx context.Context, originalTransactionID string) (*api.SubscriptionStatusResponse, error) {
	var out api.SubscriptionStatusResponse
	if err := c.call(ctx, http.MethodGet, endpointSubscriptions, originalTransactionID, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTransactionInfo fetches a single transaction.
func (c *AppStoreClient) GetTransactionInfo(ctx context.Context, transactionID string) (*api.TransactionInfoResponse, error) {
	var out api.TransactionInfoResponse
	if err := c.call(ctx, http.MethodGet, endpointTransactions, transactionID, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// errRetry marks an attempt whose failure is worth retrying.
type errRetry struct{ err error }

func (e errRetry) Error() string { return e.err.Error() }
func (e errRetry) Unwrap() error { return e.err }

// call performs the request with retries. Every failure wraps appstore.ErrInconclusive.
func (c *AppStoreClient) call(ctx context.Context, method, endpoint, id string, out any) error {
	target := c.baseURL + "/inApps/v1/" + endpoint + "/" + url.PathEscape(id)

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoff[min(attempt-1, len(c.backoff)-1)]
			c.metrics.ObserveAppStoreRetry(endpoint)
			c.logger.Warn().
				Err(lastErr).
				Str("endpoint", endpoint).
				Int("attempt", attempt+1).
				Dur("backoff", wait).
				Msg("Retrying App Store call")
			if err := c.sleep(ctx, wait); err != nil {
				return fmt.Errorf("%w: %s cancelled: %w", appstore.ErrInconclusive, endpoint, err)
			}
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %s cancelled: %w", appstore.ErrInconclusive, endpoint, err)
		}

		c.logger.Debug().
			Str("method", method).
			Str("endpoint", endpoint).
			Str("id", logging.TruncateID(id)).
			Int("attempt", attempt+1).
			Int("max_attempts", c.maxRetries).
			Msg("App Store call")

		err := c.attempt(ctx, method, target, out)
		if err == nil {
			c.metrics.ObserveAppStoreAttempt(endpoint, "ok")
			return nil
		}

		var retry errRetry
		if !errors.As(err, &retry) {
			c.metrics.ObserveAppStoreAttempt(endpoint, "terminal")
			c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("App Store call failed")
			return fmt.Errorf("%w: %s: %w", appstore.ErrInconclusive, endpoint, err)
		}
		c.metrics.ObserveAppStoreAttempt(endpoint, "transient")
		lastErr = retry.err
	}

	c.logger.Error().
		Err(lastErr).
		Str("endpoint", endpoint).
		Int("attempts", c.maxRetries).
		Msg("App Store call exhausted retries")
	return fmt.Errorf("%w: %s after %d attempts: %v", appstore.ErrInconclusive, endpoint, c.maxRetries, lastErr)
}

func (c *AppStoreClient) attempt(ctx context.Context, method, target string, out any) error {
	token, err := c.issuer.Issue()
	if err != nil {
		return err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, method, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.Value)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == nil && isTimeout(err) {
			return errRetry{fmt.Errorf("request timed out after %s", c.timeout)}
		}
		return fmt.Errorf("request failed: %v", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			if ctx.Err() == nil && isTimeout(err) {
				return errRetry{fmt.Errorf("response timed out after %s", c.timeout)}
			}
			return fmt.Errorf("failed to decode response: %v", err)
		}
		return nil
	case retryableStatus(resp.StatusCode):
		_, _ = io.Copy(io.Discard, resp.Body)
		return errRetry{fmt.Errorf("status %d", resp.StatusCode)}
	default:
		var apiErr api.AppStoreErrorResponse
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.ErrorCode != 0 {
			return fmt.Errorf("status %d: %d %s", resp.StatusCode, apiErr.ErrorCode, apiErr.ErrorMessage)
		}
		return fmt.Errorf("status %d", resp.StatusCode)
	}
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable:
		return true
	}
	return false
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
