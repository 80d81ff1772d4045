// Package hub talks to the public dataset hub (rows API) and model hub
// (file resolve API).
package hub

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ErrNotFound is returned when the hub answers 404 for a dataset, split or file.
var ErrNotFound = errors.New("not found on hub")

// Config represents client configuration
type Config struct {
	BaseURL       string
	Token         string
	Timeout       time.Duration
	RetryCount    int
	RetryWaitTime time.Duration
	Debug         bool
}

// DefaultConfig returns default client configuration
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:       baseURL,
		Timeout:       2 * time.Minute,
		RetryCount:    0,
		RetryWaitTime: time.Second,
	}
}

func newRestyClient(cfg Config) *resty.Client {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWaitTime).
		SetHeader("User-Agent", "insurance-nlp/1.0")

	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}
	if cfg.Debug {
		client.SetDebug(true)
	}
	return client
}

func statusError(what string, resp *resty.Response) error {
	if resp.StatusCode() == http.StatusNotFound {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	body := resp.String()
	if len(body) > 512 {
		body = body[:512]
	}
	return fmt.Errorf("%s: hub returned status %d: %s", what, resp.StatusCode(), body)
}

func nopIfNil(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
