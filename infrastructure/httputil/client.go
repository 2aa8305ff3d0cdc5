package httputil

import (
	"fmt"
	"net/http"
	"time"
)

// ClientConfig holds standard client configuration for an outbound HTTP
// client, e.g. the macro executor's remote module-loader client.
type ClientConfig struct {
	// BaseURL is the base URL to fetch from (will be normalized).
	BaseURL string

	// Timeout is the request timeout. Zero means use default.
	Timeout time.Duration

	// HTTPClient is the base HTTP client to use. If nil, a default client is created.
	HTTPClient *http.Client

	// MaxBodyBytes is the response body size limit for callers to enforce;
	// NewClient does not apply it to responses. Zero means use default.
	MaxBodyBytes int64
}

// ClientDefaults holds default values for client configuration.
type ClientDefaults struct {
	Timeout          time.Duration
	MaxBodyBytes     int64
	NormalizeBaseURL bool
	RequireHTTPS     bool
}

// DefaultClientDefaults returns standard default values.
func DefaultClientDefaults() ClientDefaults {
	return ClientDefaults{
		Timeout:          30 * time.Second,
		MaxBodyBytes:     1 << 20, // 1MiB
		NormalizeBaseURL: true,
		RequireHTTPS:     false,
	}
}

// NewClient creates an HTTP client with standardized configuration: timeout
// handling with defaults and an optional shared base transport.
func NewClient(cfg ClientConfig, defaults ClientDefaults) (*http.Client, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaults.Timeout
	}
	forceTimeout := cfg.Timeout != 0

	client := CopyHTTPClientWithTimeout(cfg.HTTPClient, timeout, forceTimeout)
	return client, nil
}

// NewClientWithBaseURL creates a client with base URL normalization and
// returns the HTTP client plus the normalized base URL. Used by the macro
// executor's module loader to fetch http(s): module specifiers.
func NewClientWithBaseURL(cfg ClientConfig, defaults ClientDefaults) (*http.Client, string, error) {
	var normalizedURL string
	var err error

	if defaults.NormalizeBaseURL {
		normalizedURL, _, err = NormalizeBaseURL(cfg.BaseURL, BaseURLOptions{RequireHTTPS: defaults.RequireHTTPS})
		if err != nil {
			return nil, "", fmt.Errorf("normalize base URL: %w", err)
		}
	} else {
		normalizedURL = cfg.BaseURL
	}

	client, err := NewClient(ClientConfig{
		BaseURL:    normalizedURL,
		Timeout:    cfg.Timeout,
		HTTPClient: cfg.HTTPClient,
	}, defaults)
	if err != nil {
		return nil, "", err
	}

	return client, normalizedURL, nil
}

// ResolveMaxBodyBytes returns the effective max body size from config and defaults.
func ResolveMaxBodyBytes(cfg int64, defaultBytes int64) int64 {
	if cfg <= 0 {
		return defaultBytes
	}
	return cfg
}
