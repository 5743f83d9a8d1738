package etl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
)

// TransportConfig configures the HTTP connection to the remote system.
type TransportConfig struct {
	Endpoint string
	Timeout  time.Duration
	// Encoding is "utf-8" (default) or "utf-16".
	Encoding string
	Headers  map[string]string
	// HTTPClient overrides the default client; Timeout is ignored then.
	HTTPClient *http.Client
}

// HTTPTransport posts synthesized requests to the remote system.
type HTTPTransport struct {
	endpoint string
	utf16    bool
	headers  map[string]string
	client   *http.Client
}

// NewHTTPTransport validates cfg. The endpoint must be an absolute http or
// https URL with a host.
func NewHTTPTransport(cfg TransportConfig) (*HTTPTransport, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, &ConfigurationError{Op: "transport", Err: errors.New("remote endpoint is not set")}
	}
	if err := validateEndpoint(cfg.Endpoint); err != nil {
		return nil, &ConfigurationError{Op: "transport", Err: err}
	}
	enc := strings.ToLower(strings.ReplaceAll(cfg.Encoding, "-", ""))
	if enc != "" && enc != "utf8" && enc != "utf16" {
		return nil, &ConfigurationError{Op: "transport", Err: fmt.Errorf("unsupported request encoding %q", cfg.Encoding)}
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPTransport{
		endpoint: cfg.Endpoint,
		utf16:    enc == "utf16",
		headers:  cfg.Headers,
		client:   client,
	}, nil
}

func validateEndpoint(endpoint string) error {
	u, err := url.ParseRequestURI(endpoint)
	if err != nil {
		return fmt.Errorf("malformed remote endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("remote endpoint %q: unsupported scheme %q", endpoint, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("remote endpoint %q has no host", endpoint)
	}
	return nil
}

// Fetch sends body and returns the raw response payload. Once sent, a
// request runs to completion or client timeout even if ctx is canceled.
func (t *HTTPTransport) Fetch(ctx context.Context, body []byte) ([]byte, error) {
	if err := validateEndpoint(t.endpoint); err != nil {
		return nil, &FatalRequestError{Op: "fetch", Err: err}
	}

	contentType := "text/xml;charset=utf-8"
	if t.utf16 {
		encoded, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes(body)
		if err != nil {
			return nil, &FatalRequestError{Op: "fetch", Err: fmt.Errorf("encode request: %w", err)}
		}
		body = encoded
		contentType = "text/xml;charset=utf-16"
	}

	req, err := http.NewRequestWithContext(context.WithoutCancel(ctx), http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &FatalRequestError{Op: "fetch", Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &TransientNetworkError{Op: "fetch", Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientNetworkError{Op: "fetch", StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &TransientNetworkError{Op: "fetch", StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	case resp.StatusCode >= 400:
		return nil, &FatalRequestError{Op: "fetch", StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}
	return payload, nil
}
