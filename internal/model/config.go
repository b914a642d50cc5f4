package model

import (
	"net/url"
	"strings"
	"time"
)

const (
	DefaultAPIBaseURL   = "https://app.example-automations.com"
	DefaultAPIKeyHeader = "X-API-Key"
	DefaultAPITimeout   = 15 * time.Second
)

// ServiceEndpoint represents a normalized remote automation service location.
type ServiceEndpoint struct {
	Host      string        `json:"host" yaml:"host"`
	KeyHeader string        `json:"key_header" yaml:"key_header"`
	Timeout   time.Duration `json:"timeout" yaml:"timeout"`
}

func (e ServiceEndpoint) RequestTimeout() time.Duration {
	if e.Timeout <= 0 {
		return DefaultAPITimeout
	}
	return e.Timeout
}

func (e ServiceEndpoint) Header() string {
	header := strings.TrimSpace(e.KeyHeader)
	if header == "" {
		return DefaultAPIKeyHeader
	}
	return header
}

// BaseURL returns scheme://host[/path] without a trailing slash or /api suffix.
func (e ServiceEndpoint) BaseURL() string {
	raw := strings.TrimSpace(e.Host)
	if raw == "" {
		return DefaultAPIBaseURL
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil || strings.TrimSpace(parsed.Host) == "" {
		host := strings.TrimSpace(e.Host)
		host = strings.TrimPrefix(strings.TrimPrefix(host, "http://"), "https://")
		host = strings.Trim(host, "/")
		return "https://" + host
	}

	path := strings.TrimSuffix(strings.TrimSpace(parsed.Path), "/")
	// Endpoints are always addressed as <base>/api/..., so an explicit /api is dropped.
	path = strings.TrimSuffix(path, "/api")
	return parsed.Scheme + "://" + parsed.Host + path
}
