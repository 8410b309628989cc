package httputil

import (
	"net"
	"net/http"
	"time"
)

type ClientConfig struct {
	Timeout               time.Duration
	DialTimeout           time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
	IdleConnTimeout       time.Duration
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
}

// CompletionConfig is tuned for chat completion calls, which can legitimately
// run for minutes. No ResponseHeaderTimeout: a non-streaming completion sends
// no headers until generation finishes, so only the overall Timeout bounds
// the wait.
func CompletionConfig() ClientConfig {
	return ClientConfig{
		Timeout:             120 * time.Second,
		DialTimeout:         10 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
	}
}

// StreamConfig carries no overall timeout: a healthy stream can outlive any
// fixed deadline. Stream headers do precede the first chunk, so a header
// timeout stands in for the missing overall one; stall detection after that
// happens per chunk in the stream reader.
func StreamConfig() ClientConfig {
	cfg := CompletionConfig()
	cfg.Timeout = 0
	cfg.ResponseHeaderTimeout = 120 * time.Second
	return cfg
}

// LookupConfig is tuned for short auxiliary calls (health probe, budget).
func LookupConfig() ClientConfig {
	return ClientConfig{
		Timeout:               10 * time.Second,
		DialTimeout:           5 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 5 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   2,
	}
}

func NewClient(cfg ClientConfig) *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}
}
