/*
Copyright 2025 Jordi Gil.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package http builds pre-tuned *http.Client instances for outbound
// calls that don't go through a dedicated SDK client: Prometheus-
// compatible metrics endpoints and LLM providers reached over plain
// HTTP. No other package in this module imports it.
package http

import (
	"crypto/tls"
	"net/http"
	"time"
)

// ClientConfig tunes the transport behind a shared *http.Client.
type ClientConfig struct {
	Timeout                 time.Duration
	MaxRetries              int
	DisableSSLVerification  bool
	MaxIdleConns            int
	IdleConnTimeout         time.Duration
	TLSHandshakeTimeout     time.Duration
	ResponseHeaderTimeout   time.Duration
}

// DefaultClientConfig is a general-purpose outbound HTTP configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:               30 * time.Second,
		MaxRetries:            3,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
	}
}

// NewClient builds an *http.Client from cfg.
func NewClient(cfg ClientConfig) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:          cfg.MaxIdleConns,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
	}
	if cfg.DisableSSLVerification {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}
}

// NewClientWithTimeout is NewClient with every other field defaulted.
func NewClientWithTimeout(timeout time.Duration) *http.Client {
	cfg := DefaultClientConfig()
	cfg.Timeout = timeout
	return NewClient(cfg)
}

// NewDefaultClient is NewClient(DefaultClientConfig()).
func NewDefaultClient() *http.Client {
	return NewClient(DefaultClientConfig())
}

// ObjectStoreClientConfig is a short-timeout, low-retry configuration
// for S3-compatible object store probes. pkg/ingestion/objectstore does
// not use it: it talks to the bucket through the AWS SDK's own client.
func ObjectStoreClientConfig() ClientConfig {
	cfg := DefaultClientConfig()
	cfg.Timeout = 10 * time.Second
	cfg.MaxRetries = 2
	return cfg
}

// PrometheusClientConfig tunes the client used to scrape or push to a
// Prometheus-compatible endpoint.
func PrometheusClientConfig(timeout time.Duration) ClientConfig {
	cfg := DefaultClientConfig()
	cfg.Timeout = timeout
	cfg.ResponseHeaderTimeout = timeout / 2
	return cfg
}

// LLMClientConfig tunes the client used for LLM providers reached over
// plain HTTP; pkg/ai/llm's langchaingo backend builds its own client
// and does not use this one. Response headers get a
// third of the overall budget since generation itself, not the initial
// response, dominates LLM call latency.
func LLMClientConfig(timeout time.Duration) ClientConfig {
	cfg := DefaultClientConfig()
	cfg.Timeout = timeout
	cfg.ResponseHeaderTimeout = timeout / 3
	return cfg
}
