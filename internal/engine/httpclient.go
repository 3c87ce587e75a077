// Package engine реализует клиент локального REST API торгового движка.
package engine

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// HTTPClientConfig содержит настройки HTTP клиента движков
// Движки локальные, поэтому таймауты жёсткие: зависший инстанс не должен
// задерживать цикл мониторинга
type HTTPClientConfig struct {
	ConnectTimeout time.Duration // таймаут установки TCP соединения (default: 2s)
	ReadTimeout    time.Duration // таймаут чтения ответа (default: 10s)
	TotalTimeout   time.Duration // общий таймаут операции (default: 10s)

	// Connection pooling: инстансов много, по паре соединений на каждый
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration

	TLSHandshakeTimeout time.Duration
	KeepAliveInterval   time.Duration
}

// DefaultHTTPClientConfig возвращает конфигурацию по умолчанию
func DefaultHTTPClientConfig(totalTimeout time.Duration) HTTPClientConfig {
	if totalTimeout <= 0 {
		totalTimeout = 10 * time.Second
	}
	return HTTPClientConfig{
		ConnectTimeout: 2 * time.Second,
		ReadTimeout:    totalTimeout,
		TotalTimeout:   totalTimeout,

		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout: 5 * time.Second,
		KeepAliveInterval:   30 * time.Second,
	}
}

// NewHTTPClient создаёт http.Client с connection pooling под множество инстансов
//
// Один клиент разделяется всеми клиентами движков: pool соединений общий,
// а изоляция per-instance достигается таймаутом и rate limiter'ом.
func NewHTTPClient(config HTTPClientConfig) *http.Client {
	dialer := &net.Dialer{
		Timeout:   config.ConnectTimeout,
		KeepAlive: config.KeepAliveInterval,
	}

	transport := &http.Transport{
		DialContext: dialer.DialContext,

		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,

		TLSHandshakeTimeout: config.TLSHandshakeTimeout,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},

		DisableCompression:    true, // локальные ответы маленькие, сжатие не окупается
		ResponseHeaderTimeout: config.ReadTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   config.TotalTimeout,
	}
}
