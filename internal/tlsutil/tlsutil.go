package tlsutil

import (
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"time"
)

// DefaultMaxRedirects 客户端默认跟随的重定向次数
const DefaultMaxRedirects = 10

// ErrTooManyRedirects 重定向次数超限
var ErrTooManyRedirects = errors.New("tlsutil: too many redirects")

// DefaultTLSConfig returns a hardened TLS configuration.
// MinVersion TLS 1.2, AEAD-only cipher suites.
func DefaultTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
		},
	}
}

// ClientOption 客户端可选项
type ClientOption func(*clientOptions)

type clientOptions struct {
	maxIdleConns int
	maxRedirects int
}

// WithMaxIdleConns 设置连接池空闲连接上限
func WithMaxIdleConns(n int) ClientOption {
	return func(o *clientOptions) { o.maxIdleConns = n }
}

// WithMaxRedirects 限制跟随的重定向次数，0 表示不跟随
func WithMaxRedirects(n int) ClientOption {
	return func(o *clientOptions) { o.maxRedirects = n }
}

// SecureTransport returns an http.Transport with TLS hardening. It honours
// HTTP(S)_PROXY from the environment.
func SecureTransport(maxIdleConns int) *http.Transport {
	if maxIdleConns <= 0 {
		maxIdleConns = 50
	}
	return &http.Transport{
		TLSClientConfig: DefaultTLSConfig(),
		Proxy:           http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          maxIdleConns,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

// SecureHTTPClient returns an http.Client with TLS hardening, used by the
// provider adapters and the page scraper.
func SecureHTTPClient(timeout time.Duration, opts ...ClientOption) *http.Client {
	o := clientOptions{maxRedirects: DefaultMaxRedirects}
	for _, opt := range opts {
		opt(&o)
	}
	maxRedirects := o.maxRedirects
	return &http.Client{
		Timeout:   timeout,
		Transport: SecureTransport(o.maxIdleConns),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return ErrTooManyRedirects
			}
			return nil
		},
	}
}
