package sonarqube

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gregjones/httpcache"

	"github.com/ericfisherdev/sonarpanel/internal/domain/model"
	"github.com/ericfisherdev/sonarpanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SonarConnector = (*Connector)(nil)

// Connector hands out clients bound to a (host, credential) pair. Clients are
// reused across calls so each keeps its own HTTP cache; caches are never
// shared between credentials.
type Connector struct {
	mu      sync.RWMutex
	clients map[string]*Client
	timeout time.Duration
	base    http.RoundTripper
	logger  *slog.Logger
}

// NewConnector creates a Connector whose clients time out after timeout.
// Each client's transport stack is:
//  1. httpcache (ETag-based conditional request caching for GETs)
//  2. base (http.DefaultTransport when nil)
func NewConnector(timeout time.Duration, base http.RoundTripper, logger *slog.Logger) *Connector {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{
		clients: make(map[string]*Client),
		timeout: timeout,
		base:    base,
		logger:  logger,
	}
}

// Connect returns the client for hostURL and auth, creating it on first use.
func (c *Connector) Connect(hostURL string, auth driven.Auth) driven.SonarClient {
	key := clientKey(hostURL, auth)

	c.mu.RLock()
	client, ok := c.clients[key]
	c.mu.RUnlock()
	if ok {
		return client
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if client, ok := c.clients[key]; ok {
		return client
	}

	cache := httpcache.NewMemoryCacheTransport()
	cache.Transport = c.base

	client = NewClientWithHTTPClient(
		&http.Client{Transport: cache, Timeout: c.timeout},
		hostURL,
		auth,
		c.logger,
	)
	c.clients[key] = client
	c.logger.Debug("sonarqube client created", "host", hostOf(hostURL), "clients", len(c.clients))

	return client
}

// Forget drops every cached client bound to the given credential secret,
// used after a token is revoked or deleted.
func (c *Connector) Forget(hostURL string, auth driven.Auth) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.clients, clientKey(hostURL, auth))
}

// clientKey identifies a client without keeping the secret in memory as a map key.
func clientKey(hostURL string, auth driven.Auth) string {
	sum := sha256.Sum256([]byte(model.NormalizeHostURL(hostURL) + "\x00" + auth.Username + "\x00" + auth.Password))
	return hex.EncodeToString(sum[:])
}
