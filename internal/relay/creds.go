package relay

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"
)

const (
	// Cached tokens are considered stale once less than this much validity
	// remains, so a token is never attached moments before it expires.
	tokenExpiryBuffer = 60 * time.Second

	// The token endpoint mints 10-minute JWTs; the cache mirrors that window
	// from the moment of a successful fetch.
	tokenValidity = 10 * time.Minute
)

// CredentialCache lazily fetches and caches the bearer credential for the
// ingestion endpoint. A refresh in progress is shared by every concurrent
// caller; a failed refresh yields "no credential", never an error, because
// unauthenticated posts are sent anyway and rejected server-side.
type CredentialCache struct {
	httpClient *http.Client
	tokenURL   string
	cookie     string

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	inflight  *tokenFetch

	now func() time.Time
}

type tokenFetch struct {
	done  chan struct{}
	token string
	ok    bool
}

func NewCredentialCache(webAppURL, sessionCookie string, client *http.Client) *CredentialCache {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &CredentialCache{
		httpClient: client,
		tokenURL:   webAppURL + "/api/convex/token",
		cookie:     sessionCookie,
		now:        time.Now,
	}
}

// GetToken returns the cached credential while it has more than the expiry
// buffer of validity left, refreshing otherwise. ok is false when no
// credential could be obtained.
func (c *CredentialCache) GetToken(ctx context.Context) (token string, ok bool) {
	c.mu.Lock()

	if c.token != "" && c.now().Before(c.expiresAt.Add(-tokenExpiryBuffer)) {
		token = c.token
		c.mu.Unlock()
		return token, true
	}

	// Join a refresh already in flight instead of issuing a duplicate fetch.
	if c.inflight != nil {
		f := c.inflight
		c.mu.Unlock()
		select {
		case <-f.done:
			return f.token, f.ok
		case <-ctx.Done():
			return "", false
		}
	}

	f := &tokenFetch{done: make(chan struct{})}
	c.inflight = f
	c.mu.Unlock()

	f.token, f.ok = c.fetch(ctx)

	c.mu.Lock()
	if f.ok {
		c.token = f.token
		c.expiresAt = c.now().Add(tokenValidity)
	}
	c.inflight = nil
	c.mu.Unlock()

	close(f.done)
	return f.token, f.ok
}

func (c *CredentialCache) fetch(ctx context.Context) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.tokenURL, nil)
	if err != nil {
		log.Printf("credentials: building token request failed: %v", err)
		return "", false
	}
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("credentials: token fetch failed: %v", err)
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("credentials: token endpoint returned %d", resp.StatusCode)
		return "", false
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		log.Printf("credentials: decoding token response failed: %v", err)
		return "", false
	}
	if body.Token == "" {
		log.Printf("credentials: token endpoint responded without a token")
		return "", false
	}

	return body.Token, true
}
