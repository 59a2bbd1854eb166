package featureservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrMissingCredentials is returned when a portal login lacks a field.
var ErrMissingCredentials = errors.New("portal url, username and password are required")

// Credentials identify a portal login.
type Credentials struct {
	PortalURL string `yaml:"portal_url" json:"portal_url"`
	Username  string `yaml:"username" json:"username"`
	Password  string `yaml:"password" json:"-"`
}

// Validate checks that every field is set.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.PortalURL) == "" || strings.TrimSpace(c.Username) == "" || c.Password == "" {
		return ErrMissingCredentials
	}
	return nil
}

func (c Credentials) sharingURL() string {
	base := strings.TrimRight(strings.TrimSpace(c.PortalURL), "/")
	if strings.HasSuffix(strings.ToLower(base), "/sharing/rest") {
		return base
	}
	return base + "/sharing/rest"
}

// Session is an authenticated portal session.
type Session struct {
	// Token is appended to every feature service request.
	Token string
	// Expires is when the token stops being accepted.
	Expires time.Time
	// IsPortal is true for an on-premises portal, false for a cloud organization.
	IsPortal bool
	// PortalURL is the portal the session belongs to.
	PortalURL string
}

// Valid reports whether the token is usable for at least margin more.
func (s *Session) Valid(margin time.Duration) bool {
	return s != nil && s.Token != "" && time.Until(s.Expires) > margin
}

// SignIn generates a token for creds and reads the portal description.
func (c *Client) SignIn(ctx context.Context, creds Credentials) (*Session, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	base := creds.sharingURL()

	form := url.Values{}
	form.Set("username", creds.Username)
	form.Set("password", creds.Password)
	form.Set("client", "referer")
	form.Set("referer", c.cfg.Referer)
	form.Set("expiration", strconv.Itoa(int(c.cfg.tokenExpiration()/time.Minute)))

	var tok struct {
		Token   string      `json:"token"`
		Expires json.Number `json:"expires"`
	}
	if err := c.call(ctx, http.MethodPost, base+"/generateToken", form, false, &tok); err != nil {
		return nil, fmt.Errorf("failed to generate token for %s: %w", creds.Username, err)
	}
	if tok.Token == "" {
		return nil, fmt.Errorf("failed to generate token for %s: empty token", creds.Username)
	}

	sess := &Session{
		Token:     tok.Token,
		Expires:   time.Now().Add(c.cfg.tokenExpiration()),
		PortalURL: creds.PortalURL,
	}
	if ms, err := tok.Expires.Int64(); err == nil && ms > 0 {
		sess.Expires = FromEpochMillis(ms)
	}

	var self struct {
		IsPortal bool `json:"isPortal"`
	}
	if err := c.call(ctx, http.MethodGet, base+"/portals/self", withToken(nil, sess.Token), true, &self); err != nil {
		return nil, fmt.Errorf("failed to read portal description of %s: %w", creds.PortalURL, err)
	}
	sess.IsPortal = self.IsPortal
	return sess, nil
}

// tokenMargin is how long before expiry a cached session is replaced.
const tokenMargin = time.Minute

// TokenCache shares portal sessions between refreshes. Concurrent sign-ins for
// the same login collapse into one request.
type TokenCache struct {
	client *Client

	mu       sync.RWMutex
	sessions map[string]*Session
	sf       singleflight.Group
}

// NewTokenCache creates an empty cache signing in through client.
func NewTokenCache(client *Client) *TokenCache {
	return &TokenCache{client: client, sessions: make(map[string]*Session)}
}

func cacheKey(creds Credentials) string {
	return strings.ToLower(strings.TrimRight(creds.PortalURL, "/")) + "|" + creds.Username
}

// Session returns a valid session for creds, signing in when needed.
func (tc *TokenCache) Session(ctx context.Context, creds Credentials) (*Session, error) {
	key := cacheKey(creds)

	tc.mu.RLock()
	sess, ok := tc.sessions[key]
	tc.mu.RUnlock()
	if ok && sess.Valid(tokenMargin) {
		return sess, nil
	}

	result, err, _ := tc.sf.Do(key, func() (any, error) {
		tc.mu.RLock()
		sess, ok := tc.sessions[key]
		tc.mu.RUnlock()
		if ok && sess.Valid(tokenMargin) {
			return sess, nil
		}

		fresh, err := tc.client.SignIn(ctx, creds)
		if err != nil {
			return nil, err
		}

		tc.mu.Lock()
		tc.sessions[key] = fresh
		tc.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Session), nil
}

// Invalidate drops the cached session for creds.
func (tc *TokenCache) Invalidate(creds Credentials) {
	tc.mu.Lock()
	delete(tc.sessions, cacheKey(creds))
	tc.mu.Unlock()
}
