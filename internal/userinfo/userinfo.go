// Package userinfo resolves the authenticated user by delegating to the
// oauth2 proxy fronting the server. The server itself holds no
// credentials; when the proxy is absent or rejects the session, requests
// degrade to an anonymous identity instead of failing.
package userinfo

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Info is the identity reported to the viewer.
type Info struct {
	Username      string `json:"username"`
	Email         string `json:"email,omitempty"`
	Authenticated bool   `json:"authenticated"`
}

// Anonymous is the fallback identity when no auth proxy is configured
// or the session is not valid.
var Anonymous = Info{Username: "anonymous", Authenticated: false}

// forwardedHeaders are the request headers relayed to the auth proxy so
// it can recognize the browser session.
var forwardedHeaders = []string{
	"Cookie",
	"Authorization",
	"X-Auth-Request-User",
	"X-Auth-Request-Email",
	"X-Auth-Request-Access-Token",
}

// Client queries an oauth2-proxy userinfo endpoint.
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient creates a userinfo client. An empty url disables lookups;
// every request then resolves to Anonymous.
func NewClient(url string) *Client {
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// proxyResponse is the oauth2-proxy userinfo payload.
type proxyResponse struct {
	User              string `json:"user"`
	Email             string `json:"email"`
	PreferredUsername string `json:"preferredUsername"`
}

// Lookup resolves the caller's identity by forwarding their session
// headers to the auth proxy. Any failure, including a rejected session,
// yields Anonymous rather than an error.
func (c *Client) Lookup(ctx context.Context, incoming http.Header) Info {
	if c.url == "" {
		return Anonymous
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		log.Error().Err(err).Msg("build userinfo request")
		return Anonymous
	}
	for _, name := range forwardedHeaders {
		if v := incoming.Get(name); v != "" {
			req.Header.Set(name, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debug().Err(err).Msg("userinfo lookup failed")
		return Anonymous
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Anonymous
	}

	var pr proxyResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		log.Debug().Err(err).Msg("decode userinfo response")
		return Anonymous
	}

	username := pr.PreferredUsername
	if username == "" {
		username = pr.User
	}
	if username == "" {
		username = pr.Email
	}
	if username == "" {
		return Anonymous
	}

	return Info{Username: username, Email: pr.Email, Authenticated: true}
}

// Handler serves the resolved identity as JSON.
func (c *Client) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info := c.Lookup(r.Context(), r.Header)
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(info); err != nil {
			log.Error().Err(err).Msg("encode userinfo response")
		}
	}
}
