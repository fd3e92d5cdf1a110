package oidc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Client drives the authorization code flow against the SSO provider
// configured at startup.
type Client struct {
	config *oauth2.Config
	login  *LoginConfig
}

// LoginConfig contains the provider details the frontend needs to start
// an SSO login.
type LoginConfig struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	ClientID              string `json:"client_id"`
	RedirectURI           string `json:"redirect_uri"`
	Scope                 string `json:"scope"`
}

// NewClient creates an OAuth2 client for the given provider. Endpoints
// come from the issuer's discovery document when reachable.
func NewClient(ctx context.Context, issuer, clientID, clientSecret, redirectURL string) *Client {
	authURL, tokenURL := resolveEndpoints(ctx, issuer)

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  authURL,
			TokenURL: tokenURL,
		},
	}

	login := &LoginConfig{
		AuthorizationEndpoint: authURL,
		TokenEndpoint:         tokenURL,
		ClientID:              clientID,
		RedirectURI:           redirectURL,
		Scope:                 "openid email profile",
	}

	return &Client{config: config, login: login}
}

// ExchangeCode exchanges an authorization code for tokens
func (c *Client) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return c.config.Exchange(ctx, code)
}

// AuthCodeURL returns the authorization URL
func (c *Client) AuthCodeURL(state string) string {
	return c.config.AuthCodeURL(state)
}

// LoginConfig returns the provider details for frontend login.
func (c *Client) LoginConfig() *LoginConfig {
	return c.login
}

// resolveEndpoints fetches the issuer's OIDC discovery document and
// falls back to issuer-relative defaults when it is unreachable.
func resolveEndpoints(ctx context.Context, issuer string) (string, string) {
	base := strings.TrimSuffix(issuer, "/")
	authURL := base + "/oauth2/authorize"
	tokenURL := base + "/oauth2/token"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/.well-known/openid-configuration", nil)
	if err != nil {
		return authURL, tokenURL
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return authURL, tokenURL
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return authURL, tokenURL
	}

	var discovery struct {
		AuthorizationEndpoint string `json:"authorization_endpoint"`
		TokenEndpoint         string `json:"token_endpoint"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&discovery); err != nil {
		return authURL, tokenURL
	}
	if discovery.AuthorizationEndpoint != "" {
		authURL = discovery.AuthorizationEndpoint
	}
	if discovery.TokenEndpoint != "" {
		tokenURL = discovery.TokenEndpoint
	}
	return authURL, tokenURL
}
