package oidc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewClientWithDiscovery(t *testing.T) {
	t.Parallel()

	var issuer string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"authorization_endpoint": "` + issuer + `/custom/authorize",
			"token_endpoint": "` + issuer + `/custom/token"
		}`))
	}))
	defer server.Close()
	issuer = server.URL

	client := NewClient(context.Background(), issuer, "test-client-id", "test-secret", "http://localhost:3000/callback")

	if client.config.ClientID != "test-client-id" {
		t.Errorf("ClientID = %q, want test-client-id", client.config.ClientID)
	}
	if client.config.ClientSecret != "test-secret" {
		t.Errorf("ClientSecret = %q, want test-secret", client.config.ClientSecret)
	}
	if client.config.RedirectURL != "http://localhost:3000/callback" {
		t.Errorf("RedirectURL = %q, want callback URL", client.config.RedirectURL)
	}
	if got := client.config.Endpoint.AuthURL; got != issuer+"/custom/authorize" {
		t.Errorf("AuthURL = %q, want discovered endpoint", got)
	}
	if got := client.config.Endpoint.TokenURL; got != issuer+"/custom/token" {
		t.Errorf("TokenURL = %q, want discovered endpoint", got)
	}
}

func TestNewClientDiscoveryFallback(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := NewClient(context.Background(), server.URL+"/", "test-client-id", "", "http://localhost:3000/callback")

	if got := client.config.Endpoint.AuthURL; got != server.URL+"/oauth2/authorize" {
		t.Errorf("AuthURL = %q, want issuer-relative fallback", got)
	}
	if got := client.config.Endpoint.TokenURL; got != server.URL+"/oauth2/token" {
		t.Errorf("TokenURL = %q, want issuer-relative fallback", got)
	}
	if client.config.ClientSecret != "" {
		t.Errorf("ClientSecret = %q, want empty for public client", client.config.ClientSecret)
	}
}

func TestClientAuthCodeURL(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(http.NotFound))
	defer server.Close()

	client := NewClient(context.Background(), server.URL, "test-client-id", "", "http://localhost:3000/callback")
	url := client.AuthCodeURL("test-state-123")

	if !strings.Contains(url, "state=test-state-123") {
		t.Errorf("AuthCodeURL = %q, want state parameter", url)
	}
	if !strings.Contains(url, "client_id=test-client-id") {
		t.Errorf("AuthCodeURL = %q, want client_id parameter", url)
	}
}

func TestClientLoginConfig(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(http.NotFound))
	defer server.Close()

	client := NewClient(context.Background(), server.URL, "test-client-id", "", "http://localhost:3000/callback")
	login := client.LoginConfig()

	if login.ClientID != "test-client-id" {
		t.Errorf("LoginConfig ClientID = %q, want test-client-id", login.ClientID)
	}
	if login.Scope != "openid email profile" {
		t.Errorf("LoginConfig Scope = %q, want openid email profile", login.Scope)
	}
	if login.AuthorizationEndpoint != server.URL+"/oauth2/authorize" {
		t.Errorf("LoginConfig AuthorizationEndpoint = %q, want fallback endpoint", login.AuthorizationEndpoint)
	}
}
