package google

import (
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Config holds the OAuth client registration.
type Config struct {
	ClientID     string
	ClientSecret string
	// Endpoint overrides Google's OAuth endpoints (tests).
	Endpoint oauth2.Endpoint
}

// oauthConfig returns the OAuth2 configuration for redirectURL.
// Each authorization uses its own redirect URL, so the config is built per
// flow rather than shared.
func (c Config) oauthConfig(redirectURL string) *oauth2.Config {
	endpoint := c.Endpoint
	if endpoint.AuthURL == "" && endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     endpoint,
		RedirectURL:  redirectURL,
		Scopes:       Scopes,
	}
}

// authCodeURL builds the consent URL. access_type=offline and prompt=consent
// make Google issue a refresh token even for previously authorized clients.
func (c Config) authCodeURL(redirectURL, state, loginHint string) string {
	opts := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
	}
	if loginHint != "" {
		opts = append(opts, oauth2.SetAuthURLParam("login_hint", loginHint))
	}
	return c.oauthConfig(redirectURL).AuthCodeURL(state, opts...)
}
