package graph

import (
	"context"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"driverecover/internal/errors"
)

const defaultScope = "https://graph.microsoft.com/.default"

// Credentials selects how requests are authorized. A non-empty AccessToken
// is used as is, otherwise the client credentials flow of the tenant runs.
type Credentials struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	AccessToken  string
	// TokenURL overrides the tenant token endpoint.
	TokenURL string
}

// TokenSource returns an oauth2.TokenSource for c.
func TokenSource(ctx context.Context, c Credentials) (oauth2.TokenSource, error) {
	if c.AccessToken != "" {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.AccessToken, TokenType: "Bearer"}), nil
	}
	if c.ClientID == "" || c.ClientSecret == "" {
		return nil, errors.New("graph: either an access token or client id and secret are required")
	}

	tokenURL := c.TokenURL
	if tokenURL == "" {
		if c.TenantID == "" {
			return nil, errors.New("graph: tenant id is required for the client credentials flow")
		}
		tokenURL = "https://login.microsoftonline.com/" + c.TenantID + "/oauth2/v2.0/token"
	}

	cc := &clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{defaultScope},
	}
	return oauth2.ReuseTokenSource(nil, cc.TokenSource(ctx)), nil
}
