package utils

import (
	"context"
	"fmt"
	"net/http"

	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/jakechorley/donornet/internal/config"
)

// GoogleAccount is an authorized Google account. One account backs every
// Google API client in the process so the browser flow runs at most once.
type GoogleAccount struct {
	client *http.Client
}

// AuthorizeGoogle returns the account for env, running the browser flow if
// there is no usable saved token
func AuthorizeGoogle(ctx context.Context, oauthCfg *config.OAuthClientConfig, env string) (*GoogleAccount, error) {
	oauthConfig, err := GetOAuthConfig(oauthCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to get oauth config: %w", err)
	}

	token, err := GetTokenWithFlow(ctx, oauthConfig, env)
	if err != nil {
		return nil, fmt.Errorf("failed to get oauth token: %w", err)
	}

	return &GoogleAccount{client: oauthConfig.Client(ctx, token)}, nil
}

// ClientOption authenticates a Google API service as this account
func (g *GoogleAccount) ClientOption() option.ClientOption {
	return option.WithHTTPClient(g.client)
}

// Email returns the account's verified email address
func (g *GoogleAccount) Email(ctx context.Context) (string, error) {
	service, err := oauth2api.NewService(ctx, g.ClientOption())
	if err != nil {
		return "", fmt.Errorf("failed to create userinfo service: %w", err)
	}

	info, err := service.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to fetch google account: %w", err)
	}

	if info.Email == "" {
		return "", fmt.Errorf("google account has no email")
	}
	if info.VerifiedEmail != nil && !*info.VerifiedEmail {
		return "", fmt.Errorf("google account email %s is not verified", info.Email)
	}
	return info.Email, nil
}
