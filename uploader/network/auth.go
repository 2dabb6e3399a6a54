package network

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const tokenURLFormat = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"
const graphScope = "https://graph.microsoft.com/.default"

// Credentials identifies an Azure AD app registration.
type Credentials struct {
	TenantID     string
	ClientID     string
	ClientSecret string
}

// AcquireToken fetches an app-only Graph access token using the client
// credentials grant. The token is valid for the whole run and shared
// read-only across upload jobs.
func AcquireToken(ctx context.Context, creds Credentials, logger log.Logger) (string, error) {
	tokenURL := fmt.Sprintf(tokenURLFormat, url.PathEscape(creds.TenantID))
	return acquireToken(ctx, creds, tokenURL, retryhttp.NewClient(logger).StandardClient())
}

func acquireToken(ctx context.Context, creds Credentials, tokenURL string, client *http.Client) (string, error) {
	config := clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{graphScope},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, client)
	token, err := config.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("request token: %w", err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned no access token")
	}

	return token.AccessToken, nil
}
