package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/jakechorley/donornet/internal/config"
)

const (
	AuthPort     = 3000
	authTimeout  = 5 * time.Minute
	callbackPath = "/oauth/callback"
	tokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"
)

// tokenCache holds one token per environment for the life of the process
var (
	tokenCache   = map[string]*oauth2.Token{}
	tokenCacheMu sync.Mutex
)

// OAuth scopes for Google APIs
const (
	ScopeSheets        = "https://www.googleapis.com/auth/spreadsheets"
	ScopeGmailSend     = "https://www.googleapis.com/auth/gmail.send"
	ScopeUserinfoEmail = "https://www.googleapis.com/auth/userinfo.email"
	ScopeOpenID        = "openid"
)

// requiredScopes returns all scopes required by the application
func requiredScopes() []string {
	return []string{
		ScopeSheets,
		ScopeGmailSend,
		ScopeUserinfoEmail,
		ScopeOpenID,
	}
}

// GetOAuthConfig creates an OAuth2 config from the OAuth client configuration.
// Every scope the application uses is requested upfront (sheets, gmail, sign-in).
func GetOAuthConfig(oauthCfg *config.OAuthClientConfig) (*oauth2.Config, error) {
	oauthConfigJSON, err := json.Marshal(oauthCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal oauth config: %w", err)
	}

	googleConfig, err := google.ConfigFromJSON(oauthConfigJSON, requiredScopes()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create google config: %w", err)
	}

	// Override redirect URI to use our local server
	googleConfig.RedirectURL = fmt.Sprintf("http://localhost:%d%s", AuthPort, callbackPath)

	return googleConfig, nil
}

// missingScopes returns the required scopes absent from a space-separated grant
func missingScopes(granted string) []string {
	grantedScopes := strings.Fields(granted)
	var missing []string
	for _, required := range requiredScopes() {
		if !slices.Contains(grantedScopes, required) {
			missing = append(missing, required)
		}
	}
	return missing
}

// validateTokenScopes checks that the token has all required scopes by calling Google's tokeninfo endpoint
func validateTokenScopes(ctx context.Context, token *oauth2.Token) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tokenInfoURL+"?access_token="+token.AccessToken, nil)
	if err != nil {
		return fmt.Errorf("failed to create tokeninfo request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call tokeninfo endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("tokeninfo request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenInfo struct {
		Scope string `json:"scope"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenInfo); err != nil {
		return fmt.Errorf("failed to decode tokeninfo response: %w", err)
	}

	if missing := missingScopes(tokenInfo.Scope); len(missing) > 0 {
		return fmt.Errorf("token is missing required scopes: %v\nPlease ensure all permissions are granted during the OAuth flow", missing)
	}

	return nil
}

// GetTokenWithFlow returns a token for env, from memory, from disk (refreshing
// it if needed) or by running the browser authorization flow.
// Only one flow runs at a time.
func GetTokenWithFlow(ctx context.Context, oauthConfig *oauth2.Config, env string) (*oauth2.Token, error) {
	tokenCacheMu.Lock()
	defer tokenCacheMu.Unlock()

	if cached := tokenCache[env]; cached != nil && cached.Valid() {
		return cached, nil
	}

	file, err := tokenFileFor(env)
	if err != nil {
		return nil, err
	}

	token := savedToken(ctx, oauthConfig, file)
	if token == nil {
		if token, err = authorizeInBrowser(ctx, oauthConfig); err != nil {
			return nil, err
		}
		if err := file.save(token); err != nil {
			// The token is still usable for this process
			fmt.Printf("Warning: %v\n", err)
		}
	}

	tokenCache[env] = token
	return token, nil
}

// authorizeInBrowser prints the consent URL and waits for the redirect
func authorizeInBrowser(ctx context.Context, oauthConfig *oauth2.Config) (*oauth2.Token, error) {
	state := uuid.NewString()
	fmt.Println("No valid Google token found - starting OAuth flow")
	fmt.Printf("\nVisit this URL to authorize DonorNet:\n%s\n\n", oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline))

	code, err := listenForAuthCallback(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("failed to get authorization code: %w", err)
	}

	token, err := oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code for token: %w", err)
	}

	if err := validateTokenScopes(ctx, token); err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	return token, nil
}

// savedToken returns the saved token if it is valid, or can be refreshed,
// and carries every required scope. A token missing scopes is deleted.
func savedToken(ctx context.Context, oauthConfig *oauth2.Config, file tokenFile) *oauth2.Token {
	saved, err := file.load()
	if err != nil {
		fmt.Printf("Warning: %v\n", err)
		return nil
	}
	if saved == nil {
		return nil
	}

	token := saved
	if !token.Valid() {
		if token.RefreshToken == "" {
			return nil
		}
		if token, err = oauthConfig.TokenSource(ctx, saved).Token(); err != nil {
			fmt.Printf("Failed to refresh Google token: %v\n", err)
			return nil
		}
	}

	if err := validateTokenScopes(ctx, token); err != nil {
		fmt.Printf("Saved Google token is not usable (%v), authorizing again\n", err)
		_ = file.remove()
		return nil
	}

	if token != saved {
		if err := file.save(token); err != nil {
			fmt.Printf("Warning: failed to save refreshed token: %v\n", err)
		}
	}
	return token
}

const authorizedPage = `<html>
<head><title>DonorNet</title></head>
<body><h1>Signed in to Google</h1><p>You can close this window and return to DonorNet.</p></body>
</html>`

// callbackResult is what the redirect handler hands back to the waiting flow
type callbackResult struct {
	code string
	err  error
}

// callbackHandler accepts the first redirect carrying state and a code.
// Redirects with another state are refused and the flow keeps waiting.
func callbackHandler(state string, results chan<- callbackResult) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "Unexpected authorization state", http.StatusBadRequest)
			return
		}

		result := callbackResult{code: q.Get("code")}
		if reason := q.Get("error"); reason != "" {
			result.err = fmt.Errorf("authorization denied: %s", reason)
		} else if result.code == "" {
			result.err = fmt.Errorf("no authorization code received")
		}

		if result.err != nil {
			http.Error(w, "Authorization failed", http.StatusBadRequest)
		} else {
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, authorizedPage)
		}

		select {
		case results <- result:
		default:
		}
	})
	return mux
}

// listenForAuthCallback serves the redirect URI on localhost until Google
// redirects back with state, the context ends or authTimeout passes
func listenForAuthCallback(ctx context.Context, state string) (string, error) {
	results := make(chan callbackResult, 1)

	// A fresh server per flow so an interactive session can authorize more than once
	server := &http.Server{
		Addr:              fmt.Sprintf("localhost:%d", AuthPort),
		Handler:           callbackHandler(state, results),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case results <- callbackResult{err: fmt.Errorf("callback server: %w", err)}:
			default:
			}
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	timeout := time.NewTimer(authTimeout)
	defer timeout.Stop()

	select {
	case result := <-results:
		return result.code, result.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timeout.C:
		return "", fmt.Errorf("authorization timeout after %v", authTimeout)
	}
}
