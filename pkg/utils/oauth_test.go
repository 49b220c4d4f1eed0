package utils

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/jakechorley/donornet/internal/config"
)

func TestGetOAuthConfig(t *testing.T) {
	cfg := &config.OAuthClientConfig{
		Installed: &config.OAuthClient{
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			AuthURI:      "https://accounts.google.com/o/oauth2/auth",
			TokenURI:     "https://oauth2.googleapis.com/token",
			RedirectURIs: []string{"http://localhost"},
		},
	}

	oauthConfig, err := GetOAuthConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, "client-id", oauthConfig.ClientID)
	assert.Equal(t, "http://localhost:3000/oauth/callback", oauthConfig.RedirectURL)
	assert.ElementsMatch(t, []string{ScopeSheets, ScopeGmailSend, ScopeUserinfoEmail, ScopeOpenID}, oauthConfig.Scopes)
}

func TestMissingScopes(t *testing.T) {
	assert.Empty(t, missingScopes("openid "+ScopeUserinfoEmail+" "+ScopeSheets+" "+ScopeGmailSend))
	assert.Equal(t, []string{ScopeGmailSend}, missingScopes(ScopeSheets+" "+ScopeUserinfoEmail+" openid"))
	assert.Len(t, missingScopes(""), 4)
}

func TestTokenFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tokens")
	original := tokenDir
	tokenDir = func() (string, error) { return dir, nil }
	t.Cleanup(func() { tokenDir = original })

	file, err := tokenFileFor("test")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "token-test.json"), file.path)

	token, err := file.load()
	require.NoError(t, err)
	assert.Nil(t, token)

	expiry := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, file.save(&oauth2.Token{AccessToken: "access", RefreshToken: "refresh", Expiry: expiry}))

	info, err := os.Stat(file.path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	token, err = file.load()
	require.NoError(t, err)
	require.NotNil(t, token)
	assert.Equal(t, "access", token.AccessToken)
	assert.Equal(t, "refresh", token.RefreshToken)
	assert.True(t, expiry.Equal(token.Expiry))

	require.NoError(t, os.WriteFile(file.path, []byte("not json"), 0600))
	_, err = file.load()
	assert.ErrorContains(t, err, "failed to parse token file")
}

func TestForgetGoogleToken(t *testing.T) {
	dir := t.TempDir()
	original := tokenDir
	tokenDir = func() (string, error) { return dir, nil }
	t.Cleanup(func() { tokenDir = original })

	file, err := tokenFileFor("test")
	require.NoError(t, err)
	require.NoError(t, file.save(&oauth2.Token{AccessToken: "access"}))

	tokenCacheMu.Lock()
	tokenCache["test"] = &oauth2.Token{AccessToken: "access"}
	tokenCacheMu.Unlock()

	require.NoError(t, ForgetGoogleToken("test"))
	require.NoError(t, ForgetGoogleToken("test"), "forgetting twice is fine")

	_, err = os.Stat(file.path)
	assert.True(t, os.IsNotExist(err))

	tokenCacheMu.Lock()
	_, cached := tokenCache["test"]
	tokenCacheMu.Unlock()
	assert.False(t, cached)
}

func TestCallbackHandler(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantCode   string
		wantErr    string
		delivered  bool
	}{
		{"code accepted", "?state=s-1&code=abc", http.StatusOK, "abc", "", true},
		{"foreign state ignored", "?state=other&code=abc", http.StatusBadRequest, "", "", false},
		{"consent denied", "?state=s-1&error=access_denied", http.StatusBadRequest, "", "authorization denied: access_denied", true},
		{"missing code", "?state=s-1", http.StatusBadRequest, "", "no authorization code received", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := make(chan callbackResult, 1)
			rec := httptest.NewRecorder()
			callbackHandler("s-1", results).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, callbackPath+tt.query, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			if !tt.delivered {
				assert.Empty(t, results)
				return
			}
			require.Len(t, results, 1)
			result := <-results
			assert.Equal(t, tt.wantCode, result.code)
			if tt.wantErr == "" {
				assert.NoError(t, result.err)
				assert.Contains(t, rec.Body.String(), "Signed in to Google")
			} else {
				assert.EqualError(t, result.err, tt.wantErr)
			}
		})
	}
}
