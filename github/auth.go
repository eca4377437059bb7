package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// DefaultAPIURL is the public REST endpoint.
const DefaultAPIURL = "https://api.github.com"

// DefaultGraphQLURL is the public GraphQL endpoint.
const DefaultGraphQLURL = "https://api.github.com/graphql"

// AppCredentials identify a GitHub App installation.
type AppCredentials struct {
	AppID          string
	InstallationID string
	// PrivateKey is either the PEM text or a path to a PEM file.
	PrivateKey string
}

// GetInstallationToken generates a short-lived installation access token
func GetInstallationToken(ctx context.Context, httpClient *http.Client, apiURL string, creds AppCredentials) (string, error) {
	if creds.AppID == "" || creds.PrivateKey == "" || creds.InstallationID == "" {
		return "", fmt.Errorf("GITHUB_APP_ID, GITHUB_INSTALLATION_ID or GITHUB_PRIVATE_KEY not configured")
	}

	privateKeyPEM := []byte(creds.PrivateKey)
	if !strings.Contains(creds.PrivateKey, "-----BEGIN") {
		data, err := os.ReadFile(creds.PrivateKey)
		if err != nil {
			return "", fmt.Errorf("failed to read private key file: %w", err)
		}
		privateKeyPEM = data
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return "", fmt.Errorf("failed to parse private key: %w", err)
	}

	claims := jwt.RegisteredClaims{
		Issuer:    creds.AppID,
		IssuedAt:  jwt.NewNumericDate(time.Now().Add(-60 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(10 * time.Minute)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signedJWT, err := token.SignedString(privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}

	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	url := fmt.Sprintf("%s/app/installations/%s/access_tokens", strings.TrimRight(apiURL, "/"), creds.InstallationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+signedJWT)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to request installation token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("github api error: %s", resp.Status)
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	return result.Token, nil
}

// NewHTTPClient returns a token-authenticated client with a bounded request timeout.
func NewHTTPClient(token string, timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
			Base:   http.DefaultTransport,
		},
	}
}
