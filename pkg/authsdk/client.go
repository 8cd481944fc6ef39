package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to an oauth2d server.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Login performs the first party password login. When the account has
// MFA enabled the returned error is a *MFARequiredError carrying the
// challenge token for VerifyMFA.
func (c *Client) Login(ctx context.Context, username, password, clientID string, scopes []string) (*TokenResponse, error) {
	body := map[string]string{
		"username":  username,
		"password":  password,
		"client_id": clientID,
		"scope":     strings.Join(scopes, " "),
	}

	var tokens TokenResponse
	if err := c.postJSON(ctx, "/v1/auth/login", body, &tokens); err != nil {
		return nil, err
	}
	return &tokens, nil
}

// VerifyMFA completes a pending login challenge with a TOTP code.
func (c *Client) VerifyMFA(ctx context.Context, mfaToken, code, clientID string, scopes []string) (*TokenResponse, error) {
	body := map[string]string{
		"mfa_token": mfaToken,
		"code":      code,
		"client_id": clientID,
		"scope":     strings.Join(scopes, " "),
	}

	var tokens TokenResponse
	if err := c.postJSON(ctx, "/v1/auth/mfa/verify", body, &tokens); err != nil {
		return nil, err
	}
	return &tokens, nil
}

// AuthorizationCodeGrant redeems an authorization code at the token
// endpoint. codeVerifier may be empty when the code was issued without
// PKCE.
func (c *Client) AuthorizationCodeGrant(ctx context.Context, clientID, clientSecret, code, redirectURI, codeVerifier string) (*TokenResponse, error) {
	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {redirectURI},
	}
	if codeVerifier != "" {
		form.Set("code_verifier", codeVerifier)
	}
	return c.tokenGrant(ctx, clientID, clientSecret, form)
}

// RefreshGrant rotates a refresh token for a fresh pair.
func (c *Client) RefreshGrant(ctx context.Context, clientID, clientSecret, refreshToken string) (*TokenResponse, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	return c.tokenGrant(ctx, clientID, clientSecret, form)
}

// ClientCredentialsGrant obtains a machine to machine access token.
func (c *Client) ClientCredentialsGrant(ctx context.Context, clientID, clientSecret string, scopes []string) (*TokenResponse, error) {
	form := url.Values{
		"grant_type": {"client_credentials"},
	}
	if len(scopes) > 0 {
		form.Set("scope", strings.Join(scopes, " "))
	}
	return c.tokenGrant(ctx, clientID, clientSecret, form)
}

// PasswordGrant exchanges resource owner credentials at the token
// endpoint. MFA enabled accounts get a *MFARequiredError back.
func (c *Client) PasswordGrant(ctx context.Context, clientID, clientSecret, username, password string, scopes []string) (*TokenResponse, error) {
	form := url.Values{
		"grant_type": {"password"},
		"username":   {username},
		"password":   {password},
	}
	if len(scopes) > 0 {
		form.Set("scope", strings.Join(scopes, " "))
	}
	return c.tokenGrant(ctx, clientID, clientSecret, form)
}

// Introspect asks the server about a token's state per RFC 7662.
func (c *Client) Introspect(ctx context.Context, clientID, clientSecret, token string) (*IntrospectionResponse, error) {
	form := url.Values{"token": {token}}

	var info IntrospectionResponse
	if err := c.postFormBasic(ctx, "/v1/oauth2/introspect", clientID, clientSecret, form, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Revoke invalidates a token per RFC 7009. Unknown tokens succeed.
func (c *Client) Revoke(ctx context.Context, clientID, clientSecret, token string) error {
	form := url.Values{"token": {token}}
	return c.postFormBasic(ctx, "/v1/oauth2/revoke", clientID, clientSecret, form, &struct{}{})
}

// MFASetup starts TOTP enrollment for the user behind accessToken.
func (c *Client) MFASetup(ctx context.Context, accessToken string) (*MFAEnrollmentResponse, error) {
	var enrollment MFAEnrollmentResponse
	if err := c.postBearer(ctx, "/v1/auth/mfa/setup", accessToken, nil, &enrollment); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// MFAEnable confirms enrollment with the first TOTP code.
func (c *Client) MFAEnable(ctx context.Context, accessToken, code string) error {
	return c.postBearer(ctx, "/v1/auth/mfa/enable", accessToken, map[string]string{"code": code}, &struct{}{})
}

// MFADisable turns MFA off for the user behind accessToken.
func (c *Client) MFADisable(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.BaseURL+"/v1/auth/mfa", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	return c.do(req, &struct{}{})
}

// Livez reports whether the process is up.
func (c *Client) Livez(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, "/livez")
}

// Readyz reports whether the server can reach its dependencies. A
// degraded response comes back alongside a *APIError.
func (c *Client) Readyz(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, "/readyz")
}

func (c *Client) tokenGrant(ctx context.Context, clientID, clientSecret string, form url.Values) (*TokenResponse, error) {
	var tokens TokenResponse
	if err := c.postFormBasic(ctx, "/v1/oauth2/token", clientID, clientSecret, form, &tokens); err != nil {
		return nil, err
	}
	return &tokens, nil
}

func (c *Client) health(ctx context.Context, path string) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var health HealthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &health, &APIError{StatusCode: resp.StatusCode, Code: "server_error", Description: health.Status}
	}
	return &health, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body any, target any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, target)
}

func (c *Client) postBearer(ctx context.Context, path, accessToken string, body any, target any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	return c.do(req, target)
}

func (c *Client) postFormBasic(ctx context.Context, path, clientID, clientSecret string, form url.Values, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(clientID, clientSecret)

	return c.do(req, target)
}

func (c *Client) do(req *http.Request, target any) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseErrorResponse(resp, body)
	}

	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
