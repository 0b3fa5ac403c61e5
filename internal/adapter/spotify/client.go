package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PlasmaGamerz/Lyro-Spotify/internal/config"
	"github.com/PlasmaGamerz/Lyro-Spotify/internal/domain"
)

// Exchanger encapsulates the two grant types the token endpoint supports.
type Exchanger interface {
	ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenGrant, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenGrant, error)
}

// ProfileFetcher loads the linked account's public profile.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, accessToken string) (*Profile, error)
}

// TokenGrant models the token endpoint response fields we consume.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	ExpiresIn    int64
}

// Profile is the normalized subset of the /v1/me response.
type Profile struct {
	ID          string
	DisplayName string
	URL         string
}

// Client is the default HTTP implementation against accounts.spotify.com.
type Client struct {
	tokenURL     string
	profileURL   string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

var (
	_ Exchanger      = (*Client)(nil)
	_ ProfileFetcher = (*Client)(nil)
)

// NewClient constructs the default Spotify client. A nil http.Client gets a
// 10s timeout default.
func NewClient(cfg config.Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		tokenURL:     cfg.TokenURL,
		profileURL:   cfg.ProfileURL,
		clientID:     cfg.SpotifyClientID,
		clientSecret: cfg.SpotifyClientSecret,
		httpClient:   httpClient,
	}
}

// ExchangeCode redeems a one-time authorization code. The redirect URI must
// byte-for-byte match the one used in the authorization request.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenGrant, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", redirectURI)
	data.Set("client_id", c.clientID)
	data.Set("client_secret", c.clientSecret)
	return c.postToken(ctx, data)
}

// Refresh mints a new access token from a stored refresh token. Spotify may
// omit refresh_token in the response; callers keep the prior value then.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenGrant, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)
	data.Set("client_id", c.clientID)
	data.Set("client_secret", c.clientSecret)
	return c.postToken(ctx, data)
}

func (c *Client) postToken(ctx context.Context, data url.Values) (*TokenGrant, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, &domain.ExchangeError{Kind: domain.ExchangeTransient, Err: fmt.Errorf("build token request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.ExchangeError{Kind: domain.ExchangeTransient, Err: fmt.Errorf("token request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &domain.ExchangeError{Kind: domain.ExchangeTransient, StatusCode: resp.StatusCode, Err: fmt.Errorf("read token response: %w", err)}
	}

	if resp.StatusCode >= 500 {
		return nil, &domain.ExchangeError{Kind: domain.ExchangeTransient, StatusCode: resp.StatusCode, Err: fmt.Errorf("token endpoint unavailable")}
	}
	if resp.StatusCode >= 400 {
		return nil, &domain.ExchangeError{
			Kind:         domain.ExchangeRejected,
			ProviderCode: providerErrorCode(body),
			StatusCode:   resp.StatusCode,
		}
	}

	var raw struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
		Scope        string `json:"scope"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &domain.ExchangeError{Kind: domain.ExchangeProtocol, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode token response: %w", err)}
	}
	if strings.TrimSpace(raw.AccessToken) == "" || raw.ExpiresIn <= 0 {
		return nil, &domain.ExchangeError{Kind: domain.ExchangeProtocol, StatusCode: resp.StatusCode, Err: fmt.Errorf("token response missing access_token or expires_in")}
	}

	return &TokenGrant{
		AccessToken:  raw.AccessToken,
		RefreshToken: raw.RefreshToken,
		TokenType:    raw.TokenType,
		Scope:        raw.Scope,
		ExpiresIn:    raw.ExpiresIn,
	}, nil
}

// FetchProfile loads the account profile with a bearer token.
func (c *Client) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.profileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("profile fetch failed: status=%d", resp.StatusCode)
	}

	var raw struct {
		ID           string `json:"id"`
		DisplayName  string `json:"display_name"`
		ExternalURLs struct {
			Spotify string `json:"spotify"`
		} `json:"external_urls"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}

	return &Profile{
		ID:          raw.ID,
		DisplayName: raw.DisplayName,
		URL:         raw.ExternalURLs.Spotify,
	}, nil
}

func providerErrorCode(body []byte) string {
	var raw struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return ""
	}
	return raw.Error
}
