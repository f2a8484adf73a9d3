package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/CinitSwift/divide/internal/domain"
)

// Identity is what the external provider reveals about a login credential.
type Identity struct {
	ProviderUID string
	Nickname    string
	AvatarURL   string
}

// Provider exchanges a client-supplied login code for an identity.
type Provider interface {
	Exchange(ctx context.Context, code string) (*Identity, error)
}

// =============================================================================
// Code-session exchange
// =============================================================================

const defaultCodeExchangeURL = "https://api.weixin.qq.com"

// CodeProvider implements the mini-program login flow: the client hands
// us a short-lived code and we swap it with the platform for a stable
// provider uid. The code carries no profile; nickname and avatar come
// from the client.
type CodeProvider struct {
	appID   string
	secret  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewCodeProvider(appID, secret, baseURL string, logger *slog.Logger) *CodeProvider {
	if baseURL == "" {
		baseURL = defaultCodeExchangeURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CodeProvider{
		appID:   appID,
		secret:  secret,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger.With("component", "auth_provider"),
	}
}

type codeSessionResponse struct {
	OpenID     string `json:"openid"`
	SessionKey string `json:"session_key"`
	UnionID    string `json:"unionid"`
	ErrCode    int    `json:"errcode"`
	ErrMsg     string `json:"errmsg"`
}

func (p *CodeProvider) Exchange(ctx context.Context, code string) (*Identity, error) {
	q := url.Values{}
	q.Set("appid", p.appID)
	q.Set("secret", p.secret)
	q.Set("js_code", code)
	q.Set("grant_type", "authorization_code")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.baseURL+"/sns/jscode2session?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build exchange request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("exchange code: status %d: %s", resp.StatusCode, body)
	}

	var session codeSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("decode exchange response: %w", err)
	}
	if session.ErrCode != 0 || session.OpenID == "" {
		p.logger.Warn("provider rejected login code",
			"errcode", session.ErrCode, "errmsg", session.ErrMsg)
		return nil, domain.ErrUnauthenticated
	}

	return &Identity{ProviderUID: session.OpenID}, nil
}

// =============================================================================
// OAuth2 exchange
// =============================================================================

// OAuthProvider drives a standard authorization-code exchange followed by
// a userinfo lookup, for deployments whose identity provider speaks
// OAuth2 instead of the code-session protocol.
type OAuthProvider struct {
	config      *oauth2.Config
	userInfoURL string
	logger      *slog.Logger
}

func NewOAuthProvider(clientID, clientSecret, baseURL string, logger *slog.Logger) *OAuthProvider {
	if logger == nil {
		logger = slog.Default()
	}
	base := strings.TrimRight(baseURL, "/")
	return &OAuthProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       []string{"openid", "profile"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  base + "/oauth/authorize",
				TokenURL: base + "/oauth/token",
			},
		},
		userInfoURL: base + "/oauth/userinfo",
		logger:      logger.With("component", "auth_provider"),
	}
}

type oauthUserInfo struct {
	Sub      string `json:"sub"`
	Nickname string `json:"nickname"`
	Picture  string `json:"picture"`
}

func (p *OAuthProvider) Exchange(ctx context.Context, code string) (*Identity, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		p.logger.Warn("token exchange failed", "error", err)
		return nil, domain.ErrUnauthenticated
	}

	client := p.config.Client(ctx, token)
	resp, err := client.Get(p.userInfoURL)
	if err != nil {
		return nil, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("userinfo request failed: status %d: %s", resp.StatusCode, body)
	}

	var info oauthUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	if info.Sub == "" {
		return nil, domain.ErrUnauthenticated
	}

	return &Identity{
		ProviderUID: info.Sub,
		Nickname:    info.Nickname,
		AvatarURL:   info.Picture,
	}, nil
}
