package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/steppath/internal/model"
)

// GoTrueConfig はGoTrue互換バックエンドの接続設定。
type GoTrueConfig struct {
	// BaseURL は認証エンドポイントのベースURL（末尾スラッシュなし）。
	BaseURL string
	// APIKey は全リクエストのapikeyヘッダーに付与される公開キー。
	APIKey string
}

// GoTrueClient はGoTrue互換REST APIによるClient実装。
type GoTrueClient struct {
	config GoTrueConfig
	http   *http.Client
	now    func() time.Time
}

// NewGoTrueClient はGoTrueClientを生成する。
// httpClientがnilの場合はhttp.DefaultClientを使用する。
// 本番ワイヤリングではSSRF防止付きクライアント（security.NewSafeClient）を渡す。
func NewGoTrueClient(config GoTrueConfig, httpClient *http.Client) *GoTrueClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &GoTrueClient{config: config, http: httpClient, now: time.Now}
}

// tokenResponse はトークンエンドポイントのレスポンス。
type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int         `json:"expires_in"`
	RefreshToken string      `json:"refresh_token"`
	User         backendUser `json:"user"`
}

// backendUser はバックエンドが返すIdentity情報。
type backendUser struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	UserMetadata struct {
		FullName string `json:"full_name"`
	} `json:"user_metadata"`
	AppMetadata struct {
		Provider string `json:"provider"`
	} `json:"app_metadata"`
}

// backendError はバックエンドのエラーレスポンス。
// GoTrueはエンドポイントによって複数のフォーマットを返す。
type backendError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

// SignInWithPassword はパスワードグラントでセッションを取得する。
func (c *GoTrueClient) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	body := map[string]string{"email": email, "password": password}
	return c.requestSession(ctx, http.MethodPost, "/token?grant_type=password", body)
}

// SignUp は新規Identityを作成し、セッションを取得する。
func (c *GoTrueClient) SignUp(ctx context.Context, email, password string) (*model.Session, error) {
	body := map[string]string{"email": email, "password": password}
	return c.requestSession(ctx, http.MethodPost, "/signup", body)
}

// AuthorizeURL はOAuth認可URLを生成する。ネットワーク呼び出しは行わない。
// 認可の完了はブラウザ経由で行われるため、クライアント側ではURLの組み立てのみを行う。
func (c *GoTrueClient) AuthorizeURL(provider string, opts AuthorizeOptions) (string, error) {
	if provider == "" {
		return "", fmt.Errorf("provider is required")
	}
	params := url.Values{"provider": {provider}}
	if opts.RedirectTo != "" {
		params.Set("redirect_to", opts.RedirectTo)
	}
	if opts.Scopes != "" {
		params.Set("scopes", opts.Scopes)
	}
	return c.config.BaseURL + "/authorize?" + params.Encode(), nil
}

// SignInWithIDToken はプロバイダーSDKが発行したトークンをセッションに交換する。
func (c *GoTrueClient) SignInWithIDToken(ctx context.Context, provider, token string) (*model.Session, error) {
	body := map[string]string{"provider": provider, "id_token": token}
	return c.requestSession(ctx, http.MethodPost, "/token?grant_type=id_token", body)
}

// SetSession はアクセストークンとリフレッシュトークンのペアからセッションを確立する。
// アクセストークンのクレームから有効期限を読み取り、期限内であれば
// ネットワーク呼び出しなしでセッションを構築する。期限切れの場合はリフレッシュする。
func (c *GoTrueClient) SetSession(ctx context.Context, accessToken, refreshToken string) (*model.Session, error) {
	identity, expiresAt, err := ParseAccessToken(accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to parse access token: %w", err)
	}

	if expiresAt.After(c.now()) {
		return &model.Session{
			Identity:     *identity,
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			ExpiresAt:    expiresAt,
		}, nil
	}

	return c.RefreshSession(ctx, refreshToken)
}

// RefreshSession はリフレッシュトークンで新しいセッションを取得する。
func (c *GoTrueClient) RefreshSession(ctx context.Context, refreshToken string) (*model.Session, error) {
	body := map[string]string{"refresh_token": refreshToken}
	return c.requestSession(ctx, http.MethodPost, "/token?grant_type=refresh_token", body)
}

// SignOut はバックエンド側でセッションを無効化する。
func (c *GoTrueClient) SignOut(ctx context.Context, accessToken string) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/logout", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sign out request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return parseBackendError(resp)
	}
	return nil
}

// requestSession はトークン系エンドポイントを呼び、レスポンスをSessionに変換する。
func (c *GoTrueClient) requestSession(ctx context.Context, method, path string, body any) (*model.Session, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseBackendError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read auth response: %w", err)
	}

	var tr tokenResponse
	if err := json.Unmarshal(data, &tr); err != nil {
		return nil, fmt.Errorf("failed to parse auth response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("empty access token in auth response")
	}

	provider := tr.User.AppMetadata.Provider
	if provider == "" {
		provider = "email"
	}

	return &model.Session{
		Identity: model.Identity{
			ID:          tr.User.ID,
			Email:       tr.User.Email,
			DisplayName: tr.User.UserMetadata.FullName,
			Provider:    provider,
		},
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    c.now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}, nil
}

// newRequest はapikeyヘッダー付きのHTTPリクエストを生成する。
func (c *GoTrueClient) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth request: %w", err)
	}
	req.Header.Set("apikey", c.config.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// parseBackendError はエラーレスポンスをmodel.BackendErrorに変換する。
// メッセージはバックエンドが返したものを無加工で保持する。
func parseBackendError(resp *http.Response) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &model.BackendError{Status: resp.StatusCode, Message: resp.Status}
	}

	var be backendError
	if err := json.Unmarshal(data, &be); err == nil {
		for _, msg := range []string{be.ErrorDescription, be.Msg, be.Message, be.Error} {
			if msg != "" {
				return &model.BackendError{Status: resp.StatusCode, Message: msg}
			}
		}
	}
	return &model.BackendError{Status: resp.StatusCode, Message: string(data)}
}

// compile-time interface check
var _ Client = (*GoTrueClient)(nil)
