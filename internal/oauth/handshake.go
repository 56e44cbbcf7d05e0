package oauth

import (
	"context"
	"log/slog"

	"github.com/hitoshi/steppath/internal/backend"
	"github.com/hitoshi/steppath/internal/config"
	"github.com/hitoshi/steppath/internal/security"
)

// HandshakeConfig はハンドシェイクのプラットフォーム設定。
type HandshakeConfig struct {
	Platform       config.Platform
	DeepLinkScheme string
	WebOrigin      string
	FacebookAppID  string
}

// Handshake はプロバイダーごとのサインインフローを提供する。
// 戦略はプラットフォームに基づいて構築時に1回だけ選択される。
type Handshake struct {
	google   Strategy
	facebook Strategy

	// Browser/Tokensはシェルがコールバック・SDKトークンを配信するために公開する。
	Browser *BrowserRelay
	Tokens  *TokenRelay
}

// NewHandshake はHandshakeを生成する。
//
// 戦略の選択:
//
//	Google:   Web -> リダイレクト / ネイティブ -> システムブラウザ
//	Facebook: Web -> リダイレクト / ネイティブ -> SDKトークン交換
func NewHandshake(cfg HandshakeConfig, client backend.Client, sessions SessionWriter, profiles ProfileEnsurer, logger *slog.Logger) *Handshake {
	if logger == nil {
		logger = slog.Default()
	}

	browser := NewBrowserRelay()
	tokens := NewTokenRelay()

	h := &Handshake{
		Browser: browser,
		Tokens:  tokens,
	}

	if cfg.Platform == config.PlatformWeb {
		h.google = NewWebRedirectStrategy(client, ProviderGoogle, cfg.WebOrigin, "")
		h.facebook = NewWebRedirectStrategy(client, ProviderFacebook, cfg.WebOrigin, facebookScopes)
		return h
	}

	h.google = NewNativeBrowserStrategy(client, sessions, profiles, security.NewEndpointGuard(), browser, ProviderGoogle, cfg.DeepLinkScheme, "", logger)
	h.facebook = NewSDKTokenStrategy(sessions, profiles, tokens, ProviderFacebook, "Facebook", cfg.FacebookAppID, logger)
	return h
}

// SignInWithGoogle はGoogleサインインのハンドシェイクを実行する。
func (h *Handshake) SignInWithGoogle(ctx context.Context) (*Result, error) {
	return h.google.Start(ctx)
}

// SignInWithFacebook はFacebookサインインのハンドシェイクを実行する。
func (h *Handshake) SignInWithFacebook(ctx context.Context) (*Result, error) {
	return h.facebook.Start(ctx)
}
