package oauth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/steppath/internal/backend"
	"github.com/hitoshi/steppath/internal/security"
)

// NativeBrowserStrategy はネイティブプラットフォームのシステムブラウザフロー。
//
// 認可URLをシェルへ公開し、プロバイダーがアプリスキームのディープリンクへ
// リダイレクトして戻ってくるコールバックを待つ。コールバックのトークンで
// セッションを確立する。
type NativeBrowserStrategy struct {
	backend  backend.Client
	sessions SessionWriter
	profiles ProfileEnsurer
	guard    security.EndpointGuardService
	relay    *BrowserRelay
	provider string
	scheme   string
	scopes   string
	logger   *slog.Logger
}

// NewNativeBrowserStrategy はNativeBrowserStrategyを生成する。
// guardがnilの場合はデフォルトのEndpointGuardを使用する。
func NewNativeBrowserStrategy(client backend.Client, sessions SessionWriter, profiles ProfileEnsurer, guard security.EndpointGuardService, relay *BrowserRelay, provider, scheme, scopes string, logger *slog.Logger) *NativeBrowserStrategy {
	if guard == nil {
		guard = security.NewEndpointGuard()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NativeBrowserStrategy{
		backend:  client,
		sessions: sessions,
		profiles: profiles,
		guard:    guard,
		relay:    relay,
		provider: provider,
		scheme:   scheme,
		scopes:   scopes,
		logger:   logger,
	}
}

// Start はブラウザフローを開始し、ディープリンクコールバックを待つ。
//
// シェルに渡す前に、リダイレクト先と認可URLの安全性を検証する。
// キャンセル、およびトークンを含まないコールバック（ユーザーがプロバイダー側で
// 中断した場合に起きる）はエラーにせずCanceledとして返す。
func (s *NativeBrowserStrategy) Start(ctx context.Context) (*Result, error) {
	redirect := fmt.Sprintf("%s://auth/callback", s.scheme)
	if err := s.guard.ValidateRedirect(redirect, s.scheme); err != nil {
		return nil, fmt.Errorf("unsafe callback redirect: %w", err)
	}

	url, err := s.backend.AuthorizeURL(s.provider, backend.AuthorizeOptions{
		RedirectTo: redirect,
		Scopes:     s.scopes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build authorize URL: %w", err)
	}
	// シェルがシステムブラウザで開くURLなので、ブラウザに渡す前に検証する
	if err := s.guard.ValidateRedirect(url, s.scheme); err != nil {
		return nil, fmt.Errorf("unsafe authorize URL: %w", err)
	}

	id, ch := s.relay.begin(url)
	defer s.relay.finish(id)

	s.logger.Info("browser handshake started", slog.String("provider", s.provider))

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-ch:
		if out.canceled {
			s.logger.Info("browser handshake canceled", slog.String("provider", s.provider))
			return &Result{Canceled: true}, nil
		}
		if out.result.AccessToken == "" || out.result.RefreshToken == "" {
			// プロバイダー側で中断するとトークンなしでコールバックされる
			s.logger.Info("callback without tokens, treating as canceled", slog.String("provider", s.provider))
			return &Result{Canceled: true}, nil
		}

		sess, err := s.sessions.SetFromTokens(ctx, out.result.AccessToken, out.result.RefreshToken)
		if err != nil {
			return nil, err
		}
		ensureProfile(ctx, s.profiles, sess, s.logger)
		return &Result{Session: sess}, nil
	}
}

// compile-time interface check
var _ Strategy = (*NativeBrowserStrategy)(nil)
