package oauth

import (
	"context"
	"log/slog"

	"github.com/hitoshi/steppath/internal/model"
)

// SDKTokenStrategy はネイティブプラットフォームのプロバイダーSDKフロー。
//
// シェル上のプロバイダーSDKがログインを実行し、取得したトークンを
// TokenRelay経由で受け取ってセッションに交換する。
type SDKTokenStrategy struct {
	sessions     SessionWriter
	profiles     ProfileEnsurer
	relay        *TokenRelay
	provider     string
	providerName string
	appID        string
	logger       *slog.Logger
}

// NewSDKTokenStrategy はSDKTokenStrategyを生成する。
// providerNameはエラーメッセージに使用する表示名（例: "Facebook"）。
func NewSDKTokenStrategy(sessions SessionWriter, profiles ProfileEnsurer, relay *TokenRelay, provider, providerName, appID string, logger *slog.Logger) *SDKTokenStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &SDKTokenStrategy{
		sessions:     sessions,
		profiles:     profiles,
		relay:        relay,
		provider:     provider,
		providerName: providerName,
		appID:        appID,
		logger:       logger,
	}
}

// Start はSDKトークンの到着を待ち、セッションに交換する。
//
// アプリIDが未設定の場合はSDKを起動できないため、待機を開始せず
// 同期的に設定エラーを返す。キャンセルはエラーにしない。
func (s *SDKTokenStrategy) Start(ctx context.Context) (*Result, error) {
	if s.appID == "" {
		return nil, model.NewProviderNotConfiguredError(s.providerName)
	}

	id, ch := s.relay.begin()
	defer s.relay.finish(id)

	s.logger.Info("sdk handshake started", slog.String("provider", s.provider))

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-ch:
		if out.canceled {
			s.logger.Info("sdk handshake canceled", slog.String("provider", s.provider))
			return &Result{Canceled: true}, nil
		}
		if out.failed {
			s.logger.Warn("sdk login failed", slog.String("provider", s.provider))
			return nil, model.NewProviderSignInFailedError(s.providerName)
		}
		if out.token == "" {
			return nil, model.NewProviderTokenMissingError(s.providerName)
		}

		sess, err := s.sessions.SignInWithIDToken(ctx, s.provider, out.token)
		if err != nil {
			return nil, err
		}
		ensureProfile(ctx, s.profiles, sess, s.logger)
		return &Result{Session: sess}, nil
	}
}

// compile-time interface check
var _ Strategy = (*SDKTokenStrategy)(nil)
