// Package oauth はOAuthプロバイダーとのハンドシェイクを提供する。
//
// プロバイダーとプラットフォームの組み合わせごとに戦略が決まる:
//
//   - Web:              認可URLへのリダイレクト（完了はページ再読込時に検出）
//   - ネイティブ Google:   システムブラウザ + ディープリンクコールバック
//   - ネイティブ Facebook: プロバイダーSDKが取得したトークンの交換
//
// ユーザーによるキャンセルはエラーではなく、Canceledフラグ付きの結果として返す。
package oauth

import (
	"context"
	"log/slog"

	"github.com/hitoshi/steppath/internal/model"
)

// プロバイダー識別子。バックエンドの/authorizeエンドポイントの値と一致する。
const (
	ProviderGoogle   = "google"
	ProviderFacebook = "facebook"
)

// facebookScopes はFacebookサインインで要求するスコープ。
const facebookScopes = "email public_profile"

// Result はハンドシェイクの結果を表す。
// 3つの終わり方がある: セッション確立、Webリダイレクト開始、キャンセル。
type Result struct {
	// Session は確立されたセッション。リダイレクト開始・キャンセル時はnil。
	Session *model.Session
	// RedirectURL はWebフローでブラウザを遷移させる認可URL。
	// セッションの確立はリダイレクト後のページ再読込時に行われる。
	RedirectURL string
	// Canceled はユーザーがフローを中断したことを示す。エラーではない。
	Canceled bool
}

// Strategy はプロバイダー・プラットフォームごとのハンドシェイク手順を表す。
type Strategy interface {
	// Start はハンドシェイクを開始し、完了まで待機する。
	// ユーザーによるキャンセルは(Canceled=trueのResult, nil)で返す。
	Start(ctx context.Context) (*Result, error)
}

// SessionWriter は取得したトークンからセッションを確立する。
// session.Storeが実装する。
type SessionWriter interface {
	SetFromTokens(ctx context.Context, accessToken, refreshToken string) (*model.Session, error)
	SignInWithIDToken(ctx context.Context, provider, token string) (*model.Session, error)
}

// ProfileEnsurer はIdentityに対応するプロファイルの存在を保証する。
// profile.Bootstrapperが実装する。ネイティブ戦略はセッション確立後、
// 結果を返す前にプロファイルを確立する。
type ProfileEnsurer interface {
	Ensure(ctx context.Context, identity *model.Identity) (*model.Profile, error)
}

// ensureProfile はセッション確立後のプロファイル確立を行う。
// サインイン自体は成功しているため、失敗しても結果には影響させない。
func ensureProfile(ctx context.Context, profiles ProfileEnsurer, sess *model.Session, logger *slog.Logger) {
	if profiles == nil || sess == nil {
		return
	}
	if _, err := profiles.Ensure(ctx, &sess.Identity); err != nil {
		logger.Warn("failed to ensure profile after provider sign-in",
			slog.String("identity_id", sess.Identity.ID), slog.String("error", err.Error()))
	}
}
