// Package backend は認証バックエンド（GoTrue互換REST API）へのクライアントを提供する。
//
// セッションの発行・交換はすべてこのパッケージを経由する。
// バックエンドの資格情報エラーはmodel.BackendErrorとして無加工で伝播し、
// リトライやメッセージの書き換えは行わない。
package backend

import (
	"context"

	"github.com/hitoshi/steppath/internal/model"
)

// AuthorizeOptions はOAuth認可URLの生成オプションを表す。
type AuthorizeOptions struct {
	// RedirectTo は認可完了後のリダイレクト先。
	// Webフローではオリジン、ネイティブフローではアプリスキームのディープリンクを指定する。
	RedirectTo string
	// Scopes は要求するスコープ（スペース区切り）。空の場合は省略される。
	Scopes string
}

// Client は認証バックエンドへの操作インターフェース。
type Client interface {
	// SignInWithPassword はパスワードグラントでセッションを取得する。
	// 資格情報エラーはバックエンドのメッセージのまま返す。
	SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error)

	// SignUp は新規Identityを作成し、セッションを取得する。
	SignUp(ctx context.Context, email, password string) (*model.Session, error)

	// AuthorizeURL はOAuth認可URLを生成する。ネットワーク呼び出しは行わない。
	AuthorizeURL(provider string, opts AuthorizeOptions) (string, error)

	// SignInWithIDToken はプロバイダーSDKが発行したトークンをセッションに交換する。
	SignInWithIDToken(ctx context.Context, provider, token string) (*model.Session, error)

	// SetSession はアクセストークンとリフレッシュトークンのペアからセッションを確立する。
	// アクセストークンが有効期限内であればそのまま採用し、期限切れの場合はリフレッシュする。
	SetSession(ctx context.Context, accessToken, refreshToken string) (*model.Session, error)

	// RefreshSession はリフレッシュトークンで新しいセッションを取得する。
	RefreshSession(ctx context.Context, refreshToken string) (*model.Session, error)

	// SignOut はバックエンド側でセッションを無効化する。
	SignOut(ctx context.Context, accessToken string) error
}
