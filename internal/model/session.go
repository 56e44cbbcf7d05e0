// Package model はドメインモデルを定義する。
package model

import "time"

// Identity は認証バックエンドが発行する認証主体を表す。
// サインアップ・OAuthログイン時にバックエンド側で作成され、
// クライアントからはメタデータの再取得を除き不変として扱う。
type Identity struct {
	ID          string
	Email       string
	DisplayName string // プロバイダーのメタデータ由来の表示名（プロフィール名の導出に使用）
	Provider    string // "email", "google", "facebook" 等
}

// Session は1つのIdentityに紐づく期限付きクレデンシャルペアを表す。
// SessionStoreのみが所有し、リフレッシュ・サインイン時は常に丸ごと差し替える。
// フィールド単位の部分更新は行わない。
type Session struct {
	Identity     Identity
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Expired はセッションが期限切れかどうかを返す。
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
