package model

import "fmt"

// AuthError は認証フローの統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type AuthError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, config, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *AuthError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeProviderNotConfigured = "PROVIDER_NOT_CONFIGURED"
	ErrCodeProviderSignInFailed  = "PROVIDER_SIGNIN_FAILED"
	ErrCodeProviderTokenMissing  = "PROVIDER_TOKEN_MISSING"
	ErrCodeSessionMissing        = "SESSION_MISSING"
	ErrCodeInvalidSegment        = "INVALID_SEGMENT"
)

// BackendError は認証バックエンドが返したエラーを表す。
// 資格情報エラー（パスワード誤り・メール重複等）はバックエンドの
// メッセージをそのまま呼び出し元へ伝播する。リトライは行わない。
type BackendError struct {
	Status  int    // HTTPステータスコード
	Message string // バックエンドのエラーメッセージ（加工しない）
}

// Error はerrorインターフェースを実装する。メッセージを無加工で返す。
func (e *BackendError) Error() string {
	return e.Message
}

// NewProviderNotConfiguredError はプロバイダーのアプリIDが未設定の場合のエラーを生成する。
// ネットワーク呼び出しの前に同期的に返される設定エラー。
func NewProviderNotConfiguredError(provider string) *AuthError {
	return &AuthError{
		Code:     ErrCodeProviderNotConfigured,
		Message:  fmt.Sprintf("%sのアプリIDが設定されていません。", provider),
		Category: "config",
		Action:   "環境変数でプロバイダーのアプリIDを設定してください。",
	}
}

// NewProviderSignInFailedError はプロバイダーSDKのログイン失敗時の汎用エラーを生成する。
// ユーザーによるキャンセルはエラーではないため、このエラーにはならない。
func NewProviderSignInFailedError(provider string) *AuthError {
	return &AuthError{
		Code:     ErrCodeProviderSignInFailed,
		Message:  fmt.Sprintf("%sでのサインインに失敗しました。", provider),
		Category: "auth",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewProviderTokenMissingError はSDKがトークンを返さなかった場合のエラーを生成する。
func NewProviderTokenMissingError(provider string) *AuthError {
	return &AuthError{
		Code:     ErrCodeProviderTokenMissing,
		Message:  fmt.Sprintf("%sからアクセストークンを取得できませんでした。", provider),
		Category: "auth",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInvalidSegmentError は未知の画面セグメントが指定された場合のエラーを生成する。
func NewInvalidSegmentError(segment string) *AuthError {
	return &AuthError{
		Code:     ErrCodeInvalidSegment,
		Message:  fmt.Sprintf("未知の画面セグメントです: %s", segment),
		Category: "validation",
		Action:   "tabs, onboarding, login, signup, other のいずれかを指定してください。",
	}
}

// NewSessionMissingError は認証済みセッションが存在しない場合のエラーを生成する。
func NewSessionMissingError() *AuthError {
	return &AuthError{
		Code:     ErrCodeSessionMissing,
		Message:  "サインインしていません。",
		Category: "auth",
		Action:   "サインインしてから再度お試しください。",
	}
}
