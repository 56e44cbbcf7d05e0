// Package middleware はブリッジAPIのHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/steppath/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// IdentityProvider は現在の認証状態の参照に必要なインターフェース。
// auth.Coordinatorの部分集合として定義する。
type IdentityProvider interface {
	State() model.AuthViewState
}

// NewIdentityMiddleware は現在のIdentityのIDをリクエストコンテキストに
// 注入するミドルウェアを返す。ブリッジはサインイン前のリクエストも
// 受け付けるため、未サインインでも拒否はしない。
func NewIdentityMiddleware(provider IdentityProvider) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if identity := provider.State().Identity; identity != nil {
				ctx := context.WithValue(r.Context(), userIDContextKey, identity.ID)
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// Identityミドルウェアを通過した認証済みリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
