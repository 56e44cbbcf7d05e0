package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/steppath/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのブリッジエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, authErr *model.AuthError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     authErr.Code,
		Message:  authErr.Message,
		Category: authErr.Category,
		Action:   authErr.Action,
	})
}

// WriteBackendError は認証バックエンドのエラーをそのまま伝えるレスポンスを書き込む。
// メッセージは加工しない。ステータスコードはバックエンドのものを引き継ぐ。
func WriteBackendError(w http.ResponseWriter, backendErr *model.BackendError) {
	status := backendErr.Status
	if status < 400 || status > 599 {
		status = http.StatusBadGateway
	}
	WriteErrorResponse(w, status, &model.AuthError{
		Code:     "BACKEND_ERROR",
		Message:  backendErr.Message,
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.AuthError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
