package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/steppath/internal/middleware"
	"github.com/hitoshi/steppath/internal/model"
	"github.com/hitoshi/steppath/internal/oauth"
)

// OAuthRelayHandler はシェルからのコールバック・SDKトークン配信を受けるHTTPハンドラー。
//
// ハンドシェイク本体は/auth/googleや/auth/facebookでブロックしており、
// ここへの配信がそのブロックを解決する。
type OAuthRelayHandler struct {
	browser *oauth.BrowserRelay
	tokens  *oauth.TokenRelay
	logger  *slog.Logger
}

// NewOAuthRelayHandler はOAuthRelayHandlerを生成する。
func NewOAuthRelayHandler(browser *oauth.BrowserRelay, tokens *oauth.TokenRelay, logger *slog.Logger) *OAuthRelayHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OAuthRelayHandler{
		browser: browser,
		tokens:  tokens,
		logger:  logger,
	}
}

// callbackRequest はディープリンクコールバックのボディ。
// トークンはディープリンクURLのフラグメントから抽出された値。
type callbackRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// sdkTokenRequest はプロバイダーSDKが取得したトークンのボディ。
type sdkTokenRequest struct {
	Token string `json:"token"`
}

// pendingResponse は進行中のブラウザハンドシェイクの状態。
type pendingResponse struct {
	Pending      bool   `json:"pending"`
	AuthorizeURL string `json:"authorize_url,omitempty"`
}

// Callback はディープリンクコールバックのトークンを配信する。
// POST /auth/oauth/callback
func (h *OAuthRelayHandler) Callback(w http.ResponseWriter, r *http.Request) {
	var req callbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	// トークンの有無はハンドシェイク側で判定する（欠落はキャンセル扱い）
	if err := h.browser.Deliver(oauth.CallbackResult{
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
	}); err != nil {
		h.logger.Warn("callback delivered without pending handshake")
		middleware.WriteErrorResponse(w, http.StatusConflict, &model.AuthError{
			Code:     "NO_PENDING_HANDSHAKE",
			Message:  "進行中のサインインがありません。",
			Category: "validation",
			Action:   "サインインを開始してから再度お試しください。",
		})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CancelBrowser は進行中のブラウザハンドシェイクをキャンセルする。
// POST /auth/oauth/cancel
func (h *OAuthRelayHandler) CancelBrowser(w http.ResponseWriter, r *http.Request) {
	h.browser.Cancel()
	w.WriteHeader(http.StatusNoContent)
}

// Pending は進行中のブラウザハンドシェイクの認可URLを返す。
// シェルはこのURLをシステムブラウザで開く。
// GET /auth/oauth/pending
func (h *OAuthRelayHandler) Pending(w http.ResponseWriter, r *http.Request) {
	url, ok := h.browser.PendingURL()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pendingResponse{
		Pending:      ok,
		AuthorizeURL: url,
	})
}

// DeliverSDKToken はプロバイダーSDKが取得したトークンを配信する。
// POST /auth/facebook/token
func (h *OAuthRelayHandler) DeliverSDKToken(w http.ResponseWriter, r *http.Request) {
	var req sdkTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	if err := h.tokens.Deliver(req.Token); err != nil {
		h.logger.Warn("sdk token delivered without pending handshake")
		middleware.WriteErrorResponse(w, http.StatusConflict, &model.AuthError{
			Code:     "NO_PENDING_HANDSHAKE",
			Message:  "進行中のサインインがありません。",
			Category: "validation",
			Action:   "サインインを開始してから再度お試しください。",
		})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeliverSDKFailure はプロバイダーSDKのログイン失敗を配信する。
// キャンセルと異なり、待機中のハンドシェイクはサインイン失敗エラーで完了する。
// POST /auth/facebook/failure
func (h *OAuthRelayHandler) DeliverSDKFailure(w http.ResponseWriter, r *http.Request) {
	if err := h.tokens.Fail(); err != nil {
		h.logger.Warn("sdk failure delivered without pending handshake")
		middleware.WriteErrorResponse(w, http.StatusConflict, &model.AuthError{
			Code:     "NO_PENDING_HANDSHAKE",
			Message:  "進行中のサインインがありません。",
			Category: "validation",
			Action:   "サインインを開始してから再度お試しください。",
		})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CancelSDK は進行中のSDKハンドシェイクをキャンセルする。
// POST /auth/facebook/cancel
func (h *OAuthRelayHandler) CancelSDK(w http.ResponseWriter, r *http.Request) {
	h.tokens.Cancel()
	w.WriteHeader(http.StatusNoContent)
}
