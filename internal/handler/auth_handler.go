// Package handler はシェルが利用するブリッジAPIのHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/steppath/internal/metrics"
	"github.com/hitoshi/steppath/internal/middleware"
	"github.com/hitoshi/steppath/internal/model"
	"github.com/hitoshi/steppath/internal/oauth"
)

// AuthCoordinatorInterface は認証ハンドラーが必要とするサービスインターフェース。
// auth.Coordinatorが実装する。
type AuthCoordinatorInterface interface {
	State() model.AuthViewState
	SignIn(ctx context.Context, email, password string) error
	SignUp(ctx context.Context, email, password, firstName, lastInitial string) error
	SignOut(ctx context.Context) error
	SignInWithGoogle(ctx context.Context) (*oauth.Result, error)
	SignInWithFacebook(ctx context.Context) (*oauth.Result, error)
	RefreshProfile(ctx context.Context) error
	UpdateProfile(ctx context.Context, prof *model.Profile) error
}

// AuthHandler は認証ライフサイクルのHTTPハンドラー。
type AuthHandler struct {
	coordinator AuthCoordinatorInterface
	collector   metrics.MetricsCollector
	logger      *slog.Logger
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(coordinator AuthCoordinatorInterface, collector metrics.MetricsCollector, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		coordinator: coordinator,
		collector:   collector,
		logger:      logger,
	}
}

// signInRequest はサインインリクエストのボディ。
type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// signUpRequest はサインアップリクエストのボディ。
type signUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"first_name"`
	LastInitial string `json:"last_initial"`
}

// identityResponse はIdentityのAPIレスポンス。
type identityResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	Provider    string `json:"provider"`
}

// profileResponse はプロファイルのAPIレスポンス。
type profileResponse struct {
	ID           string                        `json:"id"`
	Email        string                        `json:"email"`
	FirstName    string                        `json:"first_name"`
	LastInitial  string                        `json:"last_initial"`
	Phone        string                        `json:"phone,omitempty"`
	AvatarURL    string                        `json:"avatar_url,omitempty"`
	Role         string                        `json:"role"`
	SobrietyDate string                        `json:"sobriety_date,omitempty"`
	Bio          string                        `json:"bio,omitempty"`
	Timezone     string                        `json:"timezone"`
	Preferences  model.NotificationPreferences `json:"notification_preferences"`
}

// stateResponse は認証状態スナップショットのAPIレスポンス。
type stateResponse struct {
	Identity      *identityResponse `json:"identity"`
	Profile       *profileResponse  `json:"profile"`
	Loading       bool              `json:"loading"`
	Authenticated bool              `json:"authenticated"`
}

// handshakeResponse はOAuthハンドシェイク結果のAPIレスポンス。
type handshakeResponse struct {
	Status      string            `json:"status"` // session / redirect / canceled
	RedirectURL string            `json:"redirect_url,omitempty"`
	Identity    *identityResponse `json:"identity,omitempty"`
}

func toIdentityResponse(identity *model.Identity) *identityResponse {
	if identity == nil {
		return nil
	}
	return &identityResponse{
		ID:          identity.ID,
		Email:       identity.Email,
		DisplayName: identity.DisplayName,
		Provider:    identity.Provider,
	}
}

func toProfileResponse(prof *model.Profile) *profileResponse {
	if prof == nil {
		return nil
	}
	resp := &profileResponse{
		ID:          prof.ID,
		Email:       prof.Email,
		FirstName:   prof.FirstName,
		LastInitial: prof.LastInitial,
		Phone:       prof.Phone,
		AvatarURL:   prof.AvatarURL,
		Role:        string(prof.Role),
		Bio:         prof.Bio,
		Timezone:    prof.Timezone,
		Preferences: prof.Preferences,
	}
	if prof.HasSobrietyDate() {
		resp.SobrietyDate = prof.SobrietyDate.Format("2006-01-02")
	}
	return resp
}

func toStateResponse(state model.AuthViewState) stateResponse {
	return stateResponse{
		Identity:      toIdentityResponse(state.Identity),
		Profile:       toProfileResponse(state.Profile),
		Loading:       state.Loading,
		Authenticated: state.Authenticated(),
	}
}

// SignIn はメールアドレスとパスワードでのサインインを処理する。
// POST /auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}
	if req.Email == "" || req.Password == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.AuthError{
			Code:     "INVALID_REQUEST",
			Message:  "メールアドレスとパスワードは必須です。",
			Category: "validation",
			Action:   "入力内容を確認してください。",
		})
		return
	}

	if err := h.coordinator.SignIn(r.Context(), req.Email, req.Password); err != nil {
		h.collector.RecordSignIn("email", metrics.OutcomeFailure)
		h.writeAuthFlowError(w, err)
		return
	}

	h.collector.RecordSignIn("email", metrics.OutcomeSuccess)
	w.WriteHeader(http.StatusNoContent)
}

// SignUp は新規登録を処理する。
// POST /auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}
	if req.Email == "" || req.Password == "" || req.FirstName == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.AuthError{
			Code:     "INVALID_REQUEST",
			Message:  "メールアドレス・パスワード・名前は必須です。",
			Category: "validation",
			Action:   "入力内容を確認してください。",
		})
		return
	}

	if err := h.coordinator.SignUp(r.Context(), req.Email, req.Password, req.FirstName, req.LastInitial); err != nil {
		h.collector.RecordSignIn("email", metrics.OutcomeFailure)
		h.writeAuthFlowError(w, err)
		return
	}

	h.collector.RecordSignIn("email", metrics.OutcomeSuccess)
	h.collector.RecordProfileCreated()
	w.WriteHeader(http.StatusCreated)
}

// SignOut はサインアウトを処理する。
// POST /auth/signout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.coordinator.SignOut(r.Context()); err != nil {
		h.writeAuthFlowError(w, err)
		return
	}

	h.collector.RecordSignOut()
	w.WriteHeader(http.StatusNoContent)
}

// State は現在の認証状態のスナップショットを返す。
// GET /auth/state
func (h *AuthHandler) State(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toStateResponse(h.coordinator.State()))
}

// SignInWithGoogle はGoogleサインインのハンドシェイクを実行する。
// ネイティブではコールバックの配信まで応答がブロックする。
// POST /auth/google
func (h *AuthHandler) SignInWithGoogle(w http.ResponseWriter, r *http.Request) {
	h.handleProviderSignIn(w, r, "google", h.coordinator.SignInWithGoogle)
}

// SignInWithFacebook はFacebookサインインのハンドシェイクを実行する。
// POST /auth/facebook
func (h *AuthHandler) SignInWithFacebook(w http.ResponseWriter, r *http.Request) {
	h.handleProviderSignIn(w, r, "facebook", h.coordinator.SignInWithFacebook)
}

// handleProviderSignIn はプロバイダーサインインの共通処理。
func (h *AuthHandler) handleProviderSignIn(w http.ResponseWriter, r *http.Request, provider string, start func(ctx context.Context) (*oauth.Result, error)) {
	result, err := start(r.Context())
	if err != nil {
		h.collector.RecordSignIn(provider, metrics.OutcomeFailure)
		h.writeAuthFlowError(w, err)
		return
	}

	resp := handshakeResponse{}
	switch {
	case result.Canceled:
		h.collector.RecordSignIn(provider, metrics.OutcomeCanceled)
		resp.Status = "canceled"
	case result.RedirectURL != "":
		resp.Status = "redirect"
		resp.RedirectURL = result.RedirectURL
	default:
		h.collector.RecordSignIn(provider, metrics.OutcomeSuccess)
		resp.Status = "session"
		if result.Session != nil {
			resp.Identity = toIdentityResponse(&result.Session.Identity)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// writeAuthFlowError は認証フローのエラーをHTTPレスポンスに変換する。
func (h *AuthHandler) writeAuthFlowError(w http.ResponseWriter, err error) {
	var backendErr *model.BackendError
	if errors.As(err, &backendErr) {
		middleware.WriteBackendError(w, backendErr)
		return
	}

	var authErr *model.AuthError
	if errors.As(err, &authErr) {
		middleware.WriteErrorResponse(w, statusForAuthError(authErr), authErr)
		return
	}

	h.logger.Error("auth flow failed", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// statusForAuthError はAuthErrorのカテゴリからHTTPステータスを決める。
func statusForAuthError(authErr *model.AuthError) int {
	switch authErr.Category {
	case "validation":
		return http.StatusBadRequest
	case "auth":
		return http.StatusUnauthorized
	case "config":
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// writeInvalidRequest はリクエストボディ解析失敗の統一レスポンスを書き込む。
func writeInvalidRequest(w http.ResponseWriter) {
	middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.AuthError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	})
}
