package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/steppath/internal/middleware"
	"github.com/hitoshi/steppath/internal/model"
)

// ProfileHandler はプロファイル管理のHTTPハンドラー。
type ProfileHandler struct {
	coordinator AuthCoordinatorInterface
	logger      *slog.Logger
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(coordinator AuthCoordinatorInterface, logger *slog.Logger) *ProfileHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileHandler{
		coordinator: coordinator,
		logger:      logger,
	}
}

// updateProfileRequest はプロファイル更新リクエストのボディ。
type updateProfileRequest struct {
	FirstName    string                         `json:"first_name"`
	LastInitial  string                         `json:"last_initial"`
	Phone        string                         `json:"phone"`
	AvatarURL    string                         `json:"avatar_url"`
	Role         string                         `json:"role"`
	SobrietyDate string                         `json:"sobriety_date"` // YYYY-MM-DD
	Bio          string                         `json:"bio"`
	Timezone     string                         `json:"timezone"`
	Preferences  *model.NotificationPreferences `json:"notification_preferences"`
}

// Get は現在のプロファイルを返す。
// GET /profile
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	state := h.coordinator.State()
	if state.Identity == nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewSessionMissingError())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toProfileResponse(state.Profile))
}

// Update はプロファイルを更新する。
// PUT /profile
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	prof, authErr := h.buildProfile(&req)
	if authErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, authErr)
		return
	}

	if err := h.coordinator.UpdateProfile(r.Context(), prof); err != nil {
		h.writeProfileError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toProfileResponse(prof))
}

// Refresh はプロファイルを再取得し、最新の認証状態を返す。
// POST /profile/refresh
func (h *ProfileHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.coordinator.RefreshProfile(r.Context()); err != nil {
		h.writeProfileError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toStateResponse(h.coordinator.State()))
}

// buildProfile はリクエストボディからProfileを構築する。
func (h *ProfileHandler) buildProfile(req *updateProfileRequest) (*model.Profile, *model.AuthError) {
	role := model.Role(req.Role)
	switch role {
	case model.RoleSponsor, model.RoleSponsee, model.RoleBoth, model.RoleUnset:
	default:
		return nil, &model.AuthError{
			Code:     "INVALID_ROLE",
			Message:  "役割の値が不正です。",
			Category: "validation",
			Action:   "sponsor, sponsee, both のいずれかを指定してください。",
		}
	}

	prof := &model.Profile{
		FirstName:   req.FirstName,
		LastInitial: req.LastInitial,
		Phone:       req.Phone,
		AvatarURL:   req.AvatarURL,
		Role:        role,
		Bio:         req.Bio,
		Timezone:    req.Timezone,
	}
	if req.Preferences != nil {
		prof.Preferences = *req.Preferences
	} else {
		prof.Preferences = model.DefaultNotificationPreferences()
	}

	if req.SobrietyDate != "" {
		date, err := time.Parse("2006-01-02", req.SobrietyDate)
		if err != nil {
			return nil, &model.AuthError{
				Code:     "INVALID_DATE",
				Message:  "ソブラエティ開始日の形式が不正です。",
				Category: "validation",
				Action:   "YYYY-MM-DD形式で指定してください。",
			}
		}
		prof.SobrietyDate = &date
	}

	return prof, nil
}

// writeProfileError はプロファイル操作のエラーをHTTPレスポンスに変換する。
func (h *ProfileHandler) writeProfileError(w http.ResponseWriter, err error) {
	var authErr *model.AuthError
	if errors.As(err, &authErr) {
		middleware.WriteErrorResponse(w, statusForAuthError(authErr), authErr)
		return
	}

	h.logger.Error("profile operation failed", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}
