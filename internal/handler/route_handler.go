package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/steppath/internal/guard"
	"github.com/hitoshi/steppath/internal/metrics"
	"github.com/hitoshi/steppath/internal/middleware"
	"github.com/hitoshi/steppath/internal/model"
)

// RouteHandler は画面遷移判定のHTTPハンドラー。
// シェルは認証状態かセグメントが変わるたびにここへ問い合わせる。
type RouteHandler struct {
	coordinator AuthCoordinatorInterface
	navigator   *guard.Navigator
	collector   metrics.MetricsCollector
	logger      *slog.Logger
}

// NewRouteHandler はRouteHandlerを生成する。
func NewRouteHandler(coordinator AuthCoordinatorInterface, navigator *guard.Navigator, collector metrics.MetricsCollector, logger *slog.Logger) *RouteHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RouteHandler{
		coordinator: coordinator,
		navigator:   navigator,
		collector:   collector,
		logger:      logger,
	}
}

// routeResponse は遷移判定のAPIレスポンス。
type routeResponse struct {
	Decision string `json:"decision"` // 遷移なしは空文字
	Loading  bool   `json:"loading"`
}

// Decide は現在の認証状態とセグメントから遷移先を判定する。
// GET /auth/route?segment=tabs
func (h *RouteHandler) Decide(w http.ResponseWriter, r *http.Request) {
	segment, err := guard.ParseSegment(r.URL.Query().Get("segment"))
	if err != nil {
		var authErr *model.AuthError
		if errors.As(err, &authErr) {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, authErr)
			return
		}
		middleware.WriteInternalServerError(w)
		return
	}

	state := h.coordinator.State()
	decision := h.navigator.Evaluate(state, segment)
	if decision != guard.DecisionNone {
		h.collector.RecordRouteDecision(string(decision))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(routeResponse{
		Decision: string(decision),
		Loading:  state.Loading,
	})
}
