package guard

import (
	"log/slog"
	"sync"

	"github.com/hitoshi/steppath/internal/model"
)

// Router は画面遷移を実行する。シェル側のルーターが実装する。
type Router interface {
	// Replace は現在の画面を置き換えて遷移する。履歴は積まない。
	Replace(path string) error
}

// Navigator は遷移判定の評価と実行を担う。
//
// 入力（認証状態とセグメント）が変わるたびにEvaluateを呼び、
// 判定が出た場合のみRouterへ遷移を指示する。同じ遷移指示の繰り返しは
// 抑止するため、入力が変わらない限り再遷移は起きない。
type Navigator struct {
	router Router
	logger *slog.Logger

	mu   sync.Mutex
	last Decision
}

// NewNavigator はNavigatorを生成する。
func NewNavigator(router Router, logger *slog.Logger) *Navigator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Navigator{router: router, logger: logger}
}

// Evaluate は現在の入力で遷移判定を行い、必要なら遷移を実行する。
// 実行した判定を返す。直前と同じ判定の繰り返しは抑止し、
// その場合はDecisionNoneを返す。
func (n *Navigator) Evaluate(state model.AuthViewState, segment Segment) Decision {
	decision := Decide(state, segment)
	if decision == DecisionNone {
		n.mu.Lock()
		n.last = DecisionNone
		n.mu.Unlock()
		return DecisionNone
	}

	n.mu.Lock()
	if decision == n.last {
		n.mu.Unlock()
		return DecisionNone
	}
	n.last = decision
	n.mu.Unlock()

	if err := n.router.Replace(string(decision)); err != nil {
		n.logger.Warn("navigation failed",
			slog.String("path", string(decision)), slog.String("error", err.Error()))
	} else {
		n.logger.Info("navigated", slog.String("path", string(decision)), slog.String("segment", string(segment)))
	}
	return decision
}

// Reset は抑止状態をクリアする。次のEvaluateは必ず遷移を実行する。
func (n *Navigator) Reset() {
	n.mu.Lock()
	n.last = DecisionNone
	n.mu.Unlock()
}
