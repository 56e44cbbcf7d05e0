package oauth

import (
	"context"

	"github.com/hitoshi/steppath/internal/backend"
)

// WebRedirectStrategy はWebプラットフォームのリダイレクトフロー。
//
// 認可URLを返すだけで待機はしない。ブラウザがプロバイダーへ遷移して戻ると
// ページが再読込されるため、セッションの確立はコールバックで受け取った
// トークンの適用として別途行われる。
type WebRedirectStrategy struct {
	backend  backend.Client
	provider string
	origin   string
	scopes   string
}

// NewWebRedirectStrategy はWebRedirectStrategyを生成する。
func NewWebRedirectStrategy(client backend.Client, provider, origin, scopes string) *WebRedirectStrategy {
	return &WebRedirectStrategy{backend: client, provider: provider, origin: origin, scopes: scopes}
}

// Start は認可URLを組み立ててリダイレクト開始の結果を返す。
func (s *WebRedirectStrategy) Start(ctx context.Context) (*Result, error) {
	url, err := s.backend.AuthorizeURL(s.provider, backend.AuthorizeOptions{
		RedirectTo: s.origin,
		Scopes:     s.scopes,
	})
	if err != nil {
		return nil, err
	}
	return &Result{RedirectURL: url}, nil
}

// compile-time interface check
var _ Strategy = (*WebRedirectStrategy)(nil)
