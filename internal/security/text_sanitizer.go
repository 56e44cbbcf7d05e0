package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はユーザー入力テキストのサニタイズ機能のインターフェースを定義する。
// プロファイルの表示名・自己紹介など、他のユーザーに表示される自由入力の保存前に使用される。
type TextSanitizerService interface {
	// Sanitize は入力からHTMLタグをすべて除去し、プレーンテキストを返す。
	// OAuthプロバイダーのメタデータ由来の表示名にも適用されるため、
	// script等の危険なタグだけでなく一切のマークアップを許可しない。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyはすべてのタグと属性を除去し、テキストノードのみを残す。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力からHTMLタグをすべて除去し、プレーンテキストを返す。
// StrictPolicyはテキストをHTMLエスケープして返すため、
// "O'Brien & Co" のような名前が壊れないようエスケープを戻す。
func (s *textSanitizer) Sanitize(raw string) string {
	cleaned := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}
