// Package guard は認証状態に基づく画面遷移の判定を提供する。
//
// Decideは認証状態と現在のセグメントから遷移先を決める純粋関数で、
// 先頭から順に評価される遷移表として実装されている。判定の重複排除と
// 実際の遷移はNavigatorが担う。
package guard

import (
	"github.com/hitoshi/steppath/internal/model"
)

// Segment は現在表示中の画面グループを表す。
type Segment string

const (
	SegmentTabs       Segment = "tabs"
	SegmentOnboarding Segment = "onboarding"
	SegmentLogin      Segment = "login"
	SegmentSignup     Segment = "signup"
	SegmentOther      Segment = "other"
)

// ParseSegment は文字列をSegmentに変換する。
// 未知の値はエラーになる。
func ParseSegment(s string) (Segment, error) {
	switch Segment(s) {
	case SegmentTabs, SegmentOnboarding, SegmentLogin, SegmentSignup, SegmentOther:
		return Segment(s), nil
	}
	return "", model.NewInvalidSegmentError(s)
}

// Decision は遷移判定の結果を表す。DecisionNoneは遷移なし。
type Decision string

const (
	DecisionNone       Decision = ""
	DecisionLogin      Decision = "/login"
	DecisionOnboarding Decision = "/onboarding"
	DecisionTabs       Decision = "/(tabs)"
)

// Decide は認証状態と現在のセグメントから遷移先を判定する。
//
// 遷移表（先頭一致）:
//
//  1. ロード中は判定しない
//  2. 未サインインで保護領域（tabs）にいる -> ログインへ
//  3. 未サインインで認証画面（login/signup）以外にいる -> ログインへ
//  4. プロファイル完成済み（断酒日設定済み）で認証・オンボーディング画面にいる -> タブへ
//  5. プロファイルはあるが断酒日が未設定 -> オンボーディングへ
//  6. プロファイルがまだない -> オンボーディングへ
//
// 同じ入力に対しては常に同じ判定を返す。
func Decide(state model.AuthViewState, segment Segment) Decision {
	if state.Loading {
		return DecisionNone
	}

	if state.Identity == nil {
		if segment == SegmentTabs {
			return DecisionLogin
		}
		if segment != SegmentLogin && segment != SegmentSignup {
			return DecisionLogin
		}
		return DecisionNone
	}

	if state.Profile != nil {
		if state.Profile.HasSobrietyDate() {
			if segment == SegmentLogin || segment == SegmentSignup || segment == SegmentOnboarding {
				return DecisionTabs
			}
			return DecisionNone
		}
		if segment != SegmentOnboarding {
			return DecisionOnboarding
		}
		return DecisionNone
	}

	if segment != SegmentOnboarding {
		return DecisionOnboarding
	}
	return DecisionNone
}
