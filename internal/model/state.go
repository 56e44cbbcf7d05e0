package model

// AuthViewState は認証状態のスナップショットを表す。
// Identity・Profile・Loadingの3フィールドを常に1つの値として
// アトミックに発行し、購読側が不整合な途中状態を観測しないようにする。
// 永続化はされず、状態遷移のたびに再計算される。
type AuthViewState struct {
	Identity *Identity
	Profile  *Profile
	Loading  bool
}

// Authenticated は認証済みかどうかを返す。
func (s AuthViewState) Authenticated() bool {
	return s.Identity != nil
}
