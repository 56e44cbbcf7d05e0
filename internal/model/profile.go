package model

import "time"

// Role はスポンサー関係におけるユーザーの役割を表す。
type Role string

const (
	// RoleSponsor はスポンサー（支援する側）を示す。
	RoleSponsor Role = "sponsor"
	// RoleSponsee はスポンシー（支援を受ける側）を示す。
	RoleSponsee Role = "sponsee"
	// RoleBoth は両方の役割を持つことを示す。
	RoleBoth Role = "both"
	// RoleUnset は役割未設定（オンボーディング未完了）を示す。
	RoleUnset Role = ""
)

// NotificationPreferences はユーザーの通知設定を表す。
type NotificationPreferences struct {
	Tasks      bool `json:"tasks"`
	Messages   bool `json:"messages"`
	Milestones bool `json:"milestones"`
	Daily      bool `json:"daily"`
}

// DefaultNotificationPreferences はOAuthログイン時に作成される
// プロフィールの初期通知設定を返す。
func DefaultNotificationPreferences() NotificationPreferences {
	return NotificationPreferences{
		Tasks:      true,
		Messages:   true,
		Milestones: true,
		Daily:      false,
	}
}

// Profile はアプリケーションレベルのユーザーレコードを表す。
// IDはIdentityのIDと常に一致する（profiles.id = auth identity id）。
type Profile struct {
	ID           string
	Email        string
	FirstName    string
	LastInitial  string
	Phone        string
	AvatarURL    string
	Role         Role
	SobrietyDate *time.Time
	Bio          string
	Timezone     string
	Preferences  NotificationPreferences
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasSobrietyDate はソブラエティ開始日が設定済みかどうかを返す。
// ルーティング判定（オンボーディング誘導）の入力に使用する。
func (p *Profile) HasSobrietyDate() bool {
	return p.SobrietyDate != nil && !p.SobrietyDate.IsZero()
}

// DaysSober はソブラエティ開始日からの経過日数を返す。
// 開始日未設定の場合は0を返す。開始日当日は0日目として扱う。
func (p *Profile) DaysSober(now time.Time) int {
	if !p.HasSobrietyDate() {
		return 0
	}
	days := int(now.Sub(*p.SobrietyDate).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
