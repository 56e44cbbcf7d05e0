package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/steppath/internal/model"
)

// uniqueViolationCode はPostgreSQLのunique_violationエラーコード。
const uniqueViolationCode = "23505"

// IsUniqueViolation はエラーがPostgreSQLのユニーク制約違反かを判定する。
// 同一Identityに対するプロファイル作成が競合した場合に使用する。
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolationCode
}

// PostgresProfileRepo はPostgreSQLを使用したプロファイルリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// FindByID は指定IDのプロファイルを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	profile := &model.Profile{}
	var phone, avatarURL, bio sql.NullString
	var sobrietyDate sql.NullTime
	var prefs []byte

	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, first_name, last_initial, phone, avatar_url, role,
		        sobriety_date, bio, timezone, notification_preferences, created_at, updated_at
		 FROM profiles WHERE id = $1`,
		id,
	).Scan(
		&profile.ID, &profile.Email, &profile.FirstName, &profile.LastInitial,
		&phone, &avatarURL, &profile.Role,
		&sobrietyDate, &bio, &profile.Timezone, &prefs,
		&profile.CreatedAt, &profile.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile by ID: %w", err)
	}

	profile.Phone = phone.String
	profile.AvatarURL = avatarURL.String
	profile.Bio = bio.String
	if sobrietyDate.Valid {
		d := sobrietyDate.Time
		profile.SobrietyDate = &d
	}
	if err := json.Unmarshal(prefs, &profile.Preferences); err != nil {
		return nil, fmt.Errorf("failed to parse notification preferences: %w", err)
	}

	return profile, nil
}

// Insert は新規プロファイルを作成する。
// created_at/updated_atはデータベース側で設定され、引数のプロファイルに書き戻される。
func (r *PostgresProfileRepo) Insert(ctx context.Context, profile *model.Profile) error {
	prefs, err := json.Marshal(profile.Preferences)
	if err != nil {
		return fmt.Errorf("failed to encode notification preferences: %w", err)
	}

	err = r.db.QueryRowContext(ctx,
		`INSERT INTO profiles (id, email, first_name, last_initial, phone, avatar_url, role,
		                       sobriety_date, bio, timezone, notification_preferences)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING created_at, updated_at`,
		profile.ID, profile.Email, profile.FirstName, profile.LastInitial,
		nullString(profile.Phone), nullString(profile.AvatarURL), string(profile.Role),
		nullTime(profile.SobrietyDate), nullString(profile.Bio), timezoneOrDefault(profile.Timezone), prefs,
	).Scan(&profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert profile: %w", err)
	}

	return nil
}

// Update は既存プロファイルを更新する。見つからない場合はエラーを返す。
func (r *PostgresProfileRepo) Update(ctx context.Context, profile *model.Profile) error {
	prefs, err := json.Marshal(profile.Preferences)
	if err != nil {
		return fmt.Errorf("failed to encode notification preferences: %w", err)
	}

	err = r.db.QueryRowContext(ctx,
		`UPDATE profiles
		 SET email = $2, first_name = $3, last_initial = $4, phone = $5, avatar_url = $6,
		     role = $7, sobriety_date = $8, bio = $9, timezone = $10,
		     notification_preferences = $11, updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at`,
		profile.ID, profile.Email, profile.FirstName, profile.LastInitial,
		nullString(profile.Phone), nullString(profile.AvatarURL),
		string(profile.Role), nullTime(profile.SobrietyDate), nullString(profile.Bio),
		timezoneOrDefault(profile.Timezone), prefs,
	).Scan(&profile.UpdatedAt)

	if err == sql.ErrNoRows {
		return fmt.Errorf("profile not found: %s", profile.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}

	return nil
}

// nullString は空文字列をNULLに変換する。
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullTime はnilをNULLに変換する。
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// timezoneOrDefault は空のタイムゾーンをUTCに正規化する。
func timezoneOrDefault(tz string) string {
	if tz == "" {
		return "UTC"
	}
	return tz
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
