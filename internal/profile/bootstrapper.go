// Package profile はIdentityに対応するプロファイルの確立と取得を提供する。
package profile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/steppath/internal/model"
	"github.com/hitoshi/steppath/internal/repository"
	"github.com/hitoshi/steppath/internal/security"
)

// Bootstrapper はIdentityに対応するプロファイルを確立する。
type Bootstrapper struct {
	repo      repository.ProfileRepository
	sanitizer security.TextSanitizerService
	logger    *slog.Logger
}

// NewBootstrapper はBootstrapperを生成する。
func NewBootstrapper(repo repository.ProfileRepository, sanitizer security.TextSanitizerService, logger *slog.Logger) *Bootstrapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bootstrapper{repo: repo, sanitizer: sanitizer, logger: logger}
}

// Ensure はIdentityに対応するプロファイルを取得し、存在しない場合は作成する。
//
// 作成はチェック後INSERTで行う。別の経路が同時に作成した場合はユニーク違反に
// なるため、そのときは既存行を再取得して返す。この操作は冪等である。
func (b *Bootstrapper) Ensure(ctx context.Context, identity *model.Identity) (*model.Profile, error) {
	existing, err := b.repo.FindByID(ctx, identity.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	prof := b.defaultProfile(identity)
	if err := b.repo.Insert(ctx, prof); err != nil {
		if repository.IsUniqueViolation(err) {
			b.logger.Info("profile already created concurrently, refetching",
				slog.String("identity_id", identity.ID))
			refetched, ferr := b.repo.FindByID(ctx, identity.ID)
			if ferr != nil {
				return nil, fmt.Errorf("failed to refetch profile after conflict: %w", ferr)
			}
			if refetched == nil {
				return nil, fmt.Errorf("profile conflict but row not found: %s", identity.ID)
			}
			return refetched, nil
		}
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	b.logger.Info("profile created", slog.String("identity_id", identity.ID))
	return prof, nil
}

// Create はIdentityに対応するプロファイルを指定の名前で無条件に作成する。
// サインアップ直後に使用するため存在チェックは行わない。
// 作成エラーはそのまま呼び出し元へ返す。
func (b *Bootstrapper) Create(ctx context.Context, identity *model.Identity, firstName, lastInitial string) (*model.Profile, error) {
	prof := b.defaultProfile(identity)
	if first := b.sanitizer.Sanitize(firstName); first != "" {
		prof.FirstName = first
	}
	if initial := b.sanitizer.Sanitize(lastInitial); initial != "" {
		prof.LastInitial = initial
	}

	if err := b.repo.Insert(ctx, prof); err != nil {
		return nil, err
	}
	return prof, nil
}

// Refresh はプロファイルを再取得する。存在しない場合はnilを返す。
func (b *Bootstrapper) Refresh(ctx context.Context, identityID string) (*model.Profile, error) {
	prof, err := b.repo.FindByID(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}
	return prof, nil
}

// Update はプロファイルの自由入力フィールドをサニタイズして更新する。
func (b *Bootstrapper) Update(ctx context.Context, prof *model.Profile) error {
	prof.FirstName = b.sanitizer.Sanitize(prof.FirstName)
	prof.LastInitial = b.sanitizer.Sanitize(prof.LastInitial)
	prof.Bio = b.sanitizer.Sanitize(prof.Bio)

	if prof.FirstName == "" {
		return fmt.Errorf("first name is required")
	}

	if err := b.repo.Update(ctx, prof); err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return nil
}

// defaultProfile はIdentityのメタデータから初期プロファイルを構築する。
// 表示名はサニタイズしてから名前の導出に使用する。
func (b *Bootstrapper) defaultProfile(identity *model.Identity) *model.Profile {
	name := DeriveNameParts(b.sanitizer.Sanitize(identity.DisplayName))
	return &model.Profile{
		ID:          identity.ID,
		Email:       identity.Email,
		FirstName:   name.First,
		LastInitial: name.LastInitial,
		Role:        model.RoleUnset,
		Timezone:    "UTC",
		Preferences: model.DefaultNotificationPreferences(),
	}
}
