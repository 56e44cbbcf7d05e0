// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/steppath/internal/model"
)

// ProfileRepository はプロファイルデータの永続化インターフェース。
type ProfileRepository interface {
	// FindByID は指定IDのプロファイルを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Profile, error)

	// Insert は新規プロファイルを作成する。
	// 同一IDが既に存在する場合はユニーク違反エラーを返す。
	// 呼び出し側はIsUniqueViolationで判定できる。
	Insert(ctx context.Context, profile *model.Profile) error

	// Update は既存プロファイルを更新する。見つからない場合はエラーを返す。
	Update(ctx context.Context, profile *model.Profile) error
}
