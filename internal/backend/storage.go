package backend

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// StoredSession はディスクに永続化するセッションの最小表現。
// アクセストークンにIdentityクレームが含まれるため、Identity自体は保存しない。
type StoredSession struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// TokenStore はセッションクレデンシャルの永続化インターフェース。
// モバイルシェルのセキュアストレージに相当する。
type TokenStore interface {
	// Load は保存済みセッションを取得する。存在しない場合はnilを返す。
	Load() (*StoredSession, error)
	// Save はセッションを保存する。
	Save(s *StoredSession) error
	// Clear は保存済みセッションを削除する。存在しない場合もエラーにしない。
	Clear() error
}

// FileTokenStore はファイルベースのTokenStore実装。
// 0600パーミッションでJSONを書き込む。
type FileTokenStore struct {
	path string
}

// NewFileTokenStore はFileTokenStoreを生成する。
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

// Load は保存済みセッションを取得する。ファイルが存在しない場合はnilを返す。
func (f *FileTokenStore) Load() (*StoredSession, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var s StoredSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	if s.RefreshToken == "" {
		return nil, nil
	}
	return &s, nil
}

// Save はセッションを0600パーミッションで保存する。
// 一時ファイルへ書いてからリネームすることで、書き込み途中のクラッシュで
// セッションファイルが壊れないようにする。
func (f *FileTokenStore) Save(s *StoredSession) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create session dir: %w", err)
		}
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// Clear は保存済みセッションを削除する。
func (f *FileTokenStore) Clear() error {
	err := os.Remove(f.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

// compile-time interface check
var _ TokenStore = (*FileTokenStore)(nil)
