// Package session はセッションのライフサイクル管理を提供する。
//
// Storeは現在のセッションを唯一の正として保持し、サインイン・サインアウト・
// トークンリフレッシュによる状態遷移をイベントとして購読者に配信する。
// 状態遷移はミューテックスで直列化されるため、イベントは発生順に配信される。
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/steppath/internal/backend"
	"github.com/hitoshi/steppath/internal/model"
)

// EventType はセッション状態遷移の種別を表す。
type EventType string

const (
	// EventSignedIn はサインイン完了を表す。
	EventSignedIn EventType = "SIGNED_IN"
	// EventSignedOut はサインアウト完了を表す。
	EventSignedOut EventType = "SIGNED_OUT"
	// EventTokenRefreshed はアクセストークンの更新を表す。
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
)

// Event はセッション状態遷移イベントを表す。
// SessionはSIGNED_OUTの場合nilになる。
type Event struct {
	Type    EventType
	Session *model.Session
}

// eventBufferSize は購読チャネルのバッファサイズ。
// バッファが満杯の購読者へのイベントは破棄される（遅い購読者が全体を止めないため）。
const eventBufferSize = 32

// Store はセッションのライフサイクルを管理する。
type Store struct {
	backend backend.Client
	tokens  backend.TokenStore
	logger  *slog.Logger

	refreshMargin time.Duration

	mu      sync.Mutex
	current *model.Session
	epoch   uint64 // applyごとに進む世代番号。Bootstrapの追い越し検出に使う
	subs    map[string]chan Event
}

// NewStore はStoreを生成する。
func NewStore(client backend.Client, tokens backend.TokenStore, refreshMargin time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend:       client,
		tokens:        tokens,
		logger:        logger,
		refreshMargin: refreshMargin,
		subs:          make(map[string]chan Event),
	}
}

// Bootstrap は永続化されたトークンからセッションを復元する。
//
// 復元はフェイルオープンで行う: トークンの読み込み・復元のいかなる失敗も
// エラーにせず、サインアウト状態（nil）として返す。起動がブロックされる
// ことはなく、失敗の詳細はログにのみ残る。
//
// 復元中にサインイン・サインアウト等の状態遷移が発生した場合、復元結果は
// 破棄される。後から発生した遷移が常に優先される。
func (s *Store) Bootstrap(ctx context.Context) *model.Session {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()

	stored, err := s.tokens.Load()
	if err != nil {
		s.logger.Warn("failed to load stored session, starting signed out", slog.String("error", err.Error()))
		return nil
	}
	if stored == nil {
		return nil
	}

	sess, err := s.backend.SetSession(ctx, stored.AccessToken, stored.RefreshToken)
	if err != nil {
		s.logger.Warn("failed to restore session, starting signed out", slog.String("error", err.Error()))
		return nil
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		s.logger.Info("discarding restored session, state changed during bootstrap")
		return nil
	}
	s.current = sess
	s.persist(sess)
	s.mu.Unlock()

	return sess
}

// Current は現在のセッションを返す。サインアウト状態ではnilを返す。
func (s *Store) Current() *model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Subscribe はセッションイベントの購読を開始する。
// 戻り値のIDをUnsubscribeに渡して購読を解除する。
func (s *Store) Subscribe() (string, <-chan Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	ch := make(chan Event, eventBufferSize)
	s.subs[id] = ch
	return id, ch
}

// Unsubscribe は購読を解除し、チャネルをクローズする。
func (s *Store) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}

// SignInWithPassword はメールアドレスとパスワードでサインインする。
// バックエンドのエラーは無加工で返す。
func (s *Store) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	sess, err := s.backend.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	s.apply(sess, EventSignedIn)
	return sess, nil
}

// SignUp は新規Identityを作成してサインインする。
func (s *Store) SignUp(ctx context.Context, email, password string) (*model.Session, error) {
	sess, err := s.backend.SignUp(ctx, email, password)
	if err != nil {
		return nil, err
	}
	s.apply(sess, EventSignedIn)
	return sess, nil
}

// SignInWithIDToken はプロバイダーSDKが発行したトークンでサインインする。
func (s *Store) SignInWithIDToken(ctx context.Context, provider, token string) (*model.Session, error) {
	sess, err := s.backend.SignInWithIDToken(ctx, provider, token)
	if err != nil {
		return nil, err
	}
	s.apply(sess, EventSignedIn)
	return sess, nil
}

// SetFromTokens はOAuthコールバックで受け取ったトークンのペアから
// セッションを確立する。
func (s *Store) SetFromTokens(ctx context.Context, accessToken, refreshToken string) (*model.Session, error) {
	sess, err := s.backend.SetSession(ctx, accessToken, refreshToken)
	if err != nil {
		return nil, err
	}
	s.apply(sess, EventSignedIn)
	return sess, nil
}

// SignOut はバックエンド側でセッションを無効化し、ローカル状態をクリアする。
//
// バックエンドの無効化が失敗した場合はローカル状態を変更せずエラーを返す。
// セッションが存在しない場合はSESSION_MISSINGエラーを返す。
func (s *Store) SignOut(ctx context.Context) error {
	cur := s.Current()
	if cur == nil {
		return model.NewSessionMissingError()
	}

	if err := s.backend.SignOut(ctx, cur.AccessToken); err != nil {
		return err
	}

	s.apply(nil, EventSignedOut)
	return nil
}

// StartAutoRefresh はアクセストークンの自動リフレッシュループを開始する。
// ctxのキャンセルで停止する。呼び出し側でgoroutineとして起動すること。
//
// 有効期限のrefreshMargin前にリフレッシュを試みる。認証エラー（4xx）の場合は
// リフレッシュトークンが無効化されたものとしてサインアウト状態に遷移し、
// 一時的なエラーの場合はリトライする。
func (s *Store) StartAutoRefresh(ctx context.Context) {
	for {
		delay := s.nextRefreshDelay()

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		cur := s.Current()
		if cur == nil || time.Until(cur.ExpiresAt) > s.refreshMargin {
			continue
		}

		sess, err := s.backend.RefreshSession(ctx, cur.RefreshToken)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			var be *model.BackendError
			if errors.As(err, &be) && be.Status >= 400 && be.Status < 500 {
				s.logger.Warn("refresh token rejected, signing out", slog.Int("status", be.Status))
				s.apply(nil, EventSignedOut)
				continue
			}
			s.logger.Warn("session refresh failed, will retry", slog.String("error", err.Error()))
			continue
		}

		s.apply(sess, EventTokenRefreshed)
		s.logger.Info("session refreshed", slog.Time("expires_at", sess.ExpiresAt))
	}
}

// nextRefreshDelay は次のリフレッシュ試行までの待機時間を計算する。
func (s *Store) nextRefreshDelay() time.Duration {
	const minDelay = time.Second

	cur := s.Current()
	if cur == nil {
		return s.refreshMargin
	}

	delay := time.Until(cur.ExpiresAt.Add(-s.refreshMargin))
	if delay < minDelay {
		return minDelay
	}
	return delay
}

// apply はセッション状態を置き換え、永続化し、購読者にイベントを配信する。
// ミューテックスで直列化されるため、イベントは状態遷移の発生順に配信される。
func (s *Store) apply(sess *model.Session, eventType EventType) {
	s.mu.Lock()
	s.current = sess
	s.epoch++

	event := Event{Type: eventType, Session: sess}
	for id, ch := range s.subs {
		select {
		case ch <- event:
		default:
			s.logger.Warn("subscriber buffer full, dropping event",
				slog.String("subscriber", id), slog.String("event", string(eventType)))
		}
	}
	s.mu.Unlock()

	if sess == nil {
		s.clearPersisted()
		return
	}
	s.persist(sess)
}

// persist はセッションをトークンストアに保存する。
// 永続化の失敗はセッション確立を妨げない（ログのみ）。
func (s *Store) persist(sess *model.Session) {
	stored := &backend.StoredSession{
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		ExpiresAt:    sess.ExpiresAt,
	}
	if err := s.tokens.Save(stored); err != nil {
		s.logger.Warn("failed to persist session", slog.String("error", err.Error()))
	}
}

// clearPersisted は永続化済みセッションを削除する。
func (s *Store) clearPersisted() {
	if err := s.tokens.Clear(); err != nil {
		s.logger.Warn("failed to clear persisted session", slog.String("error", err.Error()))
	}
}
