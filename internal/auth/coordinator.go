// Package auth はセッションとプロファイルを合成した認証状態の管理を提供する。
//
// Coordinatorはセッションイベントを購読し、Identityの変化に応じて
// プロファイルの確立・取得パイプラインを実行して、UIが参照する
// AuthViewState（Identity + Profile + Loading）を維持する。
package auth

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/hitoshi/steppath/internal/model"
	"github.com/hitoshi/steppath/internal/oauth"
	"github.com/hitoshi/steppath/internal/session"
)

// SessionStore はCoordinatorが必要とするセッション操作のインターフェース。
// session.Storeが実装する。
type SessionStore interface {
	Bootstrap(ctx context.Context) *model.Session
	Subscribe() (string, <-chan session.Event)
	Unsubscribe(id string)
	SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error)
	SignUp(ctx context.Context, email, password string) (*model.Session, error)
	SignOut(ctx context.Context) error
}

// ProfileService はCoordinatorが必要とするプロファイル操作のインターフェース。
// profile.Bootstrapperが実装する。
type ProfileService interface {
	Ensure(ctx context.Context, identity *model.Identity) (*model.Profile, error)
	Create(ctx context.Context, identity *model.Identity, firstName, lastInitial string) (*model.Profile, error)
	Refresh(ctx context.Context, identityID string) (*model.Profile, error)
	Update(ctx context.Context, profile *model.Profile) error
}

// ProviderHandshake はOAuthプロバイダーでのサインイン操作のインターフェース。
// oauth.Handshakeが実装する。
type ProviderHandshake interface {
	SignInWithGoogle(ctx context.Context) (*oauth.Result, error)
	SignInWithFacebook(ctx context.Context) (*oauth.Result, error)
}

// stateBufferSize は状態購読チャネルのバッファサイズ。
const stateBufferSize = 32

// Coordinator は認証状態のライフサイクルを調停する。
type Coordinator struct {
	sessions  SessionStore
	profiles  ProfileService
	handshake ProviderHandshake
	logger    *slog.Logger

	mu       sync.Mutex
	identity *model.Identity
	profile  *model.Profile
	loading  bool
	sawEvent bool // セッションイベントを1つでも適用済みならブートストラップ結果は破棄する
	subs     map[string]chan model.AuthViewState
}

// NewCoordinator はCoordinatorを生成する。
// 生成直後の状態はLoading=true（未サインイン）になる。
func NewCoordinator(sessions SessionStore, profiles ProfileService, handshake ProviderHandshake, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		sessions:  sessions,
		profiles:  profiles,
		handshake: handshake,
		logger:    logger,
		loading:   true,
		subs:      make(map[string]chan model.AuthViewState),
	}
}

// Start はブートストラップとイベントループを開始する。
//
// イベントの取りこぼしを防ぐため、購読を開始してからブートストラップを行う。
// ブートストラップおよび最初のイベントのパイプラインのうち、先に完了した方が
// Loadingをfalseにする。ctxのキャンセルでイベントループは停止する。
func (c *Coordinator) Start(ctx context.Context) {
	subID, events := c.sessions.Subscribe()

	go c.runEventLoop(ctx, subID, events)
	go c.runBootstrap(ctx)
}

// runBootstrap は永続化済みセッションの復元とプロファイルの取得を行う。
// 復元パイプラインはプロファイルの取得のみを行い、作成はしない。
//
// 復元の完了までにセッションイベントが1つでも適用されていた場合、復元結果は
// 破棄する。遅延したブートストラップが、その後のサインイン・サインアウトで
// 確定した状態を上書きすることはない。
func (c *Coordinator) runBootstrap(ctx context.Context) {
	sess := c.sessions.Bootstrap(ctx)
	if sess == nil {
		c.setState(func() {
			if c.sawEvent {
				return
			}
			c.loading = false
		})
		return
	}

	identity := sess.Identity
	superseded := false
	c.setState(func() {
		if c.sawEvent {
			superseded = true
			return
		}
		c.identity = &identity
	})
	if superseded {
		c.logger.Info("discarding bootstrap result, session events already applied",
			slog.String("identity_id", identity.ID))
		return
	}

	prof, err := c.profiles.Refresh(ctx, identity.ID)
	if err != nil {
		c.logger.Warn("failed to fetch profile during bootstrap",
			slog.String("identity_id", identity.ID), slog.String("error", err.Error()))
	}
	c.completePipeline(identity.ID, prof)
}

// runEventLoop はセッションイベントを到着順に適用する。
func (c *Coordinator) runEventLoop(ctx context.Context, subID string, events <-chan session.Event) {
	defer c.sessions.Unsubscribe(subID)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			c.applyEvent(ctx, event)
		}
	}
}

// applyEvent は単一のセッションイベントを状態に反映する。
//
// Identityの差し替えは同期的に行い、プロファイルパイプラインは
// goroutineで実行する。パイプラインの完了時点でIdentityが別のものに
// 変わっていた場合、その結果は破棄される。
func (c *Coordinator) applyEvent(ctx context.Context, event session.Event) {
	switch event.Type {
	case session.EventSignedOut:
		c.setState(func() {
			c.sawEvent = true
			c.identity = nil
			c.profile = nil
			c.loading = false
		})

	case session.EventTokenRefreshed:
		if event.Session == nil {
			return
		}
		identity := event.Session.Identity
		c.setState(func() {
			c.sawEvent = true
			c.identity = &identity
		})

	case session.EventSignedIn:
		if event.Session == nil {
			return
		}
		identity := event.Session.Identity
		c.setState(func() {
			c.sawEvent = true
			c.identity = &identity
			c.profile = nil
		})

		go func() {
			prof, err := c.profiles.Ensure(ctx, &identity)
			if err != nil {
				c.logger.Warn("profile pipeline failed",
					slog.String("identity_id", identity.ID), slog.String("error", err.Error()))
			}
			c.completePipeline(identity.ID, prof)
		}()
	}
}

// completePipeline はプロファイルパイプラインの完了を状態に反映する。
// 完了時点のIdentityがパイプライン開始時のものと異なる場合は結果を破棄する。
// いずれの場合もLoadingは解除される。
func (c *Coordinator) completePipeline(identityID string, prof *model.Profile) {
	c.setState(func() {
		c.loading = false
		if c.identity == nil || c.identity.ID != identityID {
			c.logger.Info("discarding stale profile result", slog.String("identity_id", identityID))
			return
		}
		if prof != nil {
			c.profile = prof
		}
	})
}

// State は現在の認証状態のスナップショットを返す。
func (c *Coordinator) State() model.AuthViewState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return model.AuthViewState{
		Identity: c.identity,
		Profile:  c.profile,
		Loading:  c.loading,
	}
}

// Subscribe は状態変化の購読を開始する。
// 戻り値のIDをUnsubscribeに渡して購読を解除する。
func (c *Coordinator) Subscribe() (string, <-chan model.AuthViewState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := uuid.NewString()
	ch := make(chan model.AuthViewState, stateBufferSize)
	c.subs[id] = ch
	return id, ch
}

// Unsubscribe は購読を解除し、チャネルをクローズする。
func (c *Coordinator) Unsubscribe(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ch, ok := c.subs[id]; ok {
		delete(c.subs, id)
		close(ch)
	}
}

// SignIn はメールアドレスとパスワードでサインインする。
// バックエンドのエラーは無加工で返す。状態の更新はイベント経由で行われる。
func (c *Coordinator) SignIn(ctx context.Context, email, password string) error {
	_, err := c.sessions.SignInWithPassword(ctx, email, password)
	return err
}

// SignUp は新規Identityを作成し、指定の名前でプロファイルを作成する。
// プロファイル作成のエラーはそのまま呼び出し元へ返す。
func (c *Coordinator) SignUp(ctx context.Context, email, password, firstName, lastInitial string) error {
	sess, err := c.sessions.SignUp(ctx, email, password)
	if err != nil {
		return err
	}

	if _, err := c.profiles.Create(ctx, &sess.Identity, firstName, lastInitial); err != nil {
		return err
	}
	return nil
}

// SignInWithGoogle はGoogleでのサインインハンドシェイクを実行する。
func (c *Coordinator) SignInWithGoogle(ctx context.Context) (*oauth.Result, error) {
	return c.handshake.SignInWithGoogle(ctx)
}

// SignInWithFacebook はFacebookでのサインインハンドシェイクを実行する。
func (c *Coordinator) SignInWithFacebook(ctx context.Context) (*oauth.Result, error) {
	return c.handshake.SignInWithFacebook(ctx)
}

// SignOut はサインアウトする。
// バックエンドの無効化に失敗した場合、ローカル状態は変更されない。
// 進行中のOAuthハンドシェイクはキャンセルしない。
func (c *Coordinator) SignOut(ctx context.Context) error {
	return c.sessions.SignOut(ctx)
}

// RefreshProfile は現在のIdentityのプロファイルを再取得する。
// Identityが存在しない場合は何もしない。
func (c *Coordinator) RefreshProfile(ctx context.Context) error {
	state := c.State()
	if state.Identity == nil {
		return nil
	}

	prof, err := c.profiles.Refresh(ctx, state.Identity.ID)
	if err != nil {
		return err
	}
	c.completePipeline(state.Identity.ID, prof)
	return nil
}

// UpdateProfile は現在のIdentityのプロファイルを更新し、状態に反映する。
func (c *Coordinator) UpdateProfile(ctx context.Context, prof *model.Profile) error {
	state := c.State()
	if state.Identity == nil {
		return model.NewSessionMissingError()
	}
	prof.ID = state.Identity.ID

	if err := c.profiles.Update(ctx, prof); err != nil {
		return err
	}
	c.completePipeline(state.Identity.ID, prof)
	return nil
}

// setState は状態をミューテックス下で変更し、購読者へスナップショットを配信する。
func (c *Coordinator) setState(mutate func()) {
	c.mu.Lock()
	mutate()
	snapshot := model.AuthViewState{
		Identity: c.identity,
		Profile:  c.profile,
		Loading:  c.loading,
	}
	for id, ch := range c.subs {
		select {
		case ch <- snapshot:
		default:
			c.logger.Warn("state subscriber buffer full, dropping snapshot", slog.String("subscriber", id))
		}
	}
	c.mu.Unlock()
}
