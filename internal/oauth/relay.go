package oauth

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// CallbackResult はディープリンクコールバックで受け取ったトークンのペア。
type CallbackResult struct {
	AccessToken  string
	RefreshToken string
}

// browserOutcome はブラウザフローの終了イベント。
type browserOutcome struct {
	result   CallbackResult
	canceled bool
}

// BrowserRelay はシェルから届くOAuthコールバックを待機中のハンドシェイクへ中継する。
//
// 同時に待機できるハンドシェイクは1つだけで、新しいハンドシェイクの開始は
// 進行中のものをキャンセルする。各ハンドシェイクは世代IDで識別され、
// 完了済み世代への遅延した配信は破棄される。
type BrowserRelay struct {
	mu  sync.Mutex
	id  string
	url string
	ch  chan browserOutcome
}

// NewBrowserRelay はBrowserRelayを生成する。
func NewBrowserRelay() *BrowserRelay {
	return &BrowserRelay{}
}

// begin は新しいハンドシェイクの待機を開始する。
// 進行中のハンドシェイクがあればキャンセル扱いで終了させる。
func (r *BrowserRelay) begin(url string) (string, <-chan browserOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ch != nil {
		r.ch <- browserOutcome{canceled: true}
	}

	r.id = uuid.NewString()
	r.url = url
	r.ch = make(chan browserOutcome, 1)
	return r.id, r.ch
}

// finish は指定世代の待機を終了する。既に別の世代に置き換わっている場合は何もしない。
func (r *BrowserRelay) finish(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.id != id {
		return
	}
	r.id = ""
	r.url = ""
	r.ch = nil
}

// PendingURL は待機中のハンドシェイクの認可URLを返す。
// シェルはこのURLをシステムブラウザで開く。
func (r *BrowserRelay) PendingURL() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.url, r.ch != nil
}

// Deliver はコールバックのトークンを待機中のハンドシェイクへ配信する。
// 待機中のハンドシェイクが存在しない場合はエラーを返す。
func (r *BrowserRelay) Deliver(result CallbackResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ch == nil {
		return fmt.Errorf("no pending handshake")
	}
	r.ch <- browserOutcome{result: result}
	r.ch = nil
	r.id = ""
	r.url = ""
	return nil
}

// Cancel は待機中のハンドシェイクをキャンセルする。待機中でなければ何もしない。
func (r *BrowserRelay) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ch == nil {
		return
	}
	r.ch <- browserOutcome{canceled: true}
	r.ch = nil
	r.id = ""
	r.url = ""
}

// tokenOutcome はSDKトークンフローの終了イベント。
type tokenOutcome struct {
	token    string
	canceled bool
	failed   bool
}

// TokenRelay はシェル上のプロバイダーSDKが取得したトークンを
// 待機中のハンドシェイクへ中継する。BrowserRelayと同じ世代管理を行う。
type TokenRelay struct {
	mu sync.Mutex
	id string
	ch chan tokenOutcome
}

// NewTokenRelay はTokenRelayを生成する。
func NewTokenRelay() *TokenRelay {
	return &TokenRelay{}
}

// begin は新しいハンドシェイクの待機を開始する。
// 進行中のハンドシェイクがあればキャンセル扱いで終了させる。
func (r *TokenRelay) begin() (string, <-chan tokenOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ch != nil {
		r.ch <- tokenOutcome{canceled: true}
	}

	r.id = uuid.NewString()
	r.ch = make(chan tokenOutcome, 1)
	return r.id, r.ch
}

// finish は指定世代の待機を終了する。既に別の世代に置き換わっている場合は何もしない。
func (r *TokenRelay) finish(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.id != id {
		return
	}
	r.id = ""
	r.ch = nil
}

// Pending は待機中のハンドシェイクが存在するかを返す。
func (r *TokenRelay) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ch != nil
}

// Deliver はSDKが取得したトークンを待機中のハンドシェイクへ配信する。
// 待機中のハンドシェイクが存在しない場合はエラーを返す。
func (r *TokenRelay) Deliver(token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ch == nil {
		return fmt.Errorf("no pending handshake")
	}
	r.ch <- tokenOutcome{token: token}
	r.ch = nil
	r.id = ""
	return nil
}

// Fail はSDK側のログイン失敗を待機中のハンドシェイクへ配信する。
// キャンセルと異なりエラー結果として完了させる。
// 待機中のハンドシェイクが存在しない場合はエラーを返す。
func (r *TokenRelay) Fail() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ch == nil {
		return fmt.Errorf("no pending handshake")
	}
	r.ch <- tokenOutcome{failed: true}
	r.ch = nil
	r.id = ""
	return nil
}

// Cancel は待機中のハンドシェイクをキャンセルする。待機中でなければ何もしない。
func (r *TokenRelay) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ch == nil {
		return
	}
	r.ch <- tokenOutcome{canceled: true}
	r.ch = nil
	r.id = ""
}
