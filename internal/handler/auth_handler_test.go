package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/steppath/internal/metrics"
	"github.com/hitoshi/steppath/internal/model"
	"github.com/hitoshi/steppath/internal/oauth"
)

// mockCoordinator はAuthCoordinatorInterfaceのモック実装。
type mockCoordinator struct {
	stateFunc          func() model.AuthViewState
	signInFunc         func(ctx context.Context, email, password string) error
	signUpFunc         func(ctx context.Context, email, password, firstName, lastInitial string) error
	signOutFunc        func(ctx context.Context) error
	googleFunc         func(ctx context.Context) (*oauth.Result, error)
	facebookFunc       func(ctx context.Context) (*oauth.Result, error)
	refreshProfileFunc func(ctx context.Context) error
	updateProfileFunc  func(ctx context.Context, prof *model.Profile) error
}

func (m *mockCoordinator) State() model.AuthViewState {
	if m.stateFunc == nil {
		return model.AuthViewState{}
	}
	return m.stateFunc()
}

func (m *mockCoordinator) SignIn(ctx context.Context, email, password string) error {
	if m.signInFunc == nil {
		return errors.New("not implemented")
	}
	return m.signInFunc(ctx, email, password)
}

func (m *mockCoordinator) SignUp(ctx context.Context, email, password, firstName, lastInitial string) error {
	if m.signUpFunc == nil {
		return errors.New("not implemented")
	}
	return m.signUpFunc(ctx, email, password, firstName, lastInitial)
}

func (m *mockCoordinator) SignOut(ctx context.Context) error {
	if m.signOutFunc == nil {
		return errors.New("not implemented")
	}
	return m.signOutFunc(ctx)
}

func (m *mockCoordinator) SignInWithGoogle(ctx context.Context) (*oauth.Result, error) {
	if m.googleFunc == nil {
		return nil, errors.New("not implemented")
	}
	return m.googleFunc(ctx)
}

func (m *mockCoordinator) SignInWithFacebook(ctx context.Context) (*oauth.Result, error) {
	if m.facebookFunc == nil {
		return nil, errors.New("not implemented")
	}
	return m.facebookFunc(ctx)
}

func (m *mockCoordinator) RefreshProfile(ctx context.Context) error {
	if m.refreshProfileFunc == nil {
		return errors.New("not implemented")
	}
	return m.refreshProfileFunc(ctx)
}

func (m *mockCoordinator) UpdateProfile(ctx context.Context, prof *model.Profile) error {
	if m.updateProfileFunc == nil {
		return errors.New("not implemented")
	}
	return m.updateProfileFunc(ctx, prof)
}

var _ AuthCoordinatorInterface = (*mockCoordinator)(nil)

func testCollector() *metrics.Collector {
	return metrics.NewCollector(prometheus.NewRegistry())
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("failed to encode body: %v", err)
	}
	return buf
}

func handlerIdentity() *model.Identity {
	return &model.Identity{ID: "user-1", Email: "jane@example.com", Provider: "email"}
}

func handlerProfile() *model.Profile {
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	return &model.Profile{
		ID:           "user-1",
		Email:        "jane@example.com",
		FirstName:    "Jane",
		LastInitial:  "D",
		Role:         model.RoleSponsee,
		SobrietyDate: &date,
		Timezone:     "UTC",
		Preferences:  model.DefaultNotificationPreferences(),
	}
}

func TestSignIn_Success_Returns204(t *testing.T) {
	coordinator := &mockCoordinator{
		signInFunc: func(ctx context.Context, email, password string) error {
			if email != "jane@example.com" || password != "secret" {
				t.Errorf("SignIn(%q, %q)", email, password)
			}
			return nil
		},
	}
	h := NewAuthHandler(coordinator, testCollector(), nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/signin",
		jsonBody(t, signInRequest{Email: "jane@example.com", Password: "secret"}))
	w := httptest.NewRecorder()
	h.SignIn(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
}

// バックエンドのエラーメッセージが加工されずに返ること。
func TestSignIn_BackendError_MessageVerbatim(t *testing.T) {
	coordinator := &mockCoordinator{
		signInFunc: func(ctx context.Context, email, password string) error {
			return &model.BackendError{Status: 400, Message: "Invalid login credentials"}
		},
	}
	h := NewAuthHandler(coordinator, testCollector(), nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/signin",
		jsonBody(t, signInRequest{Email: "jane@example.com", Password: "wrong"}))
	w := httptest.NewRecorder()
	h.SignIn(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["message"] != "Invalid login credentials" {
		t.Errorf("message = %q, want backend message unchanged", body["message"])
	}
}

func TestSignIn_MissingFields_Returns400(t *testing.T) {
	h := NewAuthHandler(&mockCoordinator{}, testCollector(), nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/signin",
		jsonBody(t, signInRequest{Email: "jane@example.com"}))
	w := httptest.NewRecorder()
	h.SignIn(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestSignIn_InvalidBody_Returns400(t *testing.T) {
	h := NewAuthHandler(&mockCoordinator{}, testCollector(), nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/signin", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	h.SignIn(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestSignUp_Success_Returns201(t *testing.T) {
	coordinator := &mockCoordinator{
		signUpFunc: func(ctx context.Context, email, password, firstName, lastInitial string) error {
			if firstName != "Taro" || lastInitial != "Y" {
				t.Errorf("SignUp name = %q %q", firstName, lastInitial)
			}
			return nil
		},
	}
	h := NewAuthHandler(coordinator, testCollector(), nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/signup",
		jsonBody(t, signUpRequest{Email: "new@example.com", Password: "secret", FirstName: "Taro", LastInitial: "Y"}))
	w := httptest.NewRecorder()
	h.SignUp(w, req)

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Code, http.StatusCreated)
	}
}

// プロファイル作成のエラーがそのままエラーレスポンスになること。
func TestSignUp_ProfileCreateError_Returns500(t *testing.T) {
	coordinator := &mockCoordinator{
		signUpFunc: func(ctx context.Context, email, password, firstName, lastInitial string) error {
			return errors.New("insert failed")
		},
	}
	h := NewAuthHandler(coordinator, testCollector(), nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/signup",
		jsonBody(t, signUpRequest{Email: "new@example.com", Password: "secret", FirstName: "Taro"}))
	w := httptest.NewRecorder()
	h.SignUp(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestSignOut_Success_Returns204(t *testing.T) {
	coordinator := &mockCoordinator{
		signOutFunc: func(ctx context.Context) error { return nil },
	}
	h := NewAuthHandler(coordinator, testCollector(), nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/signout", nil)
	w := httptest.NewRecorder()
	h.SignOut(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
}

func TestSignOut_NoSession_Returns401(t *testing.T) {
	coordinator := &mockCoordinator{
		signOutFunc: func(ctx context.Context) error { return model.NewSessionMissingError() },
	}
	h := NewAuthHandler(coordinator, testCollector(), nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/signout", nil)
	w := httptest.NewRecorder()
	h.SignOut(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestState_ReturnsSnapshot(t *testing.T) {
	coordinator := &mockCoordinator{
		stateFunc: func() model.AuthViewState {
			return model.AuthViewState{
				Identity: handlerIdentity(),
				Profile:  handlerProfile(),
				Loading:  false,
			}
		},
	}
	h := NewAuthHandler(coordinator, testCollector(), nil)

	req := httptest.NewRequest(http.MethodGet, "/auth/state", nil)
	w := httptest.NewRecorder()
	h.State(w, req)

	var resp stateResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if !resp.Authenticated || resp.Loading {
		t.Errorf("resp = %+v, want authenticated and not loading", resp)
	}
	if resp.Identity == nil || resp.Identity.ID != "user-1" {
		t.Errorf("identity = %+v", resp.Identity)
	}
	if resp.Profile == nil || resp.Profile.SobrietyDate != "2024-01-15" {
		t.Errorf("profile = %+v, want sobriety_date 2024-01-15", resp.Profile)
	}
}

func TestState_LoadingBeforeBootstrap(t *testing.T) {
	coordinator := &mockCoordinator{
		stateFunc: func() model.AuthViewState {
			return model.AuthViewState{Loading: true}
		},
	}
	h := NewAuthHandler(coordinator, testCollector(), nil)

	req := httptest.NewRequest(http.MethodGet, "/auth/state", nil)
	w := httptest.NewRecorder()
	h.State(w, req)

	var resp stateResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if !resp.Loading || resp.Authenticated {
		t.Errorf("resp = %+v, want loading and not authenticated", resp)
	}
	if resp.Identity != nil || resp.Profile != nil {
		t.Errorf("identity = %+v profile = %+v, want null", resp.Identity, resp.Profile)
	}
}

func TestSignInWithGoogle_SessionEstablished(t *testing.T) {
	coordinator := &mockCoordinator{
		googleFunc: func(ctx context.Context) (*oauth.Result, error) {
			return &oauth.Result{Session: &model.Session{Identity: *handlerIdentity()}}, nil
		},
	}
	h := NewAuthHandler(coordinator, testCollector(), nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/google", nil)
	w := httptest.NewRecorder()
	h.SignInWithGoogle(w, req)

	var resp handshakeResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if resp.Status != "session" || resp.Identity == nil {
		t.Errorf("resp = %+v, want established session", resp)
	}
}

func TestSignInWithGoogle_WebRedirect(t *testing.T) {
	coordinator := &mockCoordinator{
		googleFunc: func(ctx context.Context) (*oauth.Result, error) {
			return &oauth.Result{RedirectURL: "https://auth.example.com/authorize"}, nil
		},
	}
	h := NewAuthHandler(coordinator, testCollector(), nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/google", nil)
	w := httptest.NewRecorder()
	h.SignInWithGoogle(w, req)

	var resp handshakeResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if resp.Status != "redirect" || resp.RedirectURL == "" {
		t.Errorf("resp = %+v, want redirect", resp)
	}
}

// キャンセルはエラーレスポンスではなく通常の結果として返ること。
func TestSignInWithGoogle_Canceled_Returns200(t *testing.T) {
	coordinator := &mockCoordinator{
		googleFunc: func(ctx context.Context) (*oauth.Result, error) {
			return &oauth.Result{Canceled: true}, nil
		},
	}
	h := NewAuthHandler(coordinator, testCollector(), nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/google", nil)
	w := httptest.NewRecorder()
	h.SignInWithGoogle(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp handshakeResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if resp.Status != "canceled" {
		t.Errorf("status = %q, want canceled", resp.Status)
	}
}

// アプリID未設定の設定エラーが500で返ること。
func TestSignInWithFacebook_NotConfigured_Returns500(t *testing.T) {
	coordinator := &mockCoordinator{
		facebookFunc: func(ctx context.Context) (*oauth.Result, error) {
			return nil, model.NewProviderNotConfiguredError("Facebook")
		},
	}
	h := NewAuthHandler(coordinator, testCollector(), nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/facebook", nil)
	w := httptest.NewRecorder()
	h.SignInWithFacebook(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["code"] != model.ErrCodeProviderNotConfigured {
		t.Errorf("code = %q, want PROVIDER_NOT_CONFIGURED", body["code"])
	}
}
