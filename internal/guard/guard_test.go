package guard

import (
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/steppath/internal/model"
)

func guardIdentity() *model.Identity {
	return &model.Identity{ID: "user-1", Email: "jane@example.com", Provider: "email"}
}

func guardProfile(sobrietySet bool) *model.Profile {
	prof := &model.Profile{ID: "user-1", Email: "jane@example.com", FirstName: "Jane"}
	if sobrietySet {
		date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
		prof.SobrietyDate = &date
	}
	return prof
}

func TestDecide_TransitionTable(t *testing.T) {
	tests := []struct {
		name    string
		state   model.AuthViewState
		segment Segment
		want    Decision
	}{
		{
			name:    "loading suppresses all decisions",
			state:   model.AuthViewState{Loading: true},
			segment: SegmentTabs,
			want:    DecisionNone,
		},
		{
			name:    "loading suppresses even when fully authenticated",
			state:   model.AuthViewState{Identity: guardIdentity(), Profile: guardProfile(true), Loading: true},
			segment: SegmentLogin,
			want:    DecisionNone,
		},
		{
			name:    "signed out on protected tabs goes to login",
			state:   model.AuthViewState{},
			segment: SegmentTabs,
			want:    DecisionLogin,
		},
		{
			name:    "signed out on other screen goes to login",
			state:   model.AuthViewState{},
			segment: SegmentOther,
			want:    DecisionLogin,
		},
		{
			name:    "signed out on onboarding goes to login",
			state:   model.AuthViewState{},
			segment: SegmentOnboarding,
			want:    DecisionLogin,
		},
		{
			name:    "signed out stays on login",
			state:   model.AuthViewState{},
			segment: SegmentLogin,
			want:    DecisionNone,
		},
		{
			name:    "signed out stays on signup",
			state:   model.AuthViewState{},
			segment: SegmentSignup,
			want:    DecisionNone,
		},
		{
			name:    "complete profile on login goes to tabs",
			state:   model.AuthViewState{Identity: guardIdentity(), Profile: guardProfile(true)},
			segment: SegmentLogin,
			want:    DecisionTabs,
		},
		{
			name:    "complete profile on signup goes to tabs",
			state:   model.AuthViewState{Identity: guardIdentity(), Profile: guardProfile(true)},
			segment: SegmentSignup,
			want:    DecisionTabs,
		},
		{
			name:    "complete profile on onboarding goes to tabs",
			state:   model.AuthViewState{Identity: guardIdentity(), Profile: guardProfile(true)},
			segment: SegmentOnboarding,
			want:    DecisionTabs,
		},
		{
			name:    "complete profile stays on tabs",
			state:   model.AuthViewState{Identity: guardIdentity(), Profile: guardProfile(true)},
			segment: SegmentTabs,
			want:    DecisionNone,
		},
		{
			name:    "complete profile stays on other screen",
			state:   model.AuthViewState{Identity: guardIdentity(), Profile: guardProfile(true)},
			segment: SegmentOther,
			want:    DecisionNone,
		},
		{
			name:    "sobriety date unset on tabs goes to onboarding",
			state:   model.AuthViewState{Identity: guardIdentity(), Profile: guardProfile(false)},
			segment: SegmentTabs,
			want:    DecisionOnboarding,
		},
		{
			name:    "sobriety date unset on login goes to onboarding",
			state:   model.AuthViewState{Identity: guardIdentity(), Profile: guardProfile(false)},
			segment: SegmentLogin,
			want:    DecisionOnboarding,
		},
		{
			name:    "sobriety date unset stays on onboarding",
			state:   model.AuthViewState{Identity: guardIdentity(), Profile: guardProfile(false)},
			segment: SegmentOnboarding,
			want:    DecisionNone,
		},
		{
			name:    "missing profile goes to onboarding",
			state:   model.AuthViewState{Identity: guardIdentity()},
			segment: SegmentTabs,
			want:    DecisionOnboarding,
		},
		{
			name:    "missing profile stays on onboarding",
			state:   model.AuthViewState{Identity: guardIdentity()},
			segment: SegmentOnboarding,
			want:    DecisionNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.state, tt.segment); got != tt.want {
				t.Errorf("Decide() = %q, want %q", got, tt.want)
			}
		})
	}
}

// 同じ入力に対して常に同じ判定を返すこと。
func TestDecide_IsPure(t *testing.T) {
	state := model.AuthViewState{Identity: guardIdentity(), Profile: guardProfile(false)}
	first := Decide(state, SegmentTabs)
	for i := 0; i < 10; i++ {
		if got := Decide(state, SegmentTabs); got != first {
			t.Fatalf("Decide() = %q on call %d, want %q", got, i, first)
		}
	}
}

func TestParseSegment(t *testing.T) {
	for _, valid := range []string{"tabs", "onboarding", "login", "signup", "other"} {
		if _, err := ParseSegment(valid); err != nil {
			t.Errorf("ParseSegment(%q) error = %v", valid, err)
		}
	}

	_, err := ParseSegment("settings")
	var authErr *model.AuthError
	if !errors.As(err, &authErr) || authErr.Code != model.ErrCodeInvalidSegment {
		t.Errorf("ParseSegment(settings) error = %v, want INVALID_SEGMENT", err)
	}
}

// mockRouter はRouterのモック実装。
type mockRouter struct {
	calls       []string
	replaceFunc func(path string) error
}

func (m *mockRouter) Replace(path string) error {
	m.calls = append(m.calls, path)
	if m.replaceFunc == nil {
		return nil
	}
	return m.replaceFunc(path)
}

var _ Router = (*mockRouter)(nil)

func TestNavigator_ExecutesDecision(t *testing.T) {
	router := &mockRouter{}
	nav := NewNavigator(router, nil)

	got := nav.Evaluate(model.AuthViewState{}, SegmentTabs)
	if got != DecisionLogin {
		t.Fatalf("Evaluate() = %q, want %q", got, DecisionLogin)
	}
	if len(router.calls) != 1 || router.calls[0] != "/login" {
		t.Errorf("Replace calls = %v, want [/login]", router.calls)
	}
}

// 入力が変わらない限り同じ遷移を繰り返さないこと。
func TestNavigator_SuppressesRepeatedDecision(t *testing.T) {
	router := &mockRouter{}
	nav := NewNavigator(router, nil)

	state := model.AuthViewState{}
	nav.Evaluate(state, SegmentTabs)
	for i := 0; i < 4; i++ {
		if got := nav.Evaluate(state, SegmentTabs); got != DecisionNone {
			t.Errorf("repeated Evaluate() = %q, want suppressed", got)
		}
	}
	if len(router.calls) != 1 {
		t.Errorf("Replace called %d times, want 1", len(router.calls))
	}
}

// 判定なしを挟んで入力が変われば再度遷移すること。
func TestNavigator_NavigatesAgainAfterInputChange(t *testing.T) {
	router := &mockRouter{}
	nav := NewNavigator(router, nil)

	nav.Evaluate(model.AuthViewState{}, SegmentTabs)                                // -> /login
	nav.Evaluate(model.AuthViewState{}, SegmentLogin)                               // 遷移後、判定なし
	nav.Evaluate(model.AuthViewState{Identity: guardIdentity()}, SegmentLogin)      // -> /onboarding
	nav.Evaluate(model.AuthViewState{Identity: guardIdentity()}, SegmentOnboarding) // 判定なし

	want := []string{"/login", "/onboarding"}
	if len(router.calls) != len(want) {
		t.Fatalf("Replace calls = %v, want %v", router.calls, want)
	}
	for i := range want {
		if router.calls[i] != want[i] {
			t.Errorf("Replace call %d = %q, want %q", i, router.calls[i], want[i])
		}
	}
}

func TestNavigator_LoadingSuppressesNavigation(t *testing.T) {
	router := &mockRouter{}
	nav := NewNavigator(router, nil)

	nav.Evaluate(model.AuthViewState{Loading: true}, SegmentTabs)
	if len(router.calls) != 0 {
		t.Errorf("Replace calls = %v, want none while loading", router.calls)
	}
}

// ルーターのエラーで判定結果が変わらないこと。
func TestNavigator_RouterError_DecisionUnchanged(t *testing.T) {
	router := &mockRouter{
		replaceFunc: func(path string) error { return errors.New("router detached") },
	}
	nav := NewNavigator(router, nil)

	if got := nav.Evaluate(model.AuthViewState{}, SegmentTabs); got != DecisionLogin {
		t.Errorf("Evaluate() = %q, want %q", got, DecisionLogin)
	}
}

func TestNavigator_ResetAllowsReNavigation(t *testing.T) {
	router := &mockRouter{}
	nav := NewNavigator(router, nil)

	nav.Evaluate(model.AuthViewState{}, SegmentTabs)
	nav.Reset()
	nav.Evaluate(model.AuthViewState{}, SegmentTabs)

	if len(router.calls) != 2 {
		t.Errorf("Replace called %d times, want 2 after reset", len(router.calls))
	}
}
