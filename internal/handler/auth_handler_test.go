package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/hitoshi/ignitecall/internal/adapter"
	"github.com/hitoshi/ignitecall/internal/cookie"
	"github.com/hitoshi/ignitecall/internal/middleware"
	"github.com/hitoshi/ignitecall/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	getLoginURLFn    func(state string) string
	handleCallbackFn func(ctx context.Context, code string) (*adapter.Session, error)
	currentSessionFn func(ctx context.Context, token string) (*adapter.SessionAndUser, error)
	signOutFn        func(ctx context.Context, token string) error
}

func (m *mockAuthService) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return "https://accounts.google.com/o/oauth2/auth?state=" + state
}

func (m *mockAuthService) HandleCallback(ctx context.Context, code string) (*adapter.Session, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, code)
	}
	return nil, errors.New("not configured")
}

func (m *mockAuthService) CurrentSession(ctx context.Context, token string) (*adapter.SessionAndUser, error) {
	if m.currentSessionFn != nil {
		return m.currentSessionFn(ctx, token)
	}
	return nil, nil
}

func (m *mockAuthService) SignOut(ctx context.Context, token string) error {
	if m.signOutFn != nil {
		return m.signOutFn(ctx, token)
	}
	return nil
}

func newTestAuthHandler(svc AuthServiceInterface) *AuthHandler {
	return NewAuthHandler(svc, AuthHandlerConfig{SessionMaxAge: 2592000})
}

func callbackRequest(query url.Values, stateCookie string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/auth/callback/google?"+query.Encode(), nil)
	if stateCookie != "" {
		req.AddCookie(&http.Cookie{Name: cookie.OAuthStateName, Value: stateCookie})
	}
	return req
}

func redirectError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTemporaryRedirect)
	}
	loc, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatalf("invalid Location: %v", err)
	}
	if loc.Path != "/register/connect-calendar" {
		t.Errorf("redirect path = %q, want /register/connect-calendar", loc.Path)
	}
	return loc.Query().Get("error")
}

// --- テスト ---

func TestAuthHandler_SignIn_SetsStateAndRedirects(t *testing.T) {
	var gotState string
	h := newTestAuthHandler(&mockAuthService{
		getLoginURLFn: func(state string) string {
			gotState = state
			return "https://accounts.google.com/o/oauth2/auth?state=" + state
		},
	})

	w := httptest.NewRecorder()
	h.SignIn(w, httptest.NewRequest(http.MethodGet, "/api/auth/signin/google", nil))

	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTemporaryRedirect)
	}
	c := findCookie(w.Result().Cookies(), cookie.OAuthStateName)
	if c == nil {
		t.Fatal("oauth_state cookie should be set")
	}
	if c.Value == "" || c.Value != gotState {
		t.Errorf("state cookie = %q, state passed to provider = %q", c.Value, gotState)
	}
	if c.MaxAge != 600 || !c.HttpOnly {
		t.Errorf("state cookie attributes = MaxAge %d HttpOnly %v", c.MaxAge, c.HttpOnly)
	}
}

func TestAuthHandler_Callback_Success(t *testing.T) {
	expires := time.Now().Add(30 * 24 * time.Hour)
	h := newTestAuthHandler(&mockAuthService{
		handleCallbackFn: func(ctx context.Context, code string) (*adapter.Session, error) {
			if code != "auth-code" {
				t.Errorf("code = %q, want auth-code", code)
			}
			return &adapter.Session{SessionToken: "session-token", UserID: "user-1", Expires: expires}, nil
		},
	})

	w := httptest.NewRecorder()
	h.Callback(w, callbackRequest(url.Values{"code": {"auth-code"}, "state": {"s1"}}, "s1"))

	if got := redirectError(t, w); got != "" {
		t.Errorf("error query = %q, want empty", got)
	}
	c := findCookie(w.Result().Cookies(), cookie.SessionTokenName)
	if c == nil || c.Value != "session-token" {
		t.Fatalf("session cookie = %+v", c)
	}
	if c.MaxAge != 2592000 {
		t.Errorf("session cookie MaxAge = %d, want 2592000", c.MaxAge)
	}
	if state := findCookie(w.Result().Cookies(), cookie.OAuthStateName); state == nil || state.MaxAge >= 0 {
		t.Error("state cookie should be cleared")
	}
}

func TestAuthHandler_Callback_Failures(t *testing.T) {
	tests := []struct {
		name        string
		query       url.Values
		stateCookie string
		callbackErr error
		want        string
	}{
		{"state cookie missing", url.Values{"code": {"c"}, "state": {"s1"}}, "", nil, "OAuthCallback"},
		{"state mismatch", url.Values{"code": {"c"}, "state": {"s1"}}, "s2", nil, "OAuthCallback"},
		{"consent denied", url.Values{"error": {"access_denied"}, "state": {"s1"}}, "s1", nil, "permissions"},
		{"provider error", url.Values{"error": {"server_error"}, "state": {"s1"}}, "s1", nil, "Callback"},
		{"code missing", url.Values{"state": {"s1"}}, "s1", nil, "Callback"},
		{"calendar scope", url.Values{"code": {"c"}, "state": {"s1"}}, "s1", model.NewCalendarPermissionMissingError(), "permissions"},
		{"email linked", url.Values{"code": {"c"}, "state": {"s1"}}, "s1", model.NewOAuthAccountNotLinkedError(), "OAuthAccountNotLinked"},
		{"cookie missing", url.Values{"code": {"c"}, "state": {"s1"}}, "s1", model.NewUserIDCookieMissingError(), "OAuthCreateAccount"},
		{"wrapped upstream", url.Values{"code": {"c"}, "state": {"s1"}}, "s1", fmt.Errorf("exchange: %w", errors.New("boom")), "Callback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			h := newTestAuthHandler(&mockAuthService{
				handleCallbackFn: func(ctx context.Context, code string) (*adapter.Session, error) {
					called = true
					return nil, tt.callbackErr
				},
			})

			w := httptest.NewRecorder()
			h.Callback(w, callbackRequest(tt.query, tt.stateCookie))

			if got := redirectError(t, w); got != tt.want {
				t.Errorf("error query = %q, want %q", got, tt.want)
			}
			if tt.callbackErr == nil && called {
				t.Error("HandleCallback should not be called")
			}
			if findCookie(w.Result().Cookies(), cookie.SessionTokenName) != nil {
				t.Error("session cookie must not be set on failure")
			}
		})
	}
}

func TestAuthHandler_Session(t *testing.T) {
	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := &mockAuthService{
		currentSessionFn: func(ctx context.Context, token string) (*adapter.SessionAndUser, error) {
			if token != "valid" {
				return nil, nil
			}
			return &adapter.SessionAndUser{
				Session: adapter.Session{SessionToken: token, UserID: "user-1", Expires: expires},
				User:    adapter.User{ID: "user-1", Name: "Ana Silva", Username: "ana", Email: "ana@x.com"},
			}, nil
		},
	}
	h := newTestAuthHandler(svc)

	t.Run("signed in", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
		req.AddCookie(&http.Cookie{Name: cookie.SessionTokenName, Value: "valid"})
		w := httptest.NewRecorder()
		h.Session(w, req)

		var body struct {
			User    adapter.User `json:"user"`
			Expires time.Time    `json:"expires"`
		}
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if body.User.Username != "ana" || body.User.Email != "ana@x.com" {
			t.Errorf("user = %+v", body.User)
		}
		if !body.Expires.Equal(expires) {
			t.Errorf("expires = %v, want %v", body.Expires, expires)
		}
	})

	t.Run("anonymous", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Session(w, httptest.NewRequest(http.MethodGet, "/api/auth/session", nil))

		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
		}
		if got := w.Body.String(); got != "{}\n" {
			t.Errorf("body = %q, want {}", got)
		}
	})
}

// TestAuthHandler_Session_ReusesMiddlewareSession はセッションミドルウェアを通した場合に
// セッションの解決が1回で済むことを検証する。
func TestAuthHandler_Session_ReusesMiddlewareSession(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		wantBody bool
	}{
		{name: "signed in", token: "valid", wantBody: true},
		{name: "unknown token", token: "gone"},
		{name: "no cookie"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			svc := &mockAuthService{
				currentSessionFn: func(ctx context.Context, token string) (*adapter.SessionAndUser, error) {
					calls++
					if token != "valid" {
						return nil, nil
					}
					return &adapter.SessionAndUser{
						Session: adapter.Session{SessionToken: token, UserID: "user-1", Expires: time.Now().Add(time.Hour)},
						User:    adapter.User{ID: "user-1", Username: "ana"},
					}, nil
				},
			}
			h := newTestAuthHandler(svc)
			chain := middleware.NewSessionMiddleware(svc)(http.HandlerFunc(h.Session))

			req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
			if tt.token != "" {
				req.AddCookie(&http.Cookie{Name: cookie.SessionTokenName, Value: tt.token})
			}
			w := httptest.NewRecorder()
			chain.ServeHTTP(w, req)

			wantCalls := 1
			if tt.token == "" {
				wantCalls = 0
			}
			if calls != wantCalls {
				t.Errorf("CurrentSession calls = %d, want %d", calls, wantCalls)
			}
			body := w.Body.String()
			if tt.wantBody && body == "{}\n" {
				t.Error("expected session body, got {}")
			}
			if !tt.wantBody && body != "{}\n" {
				t.Errorf("body = %q, want {}", body)
			}
		})
	}
}

func TestAuthHandler_SignOut_ClearsCookieEvenOnError(t *testing.T) {
	var gotToken string
	h := newTestAuthHandler(&mockAuthService{
		signOutFn: func(ctx context.Context, token string) error {
			gotToken = token
			return errors.New("db down")
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/signout", nil)
	req.AddCookie(&http.Cookie{Name: cookie.SessionTokenName, Value: "session-token"})
	w := httptest.NewRecorder()
	h.SignOut(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if gotToken != "session-token" {
		t.Errorf("token = %q, want session-token", gotToken)
	}
	if c := findCookie(w.Result().Cookies(), cookie.SessionTokenName); c == nil || c.MaxAge >= 0 {
		t.Error("session cookie should be cleared")
	}
}
