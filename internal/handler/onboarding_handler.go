package handler

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/ignitecall/internal/cookie"
	"github.com/hitoshi/ignitecall/internal/middleware"
	"github.com/hitoshi/ignitecall/internal/model"
	"github.com/hitoshi/ignitecall/internal/onboarding"
)

const (
	signInPath = "/api/auth/signin/google"

	// msgRegisterFailed はサーバーがメッセージを返さなかった場合のアラート文言。
	msgRegisterFailed = "Não foi possível criar sua conta. Tente novamente."
)

// OnboardingHandler はオンボーディングウィザードの画面を返すハンドラー。
type OnboardingHandler struct {
	renderer   *onboarding.Renderer
	users      UserRegistrar
	cookieOpts cookie.Options
}

// NewOnboardingHandler はOnboardingHandlerを生成する。
func NewOnboardingHandler(renderer *onboarding.Renderer, users UserRegistrar, cookieOpts cookie.Options) *OnboardingHandler {
	return &OnboardingHandler{
		renderer:   renderer,
		users:      users,
		cookieOpts: cookieOpts,
	}
}

// ClaimUsernameForm はユーザー名の確保フォームを表示する。
// GET /
func (h *OnboardingHandler) ClaimUsernameForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, onboarding.ClaimUsername, onboarding.ClaimUsernamePage{
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
	})
}

// ClaimUsername はユーザー名を検証し、登録ページへ引き継ぐ。
// POST /
func (h *OnboardingHandler) ClaimUsername(w http.ResponseWriter, r *http.Request) {
	raw := r.PostFormValue("username")

	username, ferr := onboarding.ValidateUsername(raw)
	if ferr != nil {
		h.render(w, http.StatusBadRequest, onboarding.ClaimUsername, onboarding.ClaimUsernamePage{
			Username:  raw,
			Errors:    map[string]string{ferr.Field: ferr.Message},
			CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
		})
		return
	}

	next := onboarding.Register.Path() + "?" + url.Values{"username": {username}}.Encode()
	http.Redirect(w, r, next, http.StatusSeeOther)
}

// RegisterForm はプロフィール登録フォームを表示する。
// usernameクエリがあれば入力欄に反映する。
// GET /register
func (h *OnboardingHandler) RegisterForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, onboarding.Register, onboarding.RegisterPage{
		Username:  r.URL.Query().Get("username"),
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
	})
}

// Register は仮登録ユーザーを作成し、カレンダー連携ページへ進める。
// POST /register
func (h *OnboardingHandler) Register(w http.ResponseWriter, r *http.Request) {
	page := onboarding.RegisterPage{
		Username:  r.PostFormValue("username"),
		Name:      r.PostFormValue("name"),
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
	}

	fieldErrors := make(map[string]string)
	if _, ferr := onboarding.ValidateUsername(page.Username); ferr != nil {
		fieldErrors[ferr.Field] = ferr.Message
	}
	if _, ferr := onboarding.ValidateName(page.Name); ferr != nil {
		fieldErrors[ferr.Field] = ferr.Message
	}
	if len(fieldErrors) > 0 {
		page.Errors = fieldErrors
		h.render(w, http.StatusBadRequest, onboarding.Register, page)
		return
	}

	created, err := h.users.Register(r.Context(), page.Name, page.Username)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			page.Alert = apiErr.Message
			h.render(w, middleware.StatusForCode(apiErr.Code), onboarding.Register, page)
			return
		}
		slog.Error("failed to register user", slog.String("error", err.Error()))
		page.Alert = msgRegisterFailed
		h.render(w, http.StatusInternalServerError, onboarding.Register, page)
		return
	}

	cookie.SetProvisionalUser(storeFor(w, r, h.cookieOpts), created.ID)
	http.Redirect(w, r, onboarding.Register.Next().Path(), http.StatusSeeOther)
}

// ConnectCalendar はGoogleカレンダー連携ページを表示する。
// ログイン済みなら次のステップへ進める。errorクエリがあれば連携失敗を表示する。
// GET /register/connect-calendar
func (h *OnboardingHandler) ConnectCalendar(w http.ResponseWriter, r *http.Request) {
	_, err := middleware.UserIDFromContext(r.Context())

	h.render(w, http.StatusOK, onboarding.ConnectCalendar, onboarding.ConnectCalendarPage{
		SignedIn:  err == nil,
		AuthError: r.URL.Query().Get("error") != "",
		SignInURL: signInPath,
		NextURL:   onboarding.ConnectCalendar.Next().Path(),
	})
}

func (h *OnboardingHandler) render(w http.ResponseWriter, status int, step onboarding.Step, page any) {
	var buf bytes.Buffer
	if err := h.renderer.Render(&buf, step, page); err != nil {
		slog.Error("failed to render page",
			slog.String("step", step.String()),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}
