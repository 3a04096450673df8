// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/ignitecall/internal/adapter"
	"github.com/hitoshi/ignitecall/internal/cookie"
	"github.com/hitoshi/ignitecall/internal/middleware"
	"github.com/hitoshi/ignitecall/internal/model"
	"github.com/hitoshi/ignitecall/internal/onboarding"
)

// コールバック失敗時にerrorクエリで返すコード。
const (
	callbackErrorPermissions     = "permissions"
	callbackErrorNotLinked       = "OAuthAccountNotLinked"
	callbackErrorCreateAccount   = "OAuthCreateAccount"
	callbackErrorState           = "OAuthCallback"
	callbackErrorGeneric         = "Callback"
	googleAccessDeniedQueryValue = "access_denied"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (*adapter.Session, error)
	CurrentSession(ctx context.Context, sessionToken string) (*adapter.SessionAndUser, error)
	SignOut(ctx context.Context, sessionToken string) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	Cookie        cookie.Options
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// SignIn はGoogle OAuthフローを開始する。
// GET /api/auth/signin/google
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	// stateをCookieに保存（CSRF対策）
	storeFor(w, r, h.config.Cookie).Set(&http.Cookie{
		Name:   cookie.OAuthStateName,
		Value:  state,
		MaxAge: 600, // 10分
	})

	http.Redirect(w, r, h.service.GetLoginURL(state), http.StatusTemporaryRedirect)
}

// Callback はOAuthコールバックを処理する。
// GET /api/auth/callback/google?code=xxx&state=yyy
// 成功・失敗ともにカレンダー連携ページへリダイレクトし、失敗時はerrorクエリを付ける。
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	store := storeFor(w, r, h.config.Cookie)
	q := r.URL.Query()

	// 1. stateの検証（CSRF対策）
	state := q.Get("state")
	stored, ok := store.Get(cookie.OAuthStateName)
	store.Delete(cookie.OAuthStateName)
	if !ok || state == "" || stored != state {
		slog.Warn("oauth state mismatch")
		h.redirectWithError(w, r, callbackErrorState)
		return
	}

	// 2. 同意画面で拒否された場合
	if e := q.Get("error"); e != "" {
		slog.Warn("oauth consent rejected", slog.String("error", e))
		code := callbackErrorGeneric
		if e == googleAccessDeniedQueryValue {
			code = callbackErrorPermissions
		}
		h.redirectWithError(w, r, code)
		return
	}

	code := q.Get("code")
	if code == "" {
		h.redirectWithError(w, r, callbackErrorGeneric)
		return
	}

	// 3. 認証処理
	session, err := h.service.HandleCallback(r.Context(), code)
	if err != nil {
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		h.redirectWithError(w, r, callbackErrorCode(err))
		return
	}

	// 4. セッションCookieを設定
	store.Set(&http.Cookie{
		Name:    cookie.SessionTokenName,
		Value:   session.SessionToken,
		MaxAge:  h.config.SessionMaxAge,
		Expires: session.Expires,
	})

	http.Redirect(w, r, onboarding.ConnectCalendar.Path(), http.StatusTemporaryRedirect)
}

// callbackErrorCode はサインイン失敗の原因をerrorクエリのコードに変換する。
func callbackErrorCode(err error) string {
	switch {
	case model.HasCode(err, model.ErrCodeCalendarPermissionMissing):
		return callbackErrorPermissions
	case model.HasCode(err, model.ErrCodeOAuthAccountNotLinked):
		return callbackErrorNotLinked
	case model.HasCode(err, model.ErrCodeUserIDCookieMissing):
		return callbackErrorCreateAccount
	default:
		return callbackErrorGeneric
	}
}

func (h *AuthHandler) redirectWithError(w http.ResponseWriter, r *http.Request, code string) {
	target := onboarding.ConnectCalendar.Path() + "?" + url.Values{"error": {code}}.Encode()
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

type sessionResponse struct {
	User    adapter.User `json:"user"`
	Expires time.Time    `json:"expires"`
}

// Session は現在のセッションを返す。未ログインの場合は空オブジェクトを返す。
// GET /api/auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	// セッションミドルウェアで解決済みならそれを使う
	found, resolved := middleware.SessionFromContext(r.Context())
	if !resolved {
		token, _ := storeFor(w, r, h.config.Cookie).Get(cookie.SessionTokenName)

		var err error
		found, err = h.service.CurrentSession(r.Context(), token)
		if err != nil {
			slog.Error("failed to get current session", slog.String("error", err.Error()))
			writeJSON(w, http.StatusOK, struct{}{})
			return
		}
	}
	if found == nil {
		writeJSON(w, http.StatusOK, struct{}{})
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		User:    found.User,
		Expires: found.Session.Expires,
	})
}

// SignOut はセッションを破棄する。
// POST /api/auth/signout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	store := storeFor(w, r, h.config.Cookie)

	if token, ok := store.Get(cookie.SessionTokenName); ok {
		if err := h.service.SignOut(r.Context(), token); err != nil {
			slog.Error("failed to sign out", slog.String("error", err.Error()))
			// 失敗してもCookieはクリアする
		}
	}
	store.Delete(cookie.SessionTokenName)

	w.WriteHeader(http.StatusNoContent)
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
