// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/ignitecall/internal/adapter"
	"github.com/hitoshi/ignitecall/internal/cookie"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
	userIDContextKey = contextKey("user_id")
	// sessionContextKey は解決済みのセッション（未ログインならnil）を格納するためのキー。
	sessionContextKey = contextKey("session")
)

// SessionLoader はセッショントークンから有効なセッションを解決するインターフェース。
// auth.Serviceが実装する。
type SessionLoader interface {
	CurrentSession(ctx context.Context, sessionToken string) (*adapter.SessionAndUser, error)
}

// NewCookieStoreMiddleware はリクエストごとのcookie.Storeをコンテキストに注入するミドルウェアを返す。
// セッションアダプタはこのStoreを通して仮登録ユーザーCookieを読み書きする。
func NewCookieStoreMiddleware(opts cookie.Options) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			store := cookie.NewHTTPStore(w, r, opts)
			next.ServeHTTP(w, r.WithContext(cookie.WithStore(r.Context(), store)))
		})
	}
}

// NewSessionMiddleware はセッションCookieからログイン中のユーザーを解決し、
// セッションとユーザーIDをリクエストコンテキストに注入するミドルウェアを返す。
// 未ログインのリクエストもそのまま通す。解決に失敗した場合は何も注入しない。
func NewSessionMiddleware(loader SessionLoader) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := r.Cookie(cookie.SessionTokenName)
			if err != nil || c.Value == "" {
				next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), nil)))
				return
			}

			found, err := loader.CurrentSession(r.Context(), c.Value)
			if err != nil {
				slog.Error("failed to load session",
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), found)))
		})
	}
}

// ContextWithSession は解決済みのセッションをコンテキストに注入する。
// foundがnilの場合は未ログインとして解決済みであることを表す。
func ContextWithSession(ctx context.Context, found *adapter.SessionAndUser) context.Context {
	ctx = context.WithValue(ctx, sessionContextKey, found)
	if found != nil {
		ctx = context.WithValue(ctx, userIDContextKey, found.User.ID)
	}
	return ctx
}

// SessionFromContext はセッションミドルウェアが解決したセッションを返す。
// 2番目の戻り値は解決済みかどうかを表し、未ログインの場合は(nil, true)となる。
func SessionFromContext(ctx context.Context) (*adapter.SessionAndUser, bool) {
	found, ok := ctx.Value(sessionContextKey).(*adapter.SessionAndUser)
	return found, ok
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアでログイン中と判定されたリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
