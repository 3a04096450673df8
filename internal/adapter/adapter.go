// Package adapter は認証フローが利用するセッションアダプタを提供する。
//
// アダプタは10個のメソッドからなる固定の能力セットで、
// ユーザー・OAuthアカウント・セッションの永続化を認証フローから切り離す。
// 永続化エラーは変換せずにそのまま呼び出し元へ返す。
package adapter

import (
	"context"
	"time"
)

// User はアダプタ境界でのユーザー表現。
// EmailVerifiedは常にnil（メール検証は行わない）。
type User struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	AvatarURL     string     `json:"avatar_url"`
	EmailVerified *time.Time `json:"emailVerified"`
}

// Account はアダプタ境界でのOAuthアカウント表現。
// フィールド名は認証フレームワーク側のsnake_caseの命名に従う。
type Account struct {
	UserID            string `json:"userId"`
	Type              string `json:"type"`
	Provider          string `json:"provider"`
	ProviderAccountID string `json:"providerAccountId"`
	RefreshToken      string `json:"refresh_token,omitempty"`
	AccessToken       string `json:"access_token,omitempty"`
	ExpiresAt         *int64 `json:"expires_at,omitempty"`
	TokenType         string `json:"token_type,omitempty"`
	Scope             string `json:"scope,omitempty"`
	IDToken           string `json:"id_token,omitempty"`
	SessionState      string `json:"session_state,omitempty"`
}

// Session はアダプタ境界でのセッション表現。
type Session struct {
	SessionToken string    `json:"sessionToken"`
	UserID       string    `json:"userId"`
	Expires      time.Time `json:"expires"`
}

// SessionAndUser はGetSessionAndUserの戻り値。
type SessionAndUser struct {
	Session Session `json:"session"`
	User    User    `json:"user"`
}

// Adapter はセッションアダプタの能力セット。
// Get系メソッドは対象が存在しない場合にnil, nilを返す。
type Adapter interface {
	// CreateUser はContext内のCookieStoreから仮登録ユーザーIDを取得し、
	// その行にプロフィールを書き込んで確定させる。
	CreateUser(ctx context.Context, user User) (*User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByAccount(ctx context.Context, provider, providerAccountID string) (*User, error)
	UpdateUser(ctx context.Context, user User) (*User, error)
	LinkAccount(ctx context.Context, account Account) error
	CreateSession(ctx context.Context, session Session) (*Session, error)
	GetSessionAndUser(ctx context.Context, sessionToken string) (*SessionAndUser, error)
	UpdateSession(ctx context.Context, session Session) (*Session, error)
	DeleteSession(ctx context.Context, sessionToken string) error
}
