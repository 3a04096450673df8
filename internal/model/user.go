// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// ユーザー名登録時にはID・名前・ユーザー名のみを持つ仮登録状態で作成され、
// Google連携の完了時にメールアドレスとアバターURLが補完される。
type User struct {
	ID            string
	Name          string
	Username      string
	Email         *string
	AvatarURL     *string
	EmailVerified *time.Time // 常にnil。メール検証は行わない
	CreatedAt     time.Time
}

// IsProvisional はメールアドレス未設定の仮登録ユーザーかどうかを返す。
func (u *User) IsProvisional() bool {
	return u.Email == nil || *u.Email == ""
}

// Account は外部OAuthプロバイダーのアカウントとユーザーの紐付けを表す。
// (Provider, ProviderAccountID) は一意。作成後に更新されることはない。
type Account struct {
	ID                string
	UserID            string
	Type              string
	Provider          string
	ProviderAccountID string
	RefreshToken      *string
	AccessToken       *string
	ExpiresAt         *int64 // UNIX秒
	TokenType         *string
	Scope             *string
	IDToken           *string
	SessionState      *string
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID           string
	SessionToken string
	UserID       string
	Expires      time.Time
}

// SessionAndUser はセッションと所有ユーザーの組。
type SessionAndUser struct {
	Session *Session
	User    *User
}

// StringPtr は空文字列をnilとして扱いポインタに変換する。
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringValue はnilを空文字列として扱いポインタを値に変換する。
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
