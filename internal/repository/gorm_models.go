package repository

import (
	"time"

	"github.com/hitoshi/ignitecall/internal/model"
)

// gormUser はGORM用のusersテーブル行。スキーマはマイグレーションで管理する。
type gormUser struct {
	ID            string `gorm:"primaryKey;type:uuid"`
	Name          string
	Username      string `gorm:"uniqueIndex"`
	Email         *string
	AvatarURL     *string
	EmailVerified *time.Time
	CreatedAt     time.Time
}

func (gormUser) TableName() string { return "users" }

func (u *gormUser) toModel() *model.User {
	return &model.User{
		ID:            u.ID,
		Name:          u.Name,
		Username:      u.Username,
		Email:         u.Email,
		AvatarURL:     u.AvatarURL,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
	}
}

// gormAccount はGORM用のaccountsテーブル行。
type gormAccount struct {
	ID                string `gorm:"primaryKey;type:uuid"`
	UserID            string `gorm:"type:uuid"`
	Type              string
	Provider          string
	ProviderAccountID string
	RefreshToken      *string
	AccessToken       *string
	ExpiresAt         *int64
	TokenType         *string
	Scope             *string
	IDToken           *string
	SessionState      *string
}

func (gormAccount) TableName() string { return "accounts" }

func gormAccountFromModel(a *model.Account) *gormAccount {
	return &gormAccount{
		ID:                a.ID,
		UserID:            a.UserID,
		Type:              a.Type,
		Provider:          a.Provider,
		ProviderAccountID: a.ProviderAccountID,
		RefreshToken:      a.RefreshToken,
		AccessToken:       a.AccessToken,
		ExpiresAt:         a.ExpiresAt,
		TokenType:         a.TokenType,
		Scope:             a.Scope,
		IDToken:           a.IDToken,
		SessionState:      a.SessionState,
	}
}

// gormSession はGORM用のsessionsテーブル行。
// Userはgetでのみ使用するPreload用の関連。
type gormSession struct {
	ID           string `gorm:"primaryKey;type:uuid"`
	SessionToken string `gorm:"uniqueIndex"`
	UserID       string `gorm:"type:uuid"`
	Expires      time.Time
	User         gormUser `gorm:"foreignKey:UserID"`
}

func (gormSession) TableName() string { return "sessions" }

func (s *gormSession) toModel() *model.Session {
	return &model.Session{
		ID:           s.ID,
		SessionToken: s.SessionToken,
		UserID:       s.UserID,
		Expires:      s.Expires,
	}
}
