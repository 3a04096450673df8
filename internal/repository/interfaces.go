// Package repository はデータ永続化のインターフェースを定義する。
//
// 実装は database/sql + lib/pq によるもの（Postgres*Repo）と
// GORMによるもの（Gorm*Repo）の2系統を提供する。
package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/hitoshi/ignitecall/internal/model"
)

var (
	// ErrNotFound は更新・削除対象の行が存在しない場合に返される。
	ErrNotFound = errors.New("record not found")

	// ErrUsernameTaken はusernameの一意制約違反時に返される。
	ErrUsernameTaken = errors.New("username already taken")
)

// validID はidがusers.idの型（UUID）として解釈できるかを返す。
// 解釈できないIDはどの行にも一致しないため、DBに問い合わせずに未検出として扱う。
func validID(id string) bool {
	return uuid.Validate(id) == nil
}

// ProfileUpdate はユーザーのプロフィール更新内容。
type ProfileUpdate struct {
	Name      string
	Email     *string
	AvatarURL *string
}

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを取得する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// Create は仮登録ユーザーを作成する。
	// usernameの一意制約違反はErrUsernameTakenを返す。
	Create(ctx context.Context, user *model.User) error

	// FinalizeProvisional は仮登録状態（email IS NULL）のユーザーにプロフィールを書き込む。
	// 対象行が存在しない、または既に確定済みの場合はErrNotFoundを返す。
	FinalizeProvisional(ctx context.Context, id string, update ProfileUpdate) (*model.User, error)

	// Update は指定IDのユーザーのname/email/avatar_urlを更新する。
	// 対象行が存在しない場合はErrNotFoundを返す。
	Update(ctx context.Context, id string, update ProfileUpdate) (*model.User, error)
}

// AccountRepository はOAuthアカウント紐付け情報の永続化インターフェース。
type AccountRepository interface {
	// Create はアカウントを作成する。
	Create(ctx context.Context, account *model.Account) error

	// FindUserByProviderAccount はproviderとprovider_account_idで紐付くユーザーを取得する。
	// 見つからない場合はnilを返す。
	FindUserByProviderAccount(ctx context.Context, provider, providerAccountID string) (*model.User, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error

	// FindWithUser はセッショントークンでセッションと所有ユーザーを取得する。
	// 見つからない場合はnilを返す。期限切れの判定は呼び出し側で行う。
	FindWithUser(ctx context.Context, sessionToken string) (*model.SessionAndUser, error)

	// Update はセッショントークンをキーにuser_idとexpiresを更新する。
	// 対象行が存在しない場合はErrNotFoundを返す。
	Update(ctx context.Context, session *model.Session) (*model.Session, error)

	// DeleteByToken はセッショントークンでセッションを削除する。
	// 対象行が存在しない場合はErrNotFoundを返す。
	DeleteByToken(ctx context.Context, sessionToken string) error
}

// Store は1つの永続化バックエンドが提供するリポジトリ群。
type Store struct {
	Users    UserRepository
	Accounts AccountRepository
	Sessions SessionRepository
}
