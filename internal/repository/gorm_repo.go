package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/hitoshi/ignitecall/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormUserRepo はGORMを使用したユーザーリポジトリ。
// gorm.ConfigのTranslateErrorを有効にしたDBを渡すこと。
type GormUserRepo struct {
	db *gorm.DB
}

// NewGormUserRepo はGormUserRepoを生成する。
func NewGormUserRepo(db *gorm.DB) *GormUserRepo {
	return &GormUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *GormUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if !validID(id) {
		return nil, nil
	}
	return r.findOne(ctx, "id = ?", id)
}

// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
func (r *GormUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, "email = ?", email)
}

// FindByUsername はユーザー名でユーザーを取得する。見つからない場合はnilを返す。
func (r *GormUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.findOne(ctx, "username = ?", username)
}

func (r *GormUserRepo) findOne(ctx context.Context, query string, arg any) (*model.User, error) {
	var row gormUser
	err := r.db.WithContext(ctx).Where(query, arg).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return row.toModel(), nil
}

// Create は仮登録ユーザーを作成する。
func (r *GormUserRepo) Create(ctx context.Context, user *model.User) error {
	row := gormUser{
		ID:       user.ID,
		Name:     user.Name,
		Username: user.Username,
	}
	err := r.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrUsernameTaken
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	user.CreatedAt = row.CreatedAt
	return nil
}

// FinalizeProvisional は仮登録状態（email IS NULL）のユーザーにプロフィールを書き込む。
func (r *GormUserRepo) FinalizeProvisional(ctx context.Context, id string, update ProfileUpdate) (*model.User, error) {
	return r.update(ctx, id, update, "id = ? AND email IS NULL")
}

// Update は指定IDのユーザーのname/email/avatar_urlを更新する。
func (r *GormUserRepo) Update(ctx context.Context, id string, update ProfileUpdate) (*model.User, error) {
	return r.update(ctx, id, update, "id = ?")
}

func (r *GormUserRepo) update(ctx context.Context, id string, update ProfileUpdate, where string) (*model.User, error) {
	if !validID(id) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	var rows []gormUser
	res := r.db.WithContext(ctx).
		Model(&rows).
		Clauses(clause.Returning{}).
		Where(where, id).
		Updates(map[string]any{
			"name":       update.Name,
			"email":      update.Email,
			"avatar_url": update.AvatarURL,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update user: %w", res.Error)
	}
	if res.RowsAffected == 0 || len(rows) == 0 {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return rows[0].toModel(), nil
}

// GormAccountRepo はGORMを使用したOAuthアカウントリポジトリ。
type GormAccountRepo struct {
	db *gorm.DB
}

// NewGormAccountRepo はGormAccountRepoを生成する。
func NewGormAccountRepo(db *gorm.DB) *GormAccountRepo {
	return &GormAccountRepo{db: db}
}

// Create はアカウントを作成する。
func (r *GormAccountRepo) Create(ctx context.Context, account *model.Account) error {
	if err := r.db.WithContext(ctx).Create(gormAccountFromModel(account)).Error; err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

// FindUserByProviderAccount はproviderとprovider_account_idで紐付くユーザーを取得する。
func (r *GormAccountRepo) FindUserByProviderAccount(ctx context.Context, provider, providerAccountID string) (*model.User, error) {
	var row gormUser
	err := r.db.WithContext(ctx).
		Select("users.*").
		Joins("JOIN accounts ON accounts.user_id = users.id").
		Where("accounts.provider = ? AND accounts.provider_account_id = ?", provider, providerAccountID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by account: %w", err)
	}
	return row.toModel(), nil
}

// GormSessionRepo はGORMを使用したセッションリポジトリ。
type GormSessionRepo struct {
	db *gorm.DB
}

// NewGormSessionRepo はGormSessionRepoを生成する。
func NewGormSessionRepo(db *gorm.DB) *GormSessionRepo {
	return &GormSessionRepo{db: db}
}

// Create はセッションを作成する。
func (r *GormSessionRepo) Create(ctx context.Context, session *model.Session) error {
	row := gormSession{
		ID:           session.ID,
		SessionToken: session.SessionToken,
		UserID:       session.UserID,
		Expires:      session.Expires,
	}
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindWithUser はセッションと所有ユーザーをPreloadで取得する。見つからない場合はnilを返す。
func (r *GormSessionRepo) FindWithUser(ctx context.Context, sessionToken string) (*model.SessionAndUser, error) {
	var row gormSession
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("session_token = ?", sessionToken).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return &model.SessionAndUser{Session: row.toModel(), User: row.User.toModel()}, nil
}

// Update はセッショントークンをキーにuser_idとexpiresを更新する。
func (r *GormSessionRepo) Update(ctx context.Context, session *model.Session) (*model.Session, error) {
	var rows []gormSession
	res := r.db.WithContext(ctx).
		Model(&rows).
		Clauses(clause.Returning{}).
		Where("session_token = ?", session.SessionToken).
		Updates(map[string]any{
			"user_id": session.UserID,
			"expires": session.Expires,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update session: %w", res.Error)
	}
	if res.RowsAffected == 0 || len(rows) == 0 {
		return nil, fmt.Errorf("session: %w", ErrNotFound)
	}
	return rows[0].toModel(), nil
}

// DeleteByToken はセッショントークンでセッションを削除する。
func (r *GormSessionRepo) DeleteByToken(ctx context.Context, sessionToken string) error {
	res := r.db.WithContext(ctx).
		Where("session_token = ?", sessionToken).
		Delete(&gormSession{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("session: %w", ErrNotFound)
	}
	return nil
}

// NewGormStore はGORMバックエンドのStoreを生成する。
func NewGormStore(db *gorm.DB) Store {
	return Store{
		Users:    NewGormUserRepo(db),
		Accounts: NewGormAccountRepo(db),
		Sessions: NewGormSessionRepo(db),
	}
}

// compile-time interface check
var (
	_ UserRepository    = (*GormUserRepo)(nil)
	_ AccountRepository = (*GormAccountRepo)(nil)
	_ SessionRepository = (*GormSessionRepo)(nil)
)
