package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/ignitecall/internal/model"
)

// PostgresAccountRepo はPostgreSQLを使用したOAuthアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

// Create はアカウントを作成する。
// (provider, provider_account_id) の一意制約違反はそのままエラーとして返す。
func (r *PostgresAccountRepo) Create(ctx context.Context, account *model.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (
			id, user_id, type, provider, provider_account_id,
			refresh_token, access_token, expires_at, token_type, scope, id_token, session_state
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		account.ID, account.UserID, account.Type, account.Provider, account.ProviderAccountID,
		account.RefreshToken, account.AccessToken, account.ExpiresAt, account.TokenType,
		account.Scope, account.IDToken, account.SessionState,
	)
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

// FindUserByProviderAccount はproviderとprovider_account_idで紐付くユーザーを取得する。
// 見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindUserByProviderAccount(ctx context.Context, provider, providerAccountID string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT u.id, u.name, u.username, u.email, u.avatar_url, u.email_verified, u.created_at
		 FROM accounts a
		 JOIN users u ON u.id = a.user_id
		 WHERE a.provider = $1 AND a.provider_account_id = $2`,
		provider, providerAccountID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by account: %w", err)
	}
	return user, nil
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
