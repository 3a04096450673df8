package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/ignitecall/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create はセッションを作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, session_token, user_id, expires)
		 VALUES ($1, $2, $3, $4)`,
		session.ID, session.SessionToken, session.UserID, session.Expires,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindWithUser はセッショントークンでセッションと所有ユーザーをJOINして取得する。
// 見つからない場合はnilを返す。期限切れセッションも返す。
func (r *PostgresSessionRepo) FindWithUser(ctx context.Context, sessionToken string) (*model.SessionAndUser, error) {
	var session model.Session

	row := r.db.QueryRowContext(ctx,
		`SELECT s.id, s.session_token, s.user_id, s.expires,
		        u.id, u.name, u.username, u.email, u.avatar_url, u.email_verified, u.created_at
		 FROM sessions s
		 JOIN users u ON u.id = s.user_id
		 WHERE s.session_token = $1`,
		sessionToken,
	)

	// セッション列を先に読み、残りをscanUserに委譲する
	user, err := scanUser(scanFunc(func(dest ...any) error {
		all := append([]any{&session.ID, &session.SessionToken, &session.UserID, &session.Expires}, dest...)
		return row.Scan(all...)
	}))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	return &model.SessionAndUser{Session: &session, User: user}, nil
}

// Update はセッショントークンをキーにuser_idとexpiresを更新する。
func (r *PostgresSessionRepo) Update(ctx context.Context, session *model.Session) (*model.Session, error) {
	updated := &model.Session{}
	err := r.db.QueryRowContext(ctx,
		`UPDATE sessions SET user_id = $2, expires = $3
		 WHERE session_token = $1
		 RETURNING id, session_token, user_id, expires`,
		session.SessionToken, session.UserID, session.Expires,
	).Scan(&updated.ID, &updated.SessionToken, &updated.UserID, &updated.Expires)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	return updated, nil
}

// DeleteByToken はセッショントークンでセッションを削除する。
func (r *PostgresSessionRepo) DeleteByToken(ctx context.Context, sessionToken string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE session_token = $1`,
		sessionToken,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("session: %w", ErrNotFound)
	}
	return nil
}

// scanFunc は関数をrowScannerとして扱うためのアダプタ。
type scanFunc func(dest ...any) error

// Scan はrowScannerを実装する。
func (f scanFunc) Scan(dest ...any) error {
	return f(dest...)
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
