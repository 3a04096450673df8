package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/ignitecall/internal/model"
	"github.com/lib/pq"
)

const (
	// pqUniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
	pqUniqueViolation = "23505"

	usernameUniqueConstraint = "users_username_key"
)

const userColumns = `id, name, username, email, avatar_url, email_verified, created_at`

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanUser はusers行をmodel.Userに読み込む。
func scanUser(row rowScanner) (*model.User, error) {
	var (
		user          model.User
		email         sql.NullString
		avatarURL     sql.NullString
		emailVerified sql.NullTime
	)
	if err := row.Scan(&user.ID, &user.Name, &user.Username, &email, &avatarURL, &emailVerified, &user.CreatedAt); err != nil {
		return nil, err
	}
	if email.Valid {
		user.Email = &email.String
	}
	if avatarURL.Valid {
		user.AvatarURL = &avatarURL.String
	}
	if emailVerified.Valid {
		user.EmailVerified = &emailVerified.Time
	}
	return &user, nil
}

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if !validID(id) {
		return nil, nil
	}
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		email,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// FindByUsername はユーザー名でユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`,
		username,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by username: %w", err)
	}
	return user, nil
}

// Create は仮登録ユーザー（id, name, usernameのみ）を作成する。
// created_atはDBの現在時刻で埋め、userに書き戻す。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (id, name, username)
		 VALUES ($1, $2, $3)
		 RETURNING created_at`,
		user.ID, user.Name, user.Username,
	).Scan(&user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, usernameUniqueConstraint) {
			return ErrUsernameTaken
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// FinalizeProvisional は仮登録状態のユーザーにname/email/avatar_urlを書き込む。
func (r *PostgresUserRepo) FinalizeProvisional(ctx context.Context, id string, update ProfileUpdate) (*model.User, error) {
	if !validID(id) {
		return nil, fmt.Errorf("provisional user %s: %w", id, ErrNotFound)
	}
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`UPDATE users SET name = $2, email = $3, avatar_url = $4
		 WHERE id = $1 AND email IS NULL
		 RETURNING `+userColumns,
		id, update.Name, update.Email, update.AvatarURL,
	))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("provisional user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to finalize provisional user: %w", err)
	}
	return user, nil
}

// Update は指定IDのユーザーのname/email/avatar_urlを更新する。
func (r *PostgresUserRepo) Update(ctx context.Context, id string, update ProfileUpdate) (*model.User, error) {
	if !validID(id) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`UPDATE users SET name = $2, email = $3, avatar_url = $4
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, update.Name, update.Email, update.AvatarURL,
	))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

// isUniqueViolation はerrが指定制約の一意制約違反かどうかを判定する。
// constraintが空の場合は制約名を問わない。
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if pqErr.Code != pqUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
