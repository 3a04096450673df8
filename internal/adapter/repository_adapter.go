package adapter

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hitoshi/ignitecall/internal/cookie"
	"github.com/hitoshi/ignitecall/internal/metrics"
	"github.com/hitoshi/ignitecall/internal/model"
	"github.com/hitoshi/ignitecall/internal/repository"
)

// RepositoryAdapter はrepository.Storeを使用したAdapter実装。
// バックエンド（database/sqlまたはGORM）は生成時に渡すStoreで決まる。
type RepositoryAdapter struct {
	users    repository.UserRepository
	accounts repository.AccountRepository
	sessions repository.SessionRepository
	metrics  metrics.MetricsCollector
}

// NewRepositoryAdapter はRepositoryAdapterを生成する。
// collectorがnilの場合はメトリクスを記録しない。
func NewRepositoryAdapter(store repository.Store, collector metrics.MetricsCollector) *RepositoryAdapter {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &RepositoryAdapter{
		users:    store.Users,
		accounts: store.Accounts,
		sessions: store.Sessions,
		metrics:  collector,
	}
}

func (a *RepositoryAdapter) record(method string, err error) {
	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = metrics.OutcomeError
	}
	a.metrics.RecordAdapterCall(method, outcome)
}

// CreateUser は仮登録ユーザーを確定させる。
// 新しい行は作らず、Cookieの仮登録IDが指す行にname/email/avatar_urlを書き込む。
// 成功時は仮登録Cookieを削除する。
func (a *RepositoryAdapter) CreateUser(ctx context.Context, user User) (_ *User, err error) {
	defer func() { a.record("CreateUser", err) }()

	store, ok := cookie.FromContext(ctx)
	if !ok {
		return nil, model.NewUserIDCookieMissingError()
	}
	userID, ok := store.Get(cookie.ProvisionalUserName)
	if !ok {
		return nil, model.NewUserIDCookieMissingError()
	}

	finalized, err := a.users.FinalizeProvisional(ctx, userID, repository.ProfileUpdate{
		Name:      user.Name,
		Email:     model.StringPtr(user.Email),
		AvatarURL: model.StringPtr(user.AvatarURL),
	})
	if err != nil {
		return nil, err
	}

	store.Delete(cookie.ProvisionalUserName)

	slog.Info("provisional user finalized",
		slog.String("user_id", finalized.ID),
		slog.String("username", finalized.Username),
	)

	out := toAdapterUser(finalized)
	return &out, nil
}

// GetUser はIDでユーザーを取得する。
func (a *RepositoryAdapter) GetUser(ctx context.Context, id string) (_ *User, err error) {
	defer func() { a.record("GetUser", err) }()

	u, err := a.users.FindByID(ctx, id)
	return optionalUser(u, err)
}

// GetUserByEmail はメールアドレスでユーザーを取得する。
func (a *RepositoryAdapter) GetUserByEmail(ctx context.Context, email string) (_ *User, err error) {
	defer func() { a.record("GetUserByEmail", err) }()

	u, err := a.users.FindByEmail(ctx, email)
	return optionalUser(u, err)
}

// GetUserByAccount はプロバイダーアカウントに紐付くユーザーを取得する。
func (a *RepositoryAdapter) GetUserByAccount(ctx context.Context, provider, providerAccountID string) (_ *User, err error) {
	defer func() { a.record("GetUserByAccount", err) }()

	u, err := a.accounts.FindUserByProviderAccount(ctx, provider, providerAccountID)
	return optionalUser(u, err)
}

// UpdateUser はuser.IDの行のname/email/avatar_urlを更新する。
func (a *RepositoryAdapter) UpdateUser(ctx context.Context, user User) (_ *User, err error) {
	defer func() { a.record("UpdateUser", err) }()

	updated, err := a.users.Update(ctx, user.ID, repository.ProfileUpdate{
		Name:      user.Name,
		Email:     model.StringPtr(user.Email),
		AvatarURL: model.StringPtr(user.AvatarURL),
	})
	if err != nil {
		return nil, err
	}
	out := toAdapterUser(updated)
	return &out, nil
}

// LinkAccount はOAuthアカウントをユーザーに紐付ける。
func (a *RepositoryAdapter) LinkAccount(ctx context.Context, account Account) (err error) {
	defer func() { a.record("LinkAccount", err) }()

	return a.accounts.Create(ctx, &model.Account{
		ID:                uuid.NewString(),
		UserID:            account.UserID,
		Type:              account.Type,
		Provider:          account.Provider,
		ProviderAccountID: account.ProviderAccountID,
		RefreshToken:      model.StringPtr(account.RefreshToken),
		AccessToken:       model.StringPtr(account.AccessToken),
		ExpiresAt:         account.ExpiresAt,
		TokenType:         model.StringPtr(account.TokenType),
		Scope:             model.StringPtr(account.Scope),
		IDToken:           model.StringPtr(account.IDToken),
		SessionState:      model.StringPtr(account.SessionState),
	})
}

// CreateSession はセッションを作成し、入力と同じ値を返す。
func (a *RepositoryAdapter) CreateSession(ctx context.Context, session Session) (_ *Session, err error) {
	defer func() { a.record("CreateSession", err) }()

	if err := a.sessions.Create(ctx, &model.Session{
		ID:           uuid.NewString(),
		SessionToken: session.SessionToken,
		UserID:       session.UserID,
		Expires:      session.Expires,
	}); err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSessionAndUser はセッショントークンでセッションと所有ユーザーを取得する。
// 期限切れの判定は行わない。
func (a *RepositoryAdapter) GetSessionAndUser(ctx context.Context, sessionToken string) (_ *SessionAndUser, err error) {
	defer func() { a.record("GetSessionAndUser", err) }()

	found, err := a.sessions.FindWithUser(ctx, sessionToken)
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, nil
	}
	return &SessionAndUser{
		Session: toAdapterSession(found.Session),
		User:    toAdapterUser(found.User),
	}, nil
}

// UpdateSession はセッショントークンが一致する行のuser_idとexpiresを更新する。
func (a *RepositoryAdapter) UpdateSession(ctx context.Context, session Session) (_ *Session, err error) {
	defer func() { a.record("UpdateSession", err) }()

	updated, err := a.sessions.Update(ctx, &model.Session{
		SessionToken: session.SessionToken,
		UserID:       session.UserID,
		Expires:      session.Expires,
	})
	if err != nil {
		return nil, err
	}
	out := toAdapterSession(updated)
	return &out, nil
}

// DeleteSession はセッションを削除する。
func (a *RepositoryAdapter) DeleteSession(ctx context.Context, sessionToken string) (err error) {
	defer func() { a.record("DeleteSession", err) }()

	return a.sessions.DeleteByToken(ctx, sessionToken)
}

func optionalUser(u *model.User, err error) (*User, error) {
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, nil
	}
	out := toAdapterUser(u)
	return &out, nil
}

func toAdapterUser(u *model.User) User {
	return User{
		ID:        u.ID,
		Name:      u.Name,
		Username:  u.Username,
		Email:     model.StringValue(u.Email),
		AvatarURL: model.StringValue(u.AvatarURL),
	}
}

func toAdapterSession(s *model.Session) Session {
	return Session{
		SessionToken: s.SessionToken,
		UserID:       s.UserID,
		Expires:      s.Expires,
	}
}

// compile-time interface check
var _ Adapter = (*RepositoryAdapter)(nil)
