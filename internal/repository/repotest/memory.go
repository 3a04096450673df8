// Package repotest はテスト用のインメモリrepository実装を提供する。
package repotest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hitoshi/ignitecall/internal/model"
	"github.com/hitoshi/ignitecall/internal/repository"
)

// Memory はusers/accounts/sessionsをマップで保持するインメモリストア。
// 一意制約と仮登録確定の条件はPostgreSQL実装と同じに振る舞う。
type Memory struct {
	mu       sync.Mutex
	users    map[string]*model.User
	accounts map[string]*model.Account
	sessions map[string]*model.Session

	// Writes は書き込み操作の回数。
	Writes int
	// Now はcreated_atに使う時刻関数。
	Now func() time.Time
}

// NewMemory は空のMemoryを生成する。
func NewMemory() *Memory {
	return &Memory{
		users:    make(map[string]*model.User),
		accounts: make(map[string]*model.Account),
		sessions: make(map[string]*model.Session),
		Now:      time.Now,
	}
}

// Store はMemoryを各リポジトリインターフェースとして束ねる。
func (m *Memory) Store() repository.Store {
	return repository.Store{
		Users:    (*memUsers)(m),
		Accounts: (*memAccounts)(m),
		Sessions: (*memSessions)(m),
	}
}

// UserCount は保持しているユーザー数を返す。
func (m *Memory) UserCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

// PutUser はユーザーを直接登録する。
func (m *Memory) PutUser(u model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = &u
}

func copyUser(u *model.User) *model.User {
	c := *u
	return &c
}

type memUsers Memory

func (r *memUsers) FindByID(ctx context.Context, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		return copyUser(u), nil
	}
	return nil, nil
}

func (r *memUsers) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email != nil && *u.Email == email {
			return copyUser(u), nil
		}
	}
	return nil, nil
}

func (r *memUsers) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			return copyUser(u), nil
		}
	}
	return nil, nil
}

func (r *memUsers) Create(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == user.Username {
			return repository.ErrUsernameTaken
		}
	}
	user.CreatedAt = r.Now()
	r.users[user.ID] = copyUser(user)
	r.Writes++
	return nil
}

func (r *memUsers) FinalizeProvisional(ctx context.Context, id string, update repository.ProfileUpdate) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok || u.Email != nil {
		return nil, fmt.Errorf("provisional user %s: %w", id, repository.ErrNotFound)
	}
	r.apply(u, update)
	return copyUser(u), nil
}

func (r *memUsers) Update(ctx context.Context, id string, update repository.ProfileUpdate) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, repository.ErrNotFound)
	}
	r.apply(u, update)
	return copyUser(u), nil
}

func (r *memUsers) apply(u *model.User, update repository.ProfileUpdate) {
	u.Name = update.Name
	u.Email = update.Email
	u.AvatarURL = update.AvatarURL
	r.Writes++
}

type memAccounts Memory

func accountKey(provider, providerAccountID string) string {
	return provider + "\x00" + providerAccountID
}

func (r *memAccounts) Create(ctx context.Context, account *model.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := accountKey(account.Provider, account.ProviderAccountID)
	if _, exists := r.accounts[key]; exists {
		return fmt.Errorf("failed to insert account: duplicate %s", key)
	}
	if _, ok := r.users[account.UserID]; !ok {
		return fmt.Errorf("failed to insert account: unknown user %s", account.UserID)
	}
	c := *account
	r.accounts[key] = &c
	r.Writes++
	return nil
}

func (r *memAccounts) FindUserByProviderAccount(ctx context.Context, provider, providerAccountID string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[accountKey(provider, providerAccountID)]
	if !ok {
		return nil, nil
	}
	if u, ok := r.users[a.UserID]; ok {
		return copyUser(u), nil
	}
	return nil, nil
}

type memSessions Memory

func (r *memSessions) Create(ctx context.Context, session *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[session.SessionToken]; exists {
		return fmt.Errorf("failed to create session: duplicate token")
	}
	c := *session
	r.sessions[session.SessionToken] = &c
	r.Writes++
	return nil
}

func (r *memSessions) FindWithUser(ctx context.Context, sessionToken string) (*model.SessionAndUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionToken]
	if !ok {
		return nil, nil
	}
	u, ok := r.users[s.UserID]
	if !ok {
		return nil, nil
	}
	c := *s
	return &model.SessionAndUser{Session: &c, User: copyUser(u)}, nil
}

func (r *memSessions) Update(ctx context.Context, session *model.Session) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[session.SessionToken]
	if !ok {
		return nil, fmt.Errorf("session: %w", repository.ErrNotFound)
	}
	s.UserID = session.UserID
	s.Expires = session.Expires
	r.Writes++
	c := *s
	return &c, nil
}

func (r *memSessions) DeleteByToken(ctx context.Context, sessionToken string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionToken]; !ok {
		return fmt.Errorf("session: %w", repository.ErrNotFound)
	}
	delete(r.sessions, sessionToken)
	r.Writes++
	return nil
}

// compile-time interface check
var (
	_ repository.UserRepository    = (*memUsers)(nil)
	_ repository.AccountRepository = (*memAccounts)(nil)
	_ repository.SessionRepository = (*memSessions)(nil)
)
