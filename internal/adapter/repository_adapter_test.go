package adapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/ignitecall/internal/cookie"
	"github.com/hitoshi/ignitecall/internal/model"
	"github.com/hitoshi/ignitecall/internal/repository"
	"github.com/hitoshi/ignitecall/internal/repository/repotest"
)

// --- モック定義 ---

// recordingCollector はアダプタ呼び出しの記録を保持する。
type recordingCollector struct {
	calls []string
}

func (c *recordingCollector) RecordRegistration(string) {}
func (c *recordingCollector) RecordSignIn(string) {}
func (c *recordingCollector) RecordHTTPStatus(int) {}
func (c *recordingCollector) RecordRequestLatency(time.Duration) {}
func (c *recordingCollector) RecordCleanup(int64, int64) {}
func (c *recordingCollector) RecordAdapterCall(method, outcome string) {
	c.calls = append(c.calls, method+":"+outcome)
}

type mockUserRepo struct {
	repository.UserRepository
	findByIDFn func(ctx context.Context, id string) (*model.User, error)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return m.findByIDFn(ctx, id)
}

// newTestAdapter は仮登録ユーザー1件を持つアダプタを生成する。
func newTestAdapter(t *testing.T) (*RepositoryAdapter, *repotest.Memory) {
	t.Helper()
	mem := repotest.NewMemory()
	mem.PutUser(model.User{ID: "user-1", Name: "Ana Silva", Username: "ana"})
	return NewRepositoryAdapter(mem.Store(), nil), mem
}

// --- テスト ---

func TestCreateUser_WithoutCookieStore_ReturnsPreconditionError(t *testing.T) {
	a, mem := newTestAdapter(t)

	_, err := a.CreateUser(context.Background(), User{Name: "Ana", Email: "ana@x.com"})
	if !model.HasCode(err, model.ErrCodeUserIDCookieMissing) {
		t.Fatalf("error = %v, want USER_ID_COOKIE_MISSING", err)
	}
	if mem.Writes != 0 {
		t.Errorf("Writes = %d, want 0", mem.Writes)
	}
}

func TestCreateUser_WithoutCookie_ReturnsPreconditionError(t *testing.T) {
	a, mem := newTestAdapter(t)
	ctx := cookie.WithStore(context.Background(), cookie.NewMemoryStore(nil))

	_, err := a.CreateUser(ctx, User{Name: "Ana", Email: "ana@x.com"})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T", err)
	}
	if apiErr.Message != "User ID not found on cookies" {
		t.Errorf("Message = %q", apiErr.Message)
	}
	if mem.Writes != 0 {
		t.Errorf("Writes = %d, want 0", mem.Writes)
	}
}

func TestCreateUser_FinalizesProvisionalAndClearsCookie(t *testing.T) {
	a, _ := newTestAdapter(t)
	store := cookie.NewMemoryStore(map[string]string{cookie.ProvisionalUserName: "user-1"})
	ctx := cookie.WithStore(context.Background(), store)

	got, err := a.CreateUser(ctx, User{Name: "Ana S.", Email: "ana@x.com", AvatarURL: "https://img/a.png"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if got.ID != "user-1" || got.Username != "ana" {
		t.Errorf("user = %+v, want id user-1 username ana", got)
	}
	if got.Email != "ana@x.com" || got.AvatarURL != "https://img/a.png" || got.Name != "Ana S." {
		t.Errorf("profile not applied: %+v", got)
	}
	if got.EmailVerified != nil {
		t.Error("EmailVerified must be nil")
	}
	if _, ok := store.Get(cookie.ProvisionalUserName); ok {
		t.Error("provisional cookie should be cleared")
	}

	byEmail, err := a.GetUserByEmail(context.Background(), "ana@x.com")
	if err != nil || byEmail == nil || byEmail.ID != "user-1" {
		t.Errorf("GetUserByEmail = %+v, %v", byEmail, err)
	}
}

func TestCreateUser_AlreadyFinalized_PropagatesRepositoryError(t *testing.T) {
	a, mem := newTestAdapter(t)
	email := "ana@x.com"
	mem.PutUser(model.User{ID: "user-1", Name: "Ana", Username: "ana", Email: &email})
	store := cookie.NewMemoryStore(map[string]string{cookie.ProvisionalUserName: "user-1"})

	_, err := a.CreateUser(cookie.WithStore(context.Background(), store), User{Name: "x", Email: "other@x.com"})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("error = %v, want repository.ErrNotFound", err)
	}
	if _, ok := store.Get(cookie.ProvisionalUserName); !ok {
		t.Error("cookie must remain when finalization fails")
	}
}

func TestLookups_ReturnNilForAbsentKeys(t *testing.T) {
	a, _ := newTestAdapter(t)
	ctx := context.Background()

	if u, err := a.GetUser(ctx, "missing"); u != nil || err != nil {
		t.Errorf("GetUser = %v, %v", u, err)
	}
	if u, err := a.GetUserByEmail(ctx, "nobody@x.com"); u != nil || err != nil {
		t.Errorf("GetUserByEmail = %v, %v", u, err)
	}
	if u, err := a.GetUserByAccount(ctx, "google", "none"); u != nil || err != nil {
		t.Errorf("GetUserByAccount = %v, %v", u, err)
	}
	if s, err := a.GetSessionAndUser(ctx, "none"); s != nil || err != nil {
		t.Errorf("GetSessionAndUser = %v, %v", s, err)
	}
}

func TestLinkAccount_ThenGetUserByAccount(t *testing.T) {
	a, _ := newTestAdapter(t)
	ctx := context.Background()
	expires := int64(1700000000)

	err := a.LinkAccount(ctx, Account{
		UserID:            "user-1",
		Type:              "oauth",
		Provider:          "google",
		ProviderAccountID: "sub-123",
		AccessToken:       "at",
		RefreshToken:      "rt",
		ExpiresAt:         &expires,
		Scope:             "openid email",
	})
	if err != nil {
		t.Fatalf("LinkAccount: %v", err)
	}

	u, err := a.GetUserByAccount(ctx, "google", "sub-123")
	if err != nil || u == nil || u.ID != "user-1" {
		t.Errorf("GetUserByAccount = %+v, %v", u, err)
	}
}

func TestSession_RoundTrip(t *testing.T) {
	a, _ := newTestAdapter(t)
	ctx := context.Background()
	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	created, err := a.CreateSession(ctx, Session{SessionToken: "tok", UserID: "user-1", Expires: expires})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if created.SessionToken != "tok" || !created.Expires.Equal(expires) {
		t.Errorf("CreateSession = %+v", created)
	}

	got, err := a.GetSessionAndUser(ctx, "tok")
	if err != nil || got == nil {
		t.Fatalf("GetSessionAndUser = %v, %v", got, err)
	}
	if got.User.ID != "user-1" || got.Session.UserID != "user-1" {
		t.Errorf("GetSessionAndUser = %+v", got)
	}

	later := expires.Add(48 * time.Hour)
	updated, err := a.UpdateSession(ctx, Session{SessionToken: "tok", UserID: "user-1", Expires: later})
	if err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}
	if !updated.Expires.Equal(later) {
		t.Errorf("UpdateSession.Expires = %v, want %v", updated.Expires, later)
	}
	got, _ = a.GetSessionAndUser(ctx, "tok")
	if !got.Session.Expires.Equal(later) {
		t.Errorf("update not visible: %v", got.Session.Expires)
	}

	if err := a.DeleteSession(ctx, "tok"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if got, err := a.GetSessionAndUser(ctx, "tok"); got != nil || err != nil {
		t.Errorf("after delete = %v, %v; want nil, nil", got, err)
	}
}

func TestUpdateUser_ChangesProfile(t *testing.T) {
	a, _ := newTestAdapter(t)

	u, err := a.UpdateUser(context.Background(), User{ID: "user-1", Name: "Ana Maria", Email: "ana@x.com"})
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if u.Name != "Ana Maria" || u.Username != "ana" {
		t.Errorf("UpdateUser = %+v", u)
	}
}

func TestRepositoryErrors_PropagateUnmodified(t *testing.T) {
	boom := errors.New("connection reset")
	collector := &recordingCollector{}
	a := NewRepositoryAdapter(repository.Store{
		Users: &mockUserRepo{findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return nil, boom
		}},
	}, collector)

	_, err := a.GetUser(context.Background(), "user-1")
	if err != boom {
		t.Fatalf("error = %v, want the repository error itself", err)
	}
	if len(collector.calls) != 1 || collector.calls[0] != "GetUser:error" {
		t.Errorf("calls = %v", collector.calls)
	}
}
