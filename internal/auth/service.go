// Package auth はGoogle OAuthによるサインインとセッション管理を提供する。
//
// サインインの永続化はすべてadapter.Adapterを通して行う。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/ignitecall/internal/adapter"
	"github.com/hitoshi/ignitecall/internal/cookie"
	"github.com/hitoshi/ignitecall/internal/metrics"
	"github.com/hitoshi/ignitecall/internal/model"
	"github.com/hitoshi/ignitecall/internal/repository"
	"github.com/hitoshi/ignitecall/internal/security"
)

// ErrEmailMissing はOAuthプロバイダーのプロフィールにメールアドレスがない場合に返される。
// メールアドレスのないユーザーは仮登録と区別できないため確定させない。
var ErrEmailMissing = errors.New("oauth profile has no email")

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報とトークンを表す。
type OAuthUserInfo struct {
	Provider          string
	ProviderAccountID string
	Email             string
	Name              string
	AvatarURL         string

	AccessToken  string
	RefreshToken string
	ExpiresAt    *int64 // UNIX秒
	TokenType    string
	Scope        string
	IDToken      string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge    time.Duration // セッション有効期間
	SessionUpdateAge time.Duration // この間隔を過ぎたセッションは期限を延長する
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth     OAuthProvider
	adapter   adapter.Adapter
	sanitizer security.NameSanitizer
	metrics   metrics.MetricsCollector
	config    ServiceConfig
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	a adapter.Adapter,
	sanitizer security.NameSanitizer,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		oauth:     oauth,
		adapter:   a,
		sanitizer: sanitizer,
		metrics:   collector,
		config:    config,
		now:       time.Now,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
//
// プロバイダーアカウントが紐付け済みならそのユーザーでログインし、アバターを更新する。
// 未紐付けの場合、同じメールアドレスのユーザーが存在すればOAUTH_ACCOUNT_NOT_LINKEDを返す。
// それ以外はCookieの仮登録ユーザーを確定させてアカウントを紐付ける。
// ctxには仮登録ユーザーCookieを読むためのcookie.Storeが必要。
func (s *Service) HandleCallback(ctx context.Context, code string) (_ *adapter.Session, err error) {
	defer func() {
		outcome := metrics.OutcomeOK
		if err != nil {
			outcome = metrics.OutcomeError
		}
		s.metrics.RecordSignIn(outcome)
	}()

	// 1. 認可コードをトークンに交換し、ユーザー情報を取得
	info, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	// 2. カレンダーのスコープが許可されていなければ拒否
	if !HasScope(info.Scope, CalendarScope) {
		slog.Warn("calendar scope not granted",
			slog.String("provider", info.Provider),
			slog.String("scope", info.Scope),
		)
		return nil, model.NewCalendarPermissionMissingError()
	}

	// 3. ユーザーを特定または確定
	userID, err := s.resolveUser(ctx, info)
	if err != nil {
		return nil, err
	}

	// 4. セッションを発行
	session, err := s.createSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}

func (s *Service) resolveUser(ctx context.Context, info *OAuthUserInfo) (string, error) {
	name := info.Name
	if s.sanitizer != nil {
		name = s.sanitizer.Sanitize(name)
	}

	existing, err := s.adapter.GetUserByAccount(ctx, info.Provider, info.ProviderAccountID)
	if err != nil {
		return "", fmt.Errorf("failed to find user by account: %w", err)
	}
	if existing != nil {
		existing.AvatarURL = info.AvatarURL
		if _, err := s.adapter.UpdateUser(ctx, *existing); err != nil {
			return "", fmt.Errorf("failed to update user: %w", err)
		}
		slog.Info("existing user signed in",
			slog.String("user_id", existing.ID),
			slog.String("provider", info.Provider),
		)
		return existing.ID, nil
	}

	if strings.TrimSpace(info.Email) == "" {
		return "", ErrEmailMissing
	}

	byEmail, err := s.adapter.GetUserByEmail(ctx, info.Email)
	if err != nil {
		return "", fmt.Errorf("failed to find user by email: %w", err)
	}
	if byEmail != nil {
		return "", model.NewOAuthAccountNotLinkedError()
	}

	created, err := s.adapter.CreateUser(ctx, adapter.User{
		Name:      name,
		Email:     info.Email,
		AvatarURL: info.AvatarURL,
	})
	if err != nil {
		return "", err
	}

	if err := s.adapter.LinkAccount(ctx, adapter.Account{
		UserID:            created.ID,
		Type:              "oauth",
		Provider:          info.Provider,
		ProviderAccountID: info.ProviderAccountID,
		RefreshToken:      info.RefreshToken,
		AccessToken:       info.AccessToken,
		ExpiresAt:         info.ExpiresAt,
		TokenType:         info.TokenType,
		Scope:             info.Scope,
		IDToken:           info.IDToken,
	}); err != nil {
		s.revertProvisional(ctx, created)
		return "", fmt.Errorf("failed to link account: %w", err)
	}

	slog.Info("account linked",
		slog.String("user_id", created.ID),
		slog.String("provider", info.Provider),
	)
	return created.ID, nil
}

// revertProvisional はアカウント紐付けに失敗したユーザーを仮登録状態（email NULL）に戻し、
// 仮登録Cookieを再設定する。次回のサインインで同じ行を確定させられる。
func (s *Service) revertProvisional(ctx context.Context, u *adapter.User) {
	if _, err := s.adapter.UpdateUser(ctx, adapter.User{ID: u.ID, Name: u.Name}); err != nil {
		slog.Error("failed to revert provisional user",
			slog.String("user_id", u.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if store, ok := cookie.FromContext(ctx); ok {
		cookie.SetProvisionalUser(store, u.ID)
	}
	slog.Warn("provisional user reverted after link failure",
		slog.String("user_id", u.ID),
	)
}

// CurrentSession はセッショントークンから有効なセッションとユーザーを取得する。
// 存在しない、または期限切れの場合はnilを返す。期限切れのセッションは削除する。
// 前回の更新からSessionUpdateAge以上経過したセッションは期限を延長する。
func (s *Service) CurrentSession(ctx context.Context, sessionToken string) (*adapter.SessionAndUser, error) {
	if sessionToken == "" {
		return nil, nil
	}

	found, err := s.adapter.GetSessionAndUser(ctx, sessionToken)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if found == nil {
		return nil, nil
	}

	now := s.now()
	if !found.Session.Expires.After(now) {
		if err := s.adapter.DeleteSession(ctx, sessionToken); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("failed to delete expired session: %w", err)
		}
		return nil, nil
	}

	dueAt := found.Session.Expires.Add(-s.config.SessionMaxAge).Add(s.config.SessionUpdateAge)
	if !dueAt.After(now) {
		updated, err := s.adapter.UpdateSession(ctx, adapter.Session{
			SessionToken: found.Session.SessionToken,
			UserID:       found.Session.UserID,
			Expires:      now.Add(s.config.SessionMaxAge),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to extend session: %w", err)
		}
		found.Session = *updated
	}

	return found, nil
}

// SignOut はセッションを破棄する。既に存在しないセッションはエラーにしない。
func (s *Service) SignOut(ctx context.Context, sessionToken string) error {
	if sessionToken == "" {
		return nil
	}

	if err := s.adapter.DeleteSession(ctx, sessionToken); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user signed out")
	return nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*adapter.Session, error) {
	token, err := GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	return s.adapter.CreateSession(ctx, adapter.Session{
		SessionToken: token,
		UserID:       userID,
		Expires:      s.now().Add(s.config.SessionMaxAge),
	})
}

// GenerateToken は暗号的に安全な32バイトのランダム値を16進文字列で返す。
// セッショントークンとOAuthのstateに使用する。
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
