// Package user はユーザー名登録のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hitoshi/ignitecall/internal/metrics"
	"github.com/hitoshi/ignitecall/internal/model"
	"github.com/hitoshi/ignitecall/internal/onboarding"
	"github.com/hitoshi/ignitecall/internal/repository"
	"github.com/hitoshi/ignitecall/internal/security"
)

// Service はユーザー名登録のサービス層。
// 仮登録ユーザー（メールアドレス未設定）を作成する。
type Service struct {
	userRepo  repository.UserRepository
	sanitizer security.NameSanitizer
	metrics   metrics.MetricsCollector
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	sanitizer security.NameSanitizer,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		userRepo:  userRepo,
		sanitizer: sanitizer,
		metrics:   collector,
	}
}

// Register は名前とユーザー名から仮登録ユーザーを作成する。
// ユーザー名は小文字に正規化して検証する。
// 使用済みのユーザー名はUSERNAME_TAKENエラーを返し、書き込みは行わない。
// 事前確認と挿入の間に他のリクエストが同じユーザー名を確保した場合も
// 一意制約違反としてUSERNAME_TAKENを返す。
func (s *Service) Register(ctx context.Context, name, username string) (*model.User, error) {
	username, ferr := onboarding.ValidateUsername(username)
	if ferr != nil {
		s.metrics.RecordRegistration(metrics.OutcomeInvalid)
		return nil, model.NewValidationError(ferr.Field, ferr.Message)
	}
	if s.sanitizer != nil {
		name = s.sanitizer.Sanitize(name)
	}
	name, ferr = onboarding.ValidateName(name)
	if ferr != nil {
		s.metrics.RecordRegistration(metrics.OutcomeInvalid)
		return nil, model.NewValidationError(ferr.Field, ferr.Message)
	}

	taken, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		s.metrics.RecordRegistration(metrics.OutcomeError)
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if taken != nil {
		s.metrics.RecordRegistration(metrics.OutcomeConflict)
		return nil, model.NewUsernameTakenError()
	}

	user := &model.User{
		ID:       uuid.NewString(),
		Name:     name,
		Username: username,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUsernameTaken) {
			s.metrics.RecordRegistration(metrics.OutcomeConflict)
			return nil, model.NewUsernameTakenError()
		}
		s.metrics.RecordRegistration(metrics.OutcomeError)
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.metrics.RecordRegistration(metrics.OutcomeCreated)
	slog.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)

	return user, nil
}
