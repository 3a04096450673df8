// Package cleanup は不要になったセッションと仮登録ユーザーの自動削除ジョブを提供する。
// 期限切れのセッションと、Google連携が完了しないまま保持期間を過ぎた
// 仮登録ユーザーを定期的に削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/ignitecall/internal/metrics"
)

// DefaultProvisionalTTL は仮登録ユーザーの保持期間。仮登録Cookieの有効期間と同じ7日。
const DefaultProvisionalTTL = 7 * 24 * time.Hour

const (
	deleteExpiredSessionsQuery = `DELETE FROM sessions WHERE expires < now()`

	// 仮登録ユーザーはemailがNULLの行。accountsとsessionsはCASCADE削除される。
	deleteAbandonedUsersQuery = `DELETE FROM users WHERE email IS NULL AND created_at < now() - $1::interval`
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CleanupJob は期限切れデータの削除ジョブ。冪等な削除処理を保証する。
type CleanupJob struct {
	db             Executor
	logger         *slog.Logger
	metrics        metrics.MetricsCollector
	ProvisionalTTL time.Duration // 仮登録ユーザーの保持期間（デフォルト: 7日）
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(db Executor, logger *slog.Logger, collector metrics.MetricsCollector) *CleanupJob {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &CleanupJob{
		db:             db,
		logger:         logger,
		metrics:        collector,
		ProvisionalTTL: DefaultProvisionalTTL,
	}
}

// Run は期限切れのセッションと保持期間を過ぎた仮登録ユーザーを削除する。
// 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	sessions, err := j.exec(ctx, deleteExpiredSessionsQuery)
	if err != nil {
		j.logger.Error("セッションのクリーンアップに失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("セッションのクリーンアップに失敗: %w", err)
	}

	interval := fmt.Sprintf("%d seconds", int64(j.ProvisionalTTL/time.Second))
	users, err := j.exec(ctx, deleteAbandonedUsersQuery, interval)
	if err != nil {
		j.logger.Error("仮登録ユーザーのクリーンアップに失敗しました",
			slog.String("error", err.Error()),
			slog.Duration("provisional_ttl", j.ProvisionalTTL),
		)
		return fmt.Errorf("仮登録ユーザーのクリーンアップに失敗: %w", err)
	}

	j.metrics.RecordCleanup(sessions, users)
	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_sessions", sessions),
		slog.Int64("deleted_provisional_users", users),
		slog.Duration("provisional_ttl", j.ProvisionalTTL),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}

func (j *CleanupJob) exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	result, err := j.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}
	return n, nil
}

// Start は起動直後に1回、その後intervalごとにRunを実行する。
// ctxがキャンセルされるまでブロックする。Runの失敗はログに記録して継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	j.runLogged(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runLogged(ctx)
		}
	}
}

func (j *CleanupJob) runLogged(ctx context.Context) {
	if err := j.Run(ctx); err != nil && ctx.Err() == nil {
		j.logger.Warn("クリーンアップジョブは次回に再試行します",
			slog.String("error", err.Error()),
		)
	}
}
