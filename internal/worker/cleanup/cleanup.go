// Package cleanup はディスパッチ台帳の保持期間管理ジョブを提供する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// defaultRetentionDays は台帳の既定の保持日数。
const defaultRetentionDays = 90

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// LedgerCleanupJob は保持期間を超過したディスパッチ台帳の行を削除する。
// 削除は冪等で、対象がない場合もエラーにしない。
type LedgerCleanupJob struct {
	db            Executor
	logger        *slog.Logger
	RetentionDays int
}

// NewLedgerCleanupJob はLedgerCleanupJobを生成する。
// retentionDaysが0以下の場合は90日とする。
func NewLedgerCleanupJob(db Executor, retentionDays int, logger *slog.Logger) *LedgerCleanupJob {
	if retentionDays <= 0 {
		retentionDays = defaultRetentionDays
	}
	return &LedgerCleanupJob{
		db:            db,
		logger:        logger,
		RetentionDays: retentionDays,
	}
}

func (j *LedgerCleanupJob) deleteQuery() sq.DeleteBuilder {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Delete("dispatch_logs").
		Where("created_at < now() - ?::interval", fmt.Sprintf("%d days", j.RetentionDays))
}

// Run は保持期間より古い台帳の行を削除する。
func (j *LedgerCleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	query, args, err := j.deleteQuery().ToSql()
	if err != nil {
		return fmt.Errorf("台帳クリーンアップのクエリ生成に失敗: %w", err)
	}

	result, err := j.db.ExecContext(ctx, query, args...)
	if err != nil {
		j.logger.Error("台帳クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("台帳クリーンアップの実行に失敗: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	j.logger.Info("台帳クリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start はintervalごとにRunを実行する。ctxがキャンセルされるまで戻らない。
func (j *LedgerCleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("台帳クリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			// エラーはRun内でログ出力済み
			_ = j.Run(ctx)
		}
	}
}
