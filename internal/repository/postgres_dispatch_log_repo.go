package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/hitoshi/newsdispatch/internal/model"
)

// defaultHistoryLimit は履歴取得の件数上限のデフォルト値。
const defaultHistoryLimit = 50

var dispatchLogColumns = []string{
	"id", "document_id", "entry_id", "idempotency_key", "campaign_id",
	"outcome", "phase", "error_message", "created_at",
}

// PostgresDispatchLogRepo はdispatch_logsテーブルを使用するディスパッチ台帳。
type PostgresDispatchLogRepo struct {
	db *sql.DB
}

// NewPostgresDispatchLogRepo はPostgresDispatchLogRepoを生成する。
func NewPostgresDispatchLogRepo(db *sql.DB) *PostgresDispatchLogRepo {
	return &PostgresDispatchLogRepo{db: db}
}

func insertDispatchLogQuery(log *model.DispatchLog) sq.InsertBuilder {
	return psql.Insert("dispatch_logs").
		Columns(dispatchLogColumns...).
		Values(
			log.ID, log.DocumentID, log.EntryID, log.IdempotencyKey, nullString(log.CampaignID),
			string(log.Outcome), nullString(string(log.Phase)), nullString(log.ErrorMessage), log.CreatedAt,
		)
}

// Create は台帳に1件追記する。
func (r *PostgresDispatchLogRepo) Create(ctx context.Context, log *model.DispatchLog) error {
	query, args, err := insertDispatchLogQuery(log).ToSql()
	if err != nil {
		return fmt.Errorf("台帳登録クエリの組み立てに失敗しました: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("ディスパッチ台帳の登録に失敗しました: %w", err)
	}
	return nil
}

func historyQuery(documentID string, limit int) sq.SelectBuilder {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return psql.Select(dispatchLogColumns...).
		From("dispatch_logs").
		Where(sq.Eq{"document_id": documentID}).
		OrderBy("created_at DESC").
		Limit(uint64(limit))
}

// ListByDocumentID は記事のディスパッチ履歴を新しい順に返す。
func (r *PostgresDispatchLogRepo) ListByDocumentID(ctx context.Context, documentID string, limit int) ([]*model.DispatchLog, error) {
	query, args, err := historyQuery(documentID, limit).ToSql()
	if err != nil {
		return nil, fmt.Errorf("履歴取得クエリの組み立てに失敗しました: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ディスパッチ履歴の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var logs []*model.DispatchLog
	for rows.Next() {
		l := &model.DispatchLog{}
		var campaignID, phase, errorMessage sql.NullString
		var outcome string
		if err := rows.Scan(
			&l.ID, &l.DocumentID, &l.EntryID, &l.IdempotencyKey, &campaignID,
			&outcome, &phase, &errorMessage, &l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ディスパッチ履歴のスキャンに失敗しました: %w", err)
		}
		l.CampaignID = nullStringValue(campaignID)
		l.Outcome = model.Outcome(outcome)
		l.Phase = model.Phase(nullStringValue(phase))
		l.ErrorMessage = nullStringValue(errorMessage)
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ディスパッチ履歴の読み取りに失敗しました: %w", err)
	}
	return logs, nil
}

func retryCandidatesQuery(since time.Time, limit int) sq.SelectBuilder {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	// 記事ごとの最新の記録だけを見る
	latest := sq.Select("DISTINCT ON (document_id) document_id", "outcome", "created_at").
		From("dispatch_logs").
		Where(sq.GtOrEq{"created_at": since}).
		OrderBy("document_id", "created_at DESC")

	return psql.Select("document_id").
		FromSelect(latest, "latest").
		Where(sq.Eq{"outcome": string(model.OutcomeFailed)}).
		OrderBy("created_at").
		Limit(uint64(limit))
}

// ListRetryCandidates は直近の結果がfailedで、since以降に記録されたdocumentIdを返す。
func (r *PostgresDispatchLogRepo) ListRetryCandidates(ctx context.Context, since time.Time, limit int) ([]string, error) {
	query, args, err := retryCandidatesQuery(since, limit).ToSql()
	if err != nil {
		return nil, fmt.Errorf("再試行対象クエリの組み立てに失敗しました: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("再試行対象の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("再試行対象のスキャンに失敗しました: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("再試行対象の読み取りに失敗しました: %w", err)
	}
	return ids, nil
}
