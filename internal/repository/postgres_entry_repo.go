package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/hitoshi/newsdispatch/internal/model"
)

// entryRelatedType はfiles_related_mphで記事を指すrelated_type。
const entryRelatedType = "api::news-section.news-section"

// coverField は記事のカバー画像フィールド名。
const coverField = "image"

// PostgresEntryRepo はCMSのnews_sectionsテーブルを参照する記事リポジトリ。
type PostgresEntryRepo struct {
	db *sql.DB
}

// NewPostgresEntryRepo はPostgresEntryRepoを生成する。
func NewPostgresEntryRepo(db *sql.DB) *PostgresEntryRepo {
	return &PostgresEntryRepo{db: db}
}

func findEntryQuery(documentID string) sq.SelectBuilder {
	return psql.Select(
		"ns.id", "ns.document_id", "ns.title", "ns.short_description", "ns.description", "ns.author",
		"ns.published_at", "ns.created_at", "ns.updated_at", "COALESCE(ns.mail_sent, false)",
		"f.url", "f.alternative_text", "f.formats",
		"ARRAY(SELECT l.news_category_id FROM news_sections_news_categories_lnk l WHERE l.news_section_id = ns.id)",
	).
		From("news_sections ns").
		LeftJoin("files_related_mph frm ON frm.related_id = ns.id AND frm.related_type = ? AND frm.field = ?",
			entryRelatedType, coverField).
		LeftJoin("files f ON f.id = frm.file_id").
		Where(sq.Eq{"ns.document_id": documentID}).
		OrderBy("ns.published_at IS NULL", "ns.id DESC").
		Limit(1)
}

// FindByDocumentID はdocumentIdで記事を取得する。
// 公開リビジョンがあればそれを優先する。見つからない場合はnilを返す。
func (r *PostgresEntryRepo) FindByDocumentID(ctx context.Context, documentID string) (*model.ContentEntry, error) {
	query, args, err := findEntryQuery(documentID).ToSql()
	if err != nil {
		return nil, fmt.Errorf("記事取得クエリの組み立てに失敗しました: %w", err)
	}

	entry := &model.ContentEntry{}
	var title, excerpt, body, author, coverURL, coverAlt sql.NullString
	var publishedAt, createdAt, updatedAt sql.NullTime
	var formats []byte
	var categoryRefs pq.Int64Array

	err = r.db.QueryRowContext(ctx, query, args...).Scan(
		&entry.ID, &entry.DocumentID, &title, &excerpt, &body, &author,
		&publishedAt, &createdAt, &updatedAt, &entry.Notified,
		&coverURL, &coverAlt, &formats,
		&categoryRefs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}

	entry.Title = nullStringValue(title)
	entry.Excerpt = nullStringValue(excerpt)
	entry.Body = nullStringValue(body)
	entry.Author = nullStringValue(author)
	entry.PublishedAt = nullTimePtr(publishedAt)
	entry.CreatedAt = nullTimePtr(createdAt)
	entry.UpdatedAt = nullTimePtr(updatedAt)
	entry.CategoryRefs = []int64(categoryRefs)
	entry.Cover = model.MediaReference{
		URL: nullStringValue(coverURL),
		Alt: nullStringValue(coverAlt),
	}
	if len(formats) > 0 {
		// 壊れたformatsは無視して元画像のURLを使う
		var parsed map[string]model.MediaFormat
		if json.Unmarshal(formats, &parsed) == nil {
			entry.Cover.Formats = parsed
		}
	}

	return entry, nil
}

func categoriesQuery(entry *model.ContentEntry) sq.SelectBuilder {
	q := psql.Select("c.id", "COALESCE(c.slug, '')", "COALESCE(c.category, '')").
		Distinct().
		From("news_categories c")

	if len(entry.CategoryRefs) > 0 {
		return q.Where("c.id = ANY(?)", pq.Int64Array(entry.CategoryRefs)).OrderBy("c.id")
	}

	q = q.Join("news_sections_news_categories_lnk l ON l.news_category_id = c.id")
	if entry.DocumentID != "" {
		// 下書きと公開リビジョンのどちらに紐づいていても拾う
		q = q.Join("news_sections ns ON ns.id = l.news_section_id").
			Where(sq.Eq{"ns.document_id": entry.DocumentID})
	} else {
		q = q.Where(sq.Eq{"l.news_section_id": entry.ID})
	}
	return q.OrderBy("c.id")
}

// CategoriesForEntry は記事に紐づくカテゴリを取得する。
func (r *PostgresEntryRepo) CategoriesForEntry(ctx context.Context, entry *model.ContentEntry) ([]model.Category, error) {
	query, args, err := categoriesQuery(entry).ToSql()
	if err != nil {
		return nil, fmt.Errorf("カテゴリ取得クエリの組み立てに失敗しました: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("カテゴリの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var categories []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Slug, &c.Name); err != nil {
			return nil, fmt.Errorf("カテゴリのスキャンに失敗しました: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("カテゴリの読み取りに失敗しました: %w", err)
	}
	return categories, nil
}

func markNotifiedQuery(entry *model.ContentEntry) sq.UpdateBuilder {
	q := psql.Update("news_sections").Set("mail_sent", true)
	if entry.DocumentID != "" {
		return q.Where(sq.Eq{"document_id": entry.DocumentID})
	}
	return q.Where(sq.Eq{"id": entry.ID})
}

// MarkNotified は同じdocumentIdの全リビジョンに通知済みフラグを立てる。
func (r *PostgresEntryRepo) MarkNotified(ctx context.Context, entry *model.ContentEntry) error {
	query, args, err := markNotifiedQuery(entry).ToSql()
	if err != nil {
		return fmt.Errorf("通知済み更新クエリの組み立てに失敗しました: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("通知済みフラグの更新に失敗しました: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("通知済みフラグの更新対象の記事が見つかりません: %s", entry.Identity())
	}
	return nil
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
