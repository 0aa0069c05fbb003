package dispatch

import (
	"context"
	"log/slog"

	"github.com/hitoshi/newsdispatch/internal/model"
)

// CategoryFetcher は記事に紐づくカテゴリを取得する。
type CategoryFetcher interface {
	CategoriesForEntry(ctx context.Context, entry *model.ContentEntry) ([]model.Category, error)
}

// EligibilityFilter はカテゴリの許可リストで配信対象かどうかを判定する。
type EligibilityFilter struct {
	fetcher CategoryFetcher
	allowed map[string]struct{}
	logger  *slog.Logger
}

// NewEligibilityFilter はEligibilityFilterを生成する。
// スラッグは前後空白を除去し小文字化して比較する。
func NewEligibilityFilter(fetcher CategoryFetcher, allowedSlugs []string, logger *slog.Logger) *EligibilityFilter {
	allowed := make(map[string]struct{}, len(allowedSlugs))
	for _, s := range allowedSlugs {
		if n := model.NormalizeSlug(s); n != "" {
			allowed[n] = struct{}{}
		}
	}
	return &EligibilityFilter{
		fetcher: fetcher,
		allowed: allowed,
		logger:  logger,
	}
}

// IsEligible は記事のカテゴリのいずれかが許可リストに含まれる場合にtrueを返す。
// カテゴリがない場合と取得に失敗した場合はfalseを返す。
func (f *EligibilityFilter) IsEligible(ctx context.Context, entry *model.ContentEntry) bool {
	if entry == nil || len(f.allowed) == 0 {
		return false
	}

	categories, err := f.fetcher.CategoriesForEntry(ctx, entry)
	if err != nil {
		f.logger.Warn("カテゴリの取得に失敗したため配信対象外として扱います",
			slog.Int64("entry_id", entry.ID),
			slog.String("document_id", entry.DocumentID),
			slog.String("error", err.Error()),
		)
		return false
	}

	for _, c := range categories {
		if _, ok := f.allowed[c.NormalizedSlug()]; ok {
			return true
		}
	}
	return false
}
