// Package model はドメインモデルを定義する。
package model

import (
	"strconv"
	"strings"
	"time"
)

// ContentEntry はCMS上の公開単位（ニュース記事）を表す。
// 永続化はコンテンツストアが所有し、Notifiedのみディスパッチャーが書き込む。
type ContentEntry struct {
	ID           int64
	DocumentID   string // 下書き/公開リビジョン間で不変の外部向けID
	Title        string
	Excerpt      string // HTMLを含む場合がある
	Body         string
	Author       string
	Slug         string
	Cover        MediaReference
	PublishedAt  *time.Time // nilは下書き
	UpdatedAt    *time.Time
	CreatedAt    *time.Time
	CategoryRefs []int64
	Notified     bool
}

// IsPublished は記事が公開状態かどうかを返す。
func (e *ContentEntry) IsPublished() bool {
	return e != nil && e.PublishedAt != nil
}

// Identity はログやキャンペーン識別子に使うIDを返す。
// DocumentIDが空の場合は内部IDで代替する。
func (e *ContentEntry) Identity() string {
	if e.DocumentID != "" {
		return e.DocumentID
	}
	if e.ID != 0 {
		return strconv.FormatInt(e.ID, 10)
	}
	return ""
}

// LatestTimestamp はUpdatedAt/PublishedAt/CreatedAtのうち最も新しい時刻を返す。
// いずれも未設定の場合はnilを返す。
func (e *ContentEntry) LatestTimestamp() *time.Time {
	var latest *time.Time
	for _, ts := range []*time.Time{e.UpdatedAt, e.PublishedAt, e.CreatedAt} {
		if ts == nil {
			continue
		}
		if latest == nil || ts.After(*latest) {
			latest = ts
		}
	}
	return latest
}

// Category は記事カテゴリを表す。
type Category struct {
	ID   int64
	Slug string
	Name string
}

// NormalizedSlug は比較用に正規化したスラッグを返す。
func (c Category) NormalizedSlug() string {
	return NormalizeSlug(c.Slug)
}

// NormalizeSlug はスラッグの前後空白を除去し小文字化する。
func NormalizeSlug(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}
